// Package config loads topcallers settings from defaults, an optional YAML
// file and TOPCALLERS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/viper"

	"github.com/715d/topcallers/pkg/functional"
	"github.com/715d/topcallers/pkg/kb"
)

// FileName is the config file looked up in the source root.
const FileName = ".topcallers.yaml"

// Config is the complete topcallers configuration.
type Config struct {
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Scope      ScopeConfig      `yaml:"scope" mapstructure:"scope"`
	Index      IndexConfig      `yaml:"index" mapstructure:"index"`
	Functional FunctionalConfig `yaml:"functional" mapstructure:"functional"`
}

type SearchConfig struct {
	MaxDepth int `yaml:"max_depth" mapstructure:"max_depth"`
}

// ScopeConfig separates production from test sources.
type ScopeConfig struct {
	TestRoots []string `yaml:"test_roots" mapstructure:"test_roots"`
}

// IndexConfig selects and caches the indexed files.
type IndexConfig struct {
	Include          []string `yaml:"include" mapstructure:"include"`
	Exclude          []string `yaml:"exclude" mapstructure:"exclude"`
	MapperInclude    []string `yaml:"mapper_include" mapstructure:"mapper_include"`
	RespectGitignore bool     `yaml:"respect_gitignore" mapstructure:"respect_gitignore"`
	Workers          int      `yaml:"workers" mapstructure:"workers"`
	CacheDir         string   `yaml:"cache_dir" mapstructure:"cache_dir"` // empty disables the fact store
}

// FunctionalConfig extends the built-in functional interface table.
type FunctionalConfig struct {
	Extra []string `yaml:"extra" mapstructure:"extra"` // "pkg.Iface#method"
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Search: SearchConfig{MaxDepth: 50},
		Scope:  ScopeConfig{TestRoots: append([]string(nil), kb.DefaultTestRoots...)},
		Index: IndexConfig{
			Include:          []string{"**/*.java"},
			MapperInclude:    []string{"**/*.xml"},
			RespectGitignore: true,
			Workers:          runtime.NumCPU(),
		},
	}
}

// Load reads the configuration for the source tree at root. An explicit path
// must exist; otherwise FileName in root is used when present.
func Load(root, path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TOPCALLERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	file := path
	if file == "" {
		if candidate := filepath.Join(root, FileName); fileExists(candidate) {
			file = candidate
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// keys lists every setting so that each can be overridden from the
// environment, e.g. TOPCALLERS_SEARCH_MAX_DEPTH.
var keys = []string{
	"search.max_depth",
	"scope.test_roots",
	"index.include",
	"index.exclude",
	"index.mapper_include",
	"index.respect_gitignore",
	"index.workers",
	"index.cache_dir",
	"functional.extra",
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("search.max_depth", d.Search.MaxDepth)
	v.SetDefault("scope.test_roots", d.Scope.TestRoots)
	v.SetDefault("index.include", d.Index.Include)
	v.SetDefault("index.exclude", d.Index.Exclude)
	v.SetDefault("index.mapper_include", d.Index.MapperInclude)
	v.SetDefault("index.respect_gitignore", d.Index.RespectGitignore)
	v.SetDefault("index.workers", d.Index.Workers)
	v.SetDefault("index.cache_dir", d.Index.CacheDir)
	v.SetDefault("functional.extra", d.Functional.Extra)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Validate reports every invalid setting of cfg.
func Validate(cfg *Config) error {
	var errs []error
	if cfg.Search.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("search.max_depth must be at least 1, got %d", cfg.Search.MaxDepth))
	}
	if cfg.Index.Workers < 1 {
		errs = append(errs, fmt.Errorf("index.workers must be at least 1, got %d", cfg.Index.Workers))
	}
	globs := []struct {
		key      string
		patterns []string
	}{
		{"scope.test_roots", cfg.Scope.TestRoots},
		{"index.include", cfg.Index.Include},
		{"index.exclude", cfg.Index.Exclude},
		{"index.mapper_include", cfg.Index.MapperInclude},
	}
	for _, g := range globs {
		for _, p := range g.patterns {
			if _, err := glob.Compile(p, '/'); err != nil {
				errs = append(errs, fmt.Errorf("%s: malformed pattern %q: %w", g.key, p, err))
			}
		}
	}
	for _, entry := range cfg.Functional.Extra {
		if _, err := functional.ParseMethod(entry); err != nil {
			errs = append(errs, fmt.Errorf("functional.extra: %w", err))
		}
	}
	return errors.Join(errs...)
}

// FunctionalTable builds the functional interface table including the
// configured extra entries.
func (c *Config) FunctionalTable() (*functional.Table, error) {
	return functional.New(c.Functional.Extra)
}
