package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	require.Equal(t, 50, cfg.Search.MaxDepth)
	require.Equal(t, []string{"**/src/test/**", "**/test/**", "**/tests/**"}, cfg.Scope.TestRoots)
	require.Equal(t, []string{"**/*.java"}, cfg.Index.Include)
	require.Equal(t, []string{"**/*.xml"}, cfg.Index.MapperInclude)
	require.True(t, cfg.Index.RespectGitignore)
	require.Equal(t, runtime.NumCPU(), cfg.Index.Workers)
	require.Empty(t, cfg.Index.CacheDir)
}

func TestLoad(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := Load(t.TempDir(), "")
		require.NoError(t, err)
		want := Default()
		require.Equal(t, want.Search, cfg.Search)
		require.Equal(t, want.Scope, cfg.Scope)
		require.Equal(t, want.Index.Include, cfg.Index.Include)
		require.Equal(t, want.Index.Workers, cfg.Index.Workers)
		require.True(t, cfg.Index.RespectGitignore)
		require.Empty(t, cfg.Index.Exclude)
		require.Empty(t, cfg.Functional.Extra)
	})

	t.Run("file in root", func(t *testing.T) {
		root := t.TempDir()
		writeConfig(t, root, `
search:
  max_depth: 12
scope:
  test_roots: ["**/it/**"]
index:
  exclude: ["**/generated/**"]
  respect_gitignore: false
  cache_dir: .topcallers-cache
functional:
  extra: ["com.acme.Handler#handle"]
`)
		cfg, err := Load(root, "")
		require.NoError(t, err)
		require.Equal(t, 12, cfg.Search.MaxDepth)
		require.Equal(t, []string{"**/it/**"}, cfg.Scope.TestRoots)
		require.Equal(t, []string{"**/generated/**"}, cfg.Index.Exclude)
		require.False(t, cfg.Index.RespectGitignore)
		require.Equal(t, ".topcallers-cache", cfg.Index.CacheDir)
		require.Equal(t, []string{"**/*.java"}, cfg.Index.Include)

		table, err := cfg.FunctionalTable()
		require.NoError(t, err)
		require.True(t, table.IsAbstractMethod("com.acme.Handler", "handle"))
	})

	t.Run("environment overrides file", func(t *testing.T) {
		root := t.TempDir()
		writeConfig(t, root, "search:\n  max_depth: 12\n")
		t.Setenv("TOPCALLERS_SEARCH_MAX_DEPTH", "7")
		t.Setenv("TOPCALLERS_INDEX_WORKERS", "3")
		cfg, err := Load(root, "")
		require.NoError(t, err)
		require.Equal(t, 7, cfg.Search.MaxDepth)
		require.Equal(t, 3, cfg.Index.Workers)
	})

	t.Run("explicit path", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "search:\n  max_depth: 4\n")
		cfg, err := Load(t.TempDir(), path)
		require.NoError(t, err)
		require.Equal(t, 4, cfg.Search.MaxDepth)
	})

	t.Run("missing explicit path", func(t *testing.T) {
		_, err := Load(t.TempDir(), filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		root := t.TempDir()
		writeConfig(t, root, "search: [unclosed\n")
		_, err := Load(root, "")
		require.ErrorContains(t, err, "read config")
	})

	t.Run("invalid values", func(t *testing.T) {
		root := t.TempDir()
		writeConfig(t, root, "search:\n  max_depth: 0\n")
		_, err := Load(root, "")
		require.ErrorContains(t, err, "search.max_depth")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "depth",
			mutate:  func(c *Config) { c.Search.MaxDepth = -1 },
			wantErr: []string{"search.max_depth"},
		},
		{
			name:    "workers",
			mutate:  func(c *Config) { c.Index.Workers = 0 },
			wantErr: []string{"index.workers"},
		},
		{
			name:    "glob",
			mutate:  func(c *Config) { c.Index.Exclude = []string{"[oops"} },
			wantErr: []string{"index.exclude"},
		},
		{
			name:    "functional entry",
			mutate:  func(c *Config) { c.Functional.Extra = []string{"NoMethod"} },
			wantErr: []string{"functional.extra"},
		},
		{
			name: "several",
			mutate: func(c *Config) {
				c.Search.MaxDepth = 0
				c.Scope.TestRoots = []string{"[oops"}
			},
			wantErr: []string{"search.max_depth", "scope.test_roots"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			for _, want := range tt.wantErr {
				require.ErrorContains(t, err, want)
			}
		})
	}
}
