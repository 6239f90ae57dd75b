package javasrc

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/715d/topcallers/pkg/kb"
)

var skipDirs = map[string]struct{}{
	".git":         {},
	".hg":          {},
	".svn":         {},
	".idea":        {},
	".gradle":      {},
	".mvn":         {},
	"target":       {},
	"build":        {},
	"out":          {},
	"bin":          {},
	"node_modules": {},
}

// SkipDir reports whether a directory with the given base name is never
// indexed: VCS metadata, IDE settings, build output and hidden directories.
func SkipDir(name string) bool {
	_, skip := skipDirs[name]
	return skip || strings.HasPrefix(name, ".")
}

// Sources lists the files an index is built from. Paths are slash separated
// and relative to Root.
type Sources struct {
	Root    string
	Java    []string
	Mappers []string
}

// DiscoverOptions selects the files to index.
type DiscoverOptions struct {
	Include          []string
	Exclude          []string
	MapperInclude    []string
	RespectGitignore bool
}

// Discover walks root and returns the Java sources and mapper XML files
// selected by opts.
func Discover(root string, opts DiscoverOptions) (*Sources, error) {
	include := opts.Include
	if len(include) == 0 {
		include = []string{"**/*.java"}
	}
	javaScope, err := kb.NewPathScope(include, opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	mapperInclude := opts.MapperInclude
	if len(mapperInclude) == 0 {
		mapperInclude = []string{"**/*.xml"}
	}
	mapperScope, err := kb.NewPathScope(mapperInclude, opts.Exclude)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	var gi *ignore.GitIgnore
	if opts.RespectGitignore {
		gi = loadGitignore(root)
	}

	src := &Sources{Root: root}
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if SkipDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}

		switch filepath.Ext(name) {
		case ".java":
			if javaScope.Contains(rel) {
				src.Java = append(src.Java, rel)
			}
		case ".xml":
			if mapperScope.Contains(rel) {
				src.Mappers = append(src.Mappers, rel)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}

	slices.Sort(src.Java)
	slices.Sort(src.Mappers)
	return src, nil
}

// Abs returns the absolute form of a path relative to the source root.
func (s *Sources) Abs(rel string) string {
	return filepath.Join(s.Root, filepath.FromSlash(rel))
}

func loadGitignore(root string) *ignore.GitIgnore {
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	return gi
}
