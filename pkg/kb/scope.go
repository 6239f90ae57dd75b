package kb

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultTestRoots are the source roots excluded from the production scope
// when no explicit list is configured.
var DefaultTestRoots = []string{"**/src/test/**", "**/test/**", "**/tests/**"}

// AllFiles is the scope containing every file.
var AllFiles Scope = allFiles{}

type allFiles struct{}

func (allFiles) Contains(string) bool { return true }

// PathScope selects files by slash-separated glob patterns.
type PathScope struct {
	include []glob.Glob
	exclude []glob.Glob
}

// NewPathScope compiles the include and exclude patterns. An empty include
// list selects every file not excluded.
func NewPathScope(include, exclude []string) (*PathScope, error) {
	s := &PathScope{}
	var err error
	if s.include, err = compileGlobs(include); err != nil {
		return nil, err
	}
	if s.exclude, err = compileGlobs(exclude); err != nil {
		return nil, err
	}
	return s, nil
}

// MustPathScope is like NewPathScope but panics on malformed patterns.
func MustPathScope(include, exclude []string) *PathScope {
	s, err := NewPathScope(include, exclude)
	if err != nil {
		panic(err)
	}
	return s
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Contains reports whether file is selected.
func (s *PathScope) Contains(file string) bool {
	file = filepath.ToSlash(file)
	if len(s.include) > 0 && !matchAny(s.include, file) {
		return false
	}
	return !matchAny(s.exclude, file)
}

// matchAny also tries the path with a leading slash so that "**/test/**"
// selects the relative path "test/Foo.java".
func matchAny(globs []glob.Glob, file string) bool {
	rooted := file
	if !strings.HasPrefix(file, "/") {
		rooted = "/" + file
	}
	for _, g := range globs {
		if g.Match(file) || g.Match(rooted) {
			return true
		}
	}
	return false
}
