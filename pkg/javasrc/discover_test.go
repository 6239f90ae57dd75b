package javasrc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestDiscover(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore":                             "generated/\n*.gen.java\n",
		"Main.java":                              "class Main {}",
		"src/main/java/app/Service.java":         "class Service {}",
		"src/main/java/app/Model.gen.java":       "class Model {}",
		"src/main/resources/mapper/Order.xml":    "<mapper/>",
		"src/test/java/app/ServiceTest.java":     "class ServiceTest {}",
		"generated/Stub.java":                    "class Stub {}",
		"target/classes/Copied.java":             "class Copied {}",
		".idea/Hidden.java":                      "class Hidden {}",
		"build/tmp/Other.xml":                    "<x/>",
		"docs/readme.md":                         "# docs",
		"src/main/java/app/internal/Helper.java": "class Helper {}",
	})

	tests := []struct {
		name        string
		opts        DiscoverOptions
		wantJava    []string
		wantMappers []string
	}{
		{
			name: "defaults",
			opts: DiscoverOptions{},
			wantJava: []string{
				"Main.java",
				"generated/Stub.java",
				"src/main/java/app/Model.gen.java",
				"src/main/java/app/Service.java",
				"src/main/java/app/internal/Helper.java",
				"src/test/java/app/ServiceTest.java",
			},
			wantMappers: []string{"src/main/resources/mapper/Order.xml"},
		},
		{
			name: "gitignore",
			opts: DiscoverOptions{RespectGitignore: true},
			wantJava: []string{
				"Main.java",
				"src/main/java/app/Service.java",
				"src/main/java/app/internal/Helper.java",
				"src/test/java/app/ServiceTest.java",
			},
			wantMappers: []string{"src/main/resources/mapper/Order.xml"},
		},
		{
			name: "include and exclude",
			opts: DiscoverOptions{
				Include:       []string{"src/**"},
				Exclude:       []string{"**/internal/**", "**/src/test/**"},
				MapperInclude: []string{"**/mapper/*.xml"},
			},
			wantJava: []string{
				"src/main/java/app/Model.gen.java",
				"src/main/java/app/Service.java",
			},
			wantMappers: []string{"src/main/resources/mapper/Order.xml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := Discover(root, tt.opts)
			require.NoError(t, err)
			require.Equal(t, tt.wantJava, src.Java)
			require.Equal(t, tt.wantMappers, src.Mappers)
			require.Equal(t, filepath.Join(root, "src", "main", "java", "app", "Service.java"), src.Abs("src/main/java/app/Service.java"))
		})
	}
}

func TestDiscoverBadPattern(t *testing.T) {
	_, err := Discover(t.TempDir(), DiscoverOptions{Include: []string{"[unclosed"}})
	require.Error(t, err)
}

func TestIndex(t *testing.T) {
	files := make(map[string]string)
	for path, content := range appSources {
		files[path] = content
	}
	root := writeTree(t, files)

	cache := newMemCache()
	var calls int
	opts := Options{
		Workers:  1,
		Cache:    cache,
		Progress: func(done, total int) { calls++ },
	}

	res, err := Index(t.Context(), root, opts)
	require.NoError(t, err)
	require.Len(t, res.Files, 4)
	require.Equal(t, 4, res.Parsed)
	require.Equal(t, 0, res.Cached)
	require.Equal(t, 4, calls)
	require.NotEmpty(t, res.Facts.Calls)

	again, err := Index(t.Context(), root, opts)
	require.NoError(t, err)
	require.Equal(t, 0, again.Parsed)
	require.Equal(t, 4, again.Cached)
	require.Equal(t, res.Facts, again.Facts)
	for i, f := range again.Files {
		require.Equal(t, res.Sources.Java[i], f.Path)
	}
}

type memCache map[string]*File

func newMemCache() memCache { return make(memCache) }

func (c memCache) Get(hash string) (*File, bool) {
	f, ok := c[hash]
	return f, ok
}

func (c memCache) Put(hash string, f *File) error {
	c[hash] = f
	return nil
}
