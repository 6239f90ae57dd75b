package harness

import (
	"os"
	"path/filepath"
	"testing"

	yaml "gopkg.in/yaml.v3"

	"github.com/stretchr/testify/require"

	"github.com/715d/topcallers/pkg/functional"
	"github.com/715d/topcallers/pkg/topcaller"
)

// LoadTestCase reads dir/expected.yaml. Dir is recorded relative to root.
func LoadTestCase(t *testing.T, dir, root string) *TestCase {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, "expected.yaml"))
	require.NoError(t, err)

	tc := &TestCase{}
	require.NoError(t, yaml.Unmarshal(data, tc))

	tc.Dir = filepath.Base(dir)
	if root != "" {
		if rel, err := filepath.Rel(root, dir); err == nil {
			tc.Dir = rel
		}
	}
	return tc
}

// LoadKnowledgeBase builds the knowledge base of a fixture, either from its
// facts file or by indexing its src directory.
func LoadKnowledgeBase(t *testing.T, dir string, tc *TestCase) (*topcaller.Loaded, *functional.Table) {
	t.Helper()

	table, err := functional.New(tc.FunctionalExtra)
	require.NoError(t, err)

	opts := topcaller.LoaderOptions{
		TestRoots:  tc.TestRoots,
		Workers:    2,
		Functional: table,
	}
	if tc.Facts != "" {
		opts.FactsFile = filepath.Join(dir, tc.Facts)
		if _, err := os.Stat(filepath.Join(dir, "src")); err == nil {
			opts.Root = filepath.Join(dir, "src")
		}
	} else {
		opts.Root = filepath.Join(dir, "src")
		opts.Discover.RespectGitignore = true
	}

	t.Logf("Loading knowledge base for %q", tc.Dir)
	loaded, err := topcaller.Load(t.Context(), opts)
	require.NoError(t, err)
	return loaded, table
}
