// Package harness runs top-caller searches over the fixtures in testdata and
// compares them with each fixture's expected.yaml.
package harness

// TestCase is one fixture directory.
type TestCase struct {
	// Dir is the fixture directory relative to the testdata root.
	Dir string `yaml:"-"`

	Description string `yaml:"description"`

	// Facts names a facts file inside the fixture. When empty the fixture's
	// src directory is indexed instead.
	Facts string `yaml:"facts,omitempty"`

	// TestRoots overrides the test source globs of the knowledge base.
	TestRoots []string `yaml:"test_roots,omitempty"`

	// FunctionalExtra adds "pkg.Iface#method" entries to the functional table.
	FunctionalExtra []string `yaml:"functional_extra,omitempty"`

	Queries []Query `yaml:"queries"`
}

// Query is one search and its expected outcome.
type Query struct {
	Name string `yaml:"name"`

	// Exactly one of Method and Statement is set.
	Method    string `yaml:"method,omitempty"`
	Statement string `yaml:"statement,omitempty"`

	MaxDepth     int  `yaml:"max_depth,omitempty"`
	IncludeTests bool `yaml:"include_tests,omitempty"`

	ExpectedTopCallers []ExpectedCaller `yaml:"expected_top_callers"`
	Truncated          bool             `yaml:"truncated,omitempty"`

	// ExpectedError, when set, must be contained in the resolution error.
	ExpectedError string `yaml:"expected_error,omitempty"`
}

// ExpectedCaller is a method expected among the top callers.
type ExpectedCaller struct {
	// Method is the reference "Owner.name(P1,P2)".
	Method string `yaml:"method"`

	Kind  string `yaml:"kind,omitempty"`
	Depth int    `yaml:"depth,omitempty"`

	// File is an optional suffix of the declaring file.
	File string `yaml:"file,omitempty"`
}
