package harness

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/topcallers/internal/analysis"
	"github.com/715d/topcallers/pkg/topcaller"
)

// TestHarness manages test execution.
type TestHarness struct {
	// root is the root directory for test data
	root string
}

// NewHarness creates a new test harness.
func NewHarness(root string) *TestHarness {
	return &TestHarness{root: root}
}

// QueryResult is the outcome of a single query.
type QueryResult struct {
	Query Query

	// TopCallers is the filtered search result, nil when resolution failed.
	TopCallers []*analysis.MethodInfo

	Success bool
	Message string
	Details []string
}

// TestResult represents the result of running a test case.
type TestResult struct {
	TestCase     *TestCase
	QueryResults []QueryResult

	// Success indicates if every query passed.
	Success bool
	Message string
}

// Run loads the fixture once and executes every query against it.
func (h *TestHarness) Run(t *testing.T, tc *TestCase) *TestResult {
	t.Helper()
	require.NotEmpty(t, tc.Queries, "test case has no queries")

	loaded, table := LoadKnowledgeBase(t, filepath.Join(h.root, tc.Dir), tc)

	var results []QueryResult
	allSuccess := true
	for _, q := range tc.Queries {
		finder := topcaller.NewFinder(loaded.Snapshot, topcaller.Options{
			MaxDepth:   q.MaxDepth,
			Functional: table,
		})
		qr := h.runQuery(t, loaded, finder, q)
		results = append(results, *qr)
		if !qr.Success {
			allSuccess = false
		}
	}

	var msg string
	if allSuccess {
		msg = fmt.Sprintf("All %d queries passed", len(tc.Queries))
	} else {
		failed := 0
		var msgs []string
		for _, qr := range results {
			if !qr.Success {
				failed++
				msgs = append(msgs, fmt.Sprintf("[%s] %s:\n  %s",
					qr.Query.Name, qr.Message, strings.Join(qr.Details, "\n  ")))
			}
		}
		msg = fmt.Sprintf("%d/%d queries failed:\n%s", failed, len(tc.Queries), strings.Join(msgs, "\n"))
	}

	return &TestResult{
		TestCase:     tc,
		QueryResults: results,
		Success:      allSuccess,
		Message:      msg,
	}
}

func (h *TestHarness) runQuery(t *testing.T, loaded *topcaller.Loaded, finder *topcaller.Finder, q Query) *QueryResult {
	t.Helper()
	qr := &QueryResult{Query: q}

	starts, err := loaded.Targets(q.Method, q.Statement)
	if q.ExpectedError != "" {
		switch {
		case err == nil:
			qr.Message = fmt.Sprintf("expected error containing %q", q.ExpectedError)
		case !strings.Contains(err.Error(), q.ExpectedError):
			qr.Message = fmt.Sprintf("expected error containing %q, got %q", q.ExpectedError, err)
		default:
			qr.Success = true
			qr.Message = "failed as expected"
		}
		return qr
	}
	require.NoError(t, err, "resolve start of %q", q.Name)

	truncated := false
	seen := make(map[string]struct{})
	for _, start := range starts {
		res, err := finder.Search(t.Context(), start)
		require.NoError(t, err, "search from %s", start.Ref())
		require.Zero(t, res.Failures, "search from %s", start.Ref())
		truncated = truncated || res.Truncated
		for _, mi := range res.TopCallers {
			if _, dup := seen[mi.Key]; dup || !mi.ShouldReport(q.IncludeTests) {
				continue
			}
			seen[mi.Key] = struct{}{}
			qr.TopCallers = append(qr.TopCallers, mi)
		}
	}

	validateResults(qr, truncated)
	return qr
}

func validateResults(qr *QueryResult, truncated bool) {
	expected := make(map[string]ExpectedCaller)
	for _, e := range qr.Query.ExpectedTopCallers {
		expected[e.Method] = e
	}
	actual := make(map[string]*analysis.MethodInfo)
	for _, mi := range qr.TopCallers {
		actual[mi.Method.Ref()] = mi
	}

	success := true
	var missing, unexpected, details []string
	for ref := range expected {
		if _, ok := actual[ref]; !ok {
			missing = append(missing, ref)
			success = false
		}
	}
	for ref := range actual {
		if _, ok := expected[ref]; !ok {
			unexpected = append(unexpected, ref)
			success = false
		}
	}
	sort.Strings(missing)
	sort.Strings(unexpected)
	for _, m := range missing {
		details = append(details, "Should have been a top caller: "+m)
	}
	for _, u := range unexpected {
		details = append(details, "Should not have been a top caller: "+u)
	}

	for ref, exp := range expected {
		act, ok := actual[ref]
		if !ok {
			continue
		}
		if exp.Kind != "" && act.Kind.String() != exp.Kind {
			details = append(details, fmt.Sprintf("Kind mismatch for %s: expected %s, got %s", ref, exp.Kind, act.Kind))
			success = false
		}
		if exp.Depth != 0 && act.Depth != exp.Depth {
			details = append(details, fmt.Sprintf("Depth mismatch for %s: expected %d, got %d", ref, exp.Depth, act.Depth))
			success = false
		}
		if exp.File != "" && !strings.HasSuffix(act.Method.Location.File, exp.File) {
			details = append(details, fmt.Sprintf(
				"File mismatch for %s: expected file ending with %q, got %q", ref, exp.File, act.Method.Location.File))
			success = false
		}
	}

	if truncated != qr.Query.Truncated {
		details = append(details, fmt.Sprintf("Truncated: expected %t, got %t", qr.Query.Truncated, truncated))
		success = false
	}

	qr.Success = success
	qr.Details = details
	if success {
		qr.Message = fmt.Sprintf("All %d expected top callers found", len(qr.Query.ExpectedTopCallers))
	} else {
		qr.Message = fmt.Sprintf("%d missing, %d unexpected", len(missing), len(unexpected))
	}
}
