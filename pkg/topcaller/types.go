// Package topcaller finds the entry points from which a method is reachable
// by walking the call graph backwards.
package topcaller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/715d/topcallers/internal/analysis"
	"github.com/715d/topcallers/pkg/functional"
	"github.com/715d/topcallers/pkg/kb"
)

// MaxDepth is the default number of hops a search follows from its start.
const MaxDepth = 50

// ErrCancelled is returned when the caller aborts a search. It wraps the
// context error.
var ErrCancelled = errors.New("search cancelled")

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

// Result is the outcome of one search.
type Result struct {
	Start *kb.MethodSymbol

	// TopCallers is sorted by method key and never contains Start.
	TopCallers []*analysis.MethodInfo

	// Visited counts distinct methods expanded.
	Visited int

	// Truncated is set when a branch was cut at the depth limit, so
	// TopCallers may be incomplete.
	Truncated bool

	// Failures counts methods whose expansion failed and was skipped.
	Failures int

	Duration time.Duration
}

// Methods returns the top caller symbols.
func (r *Result) Methods() []*kb.MethodSymbol {
	out := make([]*kb.MethodSymbol, len(r.TopCallers))
	for i, mi := range r.TopCallers {
		out[i] = mi.Method
	}
	return out
}

// TopCaller is the serialisable form of a reported method.
type TopCaller struct {
	Key      string               `json:"key"`
	Method   string               `json:"method"`
	Location kb.Location          `json:"location"`
	Kind     functional.EntryKind `json:"kind"`
	Depth    int                  `json:"depth"`
}

// NewTopCaller converts a MethodInfo for output.
func NewTopCaller(mi *analysis.MethodInfo) TopCaller {
	return TopCaller{
		Key:      mi.Key,
		Method:   mi.Method.Ref(),
		Location: mi.Method.Location,
		Kind:     mi.Kind,
		Depth:    mi.Depth,
	}
}
