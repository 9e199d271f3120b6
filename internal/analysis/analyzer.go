// Package analysis holds the per-task text analyzers run by workers.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnsupportedType is returned for an analysis type with no analyzer.
	ErrUnsupportedType = errors.New("unsupported analysis type")
	// ErrEmptyInput is returned when the source has no tokens.
	ErrEmptyInput = errors.New("source contains no text")
)

// Analyzer turns source text into one structured output.
type Analyzer interface {
	// Type returns the analysis type this analyzer answers to.
	Type() string
	// Analyze returns the rendered result for text.
	Analyze(ctx context.Context, text string) (string, error)
}

// Registry maps analysis types to analyzers. Lookups are case-insensitive.
type Registry struct {
	analyzers map[string]Analyzer
}

// NewRegistry creates a registry of the given analyzers.
func NewRegistry(analyzers ...Analyzer) *Registry {
	r := &Registry{analyzers: make(map[string]Analyzer, len(analyzers))}
	for _, a := range analyzers {
		r.analyzers[strings.ToUpper(a.Type())] = a
	}
	return r
}

// Default returns a registry with the built-in POS, CONSTITUENCY and
// DEPENDENCY analyzers.
func Default() *Registry {
	return NewRegistry(POSTagger{}, ConstituencyParser{}, DependencyParser{})
}

// Get returns the analyzer for analysisType.
func (r *Registry) Get(analysisType string) (Analyzer, error) {
	a, ok := r.analyzers[strings.ToUpper(strings.TrimSpace(analysisType))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, analysisType)
	}
	return a, nil
}

// Types lists the registered analysis types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.analyzers))
	for t := range r.analyzers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Run looks up the analyzer for analysisType and applies it to text.
func (r *Registry) Run(ctx context.Context, analysisType, text string) (string, error) {
	a, err := r.Get(analysisType)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return a.Analyze(ctx, text)
}
