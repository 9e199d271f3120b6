package source

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is returned when no fetcher accepts a source reference.
var ErrUnsupported = errors.New("unsupported source reference")

// Fetcher reads the text behind a task's source reference.
type Fetcher interface {
	// GetSourceID returns the unique identifier for this fetcher.
	// Parameters: none.
	// Returns:
	//   - string: stable fetcher identifier.
	GetSourceID() string

	// Supports reports whether ref can be read by this fetcher.
	// Parameters:
	//   - ref: source reference from an ANALYSIS_TASK.
	// Returns:
	//   - bool: true when Fetch accepts ref.
	Supports(ref string) bool

	// Fetch reads the whole source.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - ref: source reference from an ANALYSIS_TASK.
	// Returns:
	//   - []byte: raw source contents.
	//   - error: non-nil if the source cannot be read.
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Router dispatches a reference to the first fetcher that supports it.
type Router struct {
	fetchers []Fetcher
}

// NewRouter creates a router trying fetchers in order.
// Parameters:
//   - fetchers: candidate fetchers, most specific first.
// Returns:
//   - *Router: initialized router.
func NewRouter(fetchers ...Fetcher) *Router {
	return &Router{fetchers: fetchers}
}

func (r *Router) GetSourceID() string {
	return "router"
}

func (r *Router) Supports(ref string) bool {
	return r.pick(ref) != nil
}

func (r *Router) Fetch(ctx context.Context, ref string) ([]byte, error) {
	f := r.pick(ref)
	if f == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, ref)
	}
	return f.Fetch(ctx, ref)
}

func (r *Router) pick(ref string) Fetcher {
	for _, f := range r.fetchers {
		if f.Supports(ref) {
			return f
		}
	}
	return nil
}
