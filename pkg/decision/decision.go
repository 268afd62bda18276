// Package decision answers, for every facade call, which stores take part.
//
// A [Provider] is consulted once per call and its answer is never cached:
// flags and phases may change between two calls of the same operation.
package decision

import (
	"context"

	"github.com/surrealdb/migrator/pkg/operation"
)

// Decision is the dispatch answer for one call.
type Decision struct {
	CallSource      bool
	CallDestination bool
	// VerifyConsistency only matters when both stores are called.
	VerifyConsistency bool
	// DestinationOnly marks the terminal phase. Destination failures and
	// timeouts reach the caller, even when a source result is at hand.
	DestinationOnly bool
	// Phase is set by providers that know it.
	Phase Phase
}

// Provider decides which stores an operation of the given kind uses.
type Provider interface {
	Decide(ctx context.Context, component string, kind operation.Kind) Decision
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, component string, kind operation.Kind) Decision

func (f ProviderFunc) Decide(ctx context.Context, component string, kind operation.Kind) Decision {
	return f(ctx, component, kind)
}

// Static always returns d.
func Static(d Decision) Provider {
	return ProviderFunc(func(context.Context, string, operation.Kind) Decision {
		return d
	})
}
