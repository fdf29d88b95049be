// Package routing computes fresh routes against the external route engine.
package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/route-cache/internal/core/model"
)

type Computer interface {
	Compute(ctx context.Context, q model.QuoteRequest) (model.Route, error)
}

// Func adapts a plain function to Computer.
type Func func(ctx context.Context, q model.QuoteRequest) (model.Route, error)

func (f Func) Compute(ctx context.Context, q model.QuoteRequest) (model.Route, error) {
	return f(ctx, q)
}

// RouteID derives a stable identifier from a route's hop list, used when the
// engine does not assign one.
func RouteID(path []string) string {
	h := xxhash.New()
	for i, p := range path {
		if i > 0 {
			_, _ = h.WriteString(">")
		}
		_, _ = h.WriteString(strings.ToLower(p))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
