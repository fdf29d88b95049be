// Package routewindow keeps the rolling window of recently computed routes
// per strategy bucket.
package routewindow

import (
	"context"
	"errors"

	"github.com/mohammed-shakir/route-cache/internal/core/model"
)

var ErrInvalidRoute = errors.New("routewindow: route id is required")

// Store holds, per key, the most recent distinct routes in newest-first order.
type Store interface {
	// Recent returns up to n routes for key, newest first. A missing key is
	// not an error.
	Recent(ctx context.Context, key string, n int) ([]model.Route, error)
	// Push places r at the front of key's window, dropping any older entry
	// with the same ID and trimming the window to size.
	Push(ctx context.Context, key string, r model.Route, size int) error
	// Purge drops the given windows entirely. Missing keys are ignored.
	Purge(ctx context.Context, keys ...string) error
}

func clampSize(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
