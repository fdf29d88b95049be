package routewindow

import (
	"context"
	"time"

	"github.com/mohammed-shakir/route-cache/internal/core/model"
	"github.com/mohammed-shakir/route-cache/internal/core/observability"
)

// Instrumented records latency and result metrics around another Store.
type Instrumented struct {
	inner Store
}

var _ Store = (*Instrumented)(nil)

func WithMetrics(inner Store) *Instrumented {
	return &Instrumented{inner: inner}
}

func (s *Instrumented) Recent(ctx context.Context, key string, n int) ([]model.Route, error) {
	start := time.Now()
	rs, err := s.inner.Recent(ctx, key, n)
	observability.ObserveWindowOp("recent", err, time.Since(start).Seconds())
	return rs, err
}

func (s *Instrumented) Push(ctx context.Context, key string, r model.Route, size int) error {
	start := time.Now()
	err := s.inner.Push(ctx, key, r, size)
	observability.ObserveWindowOp("push", err, time.Since(start).Seconds())
	return err
}

func (s *Instrumented) Purge(ctx context.Context, keys ...string) error {
	start := time.Now()
	err := s.inner.Purge(ctx, keys...)
	observability.ObserveWindowOp("purge", err, time.Since(start).Seconds())
	return err
}
