// Package quoting serves quote requests by carrying out the cache decision
// for each one: serve from the route window, compute fresh, or both.
package quoting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/mohammed-shakir/route-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-cache/internal/cache/routewindow"
	"github.com/mohammed-shakir/route-cache/internal/compareevents"
	"github.com/mohammed-shakir/route-cache/internal/core/model"
	"github.com/mohammed-shakir/route-cache/internal/core/observability"
	"github.com/mohammed-shakir/route-cache/internal/logger"
	"github.com/mohammed-shakir/route-cache/internal/routing"
	"github.com/mohammed-shakir/route-cache/internal/strategy"
	"github.com/mohammed-shakir/route-cache/pkg/cachepolicy"
)

type CacheStatus string

const (
	StatusHit    CacheStatus = "hit"
	StatusMiss   CacheStatus = "miss"
	StatusBypass CacheStatus = "bypass"
)

type Result struct {
	Route       model.Route
	Decision    cachepolicy.Decision
	Reason      cachepolicy.Reason
	CacheStatus CacheStatus
	// Selected is the window index served on a hit, -1 otherwise.
	Selected int
}

type Options struct {
	Logger         *slog.Logger
	CacheOpTimeout time.Duration
	ShadowTimeout  time.Duration
	ShadowWorkers  int
	ShadowRate     float64
	ShadowBurst    int
	Events         compareevents.Publisher
}

type Service struct {
	logger   *slog.Logger
	decider  cachepolicy.Decider
	compute  routing.Computer
	store    routewindow.Store
	selector routewindow.Selector
	events   compareevents.Publisher

	opTimeout     time.Duration
	shadowTimeout time.Duration

	limiter  *rate.Limiter
	bg       *pool.Pool
	workers  int64
	inflight atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func New(d cachepolicy.Decider, c routing.Computer, st routewindow.Store, sel routewindow.Selector, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.ShadowWorkers <= 0 {
		opts.ShadowWorkers = 8
	}
	if opts.ShadowTimeout <= 0 {
		opts.ShadowTimeout = 10 * time.Second
	}
	if opts.Events == nil {
		opts.Events = compareevents.Nop{}
	}
	if sel == nil {
		sel = routewindow.NewRoundRobin(0)
	}

	lim := rate.NewLimiter(rate.Inf, 0)
	if opts.ShadowRate > 0 {
		burst := opts.ShadowBurst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(opts.ShadowRate), burst)
	}

	return &Service{
		logger:        opts.Logger,
		decider:       d,
		compute:       c,
		store:         st,
		selector:      sel,
		events:        opts.Events,
		opTimeout:     opts.CacheOpTimeout,
		shadowTimeout: opts.ShadowTimeout,
		limiter:       lim,
		bg:            pool.New().WithMaxGoroutines(opts.ShadowWorkers),
		workers:       int64(opts.ShadowWorkers),
	}
}

// Decide exposes the policy without executing it.
func (s *Service) Decide(q model.QuoteRequest) (cachepolicy.Decision, cachepolicy.Reason) {
	return s.decider.Decide(q)
}

func (s *Service) Quote(ctx context.Context, q model.QuoteRequest) (Result, error) {
	d, reason := s.decider.Decide(q)
	mode := ""
	if d.Cached() {
		mode = d.Mode.String()
	}
	observability.IncDecision(mode, string(reason))

	ctx = logger.WithStrategy(ctx, d.Strategy)
	ctx = logger.WithCacheMode(ctx, mode)

	res := Result{Decision: d, Reason: reason, Selected: -1}

	if !d.Cached() {
		r, err := s.fresh(ctx, q)
		if err != nil {
			return res, err
		}
		res.Route, res.CacheStatus = r, StatusBypass
		observability.IncRouteCacheResult(string(StatusBypass), mode)
		return res, nil
	}

	key := keys.RouteKey(keys.ForRequest(q), d.Threshold)

	switch d.Mode {
	case strategy.Darkmode:
		r, err := s.fresh(ctx, q)
		if err != nil {
			return res, err
		}
		res.Route, res.CacheStatus = r, StatusBypass
		s.submit(ctx, "record", func(bg context.Context) error {
			return s.store.Push(bg, key, r, d.Window)
		})

	case strategy.Livemode, strategy.Tapcompare:
		if routes := s.recent(ctx, key, d.Window); len(routes) > 0 {
			i := s.selector.Pick(key, len(routes))
			res.Route, res.CacheStatus, res.Selected = routes[i], StatusHit, i
			if d.Mode == strategy.Tapcompare {
				s.scheduleCompare(ctx, q, key, d, routes[i])
			}
			break
		}
		r, err := s.fresh(ctx, q)
		if err != nil {
			return res, err
		}
		res.Route, res.CacheStatus = r, StatusMiss
		s.push(ctx, key, r, d.Window)
	}

	observability.IncRouteCacheResult(string(res.CacheStatus), mode)
	s.logger.DebugContext(logger.WithCacheStatus(ctx, string(res.CacheStatus)), "quote served",
		"route_id", res.Route.ID,
		"window", d.Window,
		"selected", res.Selected,
		"reason", string(reason))
	return res, nil
}

func (s *Service) fresh(ctx context.Context, q model.QuoteRequest) (model.Route, error) {
	r, err := s.compute.Compute(ctx, q)
	if err != nil {
		return model.Route{}, fmt.Errorf("compute route: %w", err)
	}
	return r, nil
}

// recent reads the window; failures count as a miss.
func (s *Service) recent(ctx context.Context, key string, n int) []model.Route {
	opCtx, cancel := s.withOpTimeout(ctx)
	defer cancel()
	routes, err := s.store.Recent(opCtx, key, n)
	if err != nil {
		s.logger.WarnContext(ctx, "route window read failed", "key", key, "err", err)
		return nil
	}
	return routes
}

func (s *Service) push(ctx context.Context, key string, r model.Route, window int) {
	opCtx, cancel := s.withOpTimeout(ctx)
	defer cancel()
	if err := s.store.Push(opCtx, key, r, window); err != nil {
		s.logger.WarnContext(ctx, "route window write failed", "key", key, "err", err)
	}
}

func (s *Service) withOpTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *Service) scheduleCompare(ctx context.Context, q model.QuoteRequest, key string, d cachepolicy.Decision, served model.Route) {
	reqID := logger.RequestID(ctx)
	s.submit(ctx, "compare", func(bg context.Context) error {
		fresh, err := s.fresh(bg, q)
		if err != nil {
			return err
		}
		c := Compare(served, fresh)
		observability.ObserveCompareDelta(c.DeltaBps)
		s.events.Publish(compareevents.Event{
			ID:            compareevents.NewID(),
			TS:            time.Now().UTC(),
			RequestID:     reqID,
			Pair:          keys.ForRequest(q).String(),
			Strategy:      d.Strategy,
			Threshold:     d.Threshold,
			Amount:        q.Amount,
			ServedRouteID: served.ID,
			FreshRouteID:  fresh.ID,
			ServedQuote:   served.Quote,
			FreshQuote:    fresh.Quote,
			DeltaBps:      c.DeltaBps,
			SamePath:      c.SamePath,
			BlockDelta:    c.BlockDelta,
		})
		// the fresh route joins the window, so later hits may serve it
		return s.store.Push(bg, key, fresh, d.Window)
	})
}

// submit runs fn in the background, detached from the request. Work is shed
// when the rate limit is exceeded, all workers are busy, or the service is
// closed.
func (s *Service) submit(ctx context.Context, kind string, fn func(context.Context) error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || !s.limiter.Allow() {
		observability.IncShadowTask(kind, "shed")
		return
	}
	if s.inflight.Add(1) > s.workers {
		s.inflight.Add(-1)
		observability.IncShadowTask(kind, "shed")
		return
	}

	l := s.logger.With("task", kind, "request_id", logger.RequestID(ctx))
	s.bg.Go(func() {
		defer s.inflight.Add(-1)
		defer func() {
			if p := recover(); p != nil {
				observability.IncShadowTask(kind, "panic")
				l.Error("background task panicked", "panic", fmt.Sprint(p))
			}
		}()

		bg, cancel := context.WithTimeout(context.Background(), s.shadowTimeout)
		defer cancel()
		if err := fn(bg); err != nil {
			observability.IncShadowTask(kind, "error")
			l.Warn("background task failed", "err", err)
			return
		}
		observability.IncShadowTask(kind, "ok")
	})
}

// Close stops accepting background work and waits for running tasks.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.bg.Wait()
}
