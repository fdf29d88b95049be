package quoting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mohammed-shakir/route-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-cache/internal/cache/routewindow"
	"github.com/mohammed-shakir/route-cache/internal/compareevents"
	"github.com/mohammed-shakir/route-cache/internal/core/model"
	"github.com/mohammed-shakir/route-cache/internal/routing"
	"github.com/mohammed-shakir/route-cache/internal/strategy"
	"github.com/mohammed-shakir/route-cache/pkg/cachepolicy"
)

const (
	weth = model.Token("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	usdc = model.Token("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
)

func req(amount string) model.QuoteRequest {
	return model.QuoteRequest{
		TokenIn:   weth,
		TokenOut:  usdc,
		TradeType: model.ExactInput,
		ChainID:   model.Mainnet,
		Amount:    decimal.RequireFromString(amount),
	}
}

type fixedDecider struct {
	d      cachepolicy.Decision
	reason cachepolicy.Reason
}

func (f fixedDecider) Decide(model.QuoteRequest) (cachepolicy.Decision, cachepolicy.Reason) {
	return f.d, f.reason
}

func decided(mode strategy.CacheMode, window int) fixedDecider {
	return fixedDecider{
		d: cachepolicy.Decision{
			Mode:      mode,
			Window:    window,
			Strategy:  "WETH/USDC",
			Threshold: decimal.RequireFromString("3"),
			Match:     strategy.MatchExact,
		},
		reason: cachepolicy.ReasonMatched,
	}
}

type counter struct {
	n   atomic.Int64
	err error
}

func (c *counter) computer() routing.Computer {
	return routing.Func(func(context.Context, model.QuoteRequest) (model.Route, error) {
		n := c.n.Add(1)
		if c.err != nil {
			return model.Route{}, c.err
		}
		return model.Route{
			ID:    fmt.Sprintf("r%d", n),
			Path:  []string{string(weth), string(usdc)},
			Quote: decimal.NewFromInt(1000 + n),
		}, nil
	})
}

type spyStore struct {
	inner    routewindow.Store
	recents  atomic.Int64
	pushes   atomic.Int64
	readErr  error
	writeErr error
	panicky  bool
}

func (s *spyStore) Recent(ctx context.Context, key string, n int) ([]model.Route, error) {
	s.recents.Add(1)
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.inner.Recent(ctx, key, n)
}

func (s *spyStore) Push(ctx context.Context, key string, r model.Route, size int) error {
	s.pushes.Add(1)
	if s.panicky {
		panic("store exploded")
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	return s.inner.Push(ctx, key, r, size)
}

func (s *spyStore) Purge(ctx context.Context, keys ...string) error {
	return s.inner.Purge(ctx, keys...)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []compareevents.Event
}

func (p *capturePublisher) Publish(ev compareevents.Event) {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
}

func (p *capturePublisher) Close() error { return nil }

func newService(t *testing.T, d cachepolicy.Decider, c *counter, st routewindow.Store, opts Options) *Service {
	t.Helper()
	s := New(d, c.computer(), st, routewindow.NewRoundRobin(0), opts)
	t.Cleanup(s.Close)
	return s
}

func routeKey(q model.QuoteRequest) string {
	return keys.RouteKey(keys.ForRequest(q), decimal.RequireFromString("3"))
}

func TestQuote_NoPolicyComputesFreshAndSkipsWindow(t *testing.T) {
	c := &counter{}
	st := &spyStore{inner: routewindow.NewMemory(10, 0)}
	s := newService(t, fixedDecider{reason: cachepolicy.ReasonNoStrategy}, c, st, Options{})

	for range 3 {
		res, err := s.Quote(context.Background(), req("1"))
		if err != nil {
			t.Fatal(err)
		}
		if res.CacheStatus != StatusBypass || res.Reason != cachepolicy.ReasonNoStrategy || res.Selected != -1 {
			t.Fatalf("res=%+v", res)
		}
	}
	s.Close()
	if c.n.Load() != 3 || st.recents.Load() != 0 || st.pushes.Load() != 0 {
		t.Fatalf("computes=%d recents=%d pushes=%d", c.n.Load(), st.recents.Load(), st.pushes.Load())
	}
}

func TestQuote_LivemodeMissThenHit(t *testing.T) {
	c := &counter{}
	s := newService(t, decided(strategy.Livemode, 1), c, routewindow.NewMemory(10, 0), Options{})

	first, err := s.Quote(context.Background(), req("2"))
	if err != nil {
		t.Fatal(err)
	}
	if first.CacheStatus != StatusMiss || first.Route.ID != "r1" {
		t.Fatalf("first=%+v", first)
	}

	second, err := s.Quote(context.Background(), req("2"))
	if err != nil {
		t.Fatal(err)
	}
	if second.CacheStatus != StatusHit || second.Route.ID != "r1" || second.Selected != 0 {
		t.Fatalf("second=%+v", second)
	}
	if c.n.Load() != 1 {
		t.Fatalf("computes=%d want 1", c.n.Load())
	}
}

func TestQuote_LivemodeRotatesAcrossWindow(t *testing.T) {
	c := &counter{}
	mem := routewindow.NewMemory(10, 0)
	q := req("2")
	for _, id := range []string{"old", "new"} {
		_ = mem.Push(context.Background(), routeKey(q), model.Route{ID: id}, 2)
	}
	s := newService(t, decided(strategy.Livemode, 2), c, mem, Options{})

	var got []string
	for range 4 {
		res, err := s.Quote(context.Background(), q)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, res.Route.ID)
	}
	want := []string{"new", "old", "new", "old"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("served=%v want %v", got, want)
		}
	}
	if c.n.Load() != 0 {
		t.Fatalf("computes=%d", c.n.Load())
	}
}

func TestQuote_DarkmodeServesFreshAndRecordsInBackground(t *testing.T) {
	c := &counter{}
	mem := routewindow.NewMemory(10, 0)
	s := newService(t, decided(strategy.Darkmode, 1), c, mem, Options{})

	for i := range 2 {
		res, err := s.Quote(context.Background(), req("2"))
		if err != nil {
			t.Fatal(err)
		}
		if res.CacheStatus != StatusBypass || res.Route.ID != fmt.Sprintf("r%d", i+1) {
			t.Fatalf("res=%+v", res)
		}
	}
	s.Close()

	rs, _ := mem.Recent(context.Background(), routeKey(req("2")), 5)
	if len(rs) != 1 {
		t.Fatalf("window=%v want exactly one route", rs)
	}
}

func TestQuote_TapcompareHitPublishesComparison(t *testing.T) {
	c := &counter{}
	pub := &capturePublisher{}
	mem := routewindow.NewMemory(10, 0)
	s := newService(t, decided(strategy.Tapcompare, 3), c, mem, Options{Events: pub})

	miss, err := s.Quote(context.Background(), req("2"))
	if err != nil || miss.CacheStatus != StatusMiss {
		t.Fatalf("miss=%+v err=%v", miss, err)
	}
	hit, err := s.Quote(context.Background(), req("2"))
	if err != nil || hit.CacheStatus != StatusHit || hit.Route.ID != "r1" {
		t.Fatalf("hit=%+v err=%v", hit, err)
	}
	s.Close()

	if c.n.Load() != 2 {
		t.Fatalf("computes=%d want 2", c.n.Load())
	}
	if len(pub.events) != 1 {
		t.Fatalf("events=%d", len(pub.events))
	}
	ev := pub.events[0]
	if ev.ServedRouteID != "r1" || ev.FreshRouteID != "r2" || ev.Strategy != "WETH/USDC" || !ev.SamePath {
		t.Fatalf("event=%+v", ev)
	}
	if ev.DeltaBps >= 0 {
		t.Fatalf("served 1001 vs fresh 1002 should be negative, got %v", ev.DeltaBps)
	}
	rs, _ := mem.Recent(context.Background(), routeKey(req("2")), 3)
	if len(rs) != 2 || rs[0].ID != "r2" {
		t.Fatalf("fresh route not recorded: %v", rs)
	}

	// the next hit serves the route computed for the comparison
	next := newService(t, decided(strategy.Tapcompare, 3), c, mem, Options{})
	res, err := next.Quote(context.Background(), req("2"))
	if err != nil || res.CacheStatus != StatusHit || res.Route.ID != "r2" {
		t.Fatalf("next=%+v err=%v", res, err)
	}
}

func TestQuote_WindowReadErrorIsMiss(t *testing.T) {
	c := &counter{}
	st := &spyStore{inner: routewindow.NewMemory(10, 0), readErr: errors.New("redis down")}
	s := newService(t, decided(strategy.Livemode, 1), c, st, Options{})

	res, err := s.Quote(context.Background(), req("2"))
	if err != nil {
		t.Fatalf("read failure must not fail the request: %v", err)
	}
	if res.CacheStatus != StatusMiss || c.n.Load() != 1 {
		t.Fatalf("res=%+v computes=%d", res, c.n.Load())
	}
}

func TestQuote_WindowWriteErrorStillServes(t *testing.T) {
	c := &counter{}
	st := &spyStore{inner: routewindow.NewMemory(10, 0), writeErr: errors.New("redis down")}
	s := newService(t, decided(strategy.Livemode, 1), c, st, Options{})

	res, err := s.Quote(context.Background(), req("2"))
	if err != nil || res.Route.ID != "r1" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if st.pushes.Load() != 1 {
		t.Fatalf("pushes=%d", st.pushes.Load())
	}
}

func TestQuote_ComputeErrorPropagates(t *testing.T) {
	boom := errors.New("engine unavailable")
	for _, d := range []cachepolicy.Decider{
		fixedDecider{reason: cachepolicy.ReasonNoStrategy},
		decided(strategy.Livemode, 1),
		decided(strategy.Darkmode, 1),
	} {
		s := newService(t, d, &counter{err: boom}, routewindow.NewMemory(10, 0), Options{})
		if _, err := s.Quote(context.Background(), req("2")); !errors.Is(err, boom) {
			t.Fatalf("err=%v", err)
		}
	}
}

func TestQuote_BackgroundPanicIsContained(t *testing.T) {
	c := &counter{}
	st := &spyStore{inner: routewindow.NewMemory(10, 0), panicky: true}
	s := newService(t, decided(strategy.Darkmode, 1), c, st, Options{})

	if _, err := s.Quote(context.Background(), req("2")); err != nil {
		t.Fatal(err)
	}
	s.Close()
	if st.pushes.Load() != 1 {
		t.Fatalf("pushes=%d", st.pushes.Load())
	}
}

func TestQuote_ShedsBackgroundWorkAfterCloseAndOverRate(t *testing.T) {
	c := &counter{}
	st := &spyStore{inner: routewindow.NewMemory(10, 0)}
	s := newService(t, decided(strategy.Darkmode, 1), c, st, Options{ShadowRate: 0.001, ShadowBurst: 1})

	for range 3 {
		if _, err := s.Quote(context.Background(), req("2")); err != nil {
			t.Fatal(err)
		}
	}
	s.Close()
	if _, err := s.Quote(context.Background(), req("2")); err != nil {
		t.Fatal(err)
	}
	if st.pushes.Load() != 1 {
		t.Fatalf("pushes=%d want 1 (burst of one, rest shed)", st.pushes.Load())
	}
	if c.n.Load() != 4 {
		t.Fatalf("computes=%d", c.n.Load())
	}
}

func TestQuote_WithEngineWildcardBuckets(t *testing.T) {
	tbl, err := strategy.Build([]strategy.Entry{{
		Key:       keys.NewPair(weth, model.AnyToken, model.ExactInput, model.Mainnet),
		Name:      "WETH/*",
		TradeType: model.ExactInput,
		ChainID:   model.Mainnet,
		Buckets: []strategy.Bucket{
			{Threshold: decimal.RequireFromString("0.015"), Mode: strategy.Darkmode},
			{Threshold: decimal.RequireFromString("1"), Mode: strategy.Livemode, Window: 20},
		},
	}})
	if err != nil {
		t.Fatal(err)
	}
	eng := cachepolicy.New(cachepolicy.Config{}, strategy.NewResolver(tbl))
	c := &counter{}
	s := newService(t, eng, c, routewindow.NewMemory(10, 0), Options{})

	res, _ := s.Quote(context.Background(), req("0.3"))
	if res.Decision.Mode != strategy.Livemode || res.Decision.Window != 20 || res.Decision.Match != strategy.MatchOutputWildcard {
		t.Fatalf("decision=%+v", res.Decision)
	}
	res, _ = s.Quote(context.Background(), req("0.3"))
	if res.CacheStatus != StatusHit {
		t.Fatalf("second quote status=%s", res.CacheStatus)
	}

	res, _ = s.Quote(context.Background(), req("5"))
	if res.Reason != cachepolicy.ReasonAboveLargestBucket || res.CacheStatus != StatusBypass {
		t.Fatalf("overflow res=%+v", res)
	}
}
