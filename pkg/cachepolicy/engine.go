package cachepolicy

import (
	"github.com/mohammed-shakir/route-cache/internal/core/model"
	"github.com/mohammed-shakir/route-cache/internal/strategy"
)

type Config struct {
	Overflow OverflowPolicy
}

// Engine resolves a strategy, matches the bucket and maps it to a decision.
// It holds no mutable state and performs no I/O.
type Engine struct {
	cfg      Config
	resolver *strategy.Resolver
}

var _ Decider = (*Engine)(nil)

func New(cfg Config, r *strategy.Resolver) *Engine {
	return &Engine{cfg: cfg, resolver: r}
}

func (e *Engine) Decide(q model.QuoteRequest) (Decision, Reason) {
	s, match, ok := e.resolver.ResolveRequest(q)
	if !ok {
		return Decision{}, ReasonNoStrategy
	}

	reason := ReasonMatched
	b, ok := s.Match(q.Amount)
	if !ok {
		if e.cfg.Overflow != OverflowClampLargest {
			return Decision{Strategy: s.Name(), Match: match}, ReasonAboveLargestBucket
		}
		b = s.Largest()
		reason = ReasonClampedToLargest
	}

	d := Decide(b)
	d.Strategy = s.Name()
	d.Match = match
	return d, reason
}

func (e *Engine) Config() Config { return e.cfg }
