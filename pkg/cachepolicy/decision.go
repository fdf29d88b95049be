// Package cachepolicy turns a quote request into the cache decision a caller
// acts on: which mode to run and how many recent routes to keep.
package cachepolicy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mohammed-shakir/route-cache/internal/core/model"
	"github.com/mohammed-shakir/route-cache/internal/strategy"
)

type Reason string

const (
	ReasonMatched            Reason = "matched"
	ReasonNoStrategy         Reason = "no_strategy"
	ReasonAboveLargestBucket Reason = "above_largest_bucket"
	ReasonClampedToLargest   Reason = "clamped_to_largest"
)

// Decision is the per-request policy. The zero value means "no policy":
// compute fresh and do not touch the route cache.
type Decision struct {
	Mode      strategy.CacheMode
	Window    int
	Strategy  string
	Threshold decimal.Decimal
	Match     strategy.Match
}

func (d Decision) Cached() bool { return d.Mode.Valid() }

// Decide maps a bucket to a decision.
func Decide(b strategy.Bucket) Decision {
	return Decision{
		Mode:      b.Mode,
		Window:    b.RecentRoutes(),
		Threshold: b.Threshold,
	}
}

type Decider interface {
	Decide(q model.QuoteRequest) (Decision, Reason)
}

// OverflowPolicy decides what happens to amounts above a strategy's largest
// threshold.
type OverflowPolicy int

const (
	OverflowUncached OverflowPolicy = iota
	OverflowClampLargest
)

func (p OverflowPolicy) String() string {
	if p == OverflowClampLargest {
		return "clamp"
	}
	return "uncached"
}

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "uncached", "none":
		return OverflowUncached, nil
	case "clamp", "clamp_largest", "largest":
		return OverflowClampLargest, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}
