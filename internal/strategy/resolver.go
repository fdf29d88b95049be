package strategy

import (
	"github.com/mohammed-shakir/route-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-cache/internal/core/model"
)

// Match reports which key form resolved a request.
type Match int

const (
	MatchNone Match = iota
	MatchExact
	MatchInputWildcard
	MatchOutputWildcard
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchInputWildcard:
		return "any_in"
	case MatchOutputWildcard:
		return "any_out"
	default:
		return "none"
	}
}

type Resolver struct {
	table *Table
}

func NewResolver(t *Table) *Resolver {
	return &Resolver{table: t}
}

// Resolve tries the exact key, then (*, tokenOut), then (tokenIn, *). A pair
// level strategy is never shadowed by a catch-all for the same pair.
func (r *Resolver) Resolve(tokenIn, tokenOut model.Token, tt model.TradeType, chain model.ChainID) (*Strategy, Match, bool) {
	exact := keys.NewPair(tokenIn, tokenOut, tt, chain)
	candidates := [...]struct {
		key   keys.Pair
		match Match
	}{
		{exact, MatchExact},
		{exact.WithAnyIn(), MatchInputWildcard},
		{exact.WithAnyOut(), MatchOutputWildcard},
	}
	for _, c := range candidates {
		if s, ok := r.table.Lookup(c.key); ok {
			return s, c.match, true
		}
	}
	return nil, MatchNone, false
}

func (r *Resolver) ResolveRequest(q model.QuoteRequest) (*Strategy, Match, bool) {
	return r.Resolve(q.TokenIn, q.TokenOut, q.TradeType, q.ChainID)
}
