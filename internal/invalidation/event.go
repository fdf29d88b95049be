// Package invalidation drops cached route windows when the liquidity behind a
// pair changes.
package invalidation

import (
	"errors"
	"fmt"
	"time"

	"github.com/mohammed-shakir/route-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-cache/internal/core/model"
	"github.com/mohammed-shakir/route-cache/internal/strategy"
)

// Event announces that routes for one concrete pair may be stale.
// BlockNumber orders events per pair; zero means unordered.
type Event struct {
	Version     int       `json:"version"`
	ID          string    `json:"id,omitempty"`
	TokenIn     string    `json:"tokenIn"`
	TokenOut    string    `json:"tokenOut"`
	Type        string    `json:"type"`
	ChainID     uint64    `json:"chainId"`
	BlockNumber uint64    `json:"blockNumber,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	TS          time.Time `json:"ts"`
}

// Pair validates the event and returns the canonical pair it targets.
func (e Event) Pair() (keys.Pair, error) {
	if e.Version != 1 {
		return keys.Pair{}, errors.New("version must be 1")
	}
	if e.TS.IsZero() {
		return keys.Pair{}, errors.New("ts is required")
	}
	in, err := model.ParseToken(e.TokenIn)
	if err != nil {
		return keys.Pair{}, fmt.Errorf("tokenIn: %w", err)
	}
	out, err := model.ParseToken(e.TokenOut)
	if err != nil {
		return keys.Pair{}, fmt.Errorf("tokenOut: %w", err)
	}
	tt, err := model.ParseTradeType(e.Type)
	if err != nil {
		return keys.Pair{}, err
	}
	p := keys.NewPair(in, out, tt, model.ChainID(e.ChainID))
	if err := p.Validate(); err != nil {
		return keys.Pair{}, err
	}
	return p, nil
}

type Resolver interface {
	Resolve(tokenIn, tokenOut model.Token, tt model.TradeType, chain model.ChainID) (*strategy.Strategy, strategy.Match, bool)
}

// WindowKeys lists the route window key of every bucket the pair resolves to.
// A pair with no strategy has nothing cached.
func WindowKeys(r Resolver, p keys.Pair) []string {
	s, _, ok := r.Resolve(p.TokenIn, p.TokenOut, p.TradeType, p.ChainID)
	if !ok {
		return nil
	}
	bs := s.Buckets()
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, keys.RouteKey(p, b.Threshold))
	}
	return out
}
