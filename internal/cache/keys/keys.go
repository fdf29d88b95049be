// Package keys builds canonical strategy keys and route-window storage keys.
package keys

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"

	"github.com/mohammed-shakir/route-cache/internal/core/model"
)

var ErrDoubleWildcard = errors.New("pair has a wildcard on both sides")

// Pair is the static identity of a quote request. Comparable; use it directly
// as a map key or through String.
type Pair struct {
	TokenIn   model.Token
	TokenOut  model.Token
	TradeType model.TradeType
	ChainID   model.ChainID
}

func NewPair(in, out model.Token, tt model.TradeType, chain model.ChainID) Pair {
	return Pair{
		TokenIn:   normalize(in),
		TokenOut:  normalize(out),
		TradeType: tt,
		ChainID:   chain,
	}
}

func ForRequest(q model.QuoteRequest) Pair {
	return NewPair(q.TokenIn, q.TokenOut, q.TradeType, q.ChainID)
}

// WithAnyIn returns the input-wildcard form of p.
func (p Pair) WithAnyIn() Pair {
	p.TokenIn = model.AnyToken
	return p
}

// WithAnyOut returns the output-wildcard form of p.
func (p Pair) WithAnyOut() Pair {
	p.TokenOut = model.AnyToken
	return p
}

func (p Pair) Validate() error {
	if p.TokenIn == "" || p.TokenOut == "" {
		return model.ErrEmptyToken
	}
	if p.TokenIn.IsAny() && p.TokenOut.IsAny() {
		return ErrDoubleWildcard
	}
	if !p.TradeType.Valid() {
		return fmt.Errorf("invalid trade type %d", int(p.TradeType))
	}
	if p.ChainID == 0 {
		return errors.New("chain id is zero")
	}
	return nil
}

// String encodes the pair as tokenIn/tokenOut/TRADE_TYPE/chainId. Well-formed
// tokens never contain '/', so the encoding is injective.
func (p Pair) String() string {
	var b strings.Builder
	b.Grow(len(p.TokenIn) + len(p.TokenOut) + 24)
	b.WriteString(string(p.TokenIn))
	b.WriteByte('/')
	b.WriteString(string(p.TokenOut))
	b.WriteByte('/')
	b.WriteString(p.TradeType.String())
	b.WriteByte('/')
	b.WriteString(p.ChainID.String())
	return b.String()
}

// RouteKey is the storage key for the rolling window of one bucket of a
// concrete pair.
func RouteKey(p Pair, threshold decimal.Decimal) string {
	ps := p.String()
	ts := threshold.String()
	sum := xxhash.Sum64String(ps + "|" + ts)
	return fmt.Sprintf("routes:%s:b=%s:h=%016x", ps, ts, sum)
}

func normalize(t model.Token) model.Token {
	return model.Token(strings.ToLower(strings.TrimSpace(string(t))))
}
