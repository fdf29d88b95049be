// Package model defines core domain types shared across the service.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Token is a normalized token identifier (lower-cased, trimmed) or AnyToken.
type Token string

// AnyToken matches any token in a single position of a strategy key.
const AnyToken Token = "*"

var (
	ErrEmptyToken    = errors.New("token identifier is empty")
	ErrReservedToken = errors.New("token identifier is reserved")
	ErrTokenChars    = errors.New("token identifier contains separator or whitespace")
)

// ParseToken normalizes a concrete token identifier. The wildcard sentinel is
// rejected here; use ParseTokenOrAny where configuration may name it.
func ParseToken(s string) (Token, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	if t == "" {
		return "", ErrEmptyToken
	}
	if t == string(AnyToken) {
		return "", fmt.Errorf("%w: %q", ErrReservedToken, s)
	}
	for _, r := range t {
		if r == '/' || r == '*' || r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f' {
			return "", fmt.Errorf("%w: %q", ErrTokenChars, s)
		}
	}
	return Token(t), nil
}

func ParseTokenOrAny(s string) (Token, error) {
	if strings.TrimSpace(s) == string(AnyToken) {
		return AnyToken, nil
	}
	return ParseToken(s)
}

func (t Token) IsAny() bool { return t == AnyToken }

func (t Token) String() string { return string(t) }

type TradeType int

const (
	ExactInput TradeType = iota
	ExactOutput
)

func (t TradeType) String() string {
	switch t {
	case ExactInput:
		return "EXACT_INPUT"
	case ExactOutput:
		return "EXACT_OUTPUT"
	default:
		return "TRADE_TYPE_" + strconv.Itoa(int(t))
	}
}

func (t TradeType) Valid() bool { return t == ExactInput || t == ExactOutput }

// ParseTradeType accepts the config spelling and the query-string spelling.
func ParseTradeType(s string) (TradeType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact_input", "exactin", "exact_in", "exactinput":
		return ExactInput, nil
	case "exact_output", "exactout", "exact_out", "exactoutput":
		return ExactOutput, nil
	default:
		return 0, fmt.Errorf("unknown trade type %q", s)
	}
}

func (t TradeType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TradeType) UnmarshalText(b []byte) error {
	v, err := ParseTradeType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

type ChainID uint64

const (
	Mainnet     ChainID = 1
	Optimism    ChainID = 10
	Polygon     ChainID = 137
	ArbitrumOne ChainID = 42161
	Celo        ChainID = 42220
)

var chainNames = map[string]ChainID{
	"mainnet":      Mainnet,
	"optimism":     Optimism,
	"polygon":      Polygon,
	"arbitrum_one": ArbitrumOne,
	"celo":         Celo,
}

// ParseChainID accepts a decimal chain id or one of the well-known names.
func ParseChainID(s string) (ChainID, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if id, ok := chainNames[v]; ok {
		return id, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid chain id %q", s)
	}
	return ChainID(n), nil
}

func (c ChainID) String() string { return strconv.FormatUint(uint64(c), 10) }

// QuoteRequest is one swap-quote request. Amount is denominated in tokenIn
// for ExactInput and in tokenOut for ExactOutput.
type QuoteRequest struct {
	TokenIn   Token
	TokenOut  Token
	TradeType TradeType
	ChainID   ChainID
	Amount    decimal.Decimal
}

// Route is an opaque computed route as returned by the route engine.
type Route struct {
	ID               string          `json:"id"`
	Path             []string        `json:"path"`
	Quote            decimal.Decimal `json:"quote"`
	QuoteGasAdjusted decimal.Decimal `json:"quoteGasAdjusted"`
	BlockNumber      uint64          `json:"blockNumber"`
	ComputedAt       time.Time       `json:"computedAt"`
}
