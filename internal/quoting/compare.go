package quoting

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mohammed-shakir/route-cache/internal/core/model"
)

var tenThousand = decimal.NewFromInt(10_000)

// Comparison describes how far a served route drifted from a fresh one.
type Comparison struct {
	// DeltaBps is (served - fresh) / fresh in basis points. Zero when the
	// fresh quote is zero.
	DeltaBps   float64
	SamePath   bool
	BlockDelta int64
}

func Compare(served, fresh model.Route) Comparison {
	c := Comparison{
		SamePath:   samePath(served.Path, fresh.Path),
		BlockDelta: int64(fresh.BlockNumber) - int64(served.BlockNumber),
	}
	if !fresh.Quote.IsZero() {
		c.DeltaBps = served.Quote.Sub(fresh.Quote).Div(fresh.Quote).Mul(tenThousand).InexactFloat64()
	}
	return c
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
