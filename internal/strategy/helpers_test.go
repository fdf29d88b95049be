package strategy

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mohammed-shakir/route-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-cache/internal/core/model"
)

const (
	weth = model.Token("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	usdc = model.Token("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	dai  = model.Token("0x6b175474e89094c44da98b954eedeac495271d0f")
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func live(th string) Bucket { return Bucket{Threshold: d(th), Mode: Livemode} }

func entry(name string, in, out model.Token, buckets ...Bucket) Entry {
	return Entry{
		Key:       keys.NewPair(in, out, model.ExactInput, model.Mainnet),
		Name:      name,
		TradeType: model.ExactInput,
		ChainID:   model.Mainnet,
		Buckets:   buckets,
	}
}

func wethUSDC() Entry {
	var bs []Bucket
	for _, th := range []string{"0.2", "1", "3", "5", "8", "13", "21", "34", "55"} {
		bs = append(bs, live(th))
	}
	return entry("WETH/USDC", weth, usdc, bs...)
}

func wethAny() Entry {
	return entry("WETH/*", weth, model.AnyToken,
		Bucket{Threshold: d("0.015"), Mode: Darkmode},
		Bucket{Threshold: d("0.05"), Mode: Livemode, Window: 20},
		Bucket{Threshold: d("0.1"), Mode: Livemode, Window: 20},
		Bucket{Threshold: d("0.5"), Mode: Livemode, Window: 20},
		Bucket{Threshold: d("1"), Mode: Livemode, Window: 20},
	)
}

func usdcAny() Entry {
	return entry("USDC/*", usdc, model.AnyToken,
		Bucket{Threshold: d("100"), Mode: Darkmode, Window: 10},
		Bucket{Threshold: d("300"), Mode: Tapcompare, Window: 10},
	)
}

func anyUSDC() Entry {
	return entry("*/USDC", model.AnyToken, usdc, live("10"))
}

func mustBuild(t *testing.T, es ...Entry) *Table {
	t.Helper()
	tbl, err := Build(es)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return tbl
}
