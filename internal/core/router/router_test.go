package router

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/mohammed-shakir/route-cache/internal/core/model"
	"github.com/mohammed-shakir/route-cache/internal/quoting"
	"github.com/mohammed-shakir/route-cache/internal/strategy"
	"github.com/mohammed-shakir/route-cache/pkg/cachepolicy"
)

const q = "/quote?tokenIn=0xC02aaa39b223FE8D0A0e5C4F27eAD9083C756Cc2&tokenOut=0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48&amount=0.3"

func TestParseQuoteRequest_DefaultsAndNormalization(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, q, nil)
	got, err := ParseQuoteRequest(r)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.TokenIn != "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2" {
		t.Fatalf("tokenIn not normalized: %s", got.TokenIn)
	}
	if got.TradeType != model.ExactInput || got.ChainID != model.Mainnet || got.Amount.String() != "0.3" {
		t.Fatalf("got %+v", got)
	}
}

func TestParseQuoteRequest_ExplicitTypeAndChain(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/quote?tokenIn=a&tokenOut=b&amount=10&type=exactOut&chainId=arbitrum_one", nil)
	got, err := ParseQuoteRequest(r)
	if err != nil {
		t.Fatal(err)
	}
	if got.TradeType != model.ExactOutput || got.ChainID != model.ArbitrumOne {
		t.Fatalf("got %+v", got)
	}
}

func TestParseQuoteRequest_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing tokenIn":  "/quote?tokenOut=b&amount=1",
		"wildcard token":   "/quote?tokenIn=*&tokenOut=b&amount=1",
		"separator token":  "/quote?tokenIn=a/b&tokenOut=b&amount=1",
		"missing amount":   "/quote?tokenIn=a&tokenOut=b",
		"non-numeric":      "/quote?tokenIn=a&tokenOut=b&amount=lots",
		"zero amount":      "/quote?tokenIn=a&tokenOut=b&amount=0",
		"negative amount":  "/quote?tokenIn=a&tokenOut=b&amount=-1",
		"bad type":         "/quote?tokenIn=a&tokenOut=b&amount=1&type=sideways",
		"bad chain":        "/quote?tokenIn=a&tokenOut=b&amount=1&chainId=moon",
		"zero chain":       "/quote?tokenIn=a&tokenOut=b&amount=1&chainId=0",
	}
	for name, url := range cases {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, url, nil)
			if _, err := ParseQuoteRequest(r); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

type stubQuoter struct {
	res quoting.Result
	err error
	got model.QuoteRequest
}

func (s *stubQuoter) Quote(_ context.Context, q model.QuoteRequest) (quoting.Result, error) {
	s.got = q
	return s.res, s.err
}

func (s *stubQuoter) Decide(model.QuoteRequest) (cachepolicy.Decision, cachepolicy.Reason) {
	return s.res.Decision, s.res.Reason
}

func liveResult() quoting.Result {
	return quoting.Result{
		Route: model.Route{ID: "r1", Path: []string{"a", "b"}, Quote: decimal.RequireFromString("2775.5")},
		Decision: cachepolicy.Decision{
			Mode:      strategy.Livemode,
			Window:    20,
			Strategy:  "WETH/*",
			Threshold: decimal.RequireFromString("0.5"),
			Match:     strategy.MatchOutputWildcard,
		},
		Reason:      cachepolicy.ReasonMatched,
		CacheStatus: quoting.StatusHit,
		Selected:    3,
	}
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestHandleQuote_RendersResult(t *testing.T) {
	st := &stubQuoter{res: liveResult()}
	rr := httptest.NewRecorder()
	HandleQuote(discard(), st)(rr, httptest.NewRequest(http.MethodGet, q, nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"cacheStatus": "hit",
		"cacheMode":   "livemode",
		"strategy":    "WETH/*",
		"threshold":   "0.5",
		"match":       "any_out",
		"reason":      "matched",
		"window":      float64(20),
		"selected":    float64(3),
	}
	for k, v := range want {
		if body[k] != v {
			t.Fatalf("%s=%v want %v (body=%v)", k, body[k], v, body)
		}
	}
	route, _ := body["route"].(map[string]any)
	if route["id"] != "r1" {
		t.Fatalf("route=%v", body["route"])
	}
	if !st.got.Amount.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("amount passed=%s", st.got.Amount)
	}
}

func TestHandleQuote_BadRequestAndUpstreamFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleQuote(discard(), &stubQuoter{})(rr, httptest.NewRequest(http.MethodGet, "/quote?tokenIn=a", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	HandleQuote(discard(), &stubQuoter{err: errors.New("engine down")})(rr, httptest.NewRequest(http.MethodGet, q, nil))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", rr.Code)
	}

	rr = httptest.NewRecorder()
	HandleQuote(discard(), &stubQuoter{err: context.DeadlineExceeded})(rr, httptest.NewRequest(http.MethodGet, q, nil))
	if rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestHandleStrategy_NoPolicy(t *testing.T) {
	st := &stubQuoter{res: quoting.Result{Reason: cachepolicy.ReasonNoStrategy}}
	rr := httptest.NewRecorder()
	HandleStrategy(st)(rr, httptest.NewRequest(http.MethodGet, q, nil))

	b, _ := io.ReadAll(rr.Body)
	s := string(b)
	if rr.Code != http.StatusOK || !strings.Contains(s, `"cacheMode":"none"`) || !strings.Contains(s, `"reason":"no_strategy"`) {
		t.Fatalf("status=%d body=%s", rr.Code, s)
	}
	if strings.Contains(s, `"threshold"`) {
		t.Fatalf("threshold should be omitted: %s", s)
	}
}
