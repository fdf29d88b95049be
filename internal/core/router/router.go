// Package router parses quote requests from HTTP and renders quoting results.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/mohammed-shakir/route-cache/internal/core/model"
	"github.com/mohammed-shakir/route-cache/internal/core/observability"
	"github.com/mohammed-shakir/route-cache/internal/quoting"
	"github.com/mohammed-shakir/route-cache/pkg/cachepolicy"
)

// Quoter serves validated quote requests.
type Quoter interface {
	Quote(ctx context.Context, q model.QuoteRequest) (quoting.Result, error)
	Decide(q model.QuoteRequest) (cachepolicy.Decision, cachepolicy.Reason)
}

type decisionBody struct {
	CacheMode string `json:"cacheMode"`
	Window    int    `json:"window"`
	Strategy  string `json:"strategy,omitempty"`
	Threshold string `json:"threshold,omitempty"`
	Match     string `json:"match"`
	Reason    string `json:"reason"`
}

type quoteBody struct {
	Route       model.Route `json:"route"`
	CacheStatus string      `json:"cacheStatus"`
	Selected    int         `json:"selected"`
	decisionBody
}

func renderDecision(d cachepolicy.Decision, reason cachepolicy.Reason) decisionBody {
	b := decisionBody{
		CacheMode: "none",
		Window:    d.Window,
		Strategy:  d.Strategy,
		Match:     d.Match.String(),
		Reason:    string(reason),
	}
	if d.Cached() {
		b.CacheMode = d.Mode.String()
		b.Threshold = d.Threshold.String()
	}
	return b
}

func HandleQuote(logger *slog.Logger, qt Quoter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/quote", sw.code, time.Since(start).Seconds())
		}()

		q, err := ParseQuoteRequest(r)
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			return
		}

		res, err := qt.Quote(r.Context(), q)
		if err != nil {
			logger.ErrorContext(r.Context(), "quote failed", "err", err)
			status := http.StatusBadGateway
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
			}
			http.Error(sw, "route computation failed", status)
			return
		}

		writeJSON(sw, quoteBody{
			Route:        res.Route,
			CacheStatus:  string(res.CacheStatus),
			Selected:     res.Selected,
			decisionBody: renderDecision(res.Decision, res.Reason),
		})
	}
}

// HandleStrategy reports the decision for a request without computing a route.
func HandleStrategy(qt Quoter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		defer func() {
			observability.ObserveHTTP(r.Method, "/strategy", sw.code, time.Since(start).Seconds())
		}()

		q, err := ParseQuoteRequest(r)
		if err != nil {
			http.Error(sw, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(sw, renderDecision(qt.Decide(q)))
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// ParseQuoteRequest reads tokenIn, tokenOut, amount, type and chainId from
// the query string. type defaults to exactIn and chainId to mainnet.
func ParseQuoteRequest(r *http.Request) (model.QuoteRequest, error) {
	v := r.URL.Query()

	in, err := model.ParseToken(v.Get("tokenIn"))
	if err != nil {
		return model.QuoteRequest{}, fmt.Errorf("invalid tokenIn: %w", err)
	}
	out, err := model.ParseToken(v.Get("tokenOut"))
	if err != nil {
		return model.QuoteRequest{}, fmt.Errorf("invalid tokenOut: %w", err)
	}

	rawAmount := strings.TrimSpace(v.Get("amount"))
	if rawAmount == "" {
		return model.QuoteRequest{}, errors.New("missing required parameter: amount")
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return model.QuoteRequest{}, fmt.Errorf("invalid amount: %w", err)
	}
	if !amount.IsPositive() {
		return model.QuoteRequest{}, errors.New("invalid amount: must be positive")
	}

	tt := model.ExactInput
	if s := strings.TrimSpace(v.Get("type")); s != "" {
		if tt, err = model.ParseTradeType(s); err != nil {
			return model.QuoteRequest{}, fmt.Errorf("invalid type: %w", err)
		}
	}

	chain := model.Mainnet
	if s := strings.TrimSpace(v.Get("chainId")); s != "" {
		if chain, err = model.ParseChainID(s); err != nil {
			return model.QuoteRequest{}, fmt.Errorf("invalid chainId: %w", err)
		}
	}

	return model.QuoteRequest{
		TokenIn:   in,
		TokenOut:  out,
		TradeType: tt,
		ChainID:   chain,
		Amount:    amount,
	}, nil
}
