package routing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/route-cache/internal/core/model"
	"github.com/mohammed-shakir/route-cache/internal/core/observability"
)

type routeRequest struct {
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	TradeType string `json:"type"`
	ChainID   uint64 `json:"chainId"`
	Amount    string `json:"amount"`
}

// HTTPComputer asks the external engine for a route with a single POST.
type HTTPComputer struct {
	logger   *slog.Logger
	client   *http.Client
	url      *url.URL
	startNow func() time.Time // for tests
}

var _ Computer = (*HTTPComputer)(nil)

func NewHTTP(logger *slog.Logger, client *http.Client, engineURL string) (*HTTPComputer, error) {
	u, err := url.Parse(engineURL)
	if err != nil {
		return nil, fmt.Errorf("parse router url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("router url %q must be absolute", engineURL)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPComputer{logger: logger, client: client, url: u, startNow: time.Now}, nil
}

func (c *HTTPComputer) Compute(ctx context.Context, q model.QuoteRequest) (model.Route, error) {
	body, err := json.Marshal(routeRequest{
		TokenIn:   string(q.TokenIn),
		TokenOut:  string(q.TokenOut),
		TradeType: q.TradeType.String(),
		ChainID:   uint64(q.ChainID),
		Amount:    q.Amount.String(),
	})
	if err != nil {
		return model.Route{}, fmt.Errorf("encode route request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url.String(), bytes.NewReader(body))
	if err != nil {
		return model.Route{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := c.startNow()
	resp, err := c.client.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency("router", err, time.Since(start).Seconds())
		return model.Route{}, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		err = fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
		observability.ObserveUpstreamLatency("router", err, time.Since(start).Seconds())
		return model.Route{}, err
	}

	var r model.Route
	err = json.NewDecoder(resp.Body).Decode(&r)
	dur := time.Since(start)
	observability.ObserveUpstreamLatency("router", err, dur.Seconds())
	if err != nil {
		return model.Route{}, fmt.Errorf("decode route: %w", err)
	}
	if len(r.Path) == 0 {
		return model.Route{}, fmt.Errorf("decode route: empty path")
	}
	if r.ID == "" {
		r.ID = RouteID(r.Path)
	}
	if r.ComputedAt.IsZero() {
		r.ComputedAt = time.Now().UTC()
	}

	c.logger.Debug("route computed",
		"route_id", r.ID,
		"hops", len(r.Path),
		"duration", dur.String())
	return r, nil
}
