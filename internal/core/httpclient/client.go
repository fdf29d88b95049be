// Package httpclient configures the HTTP client used to call the route engine.
package httpclient

import (
	"net"
	"net/http"
	"time"

	mylog "github.com/mohammed-shakir/route-cache/internal/logger"
)

// NewOutbound returns a client pooled for a single upstream host. Requests
// carry the caller's request ID. A non-positive timeout falls back to 30s.
func NewOutbound(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Transport: &requestIDTransport{next: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 2 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        128,
			MaxIdleConnsPerHost: 128,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 2 * time.Second,
		}},
		Timeout: timeout,
	}
}

type requestIDTransport struct {
	next http.RoundTripper
}

func (t *requestIDTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	id := mylog.RequestID(r.Context())
	if id == "" || r.Header.Get("X-Request-ID") != "" {
		return t.next.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	r.Header.Set("X-Request-ID", id)
	return t.next.RoundTrip(r)
}
