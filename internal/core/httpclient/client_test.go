package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mylog "github.com/mohammed-shakir/route-cache/internal/logger"
)

func TestNewOutbound_PropagatesRequestID(t *testing.T) {
	got := make(chan string, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewOutbound(time.Second)

	ctx := mylog.WithRequestID(context.Background(), "req-42")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if id := <-got; id != "req-42" {
		t.Fatalf("X-Request-ID=%q", id)
	}

	req, _ = http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	resp, err = c.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if id := <-got; id != "" {
		t.Fatalf("unexpected X-Request-ID=%q", id)
	}
}

func TestNewOutbound_DefaultTimeout(t *testing.T) {
	if c := NewOutbound(0); c.Timeout != 30*time.Second {
		t.Fatalf("timeout=%v", c.Timeout)
	}
}
