package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestSlogBridge_ContextFieldsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Service: "route-cache", Component: "test"}, &buf)
	l := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithCacheMode(ctx, "livemode")
	ctx = WithCacheStatus(ctx, "hit")
	ctx = WithStrategy(ctx, "WETH/USDC")

	l.With("pair", "weth/usdc").InfoContext(ctx, "quote served", "window", 20, "err", errors.New("boom"))

	m := lastLine(t, &buf)
	want := map[string]any{
		"msg":          "quote served",
		"level":        "info",
		"request_id":   "req-1",
		"cache_mode":   "livemode",
		"cache_status": "hit",
		"strategy":     "WETH/USDC",
		"service":      "route-cache",
		"component":    "test",
		"pair":         "weth/usdc",
		"err":          "boom",
	}
	for k, v := range want {
		if m[k] != v {
			t.Fatalf("field %s=%v want %v (line=%v)", k, m[k], v, m)
		}
	}
	if m["window"] != float64(20) {
		t.Fatalf("window=%v", m["window"])
	}
	if _, ok := m["timestamp"]; !ok {
		t.Fatal("missing timestamp")
	}
}

func TestSlogBridge_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "warn"}, &buf)
	l := NewSlog(&zl)

	l.Info("dropped")
	l.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %q", buf.String())
	}
	l.Warn("kept")
	if m := lastLine(t, &buf); m["level"] != "warn" || m["msg"] != "kept" {
		t.Fatalf("got %v", m)
	}
}

func TestSlogBridge_Groups(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	l := NewSlog(&zl).WithGroup("shadow")

	l.Info("compare", "delta_bps", 1.5)
	if m := lastLine(t, &buf); m["shadow.delta_bps"] != 1.5 {
		t.Fatalf("got %v", m)
	}
}

func TestWithRequestID_GeneratesWhenEmpty(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if id := RequestID(ctx); len(id) != 16 {
		t.Fatalf("generated id %q", id)
	}
}
