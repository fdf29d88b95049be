package routewindow

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/route-cache/internal/core/model"
)

type entry struct {
	route model.Route
	at    time.Time
}

type window struct {
	mu      sync.Mutex
	entries []entry // newest first
}

// Memory is a process-local Store. The number of keys is bounded by an LRU
// and each window is bounded by its size.
type Memory struct {
	ttl  time.Duration
	now  func() time.Time
	keys *lru.Cache[string, *window]
	mu   sync.Mutex // guards get-or-create on keys
}

var _ Store = (*Memory)(nil)

func NewMemory(maxKeys int, ttl time.Duration) *Memory {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	c, _ := lru.New[string, *window](maxKeys)
	return &Memory{ttl: ttl, now: time.Now, keys: c}
}

func (m *Memory) Recent(_ context.Context, key string, n int) ([]model.Route, error) {
	w, ok := m.keys.Get(key)
	if !ok || n <= 0 {
		return nil, nil
	}

	now := m.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expire(now, m.ttl)
	if n > len(w.entries) {
		n = len(w.entries)
	}
	out := make([]model.Route, n)
	for i := range n {
		out[i] = w.entries[i].route
	}
	return out, nil
}

func (m *Memory) Push(_ context.Context, key string, r model.Route, size int) error {
	if r.ID == "" {
		return ErrInvalidRoute
	}
	size = clampSize(size)

	m.mu.Lock()
	w, ok := m.keys.Get(key)
	if !ok {
		w = &window{}
		m.keys.Add(key, w)
	}
	m.mu.Unlock()

	now := m.now()
	w.mu.Lock()
	defer w.mu.Unlock()

	w.expire(now, m.ttl)
	kept := make([]entry, 0, min(len(w.entries)+1, size))
	kept = append(kept, entry{route: r, at: now})
	for _, e := range w.entries {
		if len(kept) == size {
			break
		}
		if e.route.ID != r.ID {
			kept = append(kept, e)
		}
	}
	w.entries = kept
	return nil
}

func (m *Memory) Purge(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.keys.Remove(k)
	}
	return nil
}

// Len reports the number of tracked keys.
func (m *Memory) Len() int { return m.keys.Len() }

func (w *window) expire(now time.Time, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	// entries are ordered by insertion, so everything after the first stale one is stale
	for i, e := range w.entries {
		if now.Sub(e.at) > ttl {
			w.entries = w.entries[:i]
			return
		}
	}
}
