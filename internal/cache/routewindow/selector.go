package routewindow

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Selector picks which of n cached routes to serve for key.
type Selector interface {
	Pick(key string, n int) int
}

const numShards = 64

// RoundRobin cycles through the window per key. Cursors live in per-shard
// LRUs holding about maxKeys entries in total; an evicted key restarts at 0.
type RoundRobin struct {
	shards [numShards]cursorShard
}

type cursorShard struct {
	mu sync.Mutex
	c  *lru.Cache[string, uint64]
}

func NewRoundRobin(maxKeys int) *RoundRobin {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	per := (maxKeys + numShards - 1) / numShards
	rr := &RoundRobin{}
	for i := range rr.shards {
		rr.shards[i].c, _ = lru.New[string, uint64](per)
	}
	return rr
}

func (rr *RoundRobin) Pick(key string, n int) int {
	if n <= 1 {
		return 0
	}
	s := &rr.shards[xxhash.Sum64String(key)&(numShards-1)]
	s.mu.Lock()
	c, _ := s.c.Get(key)
	s.c.Add(key, c+1)
	s.mu.Unlock()
	return int(c % uint64(n))
}

// Len reports the number of tracked cursors.
func (rr *RoundRobin) Len() int {
	n := 0
	for i := range rr.shards {
		n += rr.shards[i].c.Len()
	}
	return n
}

// Random picks uniformly with a seeded source so runs are reproducible.
type Random struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *Random) Pick(_ string, n int) int {
	if n <= 1 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.IntN(n)
}

// NewSelector maps a configured name to a Selector. maxKeys bounds the
// round-robin cursor set.
func NewSelector(name string, seed uint64, maxKeys int) (Selector, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "round_robin", "roundrobin", "rr":
		return NewRoundRobin(maxKeys), nil
	case "random":
		return NewRandom(seed), nil
	default:
		return nil, fmt.Errorf("unknown route selector %q", name)
	}
}
