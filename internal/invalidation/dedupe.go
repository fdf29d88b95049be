package invalidation

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// BlockDedupe remembers the newest block applied per pair so replays and
// out-of-order deliveries do not purge twice.
type BlockDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func NewBlockDedupe(size int) *BlockDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, uint64](size)
	return &BlockDedupe{lru: c}
}

// ShouldApply reports whether block is newer than the last one seen for key.
// Block zero always applies.
func (d *BlockDedupe) ShouldApply(key string, block uint64) bool {
	if block == 0 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && block <= last {
		return false
	}
	d.lru.Add(key, block)
	return true
}

// Forget undoes ShouldApply for block when it is still the latest, letting a
// redelivery retry after a failed purge.
func (d *BlockDedupe) Forget(key string, block uint64) {
	if block == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Peek(key); ok && last == block {
		d.lru.Remove(key)
	}
}
