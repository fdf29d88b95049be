package strategy

import (
	"fmt"
	"sort"

	"github.com/mohammed-shakir/route-cache/internal/cache/keys"
)

// Table maps canonical keys to strategies. Built once; safe for concurrent
// reads without locking because nothing mutates it after Build.
type Table struct {
	byKey map[keys.Pair]*Strategy
}

// Build validates entries and returns an immutable table. Every malformed
// entry is reported in the returned *ConfigurationError.
func Build(entries []Entry) (*Table, error) {
	t := &Table{byKey: make(map[keys.Pair]*Strategy, len(entries))}
	firstSeen := make(map[keys.Pair]int, len(entries))
	var problems []Problem

	for i, e := range entries {
		k := keys.NewPair(e.Key.TokenIn, e.Key.TokenOut, e.Key.TradeType, e.Key.ChainID)
		fail := func(err error) {
			problems = append(problems, Problem{Index: i, Key: k.String(), Name: e.Name, Err: err})
		}

		if err := k.Validate(); err != nil {
			fail(fmt.Errorf("%w: %w", ErrInvalidKey, err))
			continue
		}
		if e.TradeType != k.TradeType || e.ChainID != k.ChainID {
			fail(ErrKeyMismatch)
			continue
		}
		if j, dup := firstSeen[k]; dup {
			fail(fmt.Errorf("%w: also defined by entry %d", ErrDuplicateKey, j))
			continue
		}
		firstSeen[k] = i
		if err := validateBuckets(e.Buckets); err != nil {
			fail(err)
			continue
		}

		bs := make([]Bucket, len(e.Buckets))
		copy(bs, e.Buckets)
		t.byKey[k] = &Strategy{
			name:      e.Name,
			key:       k,
			tradeType: e.TradeType,
			chainID:   e.ChainID,
			buckets:   bs,
		}
	}

	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}
	return t, nil
}

func (t *Table) Lookup(k keys.Pair) (*Strategy, bool) {
	if t == nil {
		return nil, false
	}
	s, ok := t.byKey[keys.NewPair(k.TokenIn, k.TokenOut, k.TradeType, k.ChainID)]
	return s, ok
}

func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.byKey)
}

// Keys returns every key in the table in encoded order.
func (t *Table) Keys() []keys.Pair {
	if t == nil {
		return nil
	}
	out := make([]keys.Pair, 0, len(t.byKey))
	for k := range t.byKey {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
