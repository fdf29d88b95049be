package strategy

import (
	"github.com/mohammed-shakir/route-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-cache/internal/core/model"
)

// Strategy is the bucket list for one canonical key. Immutable after Build.
type Strategy struct {
	name      string
	key       keys.Pair
	tradeType model.TradeType
	chainID   model.ChainID
	buckets   []Bucket
}

func (s *Strategy) Name() string               { return s.name }
func (s *Strategy) Key() keys.Pair             { return s.key }
func (s *Strategy) TradeType() model.TradeType { return s.tradeType }
func (s *Strategy) ChainID() model.ChainID     { return s.chainID }
func (s *Strategy) Len() int                   { return len(s.buckets) }

// Buckets returns a copy of the ordered bucket list.
func (s *Strategy) Buckets() []Bucket {
	out := make([]Bucket, len(s.buckets))
	copy(out, s.buckets)
	return out
}

// Entry is one configuration row as supplied by the loader.
type Entry struct {
	Key       keys.Pair
	Name      string
	TradeType model.TradeType
	ChainID   model.ChainID
	Buckets   []Bucket
}

func validateBuckets(bs []Bucket) error {
	if len(bs) == 0 {
		return ErrNoBuckets
	}
	for i, b := range bs {
		if !b.Threshold.IsPositive() {
			return bucketErr(i, b, ErrInvalidThreshold)
		}
		if !b.Mode.Valid() {
			return bucketErr(i, b, ErrInvalidMode)
		}
		if b.Window < 0 {
			return bucketErr(i, b, ErrInvalidWindow)
		}
		if i > 0 && !b.Threshold.GreaterThan(bs[i-1].Threshold) {
			return bucketErr(i, b, ErrThresholdOrder)
		}
	}
	return nil
}
