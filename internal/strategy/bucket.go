package strategy

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Bucket covers trade sizes up to and including Threshold. Window is the
// number of distinct recent routes retained for the bucket; zero means unset.
type Bucket struct {
	Threshold decimal.Decimal
	Mode      CacheMode
	Window    int
}

// RecentRoutes is the effective window size, defaulting to one.
func (b Bucket) RecentRoutes() int {
	if b.Window <= 0 {
		return 1
	}
	return b.Window
}

// Match returns the bucket with the smallest threshold >= amount. Buckets are
// sorted strictly ascending at build time, so a binary search suffices. The
// second result is false when amount exceeds every threshold.
func (s *Strategy) Match(amount decimal.Decimal) (Bucket, bool) {
	i := searchCeil(s.buckets, amount)
	if i == len(s.buckets) {
		return Bucket{}, false
	}
	return s.buckets[i], true
}

// Largest returns the bucket with the highest threshold.
func (s *Strategy) Largest() Bucket {
	return s.buckets[len(s.buckets)-1]
}

func searchCeil(bs []Bucket, amount decimal.Decimal) int {
	return sort.Search(len(bs), func(i int) bool {
		return bs[i].Threshold.GreaterThanOrEqual(amount)
	})
}
