// Package strategy holds the immutable table of cached-route strategies and
// the lookups that resolve a request to a strategy and a size bucket.
package strategy

import (
	"fmt"
	"strings"
)

type CacheMode int

const (
	// Livemode serves cached routes and fills the window on a miss.
	Livemode CacheMode = iota + 1
	// Darkmode always serves a fresh route and records it silently.
	Darkmode
	// Tapcompare serves like Livemode and compares against a fresh route out of band.
	Tapcompare
)

func (m CacheMode) String() string {
	switch m {
	case Livemode:
		return "livemode"
	case Darkmode:
		return "darkmode"
	case Tapcompare:
		return "tapcompare"
	default:
		return fmt.Sprintf("cache_mode(%d)", int(m))
	}
}

func (m CacheMode) Valid() bool {
	return m == Livemode || m == Darkmode || m == Tapcompare
}

func ParseCacheMode(s string) (CacheMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "livemode", "live":
		return Livemode, nil
	case "darkmode", "dark":
		return Darkmode, nil
	case "tapcompare", "tap_compare", "tap":
		return Tapcompare, nil
	default:
		return 0, fmt.Errorf("unknown cache mode %q", s)
	}
}

func (m CacheMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *CacheMode) UnmarshalText(b []byte) error {
	v, err := ParseCacheMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
