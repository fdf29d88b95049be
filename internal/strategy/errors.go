package strategy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateKey     = errors.New("duplicate strategy key")
	ErrNoBuckets        = errors.New("strategy has no buckets")
	ErrThresholdOrder   = errors.New("bucket thresholds not strictly ascending")
	ErrInvalidThreshold = errors.New("bucket threshold must be positive")
	ErrInvalidMode      = errors.New("bucket cache mode is invalid")
	ErrInvalidWindow    = errors.New("bucket route window must be positive")
	ErrInvalidKey       = errors.New("strategy key is invalid")
	ErrKeyMismatch      = errors.New("strategy trade type or chain does not match its key")
)

// Problem is one rejected configuration entry.
type Problem struct {
	Index int
	Key   string
	Name  string
	Err   error
}

func (p Problem) Error() string {
	if p.Name != "" {
		return fmt.Sprintf("entry %d (%s, %s): %v", p.Index, p.Name, p.Key, p.Err)
	}
	return fmt.Sprintf("entry %d (%s): %v", p.Index, p.Key, p.Err)
}

// ConfigurationError is returned by Build when the strategy table is
// malformed. A table is never returned alongside it.
type ConfigurationError struct {
	Problems []Problem
}

func (e *ConfigurationError) Error() string {
	if len(e.Problems) == 1 {
		return "strategy configuration: " + e.Problems[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "strategy configuration: %d problems", len(e.Problems))
	for _, p := range e.Problems {
		b.WriteString("; ")
		b.WriteString(p.Error())
	}
	return b.String()
}

func (e *ConfigurationError) Unwrap() []error {
	out := make([]error, 0, len(e.Problems))
	for _, p := range e.Problems {
		out = append(out, p.Err)
	}
	return out
}

func bucketErr(i int, b Bucket, cause error) error {
	return fmt.Errorf("bucket %d (threshold %s): %w", i, b.Threshold.String(), cause)
}
