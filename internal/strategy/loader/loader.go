// Package loader reads the cached-route strategy table from YAML.
package loader

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mohammed-shakir/route-cache/internal/cache/keys"
	"github.com/mohammed-shakir/route-cache/internal/core/model"
	"github.com/mohammed-shakir/route-cache/internal/strategy"
)

//go:embed default_strategies.yaml
var defaultStrategies []byte

type File struct {
	Strategies []StrategySpec `yaml:"strategies"`
}

type StrategySpec struct {
	Name      string       `yaml:"name"`
	TokenIn   string       `yaml:"tokenIn"`
	TokenOut  string       `yaml:"tokenOut"`
	TradeType string       `yaml:"tradeType"`
	ChainID   string       `yaml:"chainId"`
	Buckets   []BucketSpec `yaml:"buckets"`
}

// BucketSpec keeps the threshold as written so 0.015 is parsed exactly
// rather than through a float.
type BucketSpec struct {
	Threshold string `yaml:"threshold"`
	Mode      string `yaml:"mode"`
	Window    *int   `yaml:"window"`
}

// Default returns the entries of the embedded strategy table.
func Default() ([]strategy.Entry, error) {
	return Parse(defaultStrategies)
}

func LoadFile(path string) ([]strategy.Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy file: %w", err)
	}
	return Parse(b)
}

// Table loads entries from path (or the embedded default when path is empty)
// and builds the strategy table.
func Table(path string) (*strategy.Table, error) {
	var (
		es  []strategy.Entry
		err error
	)
	if strings.TrimSpace(path) == "" {
		es, err = Default()
	} else {
		es, err = LoadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return strategy.Build(es)
}

// Parse decodes YAML into strategy entries. Field-level problems are returned
// as a *strategy.ConfigurationError; structural checks happen in strategy.Build.
func Parse(b []byte) ([]strategy.Entry, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unmarshal strategy file: %w", err)
	}
	if len(f.Strategies) == 0 {
		return nil, errors.New("strategy file defines no strategies")
	}

	out := make([]strategy.Entry, 0, len(f.Strategies))
	var problems []strategy.Problem
	for i, s := range f.Strategies {
		e, err := s.entry()
		if err != nil {
			problems = append(problems, strategy.Problem{
				Index: i,
				Key:   s.TokenIn + "/" + s.TokenOut,
				Name:  s.Name,
				Err:   err,
			})
			continue
		}
		out = append(out, e)
	}
	if len(problems) > 0 {
		return nil, &strategy.ConfigurationError{Problems: problems}
	}
	return out, nil
}

func (s StrategySpec) entry() (strategy.Entry, error) {
	in, err := model.ParseTokenOrAny(s.TokenIn)
	if err != nil {
		return strategy.Entry{}, fmt.Errorf("%w: tokenIn: %w", strategy.ErrInvalidKey, err)
	}
	out, err := model.ParseTokenOrAny(s.TokenOut)
	if err != nil {
		return strategy.Entry{}, fmt.Errorf("%w: tokenOut: %w", strategy.ErrInvalidKey, err)
	}
	tt, err := model.ParseTradeType(s.TradeType)
	if err != nil {
		return strategy.Entry{}, fmt.Errorf("%w: %w", strategy.ErrInvalidKey, err)
	}
	chain, err := model.ParseChainID(s.ChainID)
	if err != nil {
		return strategy.Entry{}, fmt.Errorf("%w: %w", strategy.ErrInvalidKey, err)
	}

	buckets := make([]strategy.Bucket, 0, len(s.Buckets))
	for j, bs := range s.Buckets {
		b, err := bs.bucket()
		if err != nil {
			return strategy.Entry{}, fmt.Errorf("bucket %d: %w", j, err)
		}
		buckets = append(buckets, b)
	}

	name := strings.TrimSpace(s.Name)
	if name == "" {
		name = fmt.Sprintf("%s/%s", in, out)
	}
	return strategy.Entry{
		Key:       keys.NewPair(in, out, tt, chain),
		Name:      name,
		TradeType: tt,
		ChainID:   chain,
		Buckets:   buckets,
	}, nil
}

func (b BucketSpec) bucket() (strategy.Bucket, error) {
	th, err := decimal.NewFromString(strings.TrimSpace(b.Threshold))
	if err != nil {
		return strategy.Bucket{}, fmt.Errorf("%w: %q", strategy.ErrInvalidThreshold, b.Threshold)
	}
	mode, err := strategy.ParseCacheMode(b.Mode)
	if err != nil {
		return strategy.Bucket{}, fmt.Errorf("%w: %w", strategy.ErrInvalidMode, err)
	}
	window := 0
	if b.Window != nil {
		if *b.Window <= 0 {
			return strategy.Bucket{}, fmt.Errorf("%w: %d", strategy.ErrInvalidWindow, *b.Window)
		}
		window = *b.Window
	}
	return strategy.Bucket{Threshold: th, Mode: mode, Window: window}, nil
}
