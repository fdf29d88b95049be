// Package app assembles the quote service from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mohammed-shakir/route-cache/internal/cache/redisstore"
	"github.com/mohammed-shakir/route-cache/internal/cache/routewindow"
	"github.com/mohammed-shakir/route-cache/internal/compareevents"
	"github.com/mohammed-shakir/route-cache/internal/core/config"
	"github.com/mohammed-shakir/route-cache/internal/core/health"
	"github.com/mohammed-shakir/route-cache/internal/core/httpclient"
	"github.com/mohammed-shakir/route-cache/internal/core/server"
	"github.com/mohammed-shakir/route-cache/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/route-cache/internal/metrics"
	"github.com/mohammed-shakir/route-cache/internal/quoting"
	"github.com/mohammed-shakir/route-cache/internal/routing"
	"github.com/mohammed-shakir/route-cache/internal/strategy"
	"github.com/mohammed-shakir/route-cache/internal/strategy/loader"
	"github.com/mohammed-shakir/route-cache/pkg/cachepolicy"
)

type App struct {
	Handler http.Handler
	Service *quoting.Service
	Table   *strategy.Table

	closers []func() error
}

// Build loads the strategy table and wires every collaborator. A malformed
// table is returned as *strategy.ConfigurationError.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, build metrics.BuildInfo) (*App, error) {
	tbl, err := loader.Table(cfg.StrategyFile)
	if err != nil {
		return nil, fmt.Errorf("load strategies: %w", err)
	}
	overflow, err := cachepolicy.ParseOverflowPolicy(cfg.OverflowPolicy)
	if err != nil {
		return nil, err
	}
	resolver := strategy.NewResolver(tbl)
	engine := cachepolicy.New(cachepolicy.Config{Overflow: overflow}, resolver)

	a := &App{Table: tbl}
	checks := map[string]health.Checker{}

	var store routewindow.Store
	switch cfg.RouteStore {
	case "", "memory":
		store = routewindow.NewMemory(cfg.RouteMemoryKeys, cfg.RouteTTL)
	case "redis":
		rc, err := redisstore.New(ctx, cfg.RedisAddr,
			redisstore.WithPoolSize(cfg.Redis.PoolSize),
			redisstore.WithMinIdleConns(cfg.Redis.MinIdleConns),
			redisstore.WithDialTimeout(cfg.Redis.DialTimeout),
			redisstore.WithReadTimeout(cfg.Redis.ReadTimeout),
			redisstore.WithWriteTimeout(cfg.Redis.WriteTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("redis client: %w", err)
		}
		a.closers = append(a.closers, rc.Close)
		checks["redis"] = rc
		store = routewindow.NewRedis(rc, cfg.RouteTTL)
	default:
		return nil, fmt.Errorf("unknown route store %q", cfg.RouteStore)
	}

	sel, err := routewindow.NewSelector(cfg.RouteSelector, cfg.SelectorSeed, cfg.RouteMemoryKeys)
	if err != nil {
		a.Close()
		return nil, err
	}

	comp, err := routing.NewHTTP(logger, httpclient.NewOutbound(cfg.ComputeTimeout), cfg.RouterURL)
	if err != nil {
		a.Close()
		return nil, err
	}

	var events compareevents.Publisher = compareevents.Nop{}
	if cfg.Compare.Enabled {
		kp, err := compareevents.NewKafka(logger, cfg.Compare.BrokerList(), cfg.Compare.Topic, cfg.Compare.Queue)
		if err != nil {
			a.Close()
			return nil, err
		}
		events = kp
		a.closers = append(a.closers, kp.Close)
	}

	store = routewindow.WithMetrics(store)
	a.Service = quoting.New(engine, comp, store, sel, quoting.Options{
		Logger:         logger,
		CacheOpTimeout: cfg.CacheOpTimeout,
		ShadowTimeout:  cfg.Shadow.Timeout,
		ShadowWorkers:  cfg.Shadow.Workers,
		ShadowRate:     cfg.Shadow.Rate,
		ShadowBurst:    cfg.Shadow.Burst,
		Events:         events,
	})
	// background work must drain before the publisher and redis close
	a.closers = append([]func() error{func() error { a.Service.Close(); return nil }}, a.closers...)

	if cfg.Invalidation.Enabled {
		a.startInvalidation(ctx, logger, cfg.Invalidation, store, resolver)
	}

	p := metrics.Init(metrics.Config{Enabled: cfg.MetricsEnabled, Build: build})
	a.Handler = server.NewHandler(logger, server.Deps{
		Quoter:  a.Service,
		Metrics: p.Handler(),
		Checks:  checks,
	})

	logger.Info("route cache ready",
		"strategies", tbl.Len(),
		"overflow", engine.Config().Overflow.String(),
		"store", cfg.RouteStore,
		"selector", cfg.RouteSelector,
		"compare", cfg.Compare.Enabled,
		"invalidation", cfg.Invalidation.Enabled)
	return a, nil
}

// startInvalidation runs the consumer until Close. It is stopped before the
// store it purges is closed.
func (a *App) startInvalidation(ctx context.Context, logger *slog.Logger, cfg config.InvalidationCfg, store routewindow.Store, r *strategy.Resolver) {
	c := kafkaconsumer.New(kafkaconsumer.Config{
		Brokers:             cfg.BrokerList(),
		Topic:               cfg.Topic,
		GroupID:             cfg.GroupID,
		InitialOffsetOldest: false,
		DedupeSize:          cfg.DedupeSize,
	}, logger, store, r)

	cctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Start(cctx); err != nil {
			logger.Error("route invalidation consumer stopped", "err", err)
		}
	}()
	a.closers = append([]func() error{func() error { cancel(); <-done; return nil }}, a.closers...)
}

// Close releases resources in dependency order and joins their errors.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
