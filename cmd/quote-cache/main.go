package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/route-cache/internal/app"
	"github.com/mohammed-shakir/route-cache/internal/core/config"
	"github.com/mohammed-shakir/route-cache/internal/core/server"
	"github.com/mohammed-shakir/route-cache/internal/logger"
	"github.com/mohammed-shakir/route-cache/internal/metrics"
	"github.com/mohammed-shakir/route-cache/internal/strategy"
)

var (
	Version   = "dev"
	Revision  = ""
	BuildDate = ""
)

const exitConfig = 2

func main() {
	os.Exit(run())
}

func run() int {
	// overriding strategy file via flag
	strategyFlag := flag.String("strategies", "", "strategy YAML file (default: embedded table)")
	flag.Parse()

	cfg := config.FromEnv()
	if *strategyFlag != "" {
		cfg.StrategyFile = strings.TrimSpace(*strategyFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "route-cache",
		Component: "quote-cache",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting quote cache",
		"addr", cfg.Addr,
		"version", Version,
		"router", cfg.RouterURL,
		"strategy_file", cfg.StrategyFile)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, appLog, metrics.BuildInfo{
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
	})
	if err != nil {
		var ce *strategy.ConfigurationError
		if errors.As(err, &ce) {
			for _, p := range ce.Problems {
				appLog.Error("invalid strategy", "index", p.Index, "key", p.Key, "name", p.Name, "err", p.Err)
			}
			return exitConfig
		}
		appLog.Error("startup failed", "err", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Warn("shutdown", "err", err)
		}
	}()

	if err := server.Run(ctx, cfg.Addr, appLog, a.Handler); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
