package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mohammed-shakir/mercator-pick/internal/catalog"
	"github.com/mohammed-shakir/mercator-pick/internal/core/config"
	"github.com/mohammed-shakir/mercator-pick/internal/core/health"
	"github.com/mohammed-shakir/mercator-pick/internal/core/hittest"
	"github.com/mohammed-shakir/mercator-pick/internal/core/observability"
	"github.com/mohammed-shakir/mercator-pick/internal/core/projection"
	"github.com/mohammed-shakir/mercator-pick/internal/core/router"
	"github.com/mohammed-shakir/mercator-pick/internal/core/server"
	"github.com/mohammed-shakir/mercator-pick/internal/logger"
	h3mapper "github.com/mohammed-shakir/mercator-pick/internal/mapper/h3"
	"github.com/mohammed-shakir/mercator-pick/internal/metrics"
	"github.com/mohammed-shakir/mercator-pick/internal/pickevents"
	"github.com/mohammed-shakir/mercator-pick/internal/providers/sqlpoints"
	"github.com/mohammed-shakir/mercator-pick/internal/selection"
	"github.com/mohammed-shakir/mercator-pick/internal/selection/redisstore"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func run() int {
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	// a missing file is fine, the process env still applies
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("dotenv load failed", "file", *envFile, "err", err)
	}

	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Component: "pick-server",
		Version:   Version,
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting pick server",
		"addr", cfg.Addr,
		"version", Version,
		"radius", cfg.EarthRadius,
		"selection", cfg.Selection.Enabled,
		"pick_events", cfg.PickEvents.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mcfg := metrics.ConfigFromEnv()
	if mcfg.Enabled {
		if mcfg.Build.Version == "" {
			mcfg.Build.Version = Version
		}
		p := metrics.Init(mcfg)
		observability.Init(p.Registerer(), true)
		go func() {
			if err := p.Serve(ctx, mcfg.Addr, mcfg.Path, appLog); err != nil {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
	}

	var checks []health.Check

	var db *sql.DB
	if cfg.AddressDSN != "" {
		var err error
		db, err = sqlpoints.OpenDB(cfg.AddressDSN)
		if err != nil {
			appLog.Error("address database setup failed", "err", err)
			return 1
		}
		defer db.Close()
		checks = append(checks, health.Check{Name: "postgres", Ping: db.PingContext})
	}

	cat, err := catalog.Build(cfg, db, appLog)
	if err != nil {
		appLog.Error("catalog setup failed", "err", err)
		return 1
	}
	appLog.Info("catalog ready", "layers", len(cat))

	tester, err := hittest.New(cfg.EarthRadius)
	if err != nil {
		appLog.Error("hit tester setup failed", "err", err)
		return 1
	}
	tester.SymbolHalfSize = cfg.SymbolHalfPx

	deps := router.Deps{
		Log:            appLog,
		Catalog:        cat,
		Picker:         tester,
		TileRadius:     projection.WebMercatorRadius,
		RequestTimeout: cfg.RequestTimeout,
	}

	if cfg.Selection.Enabled {
		rc, err := redisstore.New(ctx, cfg.Selection.RedisAddr)
		if err != nil {
			appLog.Error("selection store setup failed", "err", err, "addr", cfg.Selection.RedisAddr)
			return 1
		}
		defer func() { _ = rc.Close() }()
		deps.Selection = selection.New(rc, cfg.Selection.TTL, cfg.Selection.OpTimeout)
		checks = append(checks, health.Check{Name: "redis", Ping: rc.Ping})
	}

	if cfg.PickEvents.Enabled {
		pub, err := pickevents.NewPublisher(pickevents.Config{
			Brokers:      pickevents.ParseBrokers(cfg.PickEvents.Brokers),
			Topic:        cfg.PickEvents.Topic,
			H3Res:        cfg.PickEvents.H3Res,
			RegionRes:    cfg.PickEvents.RegionRes,
			QueueSize:    cfg.PickEvents.QueueSize,
			DedupeWindow: cfg.PickEvents.DedupeWindow,
		}, h3mapper.New(), appLog)
		if err != nil {
			appLog.Error("pick events setup failed", "err", err)
			return 1
		}
		defer func() {
			if err := pub.Close(); err != nil {
				appLog.Warn("pick events close", "err", err)
			}
		}()
		deps.Events = pub
	}

	if err := server.Run(ctx, cfg, appLog, server.NewHandler(appLog, deps, checks...)); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
