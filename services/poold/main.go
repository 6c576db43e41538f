package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"creditpool/config"
	"creditpool/core/events"
	"creditpool/native/market"
	"creditpool/observability"
	"creditpool/observability/logging"
	telemetry "creditpool/observability/otel"
	pooldconfig "creditpool/services/poold/config"
	"creditpool/services/poold/middleware"
	"creditpool/services/poold/scheduler"
	"creditpool/services/poold/server"
	"creditpool/state/ledger"
	"creditpool/storage"
	"creditpool/storage/journal"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/poold/config.yaml", "path to poold config")
	flag.Parse()

	cfg, err := pooldconfig.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.SetupWithOptions(logging.Options{
		Service:    "poold",
		Env:        cfg.Environment,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	marketCfg, err := config.Load(cfg.MarketPath)
	if err != nil {
		log.Fatalf("load market: %v", err)
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "poold",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
		Attributes: map[string]string{
			"pool.address":    marketCfg.Pool.Address,
			"pool.underlying": marketCfg.Pool.Underlying,
			"pool.keeper":     marketCfg.Keeper.Kind,
		},
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.SnapshotDir())
	if err != nil {
		log.Fatalf("open snapshot store: %v", err)
	}
	defer db.Close()
	store := ledger.NewStore(db)

	eventJournal, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	defer eventJournal.Close()
	logger.Info("journal opened", "driver", cfg.Journal.Driver, "journal_dsn", cfg.Journal.DSN)

	hub := server.NewHub(eventJournal, logger)
	emitter := events.Fanout{hub, observability.Events()}
	m, err := market.Open(*marketCfg, store, market.WithEmitter(emitter), market.WithLogger(logger))
	if err != nil {
		log.Fatalf("open market: %v", err)
	}
	observability.Ledger().ObserveView(m.View())
	if root, err := m.StateRoot(); err == nil {
		logger.Info("market ready", "kind", string(m.KeeperKind()), "root", root)
	}

	srv, err := server.New(server.Config{
		ServiceName: "poold",
		Market:      m,
		Store:       store,
		Hub:         hub,
		Auth: middleware.AuthConfig{
			HMACSecret:          cfg.Auth.HMACSecret,
			Issuer:              cfg.Auth.Issuer,
			Audience:            cfg.Auth.Audience,
			ClockSkew:           cfg.Auth.ClockSkew,
			AllowAnonymousReads: cfg.Auth.AllowAnonymousReads,
		},
		RateLimit: middleware.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		SnapshotRetention: cfg.SnapshotRetention,
		LogRequests:       strings.EqualFold(cfg.Environment, "dev"),
		Logger:            logger,
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	if !cfg.Scheduler.Disabled {
		epochs, err := scheduler.New(srv, cfg.Scheduler.Interval, logger)
		if err != nil {
			log.Fatalf("build scheduler: %v", err)
		}
		epochs.Start()
		defer func() {
			if err := epochs.Shutdown(); err != nil {
				logger.Warn("scheduler shutdown", "error", err)
			}
		}()
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Fatalf("listen on %s: %v", cfg.ListenAddress, err)
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("poold listening", "addr", cfg.ListenAddress)
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve http: %v", err)
		}
	}

	if _, err := srv.Persist(); err != nil {
		logger.Error("final snapshot failed", "error", err)
	}
}
