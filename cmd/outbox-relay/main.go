// Command outbox-relay delivers committed outbox rows to Kafka, Redis streams or the log.
//
// Several instances may run against the same table: rows are claimed with SKIP LOCKED, so each
// one is delivered by a single relay at a time. An ops listener serves /metrics and /healthz.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	database "github.com/blackcatacademy/blackcat-database"
	"github.com/blackcatacademy/blackcat-database/internal/config"
	"github.com/blackcatacademy/blackcat-database/internal/dbconn"
	"github.com/blackcatacademy/blackcat-database/logging"
	"github.com/blackcatacademy/blackcat-database/metrics"
	"github.com/blackcatacademy/blackcat-database/outbox"
	"github.com/blackcatacademy/blackcat-database/sqldb"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default: ./config.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	zl, err := logging.New(cfg.Environment, cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = zl.Sync() }()

	instance := uuid.NewString()
	logger := logging.NewZap(zl).Named("outbox-relay").With("instance", instance)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		zl.Error("outbox relay failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	db, dialect, err := dbconn.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.ConnTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	handle, err := sqldb.New(db)
	if err != nil {
		return err
	}

	store, err := outbox.NewStore(
		outbox.WithTable(cfg.Outbox.Table),
		outbox.WithDialect(dialect),
		outbox.WithRetryBackoff(cfg.Outbox.RetryBase, cfg.Outbox.RetryMax),
	)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	sink, closeSink, err := newDispatcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSink(); err != nil {
			logger.Warn("close dispatcher", "err", err)
		}
	}()
	breaker := outbox.NewBreakerDispatcher(sink, outbox.BreakerConfig{
		Name:                cfg.Dispatcher.Kind,
		ConsecutiveFailures: cfg.Dispatcher.BreakerFailures,
		OpenTimeout:         cfg.Dispatcher.BreakerTimeout,
		Logger:              logger,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, cfg.Outbox.Table),
	)

	relay := outbox.NewRelay(store, func() database.Handle { return handle.Session() }, breaker,
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithWorkers(cfg.Outbox.Workers),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithPendingInterval(cfg.Outbox.PendingInterval),
		outbox.WithRelayLogger(logger),
		outbox.WithRelayMetrics(metrics.NewOutbox(reg, "")),
		outbox.WithConsumerOptions(outbox.WithDispatchTimeout(cfg.Outbox.DispatchTimeout)),
	)

	srv := &http.Server{
		Addr:              cfg.Ops.Addr,
		Handler:           newOpsRouter(db, reg, breaker),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("outbox relay starting",
			"table", store.Table(), "dialect", dialect.String(), "dispatcher", cfg.Dispatcher.Kind,
			"workers", cfg.Outbox.Workers, "batch_size", cfg.Outbox.BatchSize)
		return relay.Run(ctx)
	})

	if cfg.Outbox.Cleanup.Enabled {
		maintainer, err := outbox.NewCleanupMaintainer(store, handle.Session(), outbox.CleanupMaintainerConfig{
			Retention:  cfg.Outbox.Cleanup.Retention,
			CheckEvery: cfg.Outbox.Cleanup.CheckEvery,
			Limit:      cfg.Outbox.Cleanup.Limit,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("init cleanup: %w", err)
		}
		group.Go(func() error {
			return maintainer.Run(ctx)
		})
	}

	group.Go(func() error {
		logger.Info("ops server starting", "addr", cfg.Ops.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("outbox relay stopped")

	return nil
}
