// Command outbox-cleanup removes acknowledged outbox rows and terminal idempotency keys.
//
// It wraps outbox.CleanupMaintainer for use in cron/CronJobs when the
// application itself should not run DELETE statements.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blackcatacademy/blackcat-database/idempotency"
	"github.com/blackcatacademy/blackcat-database/internal/dbconn"
	"github.com/blackcatacademy/blackcat-database/logging"
	"github.com/blackcatacademy/blackcat-database/outbox"
	"github.com/blackcatacademy/blackcat-database/sqldb"
)

const (
	exitUsage   = 2
	pingTimeout = 10 * time.Second
)

type options struct {
	driver               string
	dsn                  string
	table                string
	retention            time.Duration
	idempotencyTable     string
	idempotencyRetention time.Duration
	checkEvery           time.Duration
	limit                int
	once                 bool
	verbose              bool
}

func (o options) validate() error {
	switch {
	case o.dsn == "":
		return errors.New("dsn is required")
	case o.checkEvery <= 0:
		return fmt.Errorf("check-every must be positive, got %s", o.checkEvery)
	case o.retention < 0:
		return fmt.Errorf("retention must not be negative, got %s", o.retention)
	case o.idempotencyRetention < 0:
		return fmt.Errorf("idempotency-retention must not be negative, got %s", o.idempotencyRetention)
	case o.limit < 0:
		return fmt.Errorf("limit must not be negative, got %d", o.limit)
	}

	return nil
}

func main() {
	var opts options

	flag.StringVar(&opts.driver, "driver", "mysql", "Database driver: mysql, postgres or sqlite")
	flag.StringVar(&opts.dsn, "dsn", "", "DSN, e.g. user:pass@tcp(host:3306)/db?parseTime=true")
	flag.StringVar(&opts.table, "table", "outbox_events", "Outbox table name")
	flag.DurationVar(&opts.retention, "retention", 0, "Delete acknowledged rows older than this duration")
	flag.StringVar(&opts.idempotencyTable, "idempotency-table", "", "Idempotency table to purge (optional)")
	flag.DurationVar(&opts.idempotencyRetention, "idempotency-retention", 24*time.Hour, "Delete terminal idempotency keys older than this duration")
	flag.DurationVar(&opts.checkEvery, "check-every", time.Hour, "How often to run cleanup")
	flag.IntVar(&opts.limit, "limit", 0, "Max outbox rows deleted per run (0 uses default)")
	flag.BoolVar(&opts.once, "once", false, "Run once and exit")
	flag.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	if err := opts.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(exitUsage)
	}

	level := "info"
	if opts.verbose {
		level = "debug"
	}
	zl, err := logging.New(logging.EnvProduction, level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logging.NewZap(zl).Named("outbox-cleanup")); err != nil {
		zl.Error("cleanup failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *logging.Logger) error {
	if err := opts.validate(); err != nil {
		return err
	}

	db, dialect, err := dbconn.Open(ctx, opts.driver, opts.dsn, 0, pingTimeout)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	handle, err := sqldb.New(db)
	if err != nil {
		return err
	}

	store, err := outbox.NewStore(outbox.WithTable(opts.table), outbox.WithDialect(dialect))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	maintainer, err := outbox.NewCleanupMaintainer(store, handle, outbox.CleanupMaintainerConfig{
		Retention:  opts.retention,
		CheckEvery: opts.checkEvery,
		Limit:      opts.limit,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("init maintainer: %w", err)
	}

	var keys *idempotency.SQLStore
	if opts.idempotencyTable != "" {
		keys, err = idempotency.NewSQLStore(handle, idempotency.WithTable(opts.idempotencyTable), idempotency.WithDialect(dialect))
		if err != nil {
			return fmt.Errorf("init idempotency store: %w", err)
		}
	}

	if opts.once {
		deleted, err := maintainer.Ensure(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		if deleted > 0 {
			logger.Info("cleanup done", "deleted", deleted)
		}
		if keys != nil {
			if _, err := purgeKeys(ctx, keys, opts.idempotencyRetention, logger); err != nil {
				return err
			}
		}

		return nil
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return maintainer.Run(ctx)
	})
	if keys != nil {
		group.Go(func() error {
			ticker := time.NewTicker(opts.checkEvery)
			defer ticker.Stop()
			for {
				if _, err := purgeKeys(ctx, keys, opts.idempotencyRetention, logger); err != nil {
					logger.Warn("idempotency purge failed", "err", err)
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run maintainer: %w", err)
	}

	return nil
}

func purgeKeys(ctx context.Context, keys *idempotency.SQLStore, retention time.Duration, logger *logging.Logger) (int64, error) {
	deleted, err := keys.PurgeOlderThan(ctx, retention)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency keys: %w", err)
	}
	if deleted > 0 {
		logger.Info("idempotency keys purged", "table", keys.Table(), "deleted", deleted)
	}

	return deleted, nil
}
