package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	appshell "github.com/goliatone/go-appshell"
	"github.com/goliatone/go-appshell/adapters/gojob"
	"github.com/goliatone/go-appshell/adapters/gologger"
	"github.com/goliatone/go-appshell/analytics"
	appmigrations "github.com/goliatone/go-appshell/migrations"
	sqlstore "github.com/goliatone/go-appshell/store/sql"
	jobsql "github.com/goliatone/go-job/queue/adapters/postgres"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite3"

	flushQueueTable  = "appshell_jobs"
	flushJobAttempts = 3
)

type outboxDBConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c outboxDBConfig) GetDebug() bool                { return c.debug }
func (c outboxDBConfig) GetDriver() string             { return c.driver }
func (c outboxDBConfig) GetServer() string             { return c.dsn }
func (c outboxDBConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c outboxDBConfig) GetOtelIdentifier() string     { return "appshell-cli" }

func newFlushCommand(opts *rootOptions) *cobra.Command {
	dbConfig := outboxDBConfig{}
	var (
		batch   int
		migrate bool
		worker  bool
	)
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Redeliver pending analytics events from a SQL outbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.withTimeout(cmd.Context())
			defer cancel()

			client, err := openOutboxDB(ctx, dbConfig, migrate)
			if err != nil {
				return err
			}
			defer client.Close()

			store, err := sqlstore.NewOutboxStoreFromPersistence(client)
			if err != nil {
				return err
			}
			analyticsOptions := []analytics.Option{analytics.WithOutbox(store)}
			var jobs *jobsql.Adapter
			if worker {
				if jobs, err = openFlushQueue(ctx, client, dbConfig.driver); err != nil {
					return err
				}
				analyticsOptions = append(analyticsOptions, analytics.WithJobEnqueuer(gojob.NewEnqueuerAdapter(jobs)))
			}
			app, err := opts.bootstrap(ctx, appshell.InitOptions{AnalyticsOptions: analyticsOptions})
			if err != nil {
				return err
			}
			if app.Analytics == nil {
				return fmt.Errorf("analytics service is not the outbox backed implementation")
			}
			if worker {
				return runFlushJobs(ctx, cmd, app, jobs, batch)
			}
			delivered, err := app.Analytics.FlushBatch(ctx, batch)
			fmt.Fprintf(cmd.OutOrStdout(), "delivered %d events\n", delivered)
			return err
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&dbConfig.driver, "driver", driverSQLite, "database driver: sqlite3 or postgres")
	flags.StringVar(&dbConfig.dsn, "dsn", "file:appshell-outbox.db?cache=shared", "database connection string")
	flags.BoolVar(&dbConfig.debug, "debug-sql", false, "log SQL statements")
	flags.IntVar(&batch, "batch", 100, "maximum events to redeliver")
	flags.BoolVar(&migrate, "migrate", true, "apply outbox migrations before flushing")
	flags.BoolVar(&worker, "worker", false, "schedule the flush on the SQL job queue and drain it")
	return cmd
}

// openFlushQueue creates the go-job SQL queue next to the outbox tables.
func openFlushQueue(ctx context.Context, client *persistence.Client, driver string) (*jobsql.Adapter, error) {
	dialect := jobsql.DialectPostgres
	if strings.EqualFold(strings.TrimSpace(driver), driverSQLite) {
		dialect = jobsql.DialectSQLite
	}
	storage := jobsql.NewStorage(client.DB().DB,
		jobsql.WithDialect(dialect),
		jobsql.WithTableName(flushQueueTable),
		jobsql.WithDLQTableName(flushQueueTable+"_dlq"),
		jobsql.WithStatusTableName(flushQueueTable+"_status"),
	)
	if err := storage.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate job queue: %w", err)
	}
	return jobsql.NewAdapter(storage), nil
}

func runFlushJobs(ctx context.Context, cmd *cobra.Command, app *appshell.App, jobs *jobsql.Adapter, batch int) error {
	_, logger, _, jobLogger := gologger.ResolveForJob("appshell.flush", nil, app.Shell.Logger())
	if err := app.Analytics.ScheduleFlush(ctx, batch); err != nil {
		return err
	}
	dequeuer := gojob.NewDequeuerAdapter(jobs, gojob.RetryPolicy{
		MaxAttempts:     flushJobAttempts,
		MaxDelay:        time.Minute,
		DeadLetterOnMax: true,
	})
	processed, err := gojob.DrainFlushJobs(ctx, dequeuer, app.Analytics, gojob.LoggingHook{Logger: logger})
	if jobLogger != nil {
		jobLogger.Info("flush queue drained", "jobs", processed)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ran %d flush jobs\n", processed)
	return err
}

func openOutboxDB(ctx context.Context, cfg outboxDBConfig, migrate bool) (*persistence.Client, error) {
	cfg.driver = strings.ToLower(strings.TrimSpace(cfg.driver))
	var dialect schema.Dialect
	switch cfg.driver {
	case driverPostgres:
		dialect = pgdialect.New()
	case driverSQLite:
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.driver)
	}

	sqlDB, err := sql.Open(cfg.driver, cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.driver, err)
	}
	if cfg.driver == driverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if !migrate {
		return client, nil
	}

	if err := appmigrations.Register(ctx, func(_ context.Context, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, cfg.driver); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate outbox: %w", err)
	}
	return client, nil
}
