package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/pdftables/internal/common"
)

// DB is the run-history database: Postgres through a pgx pool when a DSN is
// configured, otherwise an embedded SQLite file.
type DB struct {
	drv     *entsql.Driver
	pool    *pgxpool.Pool
	dialect string
	logger  *slog.Logger
}

// Open connects to the configured backend. Callers run Migrate before use.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if isPostgresDSN(cfg.DSN) {
		return openPostgres(ctx, cfg, logger)
	}
	return openSQLite(ctx, cfg.SQLitePath, logger)
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func openPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	logger.Info("db.connect", "backend", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("db.connect_failed", "error", err)
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "pdftables"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("db.connect_failed", "error", err)
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	// Wrap pool as *sql.DB for Ent
	db := stdlib.OpenDBFromPool(pool)
	return &DB{
		drv:     entsql.OpenDB(dialect.Postgres, db),
		pool:    pool,
		dialect: dialect.Postgres,
		logger:  logger,
	}, nil
}

func openSQLite(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if path == "" {
		path = "pdftables.db"
	}
	logger.Info("db.connect", "backend", "sqlite", "path", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps SQLite free of "database is locked" and lets ":memory:"
	// databases survive across calls.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &DB{
		drv:     entsql.OpenDB(dialect.SQLite, db),
		dialect: dialect.SQLite,
		logger:  logger,
	}, nil
}

// Dialect is the ent dialect name of the backend.
func (d *DB) Dialect() string { return d.dialect }

// Close closes the database connections gracefully
func (d *DB) Close() {
	d.logger.Info("db.close")
	if err := d.drv.Close(); err != nil {
		d.logger.Error("db.close_failed", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// HealthCheck pings the backend.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := d.drv.DB().PingContext(ctx); err != nil {
		d.logger.Error("db.ping_failed", "error", err)
		return common.NewAppError(common.CodeStorage, "database ping", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	d.logger.Debug("db.ping_ok")
	return nil
}

type columnDef struct {
	name string
	def  string
}

var runColumns = []columnDef{
	{"id", "VARCHAR(36) NOT NULL"},
	{"document_id", "TEXT NOT NULL"},
	{"source_path", "TEXT NOT NULL"},
	{"columns", "TEXT NOT NULL"},
	{"status", "VARCHAR(16) NOT NULL"},
	{"output_path", "TEXT NOT NULL DEFAULT ''"},
	{"row_count", "INTEGER NOT NULL DEFAULT 0"},
	{"pages_total", "INTEGER NOT NULL DEFAULT 0"},
	{"pages_processed", "INTEGER NOT NULL DEFAULT 0"},
	{"pages_with_data", "INTEGER NOT NULL DEFAULT 0"},
	{"resumed", "BOOLEAN NOT NULL DEFAULT FALSE"},
	{"error_message", "TEXT NOT NULL DEFAULT ''"},
	{"started_at", "BIGINT NOT NULL"},
	{"finished_at", "BIGINT"},
}

// createRunsTable renders the run-history DDL with dialect quoting. SQLite
// gets a numeric boolean default.
func createRunsTable(dialectName string) string {
	return entsql.Dialect(dialectName).String(func(b *entsql.Builder) {
		b.WriteString("CREATE TABLE IF NOT EXISTS ").Ident(runsTable).Pad()
		b.Wrap(func(b *entsql.Builder) {
			for i, c := range runColumns {
				if i > 0 {
					b.Comma()
				}
				def := c.def
				if dialectName == dialect.SQLite {
					def = strings.Replace(def, "DEFAULT FALSE", "DEFAULT 0", 1)
				}
				b.Ident(c.name).Pad().WriteString(def)
			}
			b.Comma().WriteString("PRIMARY KEY ").Wrap(func(b *entsql.Builder) { b.Ident("id") })
		})
	})
}

// Migrate creates the run-history table when it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	if err := d.drv.Exec(ctx, createRunsTable(d.dialect), []any{}, nil); err != nil {
		return fmt.Errorf("create %s: %w", runsTable, err)
	}

	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_started_at_idx ON %s (started_at)", runsTable, runsTable)
	if err := d.drv.Exec(ctx, idx, []any{}, nil); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	d.logger.Info("db.migrate.ok", "table", runsTable)
	return nil
}
