package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/MrEthical07/authcore"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFiles embed.FS

// Config holds connection settings for [Open].
type Config struct {
	// Dialect is "sqlite" or "postgres".
	Dialect string
	// DSN is a modernc.org/sqlite data source name or a PostgreSQL connection string.
	DSN string

	// MaxConns bounds the PostgreSQL pool (default 25). SQLite always uses one connection.
	MaxConns int32
	// MinConns is the idle PostgreSQL connection floor (default 2).
	MinConns int32
	// MaxConnLifetime recycles PostgreSQL connections (default 5 minutes).
	MaxConnLifetime time.Duration

	// MigrateOnStart applies the embedded migrations before Open returns.
	MigrateOnStart bool
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
}

// Store implements authcore.CredentialStore over database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
	pool    *pgxpool.Pool
}

var _ authcore.CredentialStore = (*Store)(nil)

// New wraps an open database. The caller keeps ownership of db.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Open connects according to cfg. PostgreSQL connections go through a pgx pool.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	dialect, err := ParseDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" {
		return nil, errors.New("sqlstore: DSN is required")
	}

	var s *Store
	switch dialect {
	case Postgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("parsing DSN: %w", err)
		}
		poolCfg.MaxConns = cfg.MaxConns
		poolCfg.MinConns = cfg.MinConns
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("creating connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		s = &Store{db: stdlib.OpenDBFromPool(pool), dialect: Postgres, pool: pool}
	default:
		db, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		// One connection keeps :memory: databases whole and serializes writers.
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		s = &Store{db: db, dialect: SQLite}
	}

	if cfg.MigrateOnStart {
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

// Migrate applies pending embedded migrations for the store's dialect.
func (s *Store) Migrate(ctx context.Context) error {
	dir, gooseDialect := "migrations/sqlite", goose.DialectSQLite3
	if s.dialect == Postgres {
		dir, gooseDialect = "migrations/postgres", goose.DialectPostgres
	}

	fsys, err := fs.Sub(migrationFiles, dir)
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(gooseDialect, s.db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect reports the SQL dialect in use.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Close releases the database handle and, for PostgreSQL, the pool.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

func (s *Store) q(query string) string {
	return s.dialect.rebind(query)
}

func (s *Store) withTx(ctx context.Context, fn func(ctx context.Context, tx DBTX) error) error {
	return WithTx(ctx, s.db, nil, fn)
}
