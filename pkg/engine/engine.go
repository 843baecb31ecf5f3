// Package engine wraps database/sql connection pools for the SQL connectors.
//
// An Engine pairs a *sql.DB with the ent dialect used to build statements for
// it. Engines are opened from config.EngineConfig and handed to connectors by
// name through Services.
package engine

import (
	"context"
	"database/sql"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"go.uber.org/zap"

	// database/sql drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/nebula-sql/pkg/config"
	"github.com/ajitpratap0/nebula-sql/pkg/logger"
	"github.com/ajitpratap0/nebula-sql/pkg/nebulaerrors"
)

// Driver names accepted in config.EngineConfig.Driver.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Querier is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Engine is a named connection pool with a known SQL dialect.
type Engine struct {
	name    string
	driver  string
	dialect string
	db      *sql.DB
	logger  *zap.Logger
}

// Open opens an engine described by cfg. The pool is verified with a ping
// bounded by timeout; zero disables the bound.
func Open(ctx context.Context, name string, cfg config.EngineConfig, timeout time.Duration) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConfig, "invalid engine configuration").
			WithDetail("engine", name)
	}

	dsn, err := DataSourceName(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.With(zap.String("engine", name), zap.String("driver", cfg.Driver))
	log.Info("Creating database engine",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	db, err := sql.Open(driverName(cfg.Driver), dsn)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to open database").
			WithDetail("engine", name)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "failed to connect to database").
			WithDetail("engine", name)
	}

	e := New(name, cfg.Driver, db)
	e.logger = log
	return e, nil
}

// New wraps an already opened pool. driver is one of the Driver* constants.
func New(name, driver string, db *sql.DB) *Engine {
	return &Engine{
		name:    name,
		driver:  driver,
		dialect: dialectOf(driver),
		db:      db,
		logger:  logger.With(zap.String("engine", name)),
	}
}

// Name returns the service name of the engine.
func (e *Engine) Name() string { return e.name }

// Driver returns the configured driver name.
func (e *Engine) Driver() string { return e.driver }

// Dialect returns the ent dialect name.
func (e *Engine) Dialect() string { return e.dialect }

// DB returns the underlying pool.
func (e *Engine) DB() *sql.DB { return e.db }

// Builder returns a statement builder for the engine's dialect.
func (e *Engine) Builder() *entsql.DialectBuilder {
	return entsql.Dialect(e.dialect)
}

// Conn takes a dedicated connection out of the pool. The caller owns it
// until Close.
func (e *Engine) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "could not acquire connection").
			WithDetail("engine", e.name)
	}
	return conn, nil
}

// Ping verifies the pool can reach the database.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.db.PingContext(ctx); err != nil {
		return nebulaerrors.Wrap(err, nebulaerrors.ErrorTypeConnection, "ping failed").
			WithDetail("engine", e.name)
	}
	return nil
}

// Close closes the pool.
func (e *Engine) Close() error {
	e.logger.Debug("closing database engine")
	return e.db.Close()
}

func driverName(driver string) string {
	switch driver {
	case DriverPostgres:
		return "pgx"
	case DriverSQLite:
		return "sqlite"
	default:
		return driver
	}
}

func dialectOf(driver string) string {
	switch driver {
	case DriverPostgres:
		return dialect.Postgres
	case DriverSQLite:
		return dialect.SQLite
	default:
		return dialect.MySQL
	}
}
