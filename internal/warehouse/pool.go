package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "github.com/snowflakedb/gosnowflake"
)

const (
	DriverSnowflake = "snowflake"
	DriverDuckDB    = "duckdb"
	DriverPostgres  = "postgres"
	DriverMySQL     = "mysql"
)

type Config struct {
	Driver          string
	DSN             string
	Snowflake       SnowflakeConfig
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// Pool owns the warehouse *sql.DB. Each conversation checks out one dedicated
// connection and returns it with Conn.Close.
type Pool struct {
	db     *sql.DB
	driver string
}

func Open(ctx context.Context, cfg Config) (*Pool, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	driverName, dsn, err := resolveDriver(driver, cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s warehouse: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s warehouse: %w", driver, err)
	}

	return &Pool{db: db, driver: driver}, nil
}

// NewPool wraps an already opened database.
func NewPool(db *sql.DB, driver string) *Pool {
	return &Pool{db: db, driver: driver}
}

func resolveDriver(driver string, cfg Config) (string, string, error) {
	switch driver {
	case DriverSnowflake:
		dsn := strings.TrimSpace(cfg.DSN)
		if dsn == "" {
			built, err := cfg.Snowflake.DSN()
			if err != nil {
				return "", "", err
			}
			dsn = built
		}
		return "snowflake", dsn, nil
	case DriverDuckDB:
		return "duckdb", strings.TrimSpace(cfg.DSN), nil
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return "", "", fmt.Errorf("postgres warehouse dsn is required")
		}
		return "pgx", strings.TrimSpace(cfg.DSN), nil
	case DriverMySQL:
		if strings.TrimSpace(cfg.DSN) == "" {
			return "", "", fmt.Errorf("mysql warehouse dsn is required")
		}
		return "mysql", strings.TrimSpace(cfg.DSN), nil
	default:
		return "", "", fmt.Errorf("unsupported warehouse driver %q", driver)
	}
}

func (p *Pool) Driver() string {
	return p.driver
}

// Checkout reserves a dedicated connection. Callers must Close it.
func (p *Pool) Checkout(ctx context.Context) (*sql.Conn, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout warehouse connection: %w", err)
	}
	return conn, nil
}

func (p *Pool) HealthCheck(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse: %w", err)
	}
	return nil
}

// QueryContext runs a statement on any pooled connection. Used for metadata lookups that
// are not part of a conversation.
func (p *Pool) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return p.db.QueryContext(ctx, query, args...)
}

func (p *Pool) Stats() sql.DBStats {
	return p.db.Stats()
}

func (p *Pool) Close() error {
	return p.db.Close()
}
