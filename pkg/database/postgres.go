// Package database owns the catalog's PostgreSQL connection pool and schema
// migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool tuning defaults. Extraction commits are bursty but short-lived, so
// connections recycle on the hour and idle ones are trimmed aggressively.
const (
	defaultMaxConns    = int32(25)
	connMaxLifetime    = time.Hour
	connMaxIdleTime    = 30 * time.Minute
	healthCheckPeriod  = time.Minute
	startupPingTimeout = 10 * time.Second
)

// DB wraps the catalog's pgxpool connection pool.
type DB struct {
	*pgxpool.Pool
}

// Config holds catalog database connection settings.
type Config struct {
	URL            string
	MaxConnections int32
}

// NewConnection opens the catalog pool and verifies it with a bounded ping.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConnections
	if poolConfig.MaxConns <= 0 {
		poolConfig.MaxConns = defaultMaxConns
	}
	poolConfig.MaxConnLifetime = connMaxLifetime
	poolConfig.MaxConnIdleTime = connMaxIdleTime
	poolConfig.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping catalog database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}
