package db

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is nil until InitPostgres connects. A nil Pool disables the price
// archive.
var Pool *pgxpool.Pool

var (
	parsePoolConfig = pgxpool.ParseConfig
	newPool         = pgxpool.NewWithConfig
	pingPool        = func(ctx context.Context, pool *pgxpool.Pool) error { return pool.Ping(ctx) }
)

// InitPostgres connects the shared pool. An empty dsn leaves Pool unset.
func InitPostgres(ctx context.Context, dsn string) error {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		log.Println("DATABASE_URL not set, price archive disabled")
		return nil
	}

	cfg, err := parsePoolConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pingPool(ctx, pool); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}

	Pool = pool
	log.Println("Connected to Postgres")
	return nil
}

// Close releases the shared pool.
func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}
