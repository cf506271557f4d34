package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PoolConfig carries the settings needed to open the connection pool.
type PoolConfig struct {
	DSN             string
	Schema          string // search_path for every connection; empty keeps the server default
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

func NewPool(ctx context.Context, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(pc.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if err := applySchema(cfg, pc.Schema); err != nil {
		return nil, err
	}
	cfg.MaxConns = pc.MaxConns
	cfg.MinConns = pc.MinConns
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// applySchema points unqualified table names at schema, the same schema the
// migrator creates tables in.
func applySchema(cfg *pgxpool.Config, schema string) error {
	if schema == "" {
		return nil
	}
	qs, err := quoteSchema(schema)
	if err != nil {
		return err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = qs
	return nil
}

// Connect calls NewPool up to attempts times, sleeping backoff between
// failures. It returns the last error once the attempts are used up or ctx is
// done; the caller never receives a nil pool with a nil error.
func Connect(ctx context.Context, pc PoolConfig, attempts int, backoff time.Duration, logger zerolog.Logger) (*pgxpool.Pool, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		pool, err := NewPool(ctx, pc)
		if err == nil {
			return pool, nil
		}
		lastErr = err

		if i == attempts {
			break
		}
		logger.Warn().Err(err).
			Int("attempt", i).
			Int("max_attempts", attempts).
			Dur("retry_in", backoff).
			Msg("database not reachable, retrying")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect to database: %w", ctx.Err())
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("connect to database after %d attempt(s): %w", attempts, lastErr)
}
