package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// HealthChecker is what the database health endpoint reports on.
type HealthChecker interface {
	Ping(ctx context.Context) error
	PoolStats() *PoolStats
}

type poolHealth struct{ pool *pgxpool.Pool }

// NewPoolHealth adapts a pool to HealthChecker.
func NewPoolHealth(pool *pgxpool.Pool) HealthChecker {
	return poolHealth{pool: pool}
}

func (p poolHealth) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }
func (p poolHealth) PoolStats() *PoolStats          { return GetPoolStats(p.pool) }

// HealthHandler returns a handler for the database health check endpoint.
// The ping error is reported as a status only; driver details stay in the logs.
func HealthHandler(pool HealthChecker, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := pool.Ping(ctx)
		stats := pool.PoolStats()

		if err != nil {
			stats.Healthy = false
			logger.Error().Err(err).Msg("database health check failed")
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  "database_unreachable",
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}
