package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/go-fulfillment/internal/config"
)

const connectAttempts = 5

// NewConnection opens the pool and waits for postgres to answer a ping,
// retrying with backoff while the server is still starting.
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	backoff := 200 * time.Millisecond
	for attempt := 1; ; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, nil
		}

		if attempt == connectAttempts {
			break
		}
		if err := sleepBackoff(ctx, backoff); err != nil {
			break
		}
		backoff *= 2
	}

	db.Close()
	return nil, fmt.Errorf("ping database: %w", err)
}
