package database

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/applets-core/pkg/config"
)

// NewPostgres opens a PostgreSQL pool for url sized by the shared pool settings.
func NewPostgres(ctx context.Context, url string, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		return nil, err
	}

	if max := cfg.MaxOpenConns(); max > 0 {
		db.SetMaxOpenConns(max)
	}
	if cfg.PoolSize > 0 {
		db.SetMaxIdleConns(cfg.PoolSize)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	timeout := cfg.PoolTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
