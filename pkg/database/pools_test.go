package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/applets-core/pkg/config"
)

func TestPoolCacheOpensOncePerURI(t *testing.T) {
	opened := 0
	open := func(ctx context.Context, uri string, cfg config.DatabaseConfig) (*sqlx.DB, error) {
		opened++
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		return sqlx.NewDb(db, "sqlmock"), nil
	}
	cache := NewPoolCache(config.DatabaseConfig{PoolSize: 2}, open, nil)
	defer cache.Close()

	first, err := cache.Get(context.Background(), "postgres://tenant-a")
	require.NoError(t, err)
	again, err := cache.Get(context.Background(), "postgres://tenant-a")
	require.NoError(t, err)
	other, err := cache.Get(context.Background(), "postgres://tenant-b")
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.NotSame(t, first, other)
	assert.Equal(t, 2, opened)
}

func TestPoolCachePropagatesOpenFailure(t *testing.T) {
	open := func(ctx context.Context, uri string, cfg config.DatabaseConfig) (*sqlx.DB, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	cache := NewPoolCache(config.DatabaseConfig{}, open, nil)

	_, err := cache.Get(context.Background(), "postgres://down")
	require.Error(t, err)
}
