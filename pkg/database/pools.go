package database

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/applets-core/pkg/config"
)

// Opener opens a pool for a connection URI.
type Opener func(ctx context.Context, uri string, cfg config.DatabaseConfig) (*sqlx.DB, error)

// PoolCache keeps one pool per tenant database URI for the life of the process.
type PoolCache struct {
	cfg    config.DatabaseConfig
	open   Opener
	logger *zap.Logger

	mu    sync.Mutex
	pools map[string]*sqlx.DB
}

// NewPoolCache builds a cache that opens pools with open, or NewPostgres when nil.
func NewPoolCache(cfg config.DatabaseConfig, open Opener, logger *zap.Logger) *PoolCache {
	if open == nil {
		open = NewPostgres
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PoolCache{cfg: cfg, open: open, logger: logger, pools: make(map[string]*sqlx.DB)}
}

// Get returns the pool for uri, opening it on first use. The URI itself is never logged.
func (p *PoolCache) Get(ctx context.Context, uri string) (*sqlx.DB, error) {
	key := fingerprint(uri)

	p.mu.Lock()
	db, ok := p.pools[key]
	p.mu.Unlock()
	if ok {
		return db, nil
	}

	opened, err := p.open(ctx, uri, p.cfg)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.pools[key]; ok {
		_ = opened.Close()
		return existing, nil
	}
	p.pools[key] = opened
	p.logger.Info("tenant pool opened", zap.String("pool", key[:12]))
	return opened, nil
}

// Close closes every cached pool.
func (p *PoolCache) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, db := range p.pools {
		_ = db.Close()
		delete(p.pools, key)
	}
}

func fingerprint(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:])
}
