package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheMetrics interface {
	RecordCacheOperation(hit bool, duration time.Duration)
	ObserveCacheWrite(duration time.Duration)
}

// HistoryCache serves applet history trees from the cache. Snapshots never change once written,
// so entries are only dropped on purge or expiry.
type HistoryCache struct {
	history historyTreeReader
	repo    CacheRepository
	metrics cacheMetrics
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewHistoryCache wraps history with a read-through cache.
func NewHistoryCache(history historyTreeReader, repo CacheRepository, metrics cacheMetrics, ttl time.Duration, logger *zap.Logger, enabled bool) *HistoryCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryCache{history: history, repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (c *HistoryCache) Enabled() bool {
	return c != nil && c.enabled && c.repo != nil
}

// GetTree returns the snapshot at idVersion. Cache failures fall back to the history store.
func (c *HistoryCache) GetTree(ctx context.Context, idVersion string) (*models.AppletHistoryTree, error) {
	if !c.Enabled() {
		return c.history.GetTree(ctx, idVersion)
	}
	key := historyCacheKey(idVersion)

	start := time.Now()
	var cached models.AppletHistoryTree
	err := c.repo.Get(ctx, key, &cached)
	hit := err == nil
	if c.metrics != nil {
		c.metrics.RecordCacheOperation(hit, time.Since(start))
	}
	if hit {
		return &cached, nil
	}
	if !errors.Is(err, appErrors.ErrCacheMiss) {
		c.logger.Warn("history cache get failed", zap.String("key", key), zap.Error(err))
	}

	tree, err := c.history.GetTree(ctx, idVersion)
	if err != nil {
		return nil, err
	}
	start = time.Now()
	if err := c.repo.Set(ctx, key, tree, c.ttl); err != nil {
		c.logger.Warn("history cache set failed", zap.String("key", key), zap.Error(err))
	}
	if c.metrics != nil {
		c.metrics.ObserveCacheWrite(time.Since(start))
	}
	return tree, nil
}

// Invalidate drops every cached version of the applet.
func (c *HistoryCache) Invalidate(ctx context.Context, appletID string) error {
	if !c.Enabled() {
		return nil
	}
	pattern := "history:" + appletID + "_*"
	if err := c.repo.DeleteByPattern(ctx, pattern); err != nil {
		c.logger.Warn("history cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		return err
	}
	return nil
}

func historyCacheKey(idVersion string) string {
	return "history:" + idVersion
}
