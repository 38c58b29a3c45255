package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/applets-core/internal/models"
	appErrors "github.com/noah-isme/applets-core/pkg/errors"
)

type memoryCache struct {
	values map[string][]byte
	getErr error
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	for key := range m.values {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.values, key)
		}
	}
	return nil
}

type countingHistory struct {
	trees map[string]*models.AppletHistoryTree
	calls int
}

func (h *countingHistory) GetTree(ctx context.Context, idVersion string) (*models.AppletHistoryTree, error) {
	h.calls++
	tree, ok := h.trees[idVersion]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "applet history not found")
	}
	return tree, nil
}

type recordingCacheMetrics struct {
	hits, misses, writes int
}

func (m *recordingCacheMetrics) RecordCacheOperation(hit bool, duration time.Duration) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *recordingCacheMetrics) ObserveCacheWrite(duration time.Duration) { m.writes++ }

func historyFixture() *countingHistory {
	tree := &models.AppletHistoryTree{}
	tree.IDVersion = "applet-1_1.0.0"
	tree.DisplayName = "Sleep Diary"
	return &countingHistory{trees: map[string]*models.AppletHistoryTree{"applet-1_1.0.0": tree}}
}

func TestHistoryCacheReadThrough(t *testing.T) {
	history := historyFixture()
	cache := &memoryCache{values: map[string][]byte{}}
	metrics := &recordingCacheMetrics{}
	c := NewHistoryCache(history, cache, metrics, time.Hour, nil, true)

	first, err := c.GetTree(context.Background(), "applet-1_1.0.0")
	require.NoError(t, err)
	second, err := c.GetTree(context.Background(), "applet-1_1.0.0")
	require.NoError(t, err)

	assert.Equal(t, "Sleep Diary", first.DisplayName)
	assert.Equal(t, first.DisplayName, second.DisplayName)
	assert.Equal(t, 1, history.calls)
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
	assert.Equal(t, 1, metrics.writes)

	require.NoError(t, c.Invalidate(context.Background(), "applet-1"))
	assert.Empty(t, cache.values)
}

func TestHistoryCacheFallsBackOnCacheFailure(t *testing.T) {
	history := historyFixture()
	c := NewHistoryCache(history, &memoryCache{values: map[string][]byte{}, getErr: errors.New("redis down")}, nil, time.Hour, nil, true)

	tree, err := c.GetTree(context.Background(), "applet-1_1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "Sleep Diary", tree.DisplayName)
}

func TestHistoryCacheDisabledAndMissing(t *testing.T) {
	history := historyFixture()
	cache := &memoryCache{values: map[string][]byte{}}
	c := NewHistoryCache(history, cache, nil, time.Hour, nil, false)

	_, err := c.GetTree(context.Background(), "applet-1_1.0.0")
	require.NoError(t, err)
	assert.Empty(t, cache.values)

	c = NewHistoryCache(history, cache, nil, time.Hour, nil, true)
	_, err = c.GetTree(context.Background(), "applet-1_2.0.0")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Empty(t, cache.values)
}
