package embedcache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/postvec/internal/ai"
)

// MemoryCache keeps recent chunk embeddings in process. Ingest workers that
// embed the same chunk text at the same time share a single provider call.
type MemoryCache struct {
	next   ai.IEmbedder
	cache  *expirable.LRU[string, []float32]
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

// WrapMemoryCache returns e unchanged when size or ttl disable the cache.
func WrapMemoryCache(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &MemoryCache{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

func (m *MemoryCache) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key, _, _ := buildCacheKey(m.next.ModelName(), taskType, text)
	if cached, ok := m.cache.Get(key); ok {
		m.hits.Add(1)
		return cloneVector(cached), nil
	}
	m.misses.Add(1)
	v, err, shared := m.group.Do(key, func() (interface{}, error) {
		res, err := m.next.Embed(ctx, text, taskType)
		if err != nil {
			return nil, err
		}
		if len(res) > 0 {
			m.cache.Add(key, cloneVector(res))
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logutil.GetLogger(ctx).Debug("embedding call shared", zap.String("model", m.next.ModelName()))
	}
	return cloneVector(v.([]float32)), nil
}

func (m *MemoryCache) ModelName() string {
	return m.next.ModelName()
}

// Counts reports cache hits and misses since creation.
func (m *MemoryCache) Counts() (hits, misses int64) {
	return m.hits.Load(), m.misses.Load()
}

func cloneVector(values []float32) []float32 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float32, len(values))
	copy(out, values)
	return out
}
