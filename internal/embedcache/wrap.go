package embedcache

import (
	"time"

	"github.com/xxxsen/postvec/internal/ai"
	"github.com/xxxsen/postvec/internal/config"
)

// Wrap layers the in-memory cache over the database cache, as configured.
func Wrap(e ai.IEmbedder, cfg config.EmbedCacheConfig, store Store) ai.IEmbedder {
	if cfg.DB {
		e = WrapDBCacheToEmbedder(e, store)
	}
	return WrapMemoryCache(e, cfg.LRUSize, time.Duration(cfg.LRUTTLSeconds)*time.Second)
}
