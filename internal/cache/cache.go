// Package cache keeps recently processed posts so a later run over the same
// feed reuses them instead of opening their comments again.
package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"fbscrape/pkg/types"
)

// PostCache is a size-bounded LRU with per-entry expiry. It is safe for
// concurrent use.
type PostCache struct {
	lru    *expirable.LRU[string, types.Post]
	hits   atomic.Int64
	misses atomic.Int64
}

type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

// New sizes the cache from the scraper settings: half of cacheSize
// entries, kept for twice cacheTTL.
func New(cacheSize int, cacheTTL time.Duration) *PostCache {
	size := cacheSize / 2
	if size < 1 {
		size = 1
	}
	return &PostCache{lru: expirable.NewLRU[string, types.Post](size, nil, 2*cacheTTL)}
}

func (c *PostCache) Get(key string) (types.Post, bool) {
	p, ok := c.lru.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return p, ok
}

// Contains checks for key without touching the hit counters or recency.
func (c *PostCache) Contains(key string) bool {
	return c.lru.Contains(key)
}

func (c *PostCache) Put(p types.Post) {
	if key := p.Key(); key != "" {
		c.lru.Add(key, p)
	}
}

func (c *PostCache) Len() int {
	return c.lru.Len()
}

func (c *PostCache) Stats() Stats {
	s := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.lru.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
