// Package cache keeps recent analysis runs in memory so repeated dashboard
// and section requests reuse one computed snapshot.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/pdq-signal-server/internal/domain"
	"github.com/pdq-signal-server/internal/service"
)

// Defaults used when the configuration leaves a field at zero
const (
	DefaultMaxItems = 8
	DefaultTTL      = 15 * time.Minute
)

// AnalysisCache is an expiring LRU of analysis runs keyed by source name
type AnalysisCache struct {
	lru *expirable.LRU[string, *service.Analysis]
}

// New creates a cache from cfg
func New(cfg domain.CacheConfig) *AnalysisCache {
	size := cfg.MaxItems
	if size <= 0 {
		size = DefaultMaxItems
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AnalysisCache{
		lru: expirable.NewLRU[string, *service.Analysis](size, nil, ttl),
	}
}

// Get returns the cached run for key
func (c *AnalysisCache) Get(key string) (*service.Analysis, bool) {
	return c.lru.Get(key)
}

// Put stores a run, replacing any previous run for key
func (c *AnalysisCache) Put(key string, a *service.Analysis) {
	c.lru.Add(key, a)
}

// Invalidate drops the run for key
func (c *AnalysisCache) Invalidate(key string) {
	c.lru.Remove(key)
}

// Len returns the number of cached runs
func (c *AnalysisCache) Len() int {
	return c.lru.Len()
}

// Purge drops every cached run
func (c *AnalysisCache) Purge() {
	c.lru.Purge()
}
