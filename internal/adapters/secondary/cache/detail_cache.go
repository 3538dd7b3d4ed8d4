// Package cache holds in-process caches placed in front of secondary
// adapters.
package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/lorrc/pipeline-snapshots/internal/core/domain"
	"github.com/lorrc/pipeline-snapshots/internal/core/ports"
)

const (
	// DefaultDetailCacheSize is the number of ticket details kept when no size is configured.
	DefaultDetailCacheSize = 5000
	// DefaultDetailCacheTTL is how long a fetched detail stays fresh.
	DefaultDetailCacheTTL = 10 * time.Minute
)

// DetailCache is an expiring LRU of ticket details keyed by ticket id.
// It is safe for concurrent use.
type DetailCache struct {
	lru *expirable.LRU[int64, domain.DetailRecord]

	hits   atomic.Int64
	misses atomic.Int64
}

var _ ports.DetailCache = (*DetailCache)(nil)

// NewDetailCache creates a detail cache holding up to size entries for ttl.
func NewDetailCache(size int, ttl time.Duration) *DetailCache {
	if size <= 0 {
		size = DefaultDetailCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultDetailCacheTTL
	}
	return &DetailCache{lru: expirable.NewLRU[int64, domain.DetailRecord](size, nil, ttl)}
}

// GetMany splits ids into cached details and ids still to be fetched.
func (c *DetailCache) GetMany(ticketIDs []int64) (map[int64]domain.DetailRecord, []int64) {
	found := make(map[int64]domain.DetailRecord, len(ticketIDs))
	missing := make([]int64, 0)

	for _, id := range ticketIDs {
		if rec, ok := c.lru.Get(id); ok {
			found[id] = rec
			c.hits.Add(1)
			continue
		}
		missing = append(missing, id)
		c.misses.Add(1)
	}
	return found, missing
}

// PutMany stores fetched details.
func (c *DetailCache) PutMany(records []domain.DetailRecord) {
	for _, rec := range records {
		c.lru.Add(rec.ID, rec)
	}
}

// Invalidate drops cached details.
func (c *DetailCache) Invalidate(ticketIDs []int64) {
	for _, id := range ticketIDs {
		c.lru.Remove(id)
	}
}

// Len returns the number of cached entries, expired ones included until
// they are purged.
func (c *DetailCache) Len() int {
	return c.lru.Len()
}

// Stats returns the hit and miss counts since creation.
func (c *DetailCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
