package matcher

import (
	"sync"
	"time"

	"github.com/example/carpool/internal/models"
)

// StatsCache is a tiny in-memory TTL cache for rating stats, keeping the
// ranking loop from hammering the reviews table once per candidate.
type StatsCache struct {
	mu    sync.RWMutex
	store map[string]statsEntry
	ttl   time.Duration
}

type statsEntry struct {
	v  models.RatingStats
	ts time.Time
}

func NewStatsCache(ttl time.Duration) *StatsCache {
	return &StatsCache{store: make(map[string]statsEntry), ttl: ttl}
}

// Get returns the cached stats and true when present and not expired.
func (c *StatsCache) Get(userID string) (models.RatingStats, bool) {
	c.mu.RLock()
	e, ok := c.store[userID]
	c.mu.RUnlock()
	if !ok {
		return models.RatingStats{}, false
	}
	if time.Since(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, userID)
		c.mu.Unlock()
		return models.RatingStats{}, false
	}
	return e.v, true
}

func (c *StatsCache) Set(userID string, v models.RatingStats) {
	c.mu.Lock()
	c.store[userID] = statsEntry{v: v, ts: time.Now()}
	c.mu.Unlock()
}
