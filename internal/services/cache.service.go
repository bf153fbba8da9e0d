package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"pantau/internal/models"
)

// LatestCache holds the latest_data snapshot shared by all subscribers for a
// short TTL.
type LatestCache struct {
	mu         sync.RWMutex
	value      models.LatestData
	fetchedAt  time.Time
	valid      bool
	generation uint64
	ttl        time.Duration
	group      singleflight.Group
	now        func() time.Time
}

// NewLatestCache creates a cache. A non-positive ttl disables caching.
func NewLatestCache(ttl time.Duration) *LatestCache {
	return &LatestCache{ttl: ttl, now: time.Now}
}

func (c *LatestCache) isValid() bool {
	return c.valid && c.now().Sub(c.fetchedAt) < c.ttl
}

// Get returns the cached snapshot if fresh, otherwise loads it once for all
// concurrent callers.
func (c *LatestCache) Get(ctx context.Context, load func(context.Context) (models.LatestData, error)) (models.LatestData, error) {
	if c == nil || c.ttl <= 0 {
		return load(ctx)
	}

	c.mu.RLock()
	if c.isValid() {
		defer c.mu.RUnlock()
		return c.value, nil
	}
	gen := c.generation
	c.mu.RUnlock()

	// The shared load outlives any single caller's cancellation; callers stop
	// waiting on their own ctx.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan("latest", func() (any, error) {
		data, err := load(shared)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.generation == gen {
			c.value = data
			c.fetchedAt = c.now()
			c.valid = true
		}
		c.mu.Unlock()
		return data, nil
	})

	select {
	case <-ctx.Done():
		return models.LatestData{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return models.LatestData{}, res.Err
		}
		return res.Val.(models.LatestData), nil
	}
}

// Invalidate drops the cached snapshot; the next Get reloads.
func (c *LatestCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.valid = false
	c.generation++
	c.mu.Unlock()
	c.group.Forget("latest")
}
