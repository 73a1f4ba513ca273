package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"ldes-markets/internal/admm"
)

type cacheEntry struct {
	run       *Run
	trace     []admm.IterationRecord
	expiresAt time.Time
}

// RunCache provides in-memory storage for runs started by this process.
// Entries expire ttl after their last write. Runs are copied on the way in and out, so callers
// may keep mutating the record they saved.
type RunCache struct {
	mu    sync.RWMutex
	store map[string]*cacheEntry
	ttl   time.Duration
	now   func() time.Time

	stop chan struct{}
	once sync.Once
}

// NewRunCache starts a cache that sweeps expired entries every interval. Call Close to stop
// the sweeper.
func NewRunCache(ttl, interval time.Duration) *RunCache {
	c := &RunCache{
		store: make(map[string]*cacheEntry),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if interval > 0 {
		go c.cleanup(interval)
	}
	return c
}

func (c *RunCache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *RunCache) entry(id string) (*cacheEntry, bool) {
	e, ok := c.store[id]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e, true
}

func (c *RunCache) SaveRun(_ context.Context, r *Run) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.store[r.ID]
	if !ok {
		e = &cacheEntry{}
		c.store[r.ID] = e
	}
	cp := *r
	e.run = &cp
	e.expiresAt = c.now().Add(c.ttl)
	return nil
}

func (c *RunCache) LoadRun(_ context.Context, id string) (*Run, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e.run
	return &cp, nil
}

func (c *RunCache) SaveTrace(_ context.Context, id string, hist []admm.IterationRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entry(id)
	if !ok {
		return ErrNotFound
	}
	e.trace = append([]admm.IterationRecord(nil), hist...)
	return nil
}

func (c *RunCache) LoadTrace(_ context.Context, id string) ([]admm.IterationRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entry(id)
	if !ok {
		return nil, ErrNotFound
	}
	if e.trace == nil && e.run != nil {
		return e.run.Trace(), nil
	}
	return e.trace, nil
}

// List returns the live runs, newest first.
func (c *RunCache) List() []*Run {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	out := make([]*Run, 0, len(c.store))
	for _, e := range c.store {
		if !now.After(e.expiresAt) && e.run != nil {
			cp := *e.run
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Len counts entries including expired ones not yet swept.
func (c *RunCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *RunCache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for id, e := range c.store {
		if now.After(e.expiresAt) {
			delete(c.store, id)
		}
	}
}

// cleanup periodically removes expired entries
func (c *RunCache) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stop:
			return
		}
	}
}
