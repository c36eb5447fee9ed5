package realtime

import (
	"context"
	"sync"
	"time"
)

// Position is one courier position sample. Last write wins; no ordering
// is enforced beyond the courier-supplied timestamp.
type Position struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Timestamp time.Time `json:"timestamp"`
}

// Cache holds the latest position per courier. It is ephemeral
// process-wide state, never the system of record.
type Cache interface {
	Get(ctx context.Context, courierID uint) (Position, bool, error)
	Set(ctx context.Context, courierID uint, p Position) error
	Delete(ctx context.Context, courierID uint) error
	// All returns a snapshot of every cached sample, for the periodic
	// durable flush.
	All(ctx context.Context) (map[uint]Position, error)
}

// MemoryCache is the in-process implementation, used in tests and when
// no Redis is configured.
type MemoryCache struct {
	mu        sync.RWMutex
	positions map[uint]Position
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{positions: make(map[uint]Position)}
}

func (c *MemoryCache) Get(_ context.Context, courierID uint) (Position, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[courierID]
	return p, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, courierID uint, p Position) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[courierID] = p
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, courierID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.positions, courierID)
	return nil
}

func (c *MemoryCache) All(_ context.Context) (map[uint]Position, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[uint]Position, len(c.positions))
	for id, p := range c.positions {
		out[id] = p
	}
	return out, nil
}
