package memory

import (
	"context"
	"sync"
	"time"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/storage"
)

// SnapshotCache is an in-memory implementation of storage.SnapshotCache,
// used when no shared cache backend is configured. Expired entries are
// dropped lazily on read.
type SnapshotCache struct {
	mu        sync.RWMutex
	snaps     map[string]cachedSnapshot
	graduated map[string]time.Time // mint -> expiry
	now       func() time.Time
}

type cachedSnapshot struct {
	snap      domain.PriceSnapshot
	expiresAt time.Time
}

// NewSnapshotCache creates a new in-memory snapshot cache.
func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		snaps:     make(map[string]cachedSnapshot),
		graduated: make(map[string]time.Time),
		now:       time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (c *SnapshotCache) WithClock(now func() time.Time) *SnapshotCache {
	c.now = now
	return c
}

// Get retrieves a cached snapshot. Returns ErrNotFound on miss or expiry.
func (c *SnapshotCache) Get(_ context.Context, mint string) (*domain.PriceSnapshot, error) {
	c.mu.RLock()
	entry, exists := c.snaps[mint]
	c.mu.RUnlock()

	if !exists {
		return nil, storage.ErrNotFound
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.snaps, mint)
		c.mu.Unlock()
		return nil, storage.ErrNotFound
	}

	snap := entry.snap
	return &snap, nil
}

// Set stores a snapshot with the given TTL.
func (c *SnapshotCache) Set(_ context.Context, snap *domain.PriceSnapshot, ttl time.Duration) error {
	if snap == nil || snap.Mint == "" {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.snaps[snap.Mint] = cachedSnapshot{
		snap:      *snap,
		expiresAt: c.now().Add(ttl),
	}
	return nil
}

// MarkGraduated flags a mint as migrated off the bonding curve.
func (c *SnapshotCache) MarkGraduated(_ context.Context, mint string, ttl time.Duration) error {
	if mint == "" {
		return storage.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.graduated[mint] = c.now().Add(ttl)
	return nil
}

// IsGraduated reports whether a mint is flagged as graduated.
func (c *SnapshotCache) IsGraduated(_ context.Context, mint string) (bool, error) {
	c.mu.RLock()
	expiry, exists := c.graduated[mint]
	c.mu.RUnlock()

	if !exists {
		return false, nil
	}
	if c.now().After(expiry) {
		c.mu.Lock()
		delete(c.graduated, mint)
		c.mu.Unlock()
		return false, nil
	}
	return true, nil
}

var _ storage.SnapshotCache = (*SnapshotCache)(nil)
