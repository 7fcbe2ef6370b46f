package redis

import (
	"context"
	"fmt"
	"time"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/storage"
)

const (
	pricePrefix     = "price:"
	graduatedPrefix = "graduated:"
)

// SnapshotCache implements storage.SnapshotCache on Redis, giving every
// process on the same risk budget a shared second cache tier.
type SnapshotCache struct {
	client *Client
}

// NewSnapshotCache creates a Redis-backed snapshot cache.
func NewSnapshotCache(client *Client) *SnapshotCache {
	return &SnapshotCache{client: client}
}

// Get retrieves a cached snapshot. Returns ErrNotFound on miss or expiry.
func (c *SnapshotCache) Get(ctx context.Context, mint string) (*domain.PriceSnapshot, error) {
	data, err := c.client.Get(ctx, pricePrefix+mint).Bytes()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get cached price: %w", err)
	}
	return decodeSnapshot(data)
}

// Set stores a snapshot with the given TTL.
func (c *SnapshotCache) Set(ctx context.Context, snap *domain.PriceSnapshot, ttl time.Duration) error {
	if snap == nil || snap.Mint == "" {
		return storage.ErrInvalidInput
	}

	data, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, pricePrefix+snap.Mint, data, ttl).Err(); err != nil {
		return fmt.Errorf("set cached price: %w", err)
	}
	return nil
}

// MarkGraduated flags a mint as migrated off the bonding curve.
func (c *SnapshotCache) MarkGraduated(ctx context.Context, mint string, ttl time.Duration) error {
	if mint == "" {
		return storage.ErrInvalidInput
	}
	if err := c.client.Set(ctx, graduatedPrefix+mint, "1", ttl).Err(); err != nil {
		return fmt.Errorf("mark graduated: %w", err)
	}
	return nil
}

// IsGraduated reports whether a mint is flagged as graduated.
func (c *SnapshotCache) IsGraduated(ctx context.Context, mint string) (bool, error) {
	err := c.client.Get(ctx, graduatedPrefix+mint).Err()
	if err != nil {
		if isNilError(err) {
			return false, nil
		}
		return false, fmt.Errorf("check graduated: %w", err)
	}
	return true, nil
}

var _ storage.SnapshotCache = (*SnapshotCache)(nil)
