package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/storage"
)

const (
	keyOpenSet      = "positions:open"
	positionPrefix  = "position:"
	ledgerPrefix    = "trades:"
	maxCloseRetries = 5
)

// PositionStore implements storage.PositionStore on Redis. Per-mint
// atomicity for Close and UpdateMaxPrice comes from WATCH-based optimistic
// transactions on the position key: concurrent closers race on the same
// key and only the first commit succeeds.
//
// Keys: position:<mint> holds the open record, positions:open is the open
// index, trades:<day> is the daily ledger list.
type PositionStore struct {
	client *Client

	// positionTTL is a safety expiry on open records so a stuck position
	// cannot grow the keyspace forever. Zero disables it.
	positionTTL time.Duration

	// ledgerRetention is the expiry refreshed on every ledger append.
	ledgerRetention time.Duration

	now func() time.Time
}

// PositionStoreOption configures PositionStore.
type PositionStoreOption func(*PositionStore)

// WithPositionTTL sets the safety expiry on open position records.
func WithPositionTTL(ttl time.Duration) PositionStoreOption {
	return func(s *PositionStore) {
		s.positionTTL = ttl
	}
}

// WithLedgerRetention sets how long daily ledger lists are kept.
func WithLedgerRetention(d time.Duration) PositionStoreOption {
	return func(s *PositionStore) {
		s.ledgerRetention = d
	}
}

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) PositionStoreOption {
	return func(s *PositionStore) {
		s.now = now
	}
}

// NewPositionStore creates a Redis-backed position store.
func NewPositionStore(client *Client, opts ...PositionStoreOption) *PositionStore {
	s := &PositionStore{
		client:          client,
		positionTTL:     time.Hour,
		ledgerRetention: 14 * 24 * time.Hour,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func positionKey(mint string) string {
	return positionPrefix + mint
}

func ledgerKey(day string) string {
	return ledgerPrefix + day
}

// Open persists a new open position. SetNX on the position key makes the
// duplicate check and the write one atomic step.
func (s *PositionStore) Open(ctx context.Context, p *domain.Position) error {
	if p == nil || p.Mint == "" {
		return storage.ErrInvalidInput
	}

	cp := *p
	cp.Status = domain.PositionOpen
	if !cp.MaxPriceSeen.IsPositive() {
		cp.MaxPriceSeen = cp.EntryPrice
	}

	data, err := encodePosition(&cp)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}

	ok, err := s.client.SetNX(ctx, positionKey(p.Mint), data, s.positionTTL).Result()
	if err != nil {
		return fmt.Errorf("open position: %w", err)
	}
	if !ok {
		return storage.ErrDuplicatePosition
	}

	if err := s.client.SAdd(ctx, keyOpenSet, p.Mint).Err(); err != nil {
		return fmt.Errorf("add to open index: %w", err)
	}
	return nil
}

// GetOpen retrieves the open position for a mint.
func (s *PositionStore) GetOpen(ctx context.Context, mint string) (*domain.Position, error) {
	data, err := s.client.Get(ctx, positionKey(mint)).Bytes()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}

	p, err := decodePosition(data)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PositionOpen {
		return nil, storage.ErrNotFound
	}
	return p, nil
}

// UpdateMaxPrice raises MaxPriceSeen if observed is higher. Runs as an
// optimistic transaction so it cannot clobber a concurrent Close: if the
// key changes mid-flight the whole attempt is retried, and a deleted key
// makes it a no-op.
func (s *PositionStore) UpdateMaxPrice(ctx context.Context, mint string, observed decimal.Decimal) error {
	key := positionKey(mint)

	txn := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if isNilError(err) {
				return nil
			}
			return err
		}

		p, err := decodePosition(data)
		if err != nil {
			return err
		}
		if p.Status != domain.PositionOpen || !observed.GreaterThan(p.MaxPriceSeen) {
			return nil
		}
		p.MaxPriceSeen = observed

		updated, err := encodePosition(p)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, updated, goredis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxCloseRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("update max price: %w", err)
	}
	// Lost every race to a writer that was changing the same key. The next
	// tick will observe the price again.
	return nil
}

// Close transitions the open position to closed, removes it from the open
// index, and appends one ledger entry, all in a single transaction guarded
// by WATCH on the position key.
func (s *PositionStore) Close(ctx context.Context, req storage.CloseRequest) (*domain.Position, error) {
	if req.Mint == "" {
		return nil, storage.ErrInvalidInput
	}

	key := positionKey(req.Mint)
	var closed *domain.Position

	txn := func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if isNilError(err) {
				return storage.ErrNotFound
			}
			return err
		}

		p, err := decodePosition(data)
		if err != nil {
			return err
		}
		if p.Status != domain.PositionOpen {
			return storage.ErrNotFound
		}

		p.ApplyClose(req.ExitPrice, req.SolReceived, req.Reason, req.TxRef, s.now())
		entry := p.LedgerEntry()
		entryData, err := encodeLedgerEntry(entry)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, keyOpenSet, req.Mint)
			pipe.RPush(ctx, ledgerKey(entry.Day), entryData)
			if s.ledgerRetention > 0 {
				pipe.Expire(ctx, ledgerKey(entry.Day), s.ledgerRetention)
			}
			return nil
		})
		if err != nil {
			return err
		}

		closed = p
		return nil
	}

	for i := 0; i < maxCloseRetries; i++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return closed, nil
		}
		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("close position: %w", err)
	}
	return nil, fmt.Errorf("close position %s: transaction contention", req.Mint)
}

// ListOpen returns all open positions. Index members whose record expired
// or fails to decode are pruned from the index and skipped.
func (s *PositionStore) ListOpen(ctx context.Context) ([]*domain.Position, error) {
	mints, err := s.client.SMembers(ctx, keyOpenSet).Result()
	if err != nil {
		return nil, fmt.Errorf("read open index: %w", err)
	}

	var result []*domain.Position
	for _, mint := range mints {
		data, err := s.client.Get(ctx, positionKey(mint)).Bytes()
		if err != nil {
			if isNilError(err) {
				// Record expired out from under the index.
				s.client.SRem(ctx, keyOpenSet, mint)
				continue
			}
			return nil, fmt.Errorf("get position %s: %w", mint, err)
		}

		p, err := decodePosition(data)
		if err != nil || p.Mint == "" || !p.EntryPrice.IsPositive() {
			continue
		}
		if p.Status != domain.PositionOpen {
			continue
		}
		result = append(result, p)
	}
	return result, nil
}

// CountOpen returns open position counts per slot category.
func (s *PositionStore) CountOpen(ctx context.Context) (reserved, normal int, err error) {
	positions, err := s.ListOpen(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, p := range positions {
		if p.Category == domain.CategoryReserved {
			reserved++
		} else {
			normal++
		}
	}
	return reserved, normal, nil
}

// DailyPnL sums realized PnL over the day's ledger.
func (s *PositionStore) DailyPnL(ctx context.Context, day string) (decimal.Decimal, error) {
	entries, err := s.LedgerEntries(ctx, day)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.PnLSol)
	}
	return total, nil
}

// DailyStats aggregates the day's ledger.
func (s *PositionStore) DailyStats(ctx context.Context, day string) (*domain.DailyStats, error) {
	entries, err := s.LedgerEntries(ctx, day)
	if err != nil {
		return nil, err
	}
	return domain.ComputeDailyStats(day, entries), nil
}

// LedgerEntries returns the raw ledger for a day, oldest first. Entries
// that fail to decode are skipped.
func (s *PositionStore) LedgerEntries(ctx context.Context, day string) ([]*domain.TradeLedgerEntry, error) {
	raw, err := s.client.LRange(ctx, ledgerKey(day), 0, -1).Result()
	if err != nil {
		if isNilError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger %s: %w", day, err)
	}

	result := make([]*domain.TradeLedgerEntry, 0, len(raw))
	for _, item := range raw {
		e, err := decodeLedgerEntry([]byte(item))
		if err != nil {
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

var _ storage.PositionStore = (*PositionStore)(nil)
