package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pump-sniper-bot/internal/domain"
	"pump-sniper-bot/internal/storage"
)

// PriceHistoryStore implements storage.PriceHistoryStore using ClickHouse.
// Prices are stored as Float64: the history table feeds offline analysis,
// not money math, so float precision is acceptable here.
type PriceHistoryStore struct {
	conn *Conn
}

// NewPriceHistoryStore creates a new PriceHistoryStore.
func NewPriceHistoryStore(conn *Conn) *PriceHistoryStore {
	return &PriceHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceHistoryStore = (*PriceHistoryStore)(nil)

// InsertBulk appends snapshots. MergeTree does not enforce uniqueness and
// the history is append-only, so no duplicate checking is done.
func (s *PriceHistoryStore) InsertBulk(ctx context.Context, snaps []*domain.PriceSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_history (
			mint, fetched_at, price, token_reserves, sol_reserves,
			total_supply, graduated, anomalous, source
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snaps {
		err = batch.Append(
			snap.Mint, snap.FetchedAt,
			snap.Price.InexactFloat64(),
			snap.TokenReserves.InexactFloat64(),
			snap.SolReserves.InexactFloat64(),
			snap.TotalSupply.InexactFloat64(),
			boolToUInt8(snap.Graduated), boolToUInt8(snap.Anomalous),
			string(snap.Source),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByMint retrieves all snapshots for a mint, oldest first.
func (s *PriceHistoryStore) GetByMint(ctx context.Context, mint string) ([]*domain.PriceSnapshot, error) {
	query := `
		SELECT mint, fetched_at, price, token_reserves, sol_reserves,
		       total_supply, graduated, anomalous, source
		FROM price_history
		WHERE mint = ?
		ORDER BY fetched_at ASC
	`

	rows, err := s.conn.Query(ctx, query, mint)
	if err != nil {
		return nil, fmt.Errorf("query by mint: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// GetByTimeRange retrieves snapshots for a mint within [start, end].
func (s *PriceHistoryStore) GetByTimeRange(ctx context.Context, mint string, start, end time.Time) ([]*domain.PriceSnapshot, error) {
	query := `
		SELECT mint, fetched_at, price, token_reserves, sol_reserves,
		       total_supply, graduated, anomalous, source
		FROM price_history
		WHERE mint = ? AND fetched_at >= ? AND fetched_at <= ?
		ORDER BY fetched_at ASC
	`

	rows, err := s.conn.Query(ctx, query, mint, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// Rows interface for scanning
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanSnapshots scans multiple rows into snapshots.
func scanSnapshots(rows chRows) ([]*domain.PriceSnapshot, error) {
	var snaps []*domain.PriceSnapshot

	for rows.Next() {
		var s domain.PriceSnapshot
		var price, tokenReserves, solReserves, totalSupply float64
		var graduated, anomalous uint8
		var source string

		err := rows.Scan(
			&s.Mint, &s.FetchedAt, &price, &tokenReserves, &solReserves,
			&totalSupply, &graduated, &anomalous, &source,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price history row: %w", err)
		}

		s.Price = decimal.NewFromFloat(price)
		s.TokenReserves = decimal.NewFromFloat(tokenReserves)
		s.SolReserves = decimal.NewFromFloat(solReserves)
		s.TotalSupply = decimal.NewFromFloat(totalSupply)
		s.Graduated = graduated != 0
		s.Anomalous = anomalous != 0
		s.Source = domain.PriceSource(source)
		snaps = append(snaps, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history rows: %w", err)
	}

	return snaps, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
