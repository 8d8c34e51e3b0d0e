package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"pattern-trader/internal/domain"
	"pattern-trader/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse. The candles
// table is a MergeTree ordered by (symbol, interval, timestamp_ms);
// duplicates are tolerated, not rejected.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// Insert adds a single candle.
func (s *CandleStore) Insert(ctx context.Context, c *domain.Candle) error {
	return s.InsertBulk(ctx, []*domain.Candle{c})
}

// InsertBulk adds multiple candles in one batch.
func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			symbol, interval, timestamp_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			c.Symbol, c.Interval, uint64(c.Timestamp),
			c.Open, c.High, c.Low, c.Close, c.Volume,
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

// GetByTimeRange retrieves candles for a symbol and interval within
// [start, end] (inclusive), ordered by timestamp ASC.
func (s *CandleStore) GetByTimeRange(ctx context.Context, symbol, interval string, start, end int64) ([]*domain.Candle, error) {
	query := `
		SELECT symbol, interval, timestamp_ms, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND interval = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, interval, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetLatest retrieves the most recent limit candles for a symbol and
// interval, ordered by timestamp ASC.
func (s *CandleStore) GetLatest(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	query := `
		SELECT symbol, interval, timestamp_ms, open, high, low, close, volume
		FROM (
			SELECT symbol, interval, timestamp_ms, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND interval = ?
			ORDER BY timestamp_ms DESC
			LIMIT ?
		)
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, symbol, interval, uint32(limit))
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

func scanCandles(rows driver.Rows) ([]*domain.Candle, error) {
	var candles []*domain.Candle
	for rows.Next() {
		var c domain.Candle
		var ts uint64
		err := rows.Scan(
			&c.Symbol, &c.Interval, &ts,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Timestamp = int64(ts)
		candles = append(candles, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candles: %w", err)
	}
	return candles, nil
}
