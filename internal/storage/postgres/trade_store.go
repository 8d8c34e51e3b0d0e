package postgres

import (
	"context"
	"fmt"

	"pattern-trader/internal/domain"
	"pattern-trader/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// Insert adds a closed trade. Returns ErrDuplicateKey if order_id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.TradeRecord) error {
	query := `
		INSERT INTO trades (
			order_id, symbol, side,
			entry_price, exit_price, size, pnl, commission,
			reason, opened_at, closed_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8,
			$9, $10, $11
		)
	`

	_, err := s.pool.Exec(ctx, query,
		t.OrderID, t.Symbol, string(t.Side),
		t.EntryPrice, t.ExitPrice, t.Size, t.PnL, t.Commission,
		t.Reason, t.OpenedAt, t.ClosedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetBySymbol retrieves all trades for a symbol, ordered by closed_at ASC.
func (s *TradeStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.TradeRecord, error) {
	query := `
		SELECT
			order_id, symbol, side,
			entry_price, exit_price, size, pnl, commission,
			reason, opened_at, closed_at
		FROM trades
		WHERE symbol = $1
		ORDER BY closed_at ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get trades by symbol: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByTimeRange retrieves trades for a symbol closed within [start, end] (inclusive).
func (s *TradeStore) GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.TradeRecord, error) {
	query := `
		SELECT
			order_id, symbol, side,
			entry_price, exit_price, size, pnl, commission,
			reason, opened_at, closed_at
		FROM trades
		WHERE symbol = $1 AND closed_at >= $2 AND closed_at <= $3
		ORDER BY closed_at ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("get trades by time range: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// TotalPnL returns the sum of realized P&L for a symbol, 0 when no trades.
func (s *TradeStore) TotalPnL(ctx context.Context, symbol string) (float64, error) {
	query := `SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE symbol = $1`

	var total float64
	if err := s.pool.QueryRow(ctx, query, symbol).Scan(&total); err != nil {
		return 0, fmt.Errorf("total pnl: %w", err)
	}
	return total, nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanTrades(rows pgxRows) ([]*domain.TradeRecord, error) {
	var trades []*domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var side string
		err := rows.Scan(
			&t.OrderID, &t.Symbol, &side,
			&t.EntryPrice, &t.ExitPrice, &t.Size, &t.PnL, &t.Commission,
			&t.Reason, &t.OpenedAt, &t.ClosedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Side = domain.Side(side)
		trades = append(trades, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return trades, nil
}
