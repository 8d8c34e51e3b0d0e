// Package storage defines persistence interfaces for the trade journal and
// the candle timeseries. Implementations live in subpackages: memory for
// tests and replay runs, postgres for the journal, clickhouse for the candle
// history.
package storage

import (
	"context"

	"pattern-trader/internal/domain"
)

// OrderStore provides access to order journal storage.
type OrderStore interface {
	// Insert adds a new order. Returns ErrDuplicateKey if order_id exists.
	Insert(ctx context.Context, o *domain.Order) error

	// MarkFilled moves an order to FILLED with the given fill time.
	// Returns ErrNotFound if the order does not exist.
	MarkFilled(ctx context.Context, orderID string, filledAt int64) error

	// MarkClosed moves an order to CLOSED.
	// Returns ErrNotFound if the order does not exist.
	MarkClosed(ctx context.Context, orderID string) error

	// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)

	// GetBySymbol retrieves all orders for a symbol, ordered by placed_at ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.Order, error)
}

// TradeStore provides access to closed-trade journal storage.
type TradeStore interface {
	// Insert adds a closed trade. Returns ErrDuplicateKey if order_id exists.
	Insert(ctx context.Context, t *domain.TradeRecord) error

	// GetBySymbol retrieves all trades for a symbol, ordered by closed_at ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.TradeRecord, error)

	// GetByTimeRange retrieves trades for a symbol closed within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, symbol string, start, end int64) ([]*domain.TradeRecord, error)

	// TotalPnL returns the sum of realized P&L for a symbol, 0 when no trades.
	TotalPnL(ctx context.Context, symbol string) (float64, error)
}

// CandleStore provides access to candle timeseries storage.
type CandleStore interface {
	// Insert adds a single candle.
	Insert(ctx context.Context, c *domain.Candle) error

	// InsertBulk adds multiple candles in one batch.
	InsertBulk(ctx context.Context, candles []*domain.Candle) error

	// GetByTimeRange retrieves candles for a symbol and interval within
	// [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, symbol, interval string, start, end int64) ([]*domain.Candle, error)

	// GetLatest retrieves the most recent limit candles for a symbol and
	// interval, ordered by timestamp ASC.
	GetLatest(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error)
}
