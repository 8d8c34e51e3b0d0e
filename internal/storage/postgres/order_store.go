package postgres

import (
	"context"
	"fmt"

	"pattern-trader/internal/domain"
	"pattern-trader/internal/storage"
)

// OrderStore implements storage.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *Pool
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

// Insert adds a new order. Returns ErrDuplicateKey if order_id exists.
func (s *OrderStore) Insert(ctx context.Context, o *domain.Order) error {
	query := `
		INSERT INTO orders (
			order_id, symbol, side, order_type,
			entry_price, size, stop_loss, take_profit,
			status, confidence, reason, placed_at, filled_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13
		)
	`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.Symbol, string(o.Side), o.Type,
		o.EntryPrice, o.Size, o.StopLoss, o.TakeProfit,
		string(o.Status), o.Confidence, o.Reason, o.PlacedAt, o.FilledAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// MarkFilled moves an order to FILLED with the given fill time.
func (s *OrderStore) MarkFilled(ctx context.Context, orderID string, filledAt int64) error {
	query := `UPDATE orders SET status = $1, filled_at = $2 WHERE order_id = $3`

	tag, err := s.pool.Exec(ctx, query, string(domain.OrderStatusFilled), filledAt, orderID)
	if err != nil {
		return fmt.Errorf("mark order filled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkClosed moves an order to CLOSED.
func (s *OrderStore) MarkClosed(ctx context.Context, orderID string) error {
	query := `UPDATE orders SET status = $1 WHERE order_id = $2`

	tag, err := s.pool.Exec(ctx, query, string(domain.OrderStatusClosed), orderID)
	if err != nil {
		return fmt.Errorf("mark order closed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves an order by its ID. Returns ErrNotFound if not exists.
func (s *OrderStore) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	query := `
		SELECT
			order_id, symbol, side, order_type,
			entry_price, size, stop_loss, take_profit,
			status, confidence, reason, placed_at, filled_at
		FROM orders
		WHERE order_id = $1
	`

	row := s.pool.QueryRow(ctx, query, orderID)

	var o domain.Order
	var side, status string
	err := row.Scan(
		&o.ID, &o.Symbol, &side, &o.Type,
		&o.EntryPrice, &o.Size, &o.StopLoss, &o.TakeProfit,
		&status, &o.Confidence, &o.Reason, &o.PlacedAt, &o.FilledAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get order by id: %w", err)
	}
	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	return &o, nil
}

// GetBySymbol retrieves all orders for a symbol, ordered by placed_at ASC.
func (s *OrderStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.Order, error) {
	query := `
		SELECT
			order_id, symbol, side, order_type,
			entry_price, size, stop_loss, take_profit,
			status, confidence, reason, placed_at, filled_at
		FROM orders
		WHERE symbol = $1
		ORDER BY placed_at ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get orders by symbol: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		var o domain.Order
		var side, status string
		err := rows.Scan(
			&o.ID, &o.Symbol, &side, &o.Type,
			&o.EntryPrice, &o.Size, &o.StopLoss, &o.TakeProfit,
			&status, &o.Confidence, &o.Reason, &o.PlacedAt, &o.FilledAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Side = domain.Side(side)
		o.Status = domain.OrderStatus(status)
		orders = append(orders, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}
