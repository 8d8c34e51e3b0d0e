// Package memory provides in-memory storage implementations for tests and
// replay runs. All stores are safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"sync"

	"pattern-trader/internal/domain"
	"pattern-trader/internal/storage"
)

// OrderStore implements storage.OrderStore in memory.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*domain.Order
}

// NewOrderStore creates an empty in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]*domain.Order)}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

func (s *OrderStore) Insert(_ context.Context, o *domain.Order) error {
	if o == nil || o.ID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[o.ID]; exists {
		return storage.ErrDuplicateKey
	}
	clone := *o
	s.orders[o.ID] = &clone
	return nil
}

func (s *OrderStore) MarkFilled(_ context.Context, orderID string, filledAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return storage.ErrNotFound
	}
	o.Status = domain.OrderStatusFilled
	o.FilledAt = filledAt
	return nil
}

func (s *OrderStore) MarkClosed(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return storage.ErrNotFound
	}
	o.Status = domain.OrderStatusClosed
	return nil
}

func (s *OrderStore) GetByID(_ context.Context, orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *o
	return &clone, nil
}

func (s *OrderStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Order
	for _, o := range s.orders {
		if o.Symbol == symbol {
			clone := *o
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacedAt < out[j].PlacedAt })
	return out, nil
}

// TradeStore implements storage.TradeStore in memory.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[string]*domain.TradeRecord
}

// NewTradeStore creates an empty in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{trades: make(map[string]*domain.TradeRecord)}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

func (s *TradeStore) Insert(_ context.Context, t *domain.TradeRecord) error {
	if t == nil || t.OrderID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.trades[t.OrderID]; exists {
		return storage.ErrDuplicateKey
	}
	clone := *t
	s.trades[t.OrderID] = &clone
	return nil
}

func (s *TradeStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.TradeRecord
	for _, t := range s.trades {
		if t.Symbol == symbol {
			clone := *t
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt < out[j].ClosedAt })
	return out, nil
}

func (s *TradeStore) GetByTimeRange(_ context.Context, symbol string, start, end int64) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.TradeRecord
	for _, t := range s.trades {
		if t.Symbol == symbol && t.ClosedAt >= start && t.ClosedAt <= end {
			clone := *t
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt < out[j].ClosedAt })
	return out, nil
}

func (s *TradeStore) TotalPnL(_ context.Context, symbol string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, t := range s.trades {
		if t.Symbol == symbol {
			total += t.PnL
		}
	}
	return total, nil
}

// CandleStore implements storage.CandleStore in memory.
type CandleStore struct {
	mu      sync.RWMutex
	candles []*domain.Candle
}

// NewCandleStore creates an empty in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

func (s *CandleStore) Insert(_ context.Context, c *domain.Candle) error {
	if c == nil {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *c
	s.candles = append(s.candles, &clone)
	return nil
}

func (s *CandleStore) InsertBulk(ctx context.Context, candles []*domain.Candle) error {
	for _, c := range candles {
		if err := s.Insert(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (s *CandleStore) GetByTimeRange(_ context.Context, symbol, interval string, start, end int64) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Candle
	for _, c := range s.candles {
		if c.Symbol == symbol && c.Interval == interval && c.Timestamp >= start && c.Timestamp <= end {
			clone := *c
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (s *CandleStore) GetLatest(_ context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Candle
	for _, c := range s.candles {
		if c.Symbol == symbol && c.Interval == interval {
			clone := *c
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}
