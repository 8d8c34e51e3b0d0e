// Package order manages the simulated order lifecycle: signal validation,
// placement, immediate fills, open position tracking, and realized P&L on
// close. No live exchange integration; fills happen at the requested entry
// price with a flat commission.
package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"pattern-trader/internal/bus"
	"pattern-trader/internal/domain"
	"pattern-trader/internal/processor"
)

const processorName = "order-manager"

// Config controls the order lifecycle manager. Zero-value fields fall back to
// defaults.
type Config struct {
	// Symbol is stamped on every order and position.
	Symbol string
	// OrderSize is the notional size of every simulated order.
	OrderSize float64
	// CommissionRate is charged on fill as a fraction of order size.
	CommissionRate float64
	// Simulate fills orders immediately at the requested entry price.
	// Disabled only when a live execution collaborator handles fills.
	Simulate *bool
	// AutoClose immediately closes filled positions at the take profit,
	// for deterministic end-to-end runs.
	AutoClose bool
}

// DefaultConfig returns the documented default manager configuration.
func DefaultConfig() Config {
	simulate := true
	return Config{
		Symbol:         "BTCUSDT",
		OrderSize:      100,
		CommissionRate: 0.001,
		Simulate:       &simulate,
	}
}

func (c Config) merged() Config {
	def := DefaultConfig()
	if c.Symbol == "" {
		c.Symbol = def.Symbol
	}
	if c.OrderSize == 0 {
		c.OrderSize = def.OrderSize
	}
	if c.CommissionRate == 0 {
		c.CommissionRate = def.CommissionRate
	}
	if c.Simulate == nil {
		c.Simulate = def.Simulate
	}
	return c
}

// Manager consumes entry signals and walks each through
// Placed -> Filled -> optionally Closed. It exclusively owns the open
// position map, keyed by order id.
type Manager struct {
	*processor.Base

	cfg Config

	// mu guards the order and position maps and the counters: handlers are
	// the only writers, but the HTTP status endpoint reads concurrently.
	mu sync.Mutex

	nextID    int
	orders    map[string]*domain.Order
	positions map[string]*domain.Position

	placedCount int
	filledCount int
	closedCount int
	realizedPnL float64

	now func() time.Time
}

// Options configures a Manager.
type Options struct {
	Bus    *bus.EventBus
	Config Config
}

// New creates an order lifecycle manager processor.
func New(opts Options) *Manager {
	m := &Manager{
		cfg:       opts.Config.merged(),
		orders:    make(map[string]*domain.Order),
		positions: make(map[string]*domain.Position),
		now:       time.Now,
	}
	m.Base = processor.NewBase(processorName, opts.Bus, processor.Hooks{
		OnStop:     m.onStop,
		Register:   m.register,
		Unregister: m.unregister,
	})
	return m
}

func (m *Manager) register() error {
	return m.Bus().Subscribe(bus.EntrySignal, bus.Handler{
		Name: processorName,
		Kind: bus.HandlerInline,
		Fn:   m.onEntrySignal,
	})
}

func (m *Manager) unregister() error {
	return m.Bus().Unsubscribe(bus.EntrySignal, processorName)
}

// onStop closes any still-open positions at their entry price so shutdown
// never strands a simulated position. It then waits for the bus to finish
// dispatching the close events: downstream consumers such as the journal
// recorder stop after this processor and must still be subscribed when the
// events arrive.
func (m *Manager) onStop(ctx context.Context) error {
	m.mu.Lock()
	flattened := len(m.positions)
	for id, pos := range m.positions {
		m.closePosition(id, pos, pos.EntryPrice, domain.CloseReasonShutdown)
	}
	m.mu.Unlock()

	if flattened == 0 {
		return nil
	}

	deadline := time.Now().Add(5 * time.Second)
	for m.Bus().Pending() > 0 {
		if ctx.Err() != nil || time.Now().After(deadline) {
			log.Warn().
				Int64("pending", m.Bus().Pending()).
				Msg("close events still undispatched at stop")
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

func (m *Manager) onEntrySignal(_ context.Context, ev *bus.Event) error {
	sig, ok := signalFromPayload(ev.Payload)
	if !ok {
		log.Warn().Str("source", ev.Source).Msg("signal payload missing required fields")
		return nil
	}
	if err := m.validateSignal(sig); err != nil {
		log.Warn().Err(err).
			Stringer("side", sig.Side).
			Float64("entry", sig.EntryPrice).
			Msg("signal rejected")
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ord := m.placeOrder(sig)

	if *m.cfg.Simulate {
		pos := m.fillOrder(ord)
		if pos != nil && m.cfg.AutoClose {
			m.closePosition(ord.ID, pos, pos.TakeProfit, domain.CloseReasonAutoClose)
		}
	}
	return nil
}

// validateSignal checks required fields and that stop and target bracket the
// entry for the stated direction.
func (m *Manager) validateSignal(sig domain.Signal) error {
	if !sig.Side.IsValid() {
		return domain.ErrInvalidSide
	}
	if sig.EntryPrice <= 0 || sig.StopLoss <= 0 || sig.TakeProfit <= 0 {
		return domain.ErrInvalidPrice
	}
	switch sig.Side {
	case domain.SideLong:
		if sig.StopLoss >= sig.EntryPrice || sig.TakeProfit <= sig.EntryPrice {
			return domain.ErrInvalidStops
		}
	case domain.SideShort:
		if sig.StopLoss <= sig.EntryPrice || sig.TakeProfit >= sig.EntryPrice {
			return domain.ErrInvalidStops
		}
	}
	return nil
}

func (m *Manager) placeOrder(sig domain.Signal) *domain.Order {
	m.nextID++
	ord := &domain.Order{
		ID:         fmt.Sprintf("order_%d", m.nextID),
		Symbol:     m.cfg.Symbol,
		Side:       sig.Side,
		Type:       domain.OrderTypeMarket,
		EntryPrice: sig.EntryPrice,
		Size:       m.cfg.OrderSize,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Status:     domain.OrderStatusPlaced,
		Confidence: sig.Confidence,
		Reason:     sig.Reason,
		PlacedAt:   m.now().UnixMilli(),
	}
	m.orders[ord.ID] = ord
	m.placedCount++

	m.publish(bus.OrderPlaced, map[string]any{
		"order_id":    ord.ID,
		"symbol":      ord.Symbol,
		"side":        ord.Side.String(),
		"entry_price": ord.EntryPrice,
		"size":        ord.Size,
		"stop_loss":   ord.StopLoss,
		"take_profit": ord.TakeProfit,
		"confidence":  ord.Confidence,
		"reason":      ord.Reason,
	})

	log.Info().
		Str("order_id", ord.ID).
		Stringer("side", ord.Side).
		Float64("entry", ord.EntryPrice).
		Float64("size", ord.Size).
		Msg("order placed")
	return ord
}

// fillOrder fills at the requested entry price, charges commission as a
// fraction of order size, and registers the resulting position under the
// order id.
func (m *Manager) fillOrder(ord *domain.Order) *domain.Position {
	filledAt := m.now().UnixMilli()
	commission := ord.Size * m.cfg.CommissionRate

	pos, err := domain.NewPosition(ord.Symbol, ord.Side, ord.EntryPrice, ord.Size, ord.StopLoss, ord.TakeProfit, filledAt)
	if err != nil {
		log.Error().Err(err).Str("order_id", ord.ID).Msg("fill produced invalid position")
		return nil
	}

	ord.Status = domain.OrderStatusFilled
	ord.FilledAt = filledAt
	ord.Commission = commission
	m.positions[ord.ID] = pos
	m.filledCount++

	m.publish(bus.OrderFilled, map[string]any{
		"order_id":   ord.ID,
		"symbol":     ord.Symbol,
		"side":       ord.Side.String(),
		"fill_price": ord.EntryPrice,
		"size":       ord.Size,
		"commission": commission,
		"filled_at":  filledAt,
	})

	log.Info().
		Str("order_id", ord.ID).
		Float64("fill_price", ord.EntryPrice).
		Float64("commission", commission).
		Msg("order filled")
	return pos
}

func (m *Manager) closePosition(id string, pos *domain.Position, exitPrice float64, reason string) {
	var pnl float64
	switch pos.Side {
	case domain.SideLong:
		pnl = (exitPrice - pos.EntryPrice) * pos.Size
	case domain.SideShort:
		pnl = (pos.EntryPrice - exitPrice) * pos.Size
	}

	delete(m.positions, id)
	var commission float64
	if ord, ok := m.orders[id]; ok {
		ord.Status = domain.OrderStatusClosed
		commission = ord.Commission
	}
	m.closedCount++
	m.realizedPnL += pnl

	m.publish(bus.PositionClosed, map[string]any{
		"order_id":    id,
		"symbol":      pos.Symbol,
		"side":        pos.Side.String(),
		"entry_price": pos.EntryPrice,
		"exit_price":  exitPrice,
		"size":        pos.Size,
		"pnl":         pnl,
		"commission":  commission,
		"reason":      reason,
	})

	log.Info().
		Str("order_id", id).
		Float64("exit_price", exitPrice).
		Float64("pnl", pnl).
		Str("reason", reason).
		Msg("position closed")
}

func (m *Manager) publish(kind bus.EventType, payload map[string]any) {
	ev, err := bus.NewEvent(kind, payload, processorName)
	if err != nil {
		log.Error().Err(err).Stringer("kind", kind).Msg("order event construction failed")
		return
	}
	if err := m.Bus().Publish(ev); err != nil {
		log.Error().Err(err).Stringer("kind", kind).Msg("order event publish failed")
	}
}

// GetOrder returns the order with the given id, if known.
func (m *Manager) GetOrder(id string) (*domain.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ord, ok := m.orders[id]
	return ord, ok
}

// GetPosition returns the open position for the given order id, if any.
func (m *Manager) GetPosition(id string) (*domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	return pos, ok
}

// PlacedCount returns the number of orders placed since creation.
func (m *Manager) PlacedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placedCount
}

// FilledCount returns the number of orders filled since creation.
func (m *Manager) FilledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filledCount
}

// ClosedCount returns the number of positions closed since creation.
func (m *Manager) ClosedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closedCount
}

// OpenCount returns the number of currently open positions.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.positions)
}

// RealizedPnL returns cumulative realized profit and loss.
func (m *Manager) RealizedPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realizedPnL
}

// signalFromPayload prefers the typed signal value and falls back to flat
// fields for events fed from outside the process.
func signalFromPayload(p map[string]any) (domain.Signal, bool) {
	if sig, ok := p["signal"].(domain.Signal); ok {
		return sig, true
	}

	dir, ok1 := bus.String(p, "direction")
	entry, ok2 := bus.Float(p, "entry_price")
	stop, ok3 := bus.Float(p, "stop_loss")
	target, ok4 := bus.Float(p, "take_profit")
	if !(ok1 && ok2 && ok3 && ok4) {
		return domain.Signal{}, false
	}

	sig := domain.Signal{
		Side:       domain.Side(dir),
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
	}
	if rr, ok := bus.Float(p, "risk_reward"); ok {
		sig.RiskReward = rr
	}
	if conf, ok := bus.Float(p, "confidence"); ok {
		sig.Confidence = conf
	}
	if reason, ok := bus.String(p, "reason"); ok {
		sig.Reason = reason
	}
	return sig, true
}
