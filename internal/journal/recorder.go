// Package journal persists the pipeline's event stream: orders and closed
// trades into the order/trade stores, closed candles into the candle store.
// The recorder is a pure consumer; a store write failure never feeds back
// into the pipeline.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"pattern-trader/internal/bus"
	"pattern-trader/internal/domain"
	"pattern-trader/internal/observability"
	"pattern-trader/internal/processor"
	"pattern-trader/internal/storage"
)

const processorName = "journal-recorder"

// Options configures a Recorder. Any nil store disables recording for the
// events it would receive.
type Options struct {
	Bus         *bus.EventBus
	OrderStore  storage.OrderStore
	TradeStore  storage.TradeStore
	CandleStore storage.CandleStore
	// WriteTimeout bounds each store write. Defaults to 5s.
	WriteTimeout time.Duration
}

// Recorder is the journal processor.
type Recorder struct {
	*processor.Base

	orders  storage.OrderStore
	trades  storage.TradeStore
	candles storage.CandleStore
	timeout time.Duration

	recordedOrders  int64
	recordedTrades  int64
	recordedCandles int64
}

// New creates a journal recorder processor.
func New(opts Options) *Recorder {
	timeout := opts.WriteTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	r := &Recorder{
		orders:  opts.OrderStore,
		trades:  opts.TradeStore,
		candles: opts.CandleStore,
		timeout: timeout,
	}
	r.Base = processor.NewBase(processorName, opts.Bus, processor.Hooks{
		Register:   r.register,
		Unregister: r.unregister,
	})
	return r
}

// kinds lists the event types the recorder listens to, gated by which stores
// were supplied.
func (r *Recorder) kinds() []bus.EventType {
	var kinds []bus.EventType
	if r.orders != nil {
		kinds = append(kinds, bus.OrderPlaced, bus.OrderFilled)
	}
	if r.orders != nil || r.trades != nil {
		kinds = append(kinds, bus.PositionClosed)
	}
	if r.candles != nil {
		kinds = append(kinds, bus.CandleClosed)
	}
	return kinds
}

func (r *Recorder) register() error {
	for _, kind := range r.kinds() {
		err := r.Bus().Subscribe(kind, bus.Handler{
			Name: processorName,
			Kind: bus.HandlerBlocking,
			Fn:   r.onEvent,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) unregister() error {
	for _, kind := range r.kinds() {
		if err := r.Bus().Unsubscribe(kind, processorName); err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) onEvent(ctx context.Context, ev *bus.Event) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var record string
	var err error
	switch ev.Type {
	case bus.OrderPlaced:
		record = "order"
		err = r.recordPlaced(ctx, ev)
	case bus.OrderFilled:
		record = "order"
		err = r.recordFilled(ctx, ev)
	case bus.PositionClosed:
		record = "trade"
		err = r.recordClosed(ctx, ev)
	case bus.CandleClosed:
		record = "candle"
		err = r.recordCandle(ctx, ev)
	}
	if record != "" {
		observability.RecordJournalWrite(record, err)
	}
	if err != nil {
		log.Error().Err(err).Stringer("kind", ev.Type).Msg("journal write failed")
	}
	return nil
}

func (r *Recorder) recordPlaced(ctx context.Context, ev *bus.Event) error {
	ord, ok := orderFromPayload(ev.Payload)
	if !ok {
		log.Warn().Str("source", ev.Source).Msg("order payload missing required fields")
		return nil
	}
	err := r.orders.Insert(ctx, ord)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	if err == nil {
		r.recordedOrders++
	}
	return err
}

func (r *Recorder) recordFilled(ctx context.Context, ev *bus.Event) error {
	id, ok := bus.String(ev.Payload, "order_id")
	if !ok {
		return nil
	}
	filledAt, _ := bus.Int64(ev.Payload, "filled_at")
	err := r.orders.MarkFilled(ctx, id, filledAt)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn().Str("order_id", id).Msg("fill for unknown order")
		return nil
	}
	return err
}

func (r *Recorder) recordClosed(ctx context.Context, ev *bus.Event) error {
	id, ok := bus.String(ev.Payload, "order_id")
	if !ok {
		return nil
	}

	if r.orders != nil {
		err := r.orders.MarkClosed(ctx, id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	if r.trades == nil {
		return nil
	}
	trade, ok := tradeFromPayload(id, ev)
	if !ok {
		log.Warn().Str("order_id", id).Msg("close payload missing required fields")
		return nil
	}
	err := r.trades.Insert(ctx, trade)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	if err == nil {
		r.recordedTrades++
	}
	return err
}

func (r *Recorder) recordCandle(ctx context.Context, ev *bus.Event) error {
	candle, ok := candleFromPayload(ev.Payload)
	if !ok {
		return nil
	}
	err := r.candles.Insert(ctx, candle)
	if err == nil {
		r.recordedCandles++
	}
	return err
}

// RecordedOrders returns the number of orders written.
func (r *Recorder) RecordedOrders() int64 { return r.recordedOrders }

// RecordedTrades returns the number of closed trades written.
func (r *Recorder) RecordedTrades() int64 { return r.recordedTrades }

// RecordedCandles returns the number of candles written.
func (r *Recorder) RecordedCandles() int64 { return r.recordedCandles }

func orderFromPayload(p map[string]any) (*domain.Order, bool) {
	id, ok1 := bus.String(p, "order_id")
	symbol, ok2 := bus.String(p, "symbol")
	side, ok3 := bus.String(p, "side")
	entry, ok4 := bus.Float(p, "entry_price")
	size, ok5 := bus.Float(p, "size")
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return nil, false
	}

	ord := &domain.Order{
		ID:         id,
		Symbol:     symbol,
		Side:       domain.Side(side),
		Type:       domain.OrderTypeMarket,
		EntryPrice: entry,
		Size:       size,
		Status:     domain.OrderStatusPlaced,
		PlacedAt:   time.Now().UnixMilli(),
	}
	if v, ok := bus.Float(p, "stop_loss"); ok {
		ord.StopLoss = v
	}
	if v, ok := bus.Float(p, "take_profit"); ok {
		ord.TakeProfit = v
	}
	if v, ok := bus.Float(p, "confidence"); ok {
		ord.Confidence = v
	}
	if v, ok := bus.String(p, "reason"); ok {
		ord.Reason = v
	}
	return ord, true
}

func tradeFromPayload(orderID string, ev *bus.Event) (*domain.TradeRecord, bool) {
	p := ev.Payload
	symbol, ok1 := bus.String(p, "symbol")
	side, ok2 := bus.String(p, "side")
	entry, ok3 := bus.Float(p, "entry_price")
	exit, ok4 := bus.Float(p, "exit_price")
	size, ok5 := bus.Float(p, "size")
	pnl, ok6 := bus.Float(p, "pnl")
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return nil, false
	}

	trade := &domain.TradeRecord{
		OrderID:    orderID,
		Symbol:     symbol,
		Side:       domain.Side(side),
		EntryPrice: entry,
		ExitPrice:  exit,
		Size:       size,
		PnL:        pnl,
		ClosedAt:   ev.CreatedAt.UnixMilli(),
	}
	if v, ok := bus.Float(p, "commission"); ok {
		trade.Commission = v
	}
	if v, ok := bus.String(p, "reason"); ok {
		trade.Reason = v
	}
	return trade, true
}

func candleFromPayload(p map[string]any) (*domain.Candle, bool) {
	symbol, ok1 := bus.String(p, "symbol")
	interval, ok2 := bus.String(p, "interval")
	open, ok3 := bus.Float(p, "open")
	high, ok4 := bus.Float(p, "high")
	low, ok5 := bus.Float(p, "low")
	closePrice, ok6 := bus.Float(p, "close")
	volume, ok7 := bus.Float(p, "volume")
	ts, ok8 := bus.Int64(p, "timestamp")
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8) {
		return nil, false
	}
	return &domain.Candle{
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Timestamp: ts,
	}, true
}
