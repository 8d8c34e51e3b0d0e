package observability

import (
	"context"

	"pattern-trader/internal/bus"
	"pattern-trader/internal/processor"
)

const processorName = "metrics-watcher"

// Watcher mirrors the event stream into Prometheus metrics. It subscribes to
// every event kind and is a pure observer.
type Watcher struct {
	*processor.Base

	metrics *Metrics
	open    float64
	pnl     float64
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Bus *bus.EventBus
	// Metrics defaults to DefaultMetrics.
	Metrics *Metrics
}

// NewWatcher creates a metrics watcher processor.
func NewWatcher(opts WatcherOptions) *Watcher {
	m := opts.Metrics
	if m == nil {
		m = DefaultMetrics
	}
	w := &Watcher{metrics: m}
	w.Base = processor.NewBase(processorName, opts.Bus, processor.Hooks{
		Register:   w.register,
		Unregister: w.unregister,
	})
	return w
}

var watchedKinds = []bus.EventType{
	bus.CandleClosed,
	bus.ZoneDetected,
	bus.GapDetected,
	bus.EntrySignal,
	bus.OrderPlaced,
	bus.OrderFilled,
	bus.PositionClosed,
	bus.Error,
}

func (w *Watcher) register() error {
	for _, kind := range watchedKinds {
		err := w.Bus().Subscribe(kind, bus.Handler{
			Name: processorName,
			Kind: bus.HandlerInline,
			Fn:   w.onEvent,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) unregister() error {
	for _, kind := range watchedKinds {
		if err := w.Bus().Unsubscribe(kind, processorName); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) onEvent(_ context.Context, ev *bus.Event) error {
	switch ev.Type {
	case bus.CandleClosed:
		w.metrics.CandlesProcessed.Inc()
		if ts, ok := bus.Int64(ev.Payload, "timestamp"); ok {
			w.metrics.LastCandleTime.Set(float64(ts) / 1000)
		}
	case bus.ZoneDetected:
		if dir, ok := bus.String(ev.Payload, "direction"); ok {
			w.metrics.ZonesDetected.WithLabelValues(dir).Inc()
		}
	case bus.GapDetected:
		if dir, ok := bus.String(ev.Payload, "direction"); ok {
			w.metrics.GapsDetected.WithLabelValues(dir).Inc()
		}
	case bus.EntrySignal:
		if side, ok := bus.String(ev.Payload, "direction"); ok {
			w.metrics.SignalsEmitted.WithLabelValues(side).Inc()
		}
	case bus.OrderPlaced:
		w.metrics.OrdersPlaced.Inc()
	case bus.OrderFilled:
		w.metrics.OrdersFilled.Inc()
		w.open++
		w.metrics.OpenPositions.Set(w.open)
	case bus.PositionClosed:
		reason, _ := bus.String(ev.Payload, "reason")
		w.metrics.PositionsClosed.WithLabelValues(reason).Inc()
		if w.open > 0 {
			w.open--
		}
		w.metrics.OpenPositions.Set(w.open)
		if pnl, ok := bus.Float(ev.Payload, "pnl"); ok {
			w.pnl += pnl
			w.metrics.RealizedPnL.Set(w.pnl)
		}
	}
	return nil
}
