package observability

import "pattern-trader/internal/bus"

// Compile-time interface check.
var _ bus.Instrumentation = (*BusInstrumentation)(nil)

// BusInstrumentation adapts a Metrics instance to the event bus telemetry
// hooks.
type BusInstrumentation struct {
	metrics *Metrics
}

// NewBusInstrumentation creates bus instrumentation backed by the given
// metrics, defaulting to DefaultMetrics.
func NewBusInstrumentation(m *Metrics) *BusInstrumentation {
	if m == nil {
		m = DefaultMetrics
	}
	return &BusInstrumentation{metrics: m}
}

func (b *BusInstrumentation) EventPublished(kind string) {
	b.metrics.EventsPublished.WithLabelValues(kind).Inc()
}

func (b *BusInstrumentation) EventDropped(string) {
	b.metrics.EventsDropped.Inc()
}

func (b *BusInstrumentation) HandlerError(handler string) {
	b.metrics.HandlerErrors.WithLabelValues(handler).Inc()
}

func (b *BusInstrumentation) HandlerTimeout(handler string) {
	b.metrics.HandlerTimeouts.WithLabelValues(handler).Inc()
}

func (b *BusInstrumentation) QueueDepth(depth int) {
	b.metrics.QueueDepth.Set(float64(depth))
}

func (b *BusInstrumentation) DispatchDuration(seconds float64) {
	b.metrics.DispatchLatency.Observe(seconds)
}
