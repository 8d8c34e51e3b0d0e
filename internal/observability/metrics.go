// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Bus metrics
	EventsPublished *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	HandlerErrors   *prometheus.CounterVec
	HandlerTimeouts *prometheus.CounterVec
	QueueDepth      prometheus.Gauge
	DispatchLatency prometheus.Histogram

	// Pipeline metrics
	CandlesProcessed prometheus.Counter
	CandlesRejected  prometheus.Counter
	ZonesDetected    *prometheus.CounterVec
	GapsDetected     *prometheus.CounterVec
	SignalsEmitted   *prometheus.CounterVec
	SignalsRejected  *prometheus.CounterVec

	// Trading metrics
	OrdersPlaced    prometheus.Counter
	OrdersFilled    prometheus.Counter
	PositionsClosed *prometheus.CounterVec
	OpenPositions   prometheus.Gauge
	RealizedPnL     prometheus.Gauge

	// Stream metrics
	StreamReconnects prometheus.Counter
	LastCandleTime   prometheus.Gauge

	// Journal metrics
	JournalWrites      *prometheus.CounterVec
	JournalWriteErrors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "pattern_trader"
	}

	return &Metrics{
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_published_total",
			Help:      "Total number of events published by kind",
		}, []string{"kind"}),
		EventsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped on a full queue",
		}),
		HandlerErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "handler_errors_total",
			Help:      "Total number of handler errors by handler name",
		}, []string{"handler"}),
		HandlerTimeouts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "handler_timeouts_total",
			Help:      "Total number of handler timeouts by handler name",
		}, []string{"handler"}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "queue_depth",
			Help:      "Number of events waiting in the dispatch queue",
		}),
		DispatchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "dispatch_latency_seconds",
			Help:      "Time to resolve one event's full handler set",
			Buckets:   prometheus.DefBuckets,
		}),

		CandlesProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "candles_processed_total",
			Help:      "Total number of closed candles processed",
		}),
		CandlesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "candles_rejected_total",
			Help:      "Total number of malformed candles rejected",
		}),
		ZonesDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "zones_detected_total",
			Help:      "Total number of order zones detected by direction",
		}, []string{"direction"}),
		GapsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "gaps_detected_total",
			Help:      "Total number of price gaps detected by direction",
		}, []string{"direction"}),
		SignalsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "signals_emitted_total",
			Help:      "Total number of entry signals emitted by side",
		}, []string{"side"}),
		SignalsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "signals_rejected_total",
			Help:      "Total number of candidate signals rejected by cause",
		}, []string{"cause"}),

		OrdersPlaced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "orders_placed_total",
			Help:      "Total number of orders placed",
		}),
		OrdersFilled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "orders_filled_total",
			Help:      "Total number of orders filled",
		}),
		PositionsClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "positions_closed_total",
			Help:      "Total number of positions closed by reason",
		}, []string{"reason"}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "open_positions",
			Help:      "Number of currently open positions",
		}),
		RealizedPnL: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "realized_pnl",
			Help:      "Cumulative realized profit and loss",
		}),

		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of market data stream reconnects",
		}),
		LastCandleTime: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "last_candle_timestamp",
			Help:      "Unix timestamp of the last closed candle received",
		}),

		JournalWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "writes_total",
			Help:      "Total number of journal writes by record type",
		}, []string{"record"}),
		JournalWriteErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "write_errors_total",
			Help:      "Total number of journal write errors by record type",
		}, []string{"record"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordJournalWrite records a journal write outcome.
func RecordJournalWrite(record string, err error) {
	DefaultMetrics.JournalWrites.WithLabelValues(record).Inc()
	if err != nil {
		DefaultMetrics.JournalWriteErrors.WithLabelValues(record).Inc()
	}
}
