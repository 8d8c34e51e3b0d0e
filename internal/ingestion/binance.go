// Package ingestion streams market data into the event bus. The Binance
// collector subscribes to a single symbol's kline stream and publishes a
// CandleClosed event for each completed candle. The core pipeline never sees
// the network connection; it only consumes the events.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"pattern-trader/internal/bus"
)

const collectorName = "binance-collector"

// Config configures the Binance kline collector. Zero-value fields fall back
// to defaults.
type Config struct {
	// Endpoint is the WebSocket base endpoint.
	Endpoint string
	// Symbol is the trading pair, e.g. BTCUSDT.
	Symbol string
	// Interval is the kline interval, e.g. 1m, 15m, 1h.
	Interval string
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff.
	MaxReconnectDelay time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects before the
	// collector gives up and publishes an Error event.
	MaxReconnectAttempts int
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// ReadTimeout is the per-message read deadline.
	ReadTimeout time.Duration
}

// DefaultConfig returns the documented default collector configuration.
func DefaultConfig() Config {
	return Config{
		Endpoint:             "wss://stream.binance.com:9443/ws",
		Symbol:               "BTCUSDT",
		Interval:             "15m",
		ReconnectDelay:       1 * time.Second,
		MaxReconnectDelay:    60 * time.Second,
		MaxReconnectAttempts: 10,
		HandshakeTimeout:     10 * time.Second,
		ReadTimeout:          60 * time.Second,
	}
}

func (c Config) merged() Config {
	def := DefaultConfig()
	if c.Endpoint == "" {
		c.Endpoint = def.Endpoint
	}
	if c.Symbol == "" {
		c.Symbol = def.Symbol
	}
	if c.Interval == "" {
		c.Interval = def.Interval
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = def.MaxReconnectDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	return c
}

// Collector streams Binance klines over WebSocket and publishes completed
// candles. It reconnects with exponential backoff on connection loss.
type Collector struct {
	cfg Config
	bus *bus.EventBus

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	candleCount int64
	countMu     sync.Mutex
}

// Options configures a Collector.
type Options struct {
	Bus    *bus.EventBus
	Config Config
}

// NewCollector creates a Binance kline collector.
func NewCollector(opts Options) *Collector {
	cfg := opts.Config.merged()
	cfg.Symbol = strings.ToUpper(cfg.Symbol)
	cfg.Interval = strings.ToLower(cfg.Interval)
	return &Collector{
		cfg: cfg,
		bus: opts.Bus,
	}
}

// streamURL builds the combined kline stream URL for the configured symbol.
func (c *Collector) streamURL() string {
	return fmt.Sprintf("%s/%s@kline_%s",
		c.cfg.Endpoint, strings.ToLower(c.cfg.Symbol), c.cfg.Interval)
}

// Start launches the stream loop. It returns immediately; connection failures
// are handled by the loop's backoff.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	done := make(chan struct{})
	c.done = done

	go c.streamLoop(loopCtx, done)

	log.Info().
		Str("symbol", c.cfg.Symbol).
		Str("interval", c.cfg.Interval).
		Str("url", c.streamURL()).
		Msg("binance collector started")
	return nil
}

// Stop cancels the stream loop and waits for it to exit.
func (c *Collector) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	log.Info().Str("symbol", c.cfg.Symbol).Msg("binance collector stopped")
	return nil
}

// streamLoop dials, reads until failure, and reconnects with exponential
// backoff. Backoff resets after a successful session.
func (c *Collector) streamLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	delay := c.cfg.ReconnectDelay
	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.readSession(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		attempts++
		if attempts > c.cfg.MaxReconnectAttempts {
			log.Error().Err(err).
				Int("attempts", attempts-1).
				Msg("binance collector giving up after max reconnect attempts")
			c.publishError(fmt.Errorf("stream lost after %d reconnect attempts: %w",
				attempts-1, err))
			return
		}

		log.Warn().Err(err).
			Int("attempt", attempts).
			Dur("delay", delay).
			Msg("binance stream lost, reconnecting")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

// readSession dials the stream and reads messages until the connection drops
// or the context is cancelled. A nil return means clean shutdown.
func (c *Collector) readSession(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage on cancellation.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sessionDone:
		}
	}()

	log.Info().Str("symbol", c.cfg.Symbol).Msg("binance stream connected")

	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		}
		c.handleMessage(data)
	}
}

// klineMessage mirrors the Binance kline stream payload. Prices arrive as
// strings.
type klineMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		CloseTime int64  `json:"T"`
		Interval  string `json:"i"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		IsClosed  bool   `json:"x"`
	} `json:"k"`
}

// handleMessage parses a stream message and publishes a CandleClosed event
// for completed klines. In-progress klines and unrelated messages are
// ignored; malformed ones are logged and dropped.
func (c *Collector) handleMessage(data []byte) {
	var msg klineMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Msg("unparseable stream message dropped")
		return
	}
	if msg.EventType != "kline" || !msg.Kline.IsClosed {
		return
	}

	open, err1 := strconv.ParseFloat(msg.Kline.Open, 64)
	high, err2 := strconv.ParseFloat(msg.Kline.High, 64)
	low, err3 := strconv.ParseFloat(msg.Kline.Low, 64)
	closePrice, err4 := strconv.ParseFloat(msg.Kline.Close, 64)
	volume, err5 := strconv.ParseFloat(msg.Kline.Volume, 64)
	for _, err := range []error{err1, err2, err3, err4, err5} {
		if err != nil {
			log.Warn().Err(err).Str("symbol", msg.Symbol).Msg("malformed kline prices dropped")
			return
		}
	}

	ev, err := bus.NewEvent(bus.CandleClosed, map[string]any{
		"symbol":    msg.Symbol,
		"interval":  msg.Kline.Interval,
		"open":      open,
		"high":      high,
		"low":       low,
		"close":     closePrice,
		"volume":    volume,
		"timestamp": msg.Kline.CloseTime,
	}, collectorName)
	if err != nil {
		log.Error().Err(err).Msg("candle event construction failed")
		return
	}
	if err := c.bus.Publish(ev); err != nil {
		log.Error().Err(err).Msg("candle event publish failed")
		return
	}

	c.countMu.Lock()
	c.candleCount++
	count := c.candleCount
	c.countMu.Unlock()

	log.Debug().
		Str("symbol", msg.Symbol).
		Float64("close", closePrice).
		Int64("total", count).
		Msg("closed candle published")
}

func (c *Collector) publishError(cause error) {
	ev, err := bus.NewEvent(bus.Error, map[string]any{
		"component": collectorName,
		"error":     cause.Error(),
	}, collectorName)
	if err != nil {
		log.Error().Err(err).Msg("error event construction failed")
		return
	}
	if err := c.bus.Publish(ev); err != nil {
		log.Error().Err(err).Msg("error event publish failed")
	}
}

// CandleCount returns the number of closed candles published.
func (c *Collector) CandleCount() int64 {
	c.countMu.Lock()
	defer c.countMu.Unlock()
	return c.candleCount
}
