// Package pattern detects order zones and price gaps from closed candles and
// publishes detection events.
package pattern

import (
	"context"

	"github.com/rs/zerolog/log"

	"pattern-trader/internal/bus"
	"pattern-trader/internal/domain"
	"pattern-trader/internal/processor"
	"pattern-trader/internal/state"
)

const processorName = "pattern-detector"

// Config controls detection thresholds. Zero-value fields fall back to
// defaults.
type Config struct {
	// BodyRatioMin is the minimum body-to-range ratio for a zone candle.
	BodyRatioMin float64
	// GapPercentMin is the minimum gap size as percent of the gap midpoint.
	GapPercentMin float64
	// CandleWindow is the detector's own rolling candle history size.
	CandleWindow int
	// PatternTTL is the detection ledger lifetime in candles. The ledger is
	// introspection-only and independent of the state store's pruning.
	PatternTTL int
}

// DefaultConfig returns the documented default detector configuration.
func DefaultConfig() Config {
	return Config{
		BodyRatioMin:  0.6,
		GapPercentMin: 0.3,
		CandleWindow:  100,
		PatternTTL:    50,
	}
}

func (c Config) merged() Config {
	def := DefaultConfig()
	if c.BodyRatioMin == 0 {
		c.BodyRatioMin = def.BodyRatioMin
	}
	if c.GapPercentMin == 0 {
		c.GapPercentMin = def.GapPercentMin
	}
	if c.CandleWindow <= 0 {
		c.CandleWindow = def.CandleWindow
	}
	if c.PatternTTL <= 0 {
		c.PatternTTL = def.PatternTTL
	}
	return c
}

// ledgerEntry records a detection and the candle count at detection time for
// TTL-based decay.
type ledgerEntry struct {
	detectedAtCandle int
}

// Detector consumes CandleClosed events and emits ZoneDetected and
// GapDetected events. All mutable state is owned by the detector and touched
// only from its bus handler.
type Detector struct {
	*processor.Base

	cfg   Config
	store *state.Store

	history     []domain.Candle
	candleCount int
	zoneLedger  []ledgerEntry
	gapLedger   []ledgerEntry
}

// Options configures a Detector.
type Options struct {
	Bus    *bus.EventBus
	Config Config
	// Store optionally receives every accepted candle and detection.
	Store *state.Store
}

// New creates a pattern detector processor.
func New(opts Options) *Detector {
	d := &Detector{
		cfg:   opts.Config.merged(),
		store: opts.Store,
	}
	d.Base = processor.NewBase(processorName, opts.Bus, processor.Hooks{
		OnStart:    d.onStart,
		OnStop:     d.onStop,
		Register:   d.register,
		Unregister: d.unregister,
	})
	return d
}

func (d *Detector) onStart(context.Context) error {
	d.history = make([]domain.Candle, 0, d.cfg.CandleWindow)
	d.candleCount = 0
	d.zoneLedger = nil
	d.gapLedger = nil
	return nil
}

func (d *Detector) onStop(context.Context) error {
	d.history = nil
	d.zoneLedger = nil
	d.gapLedger = nil
	return nil
}

func (d *Detector) register() error {
	return d.Bus().Subscribe(bus.CandleClosed, bus.Handler{
		Name: processorName,
		Kind: bus.HandlerInline,
		Fn:   d.onCandleClosed,
	})
}

func (d *Detector) unregister() error {
	return d.Bus().Unsubscribe(bus.CandleClosed, processorName)
}

// onCandleClosed validates the candle, appends it to the rolling history,
// runs zone and gap detection, and decays the detection ledger. Invalid
// candles are logged and dropped without propagation.
func (d *Detector) onCandleClosed(_ context.Context, ev *bus.Event) error {
	candle, ok := candleFromPayload(ev.Payload)
	if !ok {
		log.Warn().Str("source", ev.Source).Msg("candle payload missing required fields")
		return nil
	}
	if err := candle.Validate(); err != nil {
		log.Warn().Err(err).
			Float64("high", candle.High).
			Float64("low", candle.Low).
			Msg("rejecting malformed candle")
		return nil
	}

	if len(d.history) == d.cfg.CandleWindow {
		d.history = append(d.history[:0], d.history[1:]...)
	}
	d.history = append(d.history, candle)
	d.candleCount++

	if d.store != nil {
		d.store.AddCandle(candle)
	}

	log.Debug().
		Str("symbol", candle.Symbol).
		Float64("close", candle.Close).
		Int("count", d.candleCount).
		Msg("processing candle")

	if zone, ok := d.detectZone(candle); ok {
		d.emitZone(zone)
	}
	if len(d.history) >= 3 {
		if gap, ok := d.detectGap(); ok {
			d.emitGap(gap)
		}
	}

	d.decayLedger()
	return nil
}

// detectZone reads a single candle: body ratio at or above the minimum marks
// an institutional zone spanning the full candle range. Zero-range candles
// are skipped.
func (d *Detector) detectZone(c domain.Candle) (domain.OrderZone, bool) {
	rng := c.Range()
	if rng == 0 {
		return domain.OrderZone{}, false
	}
	bodyRatio := c.Body() / rng
	if bodyRatio < d.cfg.BodyRatioMin {
		return domain.OrderZone{}, false
	}

	dir := domain.DirectionBearish
	if c.Bullish() {
		dir = domain.DirectionBullish
	}

	zone, err := domain.NewOrderZone(dir, c.High, c.Low, c.Timestamp)
	if err != nil {
		log.Error().Err(err).Msg("zone construction failed")
		return domain.OrderZone{}, false
	}

	log.Info().
		Stringer("direction", dir).
		Float64("bottom", zone.Bottom).
		Float64("top", zone.Top).
		Float64("body_ratio", bodyRatio).
		Msg("detected order zone")
	return zone, true
}

// detectGap reads the latest three candles c0,c1,c2 in chronological order.
// Bullish gap: c0.high < c2.low. Bearish gap: c0.low > c2.high. The gap must
// be at least GapPercentMin of its midpoint.
func (d *Detector) detectGap() (domain.PriceGap, bool) {
	n := len(d.history)
	c0, c2 := d.history[n-3], d.history[n-1]

	var dir domain.Direction
	var top, bottom float64
	switch {
	case c0.High < c2.Low:
		dir, bottom, top = domain.DirectionBullish, c0.High, c2.Low
	case c0.Low > c2.High:
		dir, top, bottom = domain.DirectionBearish, c0.Low, c2.High
	default:
		return domain.PriceGap{}, false
	}

	midpoint := (top + bottom) / 2
	gapPercent := (top - bottom) / midpoint * 100
	if gapPercent < d.cfg.GapPercentMin {
		return domain.PriceGap{}, false
	}

	gap, err := domain.NewPriceGap(dir, top, bottom, c2.Timestamp, 0)
	if err != nil {
		log.Error().Err(err).Msg("gap construction failed")
		return domain.PriceGap{}, false
	}

	log.Info().
		Stringer("direction", dir).
		Float64("bottom", gap.Bottom).
		Float64("top", gap.Top).
		Float64("gap_percent", gapPercent).
		Msg("detected price gap")
	return gap, true
}

func (d *Detector) emitZone(zone domain.OrderZone) {
	d.zoneLedger = append(d.zoneLedger, ledgerEntry{detectedAtCandle: d.candleCount})
	if d.store != nil {
		d.store.AddZone(zone)
	}

	ev, err := bus.NewEvent(bus.ZoneDetected, map[string]any{
		"direction": zone.Direction.String(),
		"top":       zone.Top,
		"bottom":    zone.Bottom,
		"timestamp": zone.DetectedAt,
		"zone":      zone,
	}, processorName)
	if err != nil {
		log.Error().Err(err).Msg("zone event construction failed")
		return
	}
	if err := d.Bus().Publish(ev); err != nil {
		log.Error().Err(err).Msg("zone event publish failed")
	}
}

func (d *Detector) emitGap(gap domain.PriceGap) {
	d.gapLedger = append(d.gapLedger, ledgerEntry{detectedAtCandle: d.candleCount})
	if d.store != nil {
		d.store.AddGap(gap)
	}

	ev, err := bus.NewEvent(bus.GapDetected, map[string]any{
		"direction": gap.Direction.String(),
		"top":       gap.Top,
		"bottom":    gap.Bottom,
		"timestamp": gap.DetectedAt,
		"gap":       gap,
	}, processorName)
	if err != nil {
		log.Error().Err(err).Msg("gap event construction failed")
		return
	}
	if err := d.Bus().Publish(ev); err != nil {
		log.Error().Err(err).Msg("gap event publish failed")
	}
}

// decayLedger drops ledger entries older than PatternTTL candles. The ledger
// only feeds the introspection counters.
func (d *Detector) decayLedger() {
	cutoff := d.candleCount - d.cfg.PatternTTL

	zones := d.zoneLedger[:0]
	for _, e := range d.zoneLedger {
		if e.detectedAtCandle > cutoff {
			zones = append(zones, e)
		}
	}
	d.zoneLedger = zones

	gaps := d.gapLedger[:0]
	for _, e := range d.gapLedger {
		if e.detectedAtCandle > cutoff {
			gaps = append(gaps, e)
		}
	}
	d.gapLedger = gaps
}

// CandleCount returns the number of candles accepted since start.
func (d *Detector) CandleCount() int {
	return d.candleCount
}

// ZoneCount returns the number of zone detections inside the TTL window.
func (d *Detector) ZoneCount() int {
	return len(d.zoneLedger)
}

// GapCount returns the number of gap detections inside the TTL window.
func (d *Detector) GapCount() int {
	return len(d.gapLedger)
}

// candleFromPayload extracts a candle from a CandleClosed payload.
func candleFromPayload(p map[string]any) (domain.Candle, bool) {
	open, ok1 := bus.Float(p, "open")
	high, ok2 := bus.Float(p, "high")
	low, ok3 := bus.Float(p, "low")
	closePrice, ok4 := bus.Float(p, "close")
	volume, ok5 := bus.Float(p, "volume")
	ts, ok6 := bus.Int64(p, "timestamp")
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) {
		return domain.Candle{}, false
	}

	symbol, _ := bus.String(p, "symbol")
	interval, _ := bus.String(p, "interval")

	return domain.Candle{
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
