// Package signal turns agreeing pattern detections into trade entry signals.
// A zone and a gap in the same direction and proximate in price form a
// confluence; the first qualifying pair produces at most one signal per
// arrival.
package signal

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"pattern-trader/internal/bus"
	"pattern-trader/internal/domain"
	"pattern-trader/internal/processor"
)

const processorName = "signal-matcher"

// Config controls confluence matching. Zero-value fields fall back to
// defaults.
type Config struct {
	// MinConfidence is the minimum confidence score (0-100) for a signal.
	MinConfidence float64
	// MinRiskReward is the minimum reward/risk ratio for a signal.
	MinRiskReward float64
	// ProximityPercent is the maximum distance between non-overlapping
	// pattern ranges as percent of the midpoint reference price.
	ProximityPercent float64
	// PatternTimeout drops buffered detections older than this.
	PatternTimeout time.Duration
}

// DefaultConfig returns the documented default matcher configuration.
func DefaultConfig() Config {
	return Config{
		MinConfidence:    70,
		MinRiskReward:    2.0,
		ProximityPercent: 1.0,
		PatternTimeout:   300 * time.Second,
	}
}

func (c Config) merged() Config {
	def := DefaultConfig()
	if c.MinConfidence == 0 {
		c.MinConfidence = def.MinConfidence
	}
	if c.MinRiskReward == 0 {
		c.MinRiskReward = def.MinRiskReward
	}
	if c.ProximityPercent == 0 {
		c.ProximityPercent = def.ProximityPercent
	}
	if c.PatternTimeout == 0 {
		c.PatternTimeout = def.PatternTimeout
	}
	return c
}

type bufferedZone struct {
	zone       domain.OrderZone
	receivedAt time.Time
}

type bufferedGap struct {
	gap        domain.PriceGap
	receivedAt time.Time
}

// Matcher buffers detections and emits EntrySignal events on confluence. Its
// buffers are owned exclusively by the matcher's bus handlers.
type Matcher struct {
	*processor.Base

	cfg Config

	zones       []bufferedZone
	gaps        []bufferedGap
	signalCount int

	// now is swappable for deterministic tests.
	now func() time.Time
}

// Options configures a Matcher.
type Options struct {
	Bus    *bus.EventBus
	Config Config
}

// New creates a signal matcher processor.
func New(opts Options) *Matcher {
	m := &Matcher{
		cfg: opts.Config.merged(),
		now: time.Now,
	}
	m.Base = processor.NewBase(processorName, opts.Bus, processor.Hooks{
		OnStart:    m.onStart,
		OnStop:     m.onStop,
		Register:   m.register,
		Unregister: m.unregister,
	})
	return m
}

func (m *Matcher) onStart(context.Context) error {
	m.zones = nil
	m.gaps = nil
	m.signalCount = 0
	return nil
}

func (m *Matcher) onStop(context.Context) error {
	m.zones = nil
	m.gaps = nil
	return nil
}

func (m *Matcher) register() error {
	if err := m.Bus().Subscribe(bus.ZoneDetected, bus.Handler{
		Name: processorName,
		Kind: bus.HandlerInline,
		Fn:   m.onZoneDetected,
	}); err != nil {
		return err
	}
	return m.Bus().Subscribe(bus.GapDetected, bus.Handler{
		Name: processorName,
		Kind: bus.HandlerInline,
		Fn:   m.onGapDetected,
	})
}

func (m *Matcher) unregister() error {
	if err := m.Bus().Unsubscribe(bus.ZoneDetected, processorName); err != nil {
		return err
	}
	return m.Bus().Unsubscribe(bus.GapDetected, processorName)
}

func (m *Matcher) onZoneDetected(_ context.Context, ev *bus.Event) error {
	zone, ok := zoneFromPayload(ev.Payload)
	if !ok {
		log.Warn().Str("source", ev.Source).Msg("zone payload missing required fields")
		return nil
	}

	m.dropStale()
	m.zones = append(m.zones, bufferedZone{zone: zone, receivedAt: ev.CreatedAt})

	log.Debug().
		Stringer("direction", zone.Direction).
		Float64("bottom", zone.Bottom).
		Float64("top", zone.Top).
		Msg("buffered order zone")

	m.matchConfluence()
	return nil
}

func (m *Matcher) onGapDetected(_ context.Context, ev *bus.Event) error {
	gap, ok := gapFromPayload(ev.Payload)
	if !ok {
		log.Warn().Str("source", ev.Source).Msg("gap payload missing required fields")
		return nil
	}

	m.dropStale()
	m.gaps = append(m.gaps, bufferedGap{gap: gap, receivedAt: ev.CreatedAt})

	log.Debug().
		Stringer("direction", gap.Direction).
		Float64("bottom", gap.Bottom).
		Float64("top", gap.Top).
		Msg("buffered price gap")

	m.matchConfluence()
	return nil
}

// matchConfluence scans buffered zones (outer) against gaps (inner) and acts
// on the first qualifying pair. Deliberately not a global optimum: scan order
// decides ties. At most one signal per arrival; the consumed pair is removed.
func (m *Matcher) matchConfluence() {
	for zi, bz := range m.zones {
		for gi, bg := range m.gaps {
			if bz.zone.Direction != bg.gap.Direction {
				continue
			}
			if !m.nearby(bz.zone, bg.gap) {
				continue
			}

			sig, ok := m.buildSignal(bz.zone, bg.gap)
			if !ok {
				continue
			}

			m.publishSignal(sig)
			m.zones = append(m.zones[:zi], m.zones[zi+1:]...)
			m.gaps = append(m.gaps[:gi], m.gaps[gi+1:]...)
			return
		}
	}
}

// nearby reports whether the two ranges overlap or sit within the proximity
// threshold of each other.
func (m *Matcher) nearby(zone domain.OrderZone, gap domain.PriceGap) bool {
	if zone.Bottom <= gap.Top && zone.Top >= gap.Bottom {
		return true
	}

	var distance, reference float64
	if zone.Bottom > gap.Top {
		distance = zone.Bottom - gap.Top
		reference = (zone.Bottom + gap.Top) / 2
	} else {
		distance = gap.Bottom - zone.Top
		reference = (gap.Bottom + zone.Top) / 2
	}

	return distance/reference*100 <= m.cfg.ProximityPercent
}

// buildSignal computes entry, stop, target, risk/reward, and confidence for a
// qualifying pair, rejecting pairs below the risk-reward or confidence
// minimums.
func (m *Matcher) buildSignal(zone domain.OrderZone, gap domain.PriceGap) (domain.Signal, bool) {
	entry := gap.Midpoint()

	var side domain.Side
	var stop, target float64
	if zone.Direction == domain.DirectionBullish {
		side = domain.SideLong
		stop = 0.999 * min(zone.Bottom, gap.Bottom)
		target = entry + (entry-stop)*m.cfg.MinRiskReward
	} else {
		side = domain.SideShort
		stop = 1.001 * max(zone.Top, gap.Top)
		target = entry - (stop-entry)*m.cfg.MinRiskReward
	}

	risk := math.Abs(entry - stop)
	reward := math.Abs(target - entry)
	riskReward := 0.0
	if risk > 0 {
		riskReward = reward / risk
	}
	// Tolerance absorbs float error when the target was derived from the
	// minimum itself.
	if riskReward < m.cfg.MinRiskReward-1e-9 {
		log.Debug().
			Float64("risk_reward", riskReward).
			Float64("min", m.cfg.MinRiskReward).
			Msg("signal rejected on risk-reward")
		return domain.Signal{}, false
	}

	confidence := m.confidence(zone, gap)
	if confidence < m.cfg.MinConfidence {
		log.Debug().
			Float64("confidence", confidence).
			Float64("min", m.cfg.MinConfidence).
			Msg("signal rejected on confidence")
		return domain.Signal{}, false
	}

	reason := fmt.Sprintf("%s confluence: order zone (%.2f-%.2f) + price gap (%.2f-%.2f)",
		zone.Direction, zone.Bottom, zone.Top, gap.Bottom, gap.Top)

	return domain.Signal{
		Side:       side,
		EntryPrice: entry,
		StopLoss:   stop,
		TakeProfit: target,
		RiskReward: riskReward,
		Confidence: confidence,
		Zone:       zone,
		Gap:        gap,
		Reason:     reason,
		CreatedAt:  m.now().UnixMilli(),
	}, true
}

// confidence starts at the 70-point confluence base and adds up to 20 points
// proportional to range overlap relative to the smaller range, capped at 100.
func (m *Matcher) confidence(zone domain.OrderZone, gap domain.PriceGap) float64 {
	confidence := 70.0

	overlapTop := min(zone.Top, gap.Top)
	overlapBottom := max(zone.Bottom, gap.Bottom)
	overlap := overlapTop - overlapBottom
	if overlap < 0 {
		overlap = 0
	}

	smaller := min(zone.Range(), gap.Range())
	if smaller > 0 {
		confidence += overlap / smaller * 20
	}

	if confidence > 100 {
		confidence = 100
	}
	return confidence
}

func (m *Matcher) publishSignal(sig domain.Signal) {
	ev, err := bus.NewEvent(bus.EntrySignal, map[string]any{
		"direction":   sig.Side.String(),
		"entry_price": sig.EntryPrice,
		"stop_loss":   sig.StopLoss,
		"take_profit": sig.TakeProfit,
		"risk_reward": sig.RiskReward,
		"confidence":  sig.Confidence,
		"reason":      sig.Reason,
		"signal":      sig,
	}, processorName)
	if err != nil {
		log.Error().Err(err).Msg("signal event construction failed")
		return
	}
	if err := m.Bus().Publish(ev); err != nil {
		log.Error().Err(err).Msg("signal event publish failed")
		return
	}

	m.signalCount++
	log.Info().
		Stringer("side", sig.Side).
		Float64("entry", sig.EntryPrice).
		Float64("stop", sig.StopLoss).
		Float64("target", sig.TakeProfit).
		Float64("risk_reward", sig.RiskReward).
		Float64("confidence", sig.Confidence).
		Int("total", m.signalCount).
		Msg("entry signal published")
}

// dropStale removes buffered detections older than the pattern timeout.
func (m *Matcher) dropStale() {
	cutoff := m.now().Add(-m.cfg.PatternTimeout)

	zones := m.zones[:0]
	for _, bz := range m.zones {
		if bz.receivedAt.After(cutoff) {
			zones = append(zones, bz)
		}
	}
	m.zones = zones

	gaps := m.gaps[:0]
	for _, bg := range m.gaps {
		if bg.receivedAt.After(cutoff) {
			gaps = append(gaps, bg)
		}
	}
	m.gaps = gaps
}

// SignalCount returns the number of signals published since start.
func (m *Matcher) SignalCount() int {
	return m.signalCount
}

// PendingZones returns the number of zones awaiting confluence.
func (m *Matcher) PendingZones() int {
	return len(m.zones)
}

// PendingGaps returns the number of gaps awaiting confluence.
func (m *Matcher) PendingGaps() int {
	return len(m.gaps)
}

// zoneFromPayload prefers the typed zone value and falls back to the flat
// fields for events fed from outside the process.
func zoneFromPayload(p map[string]any) (domain.OrderZone, bool) {
	if zone, ok := p["zone"].(domain.OrderZone); ok {
		return zone, true
	}

	dir, ok1 := bus.String(p, "direction")
	top, ok2 := bus.Float(p, "top")
	bottom, ok3 := bus.Float(p, "bottom")
	ts, ok4 := bus.Int64(p, "timestamp")
	if !(ok1 && ok2 && ok3 && ok4) {
		return domain.OrderZone{}, false
	}

	zone, err := domain.NewOrderZone(domain.Direction(dir), top, bottom, ts)
	if err != nil {
		return domain.OrderZone{}, false
	}
	return zone, true
}

// gapFromPayload prefers the typed gap value and falls back to flat fields.
func gapFromPayload(p map[string]any) (domain.PriceGap, bool) {
	if gap, ok := p["gap"].(domain.PriceGap); ok {
		return gap, true
	}

	dir, ok1 := bus.String(p, "direction")
	top, ok2 := bus.Float(p, "top")
	bottom, ok3 := bus.Float(p, "bottom")
	ts, ok4 := bus.Int64(p, "timestamp")
	if !(ok1 && ok2 && ok3 && ok4) {
		return domain.PriceGap{}, false
	}

	gap, err := domain.NewPriceGap(domain.Direction(dir), top, bottom, ts, 0)
	if err != nil {
		return domain.PriceGap{}, false
	}
	return gap, true
}
