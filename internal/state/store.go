// Package state provides the in-memory store for candles and detected
// patterns, bounding memory with a rolling candle window and timestamp-based
// pattern pruning.
package state

import (
	"errors"

	"github.com/rs/zerolog/log"

	"pattern-trader/internal/domain"
)

// ErrInvalidCapacity is returned when a store is created with a non-positive
// window size.
var ErrInvalidCapacity = errors.New("candle window capacity must be positive")

// Config controls store sizing. Zero-value fields fall back to defaults.
type Config struct {
	// CandleWindow is the maximum number of candles retained.
	CandleWindow int
	// RetentionWindow is the number of recent candles whose span bounds how
	// long detected patterns are kept.
	RetentionWindow int
}

// DefaultConfig returns the documented default store configuration.
func DefaultConfig() Config {
	return Config{
		CandleWindow:    500,
		RetentionWindow: 100,
	}
}

func (c Config) merged() Config {
	def := DefaultConfig()
	if c.CandleWindow == 0 {
		c.CandleWindow = def.CandleWindow
	}
	if c.RetentionWindow == 0 {
		c.RetentionWindow = def.RetentionWindow
	}
	return c
}

// Store holds the rolling candle window plus zone and gap collections. It is
// mutated by a single owner and needs no internal locking.
type Store struct {
	cfg Config

	candles []domain.Candle // window, oldest first
	total   int             // candles ever inserted

	zones []domain.OrderZone
	gaps  []domain.PriceGap
}

// New creates a store. Returns ErrInvalidCapacity for a negative or
// explicitly non-positive candle window.
func New(cfg Config) (*Store, error) {
	cfg = cfg.merged()
	if cfg.CandleWindow <= 0 || cfg.RetentionWindow <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &Store{
		cfg:     cfg,
		candles: make([]domain.Candle, 0, cfg.CandleWindow),
	}, nil
}

// AddCandle appends a candle, evicting the oldest at capacity, then prunes
// patterns older than the retention cutoff.
func (s *Store) AddCandle(c domain.Candle) {
	if len(s.candles) == s.cfg.CandleWindow {
		s.candles = append(s.candles[:0], s.candles[1:]...)
	}
	s.candles = append(s.candles, c)
	s.total++

	s.prune()
}

// AddZone appends a zone. Valid and invalid zones are both retained until
// pruned.
func (s *Store) AddZone(z domain.OrderZone) {
	s.zones = append(s.zones, z)
}

// AddGap appends a gap. Valid and invalid gaps are both retained until pruned.
func (s *Store) AddGap(g domain.PriceGap) {
	s.gaps = append(s.gaps, g)
}

// ValidZones returns zones with Valid=true, optionally filtered by direction
// (empty direction means no filter). Returns an empty slice when none match.
func (s *Store) ValidZones(dir domain.Direction) []domain.OrderZone {
	out := make([]domain.OrderZone, 0)
	for _, z := range s.zones {
		if !z.Valid {
			continue
		}
		if dir != "" && z.Direction != dir {
			continue
		}
		out = append(out, z)
	}
	return out
}

// ValidGaps returns gaps with Valid=true, optionally filtered by direction.
func (s *Store) ValidGaps(dir domain.Direction) []domain.PriceGap {
	out := make([]domain.PriceGap, 0)
	for _, g := range s.gaps {
		if !g.Valid {
			continue
		}
		if dir != "" && g.Direction != dir {
			continue
		}
		out = append(out, g)
	}
	return out
}

// CandleCount returns the total number of candles ever inserted.
func (s *Store) CandleCount() int {
	return s.total
}

// Candles returns the retained window, oldest first. The returned slice is a
// copy.
func (s *Store) Candles() []domain.Candle {
	out := make([]domain.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// ZoneCount returns the number of retained zones, valid or not.
func (s *Store) ZoneCount() int {
	return len(s.zones)
}

// GapCount returns the number of retained gaps, valid or not.
func (s *Store) GapCount() int {
	return len(s.gaps)
}

// prune discards patterns detected strictly before the retention cutoff: the
// timestamp of the candle one retention window back. Validity flags are never
// touched. With fewer candles than the retention window nothing is pruned.
func (s *Store) prune() {
	cutoffIdx := s.total - s.cfg.RetentionWindow
	if cutoffIdx <= 0 {
		return
	}

	// Translate the global index into the retained window; clamp to the
	// oldest retained candle if the cutoff was already evicted.
	pos := cutoffIdx - (s.total - len(s.candles))
	if pos < 0 {
		pos = 0
	}
	cutoff := s.candles[pos].Timestamp

	zones := s.zones[:0]
	for _, z := range s.zones {
		if z.DetectedAt >= cutoff {
			zones = append(zones, z)
		}
	}
	removedZones := len(s.zones) - len(zones)
	s.zones = zones

	gaps := s.gaps[:0]
	for _, g := range s.gaps {
		if g.DetectedAt >= cutoff {
			gaps = append(gaps, g)
		}
	}
	removedGaps := len(s.gaps) - len(gaps)
	s.gaps = gaps

	if removedZones > 0 || removedGaps > 0 {
		log.Debug().
			Int("zones", removedZones).
			Int("gaps", removedGaps).
			Int64("cutoff", cutoff).
			Msg("pruned expired patterns")
	}
}
