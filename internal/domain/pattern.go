package domain

import "math"

// Direction represents the directional bias of a detected pattern.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	return string(d)
}

// IsValid checks if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d == DirectionBullish || d == DirectionBearish
}

// OrderZone is an institutional order zone read from a single strong-bodied
// candle. Treated as immutable after construction.
type OrderZone struct {
	Direction  Direction
	Top        float64
	Bottom     float64
	DetectedAt int64 // candle close time (ms)
	TouchCount int
	Valid      bool
}

// NewOrderZone constructs a validated OrderZone. Top must exceed bottom
// strictly and both must be positive.
func NewOrderZone(dir Direction, top, bottom float64, detectedAt int64) (OrderZone, error) {
	if !dir.IsValid() {
		return OrderZone{}, ErrInvalidDirection
	}
	if top <= 0 || bottom <= 0 {
		return OrderZone{}, ErrInvalidPrice
	}
	if top <= bottom {
		return OrderZone{}, ErrInvalidBoundary
	}
	return OrderZone{
		Direction:  dir,
		Top:        top,
		Bottom:     bottom,
		DetectedAt: detectedAt,
		TouchCount: 0,
		Valid:      true,
	}, nil
}

// Range returns the zone height.
func (z OrderZone) Range() float64 {
	return z.Top - z.Bottom
}

// Midpoint returns the zone midpoint price.
func (z OrderZone) Midpoint() float64 {
	return (z.Top + z.Bottom) / 2
}

// PriceGap is a price inefficiency skipped across three consecutive candles.
// Treated as immutable after construction.
type PriceGap struct {
	Direction     Direction
	Top           float64
	Bottom        float64
	DetectedAt    int64 // closing candle time (ms)
	FilledPercent float64
	Valid         bool
}

// NewPriceGap constructs a validated PriceGap. FilledPercent is clamped to
// [0, 100] and rounded to 2 decimals.
func NewPriceGap(dir Direction, top, bottom float64, detectedAt int64, filledPercent float64) (PriceGap, error) {
	if !dir.IsValid() {
		return PriceGap{}, ErrInvalidDirection
	}
	if top <= 0 || bottom <= 0 {
		return PriceGap{}, ErrInvalidPrice
	}
	if top <= bottom {
		return PriceGap{}, ErrInvalidBoundary
	}
	if filledPercent < 0 {
		filledPercent = 0
	}
	if filledPercent > 100 {
		filledPercent = 100
	}
	return PriceGap{
		Direction:     dir,
		Top:           top,
		Bottom:        bottom,
		DetectedAt:    detectedAt,
		FilledPercent: math.Round(filledPercent*100) / 100,
		Valid:         true,
	}, nil
}

// Range returns the gap height.
func (g PriceGap) Range() float64 {
	return g.Top - g.Bottom
}

// Midpoint returns the gap midpoint price.
func (g PriceGap) Midpoint() float64 {
	return (g.Top + g.Bottom) / 2
}
