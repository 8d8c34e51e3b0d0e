package domain

// Candle represents a closed OHLCV price bar supplied by the ingestion feed.
type Candle struct {
	Symbol    string  // trading pair, e.g. "BTCUSDT"
	Interval  string  // bar interval, e.g. "15m"
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Timestamp int64 // close time (ms)
}

// Validate checks structural candle invariants: high >= low, all prices
// positive, volume non-negative.
func (c *Candle) Validate() error {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return ErrInvalidPrice
	}
	if c.High < c.Low {
		return ErrInvalidRange
	}
	if c.Volume < 0 {
		return ErrInvalidVolume
	}
	return nil
}

// Body returns the absolute open-to-close distance.
func (c *Candle) Body() float64 {
	body := c.Close - c.Open
	if body < 0 {
		return -body
	}
	return body
}

// Range returns the high-to-low distance.
func (c *Candle) Range() float64 {
	return c.High - c.Low
}

// Bullish reports whether the candle closed above its open.
func (c *Candle) Bullish() bool {
	return c.Close > c.Open
}
