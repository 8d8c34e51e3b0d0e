package domain

import (
	"errors"
	"testing"
)

func TestCandleValidate_WellFormed(t *testing.T) {
	c := Candle{Open: 100, High: 110, Low: 95, Close: 109, Volume: 1000, Timestamp: 1}
	if err := c.Validate(); err != nil {
		t.Errorf("expected valid candle, got %v", err)
	}
}

func TestCandleValidate_HighBelowLow(t *testing.T) {
	c := Candle{Open: 100, High: 94, Low: 95, Close: 99, Volume: 1000, Timestamp: 1}
	if err := c.Validate(); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestCandleValidate_NonPositivePrice(t *testing.T) {
	cases := []Candle{
		{Open: 0, High: 110, Low: 95, Close: 109, Volume: 1},
		{Open: 100, High: 110, Low: -1, Close: 109, Volume: 1},
		{Open: 100, High: 110, Low: 95, Close: 0, Volume: 1},
	}
	for i, c := range cases {
		if err := c.Validate(); !errors.Is(err, ErrInvalidPrice) {
			t.Errorf("case %d: expected ErrInvalidPrice, got %v", i, err)
		}
	}
}

func TestCandleValidate_NegativeVolume(t *testing.T) {
	c := Candle{Open: 100, High: 110, Low: 95, Close: 109, Volume: -1, Timestamp: 1}
	if err := c.Validate(); !errors.Is(err, ErrInvalidVolume) {
		t.Errorf("expected ErrInvalidVolume, got %v", err)
	}
}

func TestCandleBodyRangeBullish(t *testing.T) {
	c := Candle{Open: 100, High: 110, Low: 95, Close: 109, Volume: 1}
	if got := c.Body(); got != 9 {
		t.Errorf("expected body 9, got %f", got)
	}
	if got := c.Range(); got != 15 {
		t.Errorf("expected range 15, got %f", got)
	}
	if !c.Bullish() {
		t.Error("expected bullish candle")
	}

	bearish := Candle{Open: 109, High: 110, Low: 95, Close: 100, Volume: 1}
	if bearish.Bullish() {
		t.Error("expected bearish candle")
	}
}
