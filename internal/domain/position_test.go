package domain

import (
	"errors"
	"testing"
)

func TestNewPosition_LongStopsMustBracketEntry(t *testing.T) {
	p, err := NewPosition("BTCUSDT", SideLong, 100, 1, 95, 110, 1000)
	if err != nil {
		t.Fatalf("expected valid long position, got %v", err)
	}
	if p.Side != SideLong {
		t.Errorf("expected side long, got %s", p.Side)
	}

	if _, err := NewPosition("BTCUSDT", SideLong, 100, 1, 105, 110, 1000); !errors.Is(err, ErrInvalidStops) {
		t.Errorf("stop above entry: expected ErrInvalidStops, got %v", err)
	}
	if _, err := NewPosition("BTCUSDT", SideLong, 100, 1, 95, 99, 1000); !errors.Is(err, ErrInvalidStops) {
		t.Errorf("target below entry: expected ErrInvalidStops, got %v", err)
	}
}

func TestNewPosition_ShortStopsMustBracketEntry(t *testing.T) {
	if _, err := NewPosition("BTCUSDT", SideShort, 100, 1, 105, 90, 1000); err != nil {
		t.Fatalf("expected valid short position, got %v", err)
	}

	if _, err := NewPosition("BTCUSDT", SideShort, 100, 1, 95, 90, 1000); !errors.Is(err, ErrInvalidStops) {
		t.Errorf("stop below entry: expected ErrInvalidStops, got %v", err)
	}
	if _, err := NewPosition("BTCUSDT", SideShort, 100, 1, 105, 101, 1000); !errors.Is(err, ErrInvalidStops) {
		t.Errorf("target above entry: expected ErrInvalidStops, got %v", err)
	}
}

func TestNewPosition_SymbolValidation(t *testing.T) {
	if _, err := NewPosition("", SideLong, 100, 1, 95, 110, 1000); !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("empty symbol: expected ErrInvalidSymbol, got %v", err)
	}
	if _, err := NewPosition("btcusdt", SideLong, 100, 1, 95, 110, 1000); !errors.Is(err, ErrInvalidSymbol) {
		t.Errorf("lowercase symbol: expected ErrInvalidSymbol, got %v", err)
	}
}

func TestNewPosition_SizeAndPriceValidation(t *testing.T) {
	if _, err := NewPosition("BTCUSDT", SideLong, 100, 0, 95, 110, 1000); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("zero size: expected ErrInvalidSize, got %v", err)
	}
	if _, err := NewPosition("BTCUSDT", SideLong, 0, 1, 95, 110, 1000); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("zero entry: expected ErrInvalidPrice, got %v", err)
	}
	if _, err := NewPosition("BTCUSDT", "up", 100, 1, 95, 110, 1000); !errors.Is(err, ErrInvalidSide) {
		t.Errorf("bad side: expected ErrInvalidSide, got %v", err)
	}
}

func TestPositionRiskReward(t *testing.T) {
	p, err := NewPosition("BTCUSDT", SideLong, 100, 1, 95, 110, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// reward 10 / risk 5
	if got := p.RiskReward(); got != 2.0 {
		t.Errorf("expected risk/reward 2.0, got %f", got)
	}
}

func TestPositionRiskReward_ZeroRisk(t *testing.T) {
	// Construct directly: NewPosition rejects stop == entry.
	p := Position{Symbol: "BTCUSDT", Side: SideLong, EntryPrice: 100, Size: 1, StopLoss: 100, TakeProfit: 110}
	if got := p.RiskReward(); got != 0 {
		t.Errorf("expected 0 on zero risk, got %f", got)
	}
}
