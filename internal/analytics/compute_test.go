package analytics

import (
	"math"
	"testing"

	"pattern-trader/internal/domain"
)

func trade(orderID string, pnl, commission float64, closedAt int64) *domain.TradeRecord {
	return &domain.TradeRecord{
		OrderID:    orderID,
		Symbol:     "BTCUSDT",
		Side:       domain.SideLong,
		PnL:        pnl,
		Commission: commission,
		ClosedAt:   closedAt,
	}
}

func TestComputeFromTrades_Empty(t *testing.T) {
	s := computeFromTrades("BTCUSDT", nil)

	if s.TotalTrades != 0 || s.WinRate != 0 || s.NetPnL != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
	if s.Symbol != "BTCUSDT" {
		t.Errorf("expected symbol carried through, got %q", s.Symbol)
	}
}

func TestComputeFromTrades_WinRateAndPnL(t *testing.T) {
	trades := []*domain.TradeRecord{
		trade("order_1", 100, 0.1, 1000),
		trade("order_2", -40, 0.1, 2000),
		trade("order_3", 60, 0.1, 3000),
		trade("order_4", -20, 0.1, 4000),
	}

	s := computeFromTrades("BTCUSDT", trades)

	if s.TotalTrades != 4 || s.Wins != 2 || s.Losses != 2 {
		t.Errorf("expected 4/2/2, got %d/%d/%d", s.TotalTrades, s.Wins, s.Losses)
	}
	if s.WinRate != 0.5 {
		t.Errorf("expected win rate 0.5, got %f", s.WinRate)
	}
	if math.Abs(s.TotalPnL-100) > 1e-9 {
		t.Errorf("expected total pnl 100, got %f", s.TotalPnL)
	}
	if math.Abs(s.TotalCommission-0.4) > 1e-9 {
		t.Errorf("expected commission 0.4, got %f", s.TotalCommission)
	}
	if math.Abs(s.NetPnL-99.6) > 1e-9 {
		t.Errorf("expected net pnl 99.6, got %f", s.NetPnL)
	}
	// Gross profit 160, gross loss 60.
	if math.Abs(s.ProfitFactor-160.0/60.0) > 1e-9 {
		t.Errorf("expected profit factor %f, got %f", 160.0/60.0, s.ProfitFactor)
	}
	if s.BestTrade != 100 || s.WorstTrade != -40 {
		t.Errorf("expected best 100 worst -40, got %f/%f", s.BestTrade, s.WorstTrade)
	}
}

func TestComputeProfitFactor_NoLosses(t *testing.T) {
	if got := computeProfitFactor(100, 0); !math.IsInf(got, 1) {
		t.Errorf("expected +Inf with no losses, got %f", got)
	}
	if got := computeProfitFactor(0, 0); got != 0 {
		t.Errorf("expected 0 for empty set, got %f", got)
	}
}

func TestComputeMaxDrawdown_PeakToTrough(t *testing.T) {
	// Cumulative: 100, 60, 110, 40, 70. Peak 110, trough 40.
	pnls := []float64{100, -40, 50, -70, 30}

	if got := computeMaxDrawdown(pnls); got != 70 {
		t.Errorf("expected drawdown 70, got %f", got)
	}
}

func TestComputeMaxDrawdown_MonotonicGains(t *testing.T) {
	if got := computeMaxDrawdown([]float64{10, 20, 30}); got != 0 {
		t.Errorf("expected no drawdown, got %f", got)
	}
}

func TestComputeMaxConsecutiveLosses_Streaks(t *testing.T) {
	// Streaks of 1 and 3.
	pnls := []float64{-10, 20, -5, -5, -5, 20}

	if got := computeMaxConsecutiveLosses(pnls); got != 3 {
		t.Errorf("expected streak 3, got %d", got)
	}
}

func TestComputeFromTrades_SortsByCloseTime(t *testing.T) {
	// Out of order: chronological pnls are 100, -40, -40 so the drawdown is
	// 80, not 40.
	trades := []*domain.TradeRecord{
		trade("order_3", -40, 0, 3000),
		trade("order_1", 100, 0, 1000),
		trade("order_2", -40, 0, 2000),
	}

	s := computeFromTrades("BTCUSDT", trades)

	if s.MaxDrawdown != 80 {
		t.Errorf("expected drawdown 80 after sorting, got %f", s.MaxDrawdown)
	}
	if s.MaxConsecutiveLosses != 2 {
		t.Errorf("expected 2 consecutive losses, got %d", s.MaxConsecutiveLosses)
	}
}

func TestComputePercentile_Interpolation(t *testing.T) {
	sorted := []float64{10, 20, 30, 40}

	if got := computePercentile(sorted, 0.50); got != 25 {
		t.Errorf("expected median 25, got %f", got)
	}
	if got := computePercentile(sorted, 0); got != 10 {
		t.Errorf("expected p0 10, got %f", got)
	}
	if got := computePercentile(sorted, 1); got != 40 {
		t.Errorf("expected p100 40, got %f", got)
	}
	if got := computePercentile([]float64{42}, 0.9); got != 42 {
		t.Errorf("single sample: expected 42, got %f", got)
	}
}

func TestComputeStddev_SampleFormula(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean := computeMean(values)

	// Sample stddev with n-1 denominator.
	want := math.Sqrt(32.0 / 7.0)
	if got := computeStddev(values, mean); math.Abs(got-want) > 1e-9 {
		t.Errorf("expected %f, got %f", want, got)
	}
	if got := computeStddev([]float64{1}, 1); got != 0 {
		t.Errorf("single sample: expected 0, got %f", got)
	}
}
