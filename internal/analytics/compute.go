// Package analytics computes trading performance summaries from closed trade
// records.
package analytics

import (
	"math"
	"sort"

	"pattern-trader/internal/domain"
)

// Summary aggregates the performance of a set of closed trades.
type Summary struct {
	Symbol string

	// Counts
	TotalTrades int
	Wins        int
	Losses      int
	WinRate     float64

	// P&L
	TotalPnL        float64
	TotalCommission float64
	NetPnL          float64
	ProfitFactor    float64

	// Per-trade distribution
	PnLMean   float64
	PnLMedian float64
	PnLStddev float64
	BestTrade float64
	WorstTrade float64

	// Order-dependent, on trades sorted by close time
	MaxDrawdown          float64
	MaxConsecutiveLosses int
}

// computeFromTrades calculates a summary from a slice of closed trades.
// Trades are sorted by ClosedAt ASC, OrderID ASC before computing the
// order-dependent metrics (MaxDrawdown, MaxConsecutiveLosses).
func computeFromTrades(symbol string, trades []*domain.TradeRecord) *Summary {
	n := len(trades)
	if n == 0 {
		return &Summary{Symbol: symbol}
	}

	sorted := make([]*domain.TradeRecord, n)
	copy(sorted, trades)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ClosedAt != sorted[j].ClosedAt {
			return sorted[i].ClosedAt < sorted[j].ClosedAt
		}
		return sorted[i].OrderID < sorted[j].OrderID
	})

	wins := 0
	losses := 0
	var totalPnL, totalCommission, grossProfit, grossLoss float64
	pnls := make([]float64, n)
	for i, t := range sorted {
		pnls[i] = t.PnL
		totalPnL += t.PnL
		totalCommission += t.Commission
		if t.PnL > 0 {
			wins++
			grossProfit += t.PnL
		} else {
			losses++
			grossLoss += -t.PnL
		}
	}

	sortedPnLs := make([]float64, n)
	copy(sortedPnLs, pnls)
	sort.Float64s(sortedPnLs)

	mean := computeMean(pnls)

	return &Summary{
		Symbol: symbol,

		TotalTrades: n,
		Wins:        wins,
		Losses:      losses,
		WinRate:     computeWinRate(wins, n),

		TotalPnL:        totalPnL,
		TotalCommission: totalCommission,
		NetPnL:          totalPnL - totalCommission,
		ProfitFactor:    computeProfitFactor(grossProfit, grossLoss),

		PnLMean:    mean,
		PnLMedian:  computePercentile(sortedPnLs, 0.50),
		PnLStddev:  computeStddev(pnls, mean),
		BestTrade:  sortedPnLs[n-1],
		WorstTrade: sortedPnLs[0],

		MaxDrawdown:          computeMaxDrawdown(pnls),
		MaxConsecutiveLosses: computeMaxConsecutiveLosses(pnls),
	}
}

// computeWinRate calculates win rate as wins / total.
func computeWinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// computeProfitFactor calculates gross profit / gross loss. With no losing
// trades the factor is meaningless, so it reports 0 for an empty set and
// +Inf for a loss-free profitable set.
func computeProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossLoss == 0 {
		if grossProfit == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return grossProfit / grossLoss
}

// computeMean calculates arithmetic mean.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation. sorted must be pre-sorted ASC.
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates the worst peak-to-trough on cumulative P&L.
// Values must be in chronological order.
func computeMaxDrawdown(pnls []float64) float64 {
	cumulative := 0.0
	peak := 0.0
	maxDrawdown := 0.0

	for _, p := range pnls {
		cumulative += p
		if cumulative > peak {
			peak = cumulative
		}
		drawdown := peak - cumulative
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveLosses finds the longest streak of pnl <= 0.
// Values must be in chronological order.
func computeMaxConsecutiveLosses(pnls []float64) int {
	maxStreak := 0
	currentStreak := 0

	for _, p := range pnls {
		if p <= 0 {
			currentStreak++
			if currentStreak > maxStreak {
				maxStreak = currentStreak
			}
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
