package analytics

import (
	"context"
	"errors"

	"pattern-trader/internal/storage"
)

// ErrNoTrades is returned when no trades are available for analysis.
var ErrNoTrades = errors.New("no trades available for analysis")

// Analyzer computes performance summaries from a trade store.
type Analyzer struct {
	trades storage.TradeStore
}

// NewAnalyzer creates an analyzer over the given trade store.
func NewAnalyzer(trades storage.TradeStore) *Analyzer {
	return &Analyzer{trades: trades}
}

// Summarize computes the performance summary for every closed trade of a
// symbol. Returns ErrNoTrades when the store holds none.
func (a *Analyzer) Summarize(ctx context.Context, symbol string) (*Summary, error) {
	trades, err := a.trades.GetBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, ErrNoTrades
	}
	return computeFromTrades(symbol, trades), nil
}

// SummarizeRange computes the summary for trades closed within
// [start, end] (inclusive, milliseconds).
func (a *Analyzer) SummarizeRange(ctx context.Context, symbol string, start, end int64) (*Summary, error) {
	trades, err := a.trades.GetByTimeRange(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, ErrNoTrades
	}
	return computeFromTrades(symbol, trades), nil
}
