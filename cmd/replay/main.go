// Package main replays a CSV candle history through the trading pipeline and
// prints a trade summary. Runs are deterministic: fills are simulated and
// positions auto-close at the take profit.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pattern-trader/internal/analytics"
	"pattern-trader/internal/bus"
	"pattern-trader/internal/config"
	"pattern-trader/internal/journal"
	"pattern-trader/internal/order"
	"pattern-trader/internal/pattern"
	"pattern-trader/internal/processor"
	"pattern-trader/internal/signal"
	"pattern-trader/internal/state"
	"pattern-trader/internal/storage/memory"
)

const replaySource = "replay"

func main() {
	candlesPath := flag.String("candles", "", "Path to candle CSV file (required)")
	configPath := flag.String("config", "", "Path to YAML configuration file")
	symbol := flag.String("symbol", "", "Trading pair symbol (overrides config)")
	interval := flag.String("interval", "", "Kline interval (overrides config)")
	outputJSON := flag.Bool("json", false, "Output summary as JSON")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if *candlesPath == "" {
		log.Fatal().Msg("--candles is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	if *symbol != "" {
		cfg.Symbol = *symbol
	}
	if *interval != "" {
		cfg.Interval = *interval
	}
	cfg.Order.AutoClose = true

	candles, err := readCandles(*candlesPath)
	if err != nil {
		log.Fatal().Err(err).Msg("read candle file")
	}
	if len(candles) == 0 {
		log.Fatal().Msg("candle file contains no candles")
	}

	ctx := context.Background()

	eventBus := bus.New(cfg.BusConfig())
	stateStore, err := state.New(cfg.StateConfig())
	if err != nil {
		log.Fatal().Err(err).Msg("create state store")
	}

	detector := pattern.New(pattern.Options{
		Bus:    eventBus,
		Config: cfg.DetectorConfig(),
		Store:  stateStore,
	})
	matcher := signal.New(signal.Options{
		Bus:    eventBus,
		Config: cfg.MatcherConfig(),
	})
	manager := order.New(order.Options{
		Bus:    eventBus,
		Config: cfg.OrderConfig(),
	})

	tradeStore := memory.NewTradeStore()
	recorder := journal.New(journal.Options{
		Bus:        eventBus,
		OrderStore: memory.NewOrderStore(),
		TradeStore: tradeStore,
	})

	orch := processor.NewOrchestrator()
	orch.Register(recorder)
	orch.Register(manager)
	orch.Register(matcher)
	orch.Register(detector)

	eventBus.Start()
	if err := orch.StartAll(ctx); err != nil {
		log.Fatal().Err(err).Msg("start processors")
	}

	start := time.Now()
	published := 0
	for _, row := range candles {
		ev, err := bus.NewEvent(bus.CandleClosed, map[string]any{
			"symbol":    cfg.Symbol,
			"interval":  cfg.Interval,
			"open":      row.open,
			"high":      row.high,
			"low":       row.low,
			"close":     row.close,
			"volume":    row.volume,
			"timestamp": row.timestamp,
		}, replaySource)
		if err != nil {
			log.Fatal().Err(err).Msg("build candle event")
		}
		// Retry briefly on a full queue so bursts never lose candles.
		for {
			err = eventBus.Publish(ev)
			if err == nil {
				published++
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	// Pending covers both queued events and in-flight dispatch, so cascades
	// (candle -> pattern -> signal -> order) fully resolve before we read.
	for eventBus.Pending() > 0 {
		time.Sleep(10 * time.Millisecond)
	}

	orch.StopAll(ctx)
	eventBus.Stop()

	trades, err := tradeStore.GetBySymbol(ctx, cfg.Symbol)
	if err != nil {
		log.Fatal().Err(err).Msg("read trades")
	}
	totalPnL, _ := tradeStore.TotalPnL(ctx, cfg.Symbol)

	summary := map[string]any{
		"symbol":           cfg.Symbol,
		"candles_replayed": published,
		"zones_detected":   detector.ZoneCount(),
		"gaps_detected":    detector.GapCount(),
		"signals_emitted":  matcher.SignalCount(),
		"orders_placed":    manager.PlacedCount(),
		"orders_filled":    manager.FilledCount(),
		"positions_closed": manager.ClosedCount(),
		"realized_pnl":     totalPnL,
		"duration_ms":      time.Since(start).Milliseconds(),
	}

	perf, err := analytics.NewAnalyzer(tradeStore).Summarize(ctx, cfg.Symbol)
	if err == nil {
		summary["win_rate"] = perf.WinRate
		summary["net_pnl"] = perf.NetPnL
		summary["max_drawdown"] = perf.MaxDrawdown
		summary["max_consecutive_losses"] = perf.MaxConsecutiveLosses
		// +Inf is not representable in JSON.
		if !math.IsInf(perf.ProfitFactor, 1) {
			summary["profit_factor"] = perf.ProfitFactor
		}
	}

	if *outputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			log.Fatal().Err(err).Msg("encode summary")
		}
		return
	}

	fmt.Printf("Replay summary for %s\n", cfg.Symbol)
	fmt.Printf("  candles replayed:  %d\n", published)
	fmt.Printf("  zones detected:    %d\n", detector.ZoneCount())
	fmt.Printf("  gaps detected:     %d\n", detector.GapCount())
	fmt.Printf("  signals emitted:   %d\n", matcher.SignalCount())
	fmt.Printf("  orders placed:     %d\n", manager.PlacedCount())
	fmt.Printf("  positions closed:  %d\n", manager.ClosedCount())
	fmt.Printf("  realized P&L:      %.4f\n", totalPnL)
	if err == nil {
		fmt.Printf("  win rate:          %.2f%%\n", perf.WinRate*100)
		fmt.Printf("  profit factor:     %.2f\n", perf.ProfitFactor)
		fmt.Printf("  net P&L:           %.4f\n", perf.NetPnL)
		fmt.Printf("  max drawdown:      %.4f\n", perf.MaxDrawdown)
	}
	for _, t := range trades {
		fmt.Printf("    %s %s entry=%.4f exit=%.4f pnl=%.4f\n",
			t.OrderID, t.Side, t.EntryPrice, t.ExitPrice, t.PnL)
	}
}

type candleRow struct {
	timestamp int64
	open      float64
	high      float64
	low       float64
	close     float64
	volume    float64
}

// readCandles parses a CSV with columns timestamp,open,high,low,close,volume.
// A header row is detected and skipped.
func readCandles(path string) ([]candleRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	var candles []candleRow
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		line++
		if len(record) < 6 {
			return nil, fmt.Errorf("line %d: expected 6 columns, got %d", line, len(record))
		}

		ts, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			if line == 1 {
				continue // header row
			}
			return nil, fmt.Errorf("line %d: timestamp: %w", line, err)
		}

		var row candleRow
		row.timestamp = ts
		fields := []*float64{&row.open, &row.high, &row.low, &row.close, &row.volume}
		for i, dst := range fields {
			v, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %d: %w", line, i+2, err)
			}
			*dst = v
		}
		candles = append(candles, row)
	}
	return candles, nil
}
