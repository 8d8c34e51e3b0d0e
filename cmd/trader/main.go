// Package main runs the live trading pipeline: Binance kline ingestion feeds
// the event bus, pattern detection and confluence matching produce entry
// signals, and the order manager simulates fills. Orders, trades, and candles
// are journaled to storage; metrics are served over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pattern-trader/internal/bus"
	"pattern-trader/internal/config"
	"pattern-trader/internal/ingestion"
	"pattern-trader/internal/journal"
	"pattern-trader/internal/notification"
	"pattern-trader/internal/observability"
	"pattern-trader/internal/order"
	"pattern-trader/internal/pattern"
	"pattern-trader/internal/processor"
	"pattern-trader/internal/signal"
	"pattern-trader/internal/state"
	"pattern-trader/internal/storage"
	chstore "pattern-trader/internal/storage/clickhouse"
	"pattern-trader/internal/storage/memory"
	"pattern-trader/internal/storage/migrations"
	pgstore "pattern-trader/internal/storage/postgres"
)

// stores holds the journal's storage implementations.
type stores struct {
	orders  storage.OrderStore
	trades  storage.TradeStore
	candles storage.CandleStore
	cleanup func()
}

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file")
	symbol := flag.String("symbol", "", "Trading pair symbol (overrides config)")
	interval := flag.String("interval", "", "Kline interval (overrides config)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of databases")
	webhookURL := flag.String("webhook-url", os.Getenv("WEBHOOK_URL"), "Webhook URL for signal notifications")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (overrides config)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

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
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *clickhouseDSN != "" {
		cfg.Storage.ClickhouseDSN = *clickhouseDSN
	}
	if *useMemory {
		cfg.Storage.UseMemory = true
	}
	if *webhookURL != "" {
		cfg.Webhook.URL = *webhookURL
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := createStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create stores")
	}
	defer st.cleanup()

	busCfg := cfg.BusConfig()
	busCfg.Instrumentation = observability.NewBusInstrumentation(nil)
	eventBus := bus.New(busCfg)

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
	recorder := journal.New(journal.Options{
		Bus:         eventBus,
		OrderStore:  st.orders,
		TradeStore:  st.trades,
		CandleStore: st.candles,
	})
	watcher := observability.NewWatcher(observability.WatcherOptions{Bus: eventBus})

	orch := processor.NewOrchestrator()
	orch.Register(watcher)
	orch.Register(recorder)
	orch.Register(manager)
	orch.Register(matcher)
	orch.Register(detector)
	if cfg.Webhook.URL != "" {
		orch.Register(notification.New(notification.Options{
			Bus: eventBus,
			Config: notification.Config{
				URL:     cfg.Webhook.URL,
				Timeout: time.Duration(cfg.Webhook.TimeoutSec * float64(time.Second)),
			},
		}))
	}

	eventBus.Start()
	if err := orch.StartAll(ctx); err != nil {
		log.Fatal().Err(err).Msg("start processors")
	}

	collector := ingestion.NewCollector(ingestion.Options{
		Bus:    eventBus,
		Config: cfg.StreamConfig(),
	})
	if err := collector.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("start market data collector")
	}

	go serveHTTP(cfg.MetricsAddr, eventBus, orch, manager, collector)

	log.Info().
		Str("symbol", cfg.Symbol).
		Str("interval", cfg.Interval).
		Str("metrics_addr", cfg.MetricsAddr).
		Bool("use_memory", cfg.Storage.UseMemory).
		Msg("trader started")

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := collector.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("collector did not stop cleanly")
	}
	orch.StopAll(shutdownCtx)
	eventBus.Stop()
	cancel()

	log.Info().
		Int("orders_placed", manager.PlacedCount()).
		Int("positions_closed", manager.ClosedCount()).
		Float64("realized_pnl", manager.RealizedPnL()).
		Msg("shutdown complete")
}

// createStores builds the journal's storage backends. Memory mode requires no
// external services; otherwise Postgres holds the trade journal and
// ClickHouse the candle history, each optional when its DSN is empty.
func createStores(ctx context.Context, cfg config.Config) (*stores, error) {
	if cfg.Storage.UseMemory {
		return &stores{
			orders:  memory.NewOrderStore(),
			trades:  memory.NewTradeStore(),
			candles: memory.NewCandleStore(),
			cleanup: func() {},
		}, nil
	}

	st := &stores{}
	var cleanups []func()
	st.cleanup = func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.Storage.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			st.cleanup()
			return nil, err
		}
		st.orders = pgstore.NewOrderStore(pool)
		st.trades = pgstore.NewTradeStore(pool)
	}

	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			st.cleanup()
			return nil, err
		}
		cleanups = append(cleanups, func() { conn.Close() })
		st.candles = chstore.NewCandleStore(conn)
	}

	return st, nil
}

// serveHTTP exposes /metrics, /health, and /status.
func serveHTTP(addr string, eventBus *bus.EventBus, orch *processor.Orchestrator, manager *order.Manager, collector *ingestion.Collector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"bus_running":        eventBus.Running(),
			"queue_depth":        eventBus.QueueSize(),
			"processors":         orch.Count(),
			"processors_running": orch.RunningCount(),
			"candles_received":   collector.CandleCount(),
			"orders_placed":      manager.PlacedCount(),
			"orders_filled":      manager.FilledCount(),
			"positions_open":     manager.OpenCount(),
			"positions_closed":   manager.ClosedCount(),
			"realized_pnl":       manager.RealizedPnL(),
		})
	})

	log.Info().Str("addr", addr).Msg("http server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("http server failed")
	}
}
