// Package config loads the application configuration: documented defaults,
// optionally overlaid by a YAML file. Zero values in the file fall back to
// defaults, matching the merge behavior of the per-component Config structs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pattern-trader/internal/bus"
	"pattern-trader/internal/ingestion"
	"pattern-trader/internal/order"
	"pattern-trader/internal/pattern"
	"pattern-trader/internal/signal"
	"pattern-trader/internal/state"
)

// Config is the full application configuration.
type Config struct {
	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`

	Bus struct {
		QueueSize         int     `yaml:"queue_size"`
		HandlerTimeoutSec float64 `yaml:"handler_timeout_sec"`
		DrainTimeoutSec   float64 `yaml:"drain_timeout_sec"`
		Workers           int     `yaml:"workers"`
	} `yaml:"bus"`

	Detector struct {
		BodyRatioMin  float64 `yaml:"body_ratio_min"`
		GapPercentMin float64 `yaml:"gap_percent_min"`
		CandleWindow  int     `yaml:"candle_window"`
		PatternTTL    int     `yaml:"pattern_ttl"`
	} `yaml:"detector"`

	Matcher struct {
		MinConfidence     float64 `yaml:"min_confidence"`
		MinRiskReward     float64 `yaml:"min_risk_reward"`
		ProximityPercent  float64 `yaml:"proximity_percent"`
		PatternTimeoutSec float64 `yaml:"pattern_timeout_sec"`
	} `yaml:"matcher"`

	Order struct {
		Size           float64 `yaml:"size"`
		CommissionRate float64 `yaml:"commission_rate"`
		Simulate       *bool   `yaml:"simulate"`
		AutoClose      bool    `yaml:"auto_close"`
	} `yaml:"order"`

	State struct {
		CandleWindow    int `yaml:"candle_window"`
		RetentionWindow int `yaml:"retention_window"`
	} `yaml:"state"`

	Stream struct {
		Endpoint             string  `yaml:"endpoint"`
		ReconnectDelaySec    float64 `yaml:"reconnect_delay_sec"`
		MaxReconnectDelaySec float64 `yaml:"max_reconnect_delay_sec"`
		MaxReconnectAttempts int     `yaml:"max_reconnect_attempts"`
	} `yaml:"stream"`

	Storage struct {
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickhouseDSN string `yaml:"clickhouse_dsn"`
		UseMemory     bool   `yaml:"use_memory"`
	} `yaml:"storage"`

	Webhook struct {
		URL        string  `yaml:"url"`
		TimeoutSec float64 `yaml:"timeout_sec"`
	} `yaml:"webhook"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the documented default configuration.
func Default() Config {
	var c Config
	c.Symbol = "BTCUSDT"
	c.Interval = "15m"
	c.Storage.UseMemory = true
	c.MetricsAddr = ":9090"
	return c
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// BusConfig converts to the event bus configuration.
func (c Config) BusConfig() bus.Config {
	return bus.Config{
		QueueSize:      c.Bus.QueueSize,
		HandlerTimeout: seconds(c.Bus.HandlerTimeoutSec),
		DrainTimeout:   seconds(c.Bus.DrainTimeoutSec),
		Workers:        c.Bus.Workers,
	}
}

// DetectorConfig converts to the pattern detector configuration.
func (c Config) DetectorConfig() pattern.Config {
	return pattern.Config{
		BodyRatioMin:  c.Detector.BodyRatioMin,
		GapPercentMin: c.Detector.GapPercentMin,
		CandleWindow:  c.Detector.CandleWindow,
		PatternTTL:    c.Detector.PatternTTL,
	}
}

// MatcherConfig converts to the signal matcher configuration.
func (c Config) MatcherConfig() signal.Config {
	return signal.Config{
		MinConfidence:    c.Matcher.MinConfidence,
		MinRiskReward:    c.Matcher.MinRiskReward,
		ProximityPercent: c.Matcher.ProximityPercent,
		PatternTimeout:   seconds(c.Matcher.PatternTimeoutSec),
	}
}

// OrderConfig converts to the order manager configuration.
func (c Config) OrderConfig() order.Config {
	return order.Config{
		Symbol:         c.Symbol,
		OrderSize:      c.Order.Size,
		CommissionRate: c.Order.CommissionRate,
		Simulate:       c.Order.Simulate,
		AutoClose:      c.Order.AutoClose,
	}
}

// StateConfig converts to the state store configuration.
func (c Config) StateConfig() state.Config {
	return state.Config{
		CandleWindow:    c.State.CandleWindow,
		RetentionWindow: c.State.RetentionWindow,
	}
}

// StreamConfig converts to the market data collector configuration.
func (c Config) StreamConfig() ingestion.Config {
	return ingestion.Config{
		Endpoint:             c.Stream.Endpoint,
		Symbol:               c.Symbol,
		Interval:             c.Interval,
		ReconnectDelay:       seconds(c.Stream.ReconnectDelaySec),
		MaxReconnectDelay:    seconds(c.Stream.MaxReconnectDelaySec),
		MaxReconnectAttempts: c.Stream.MaxReconnectAttempts,
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
