// Package notification delivers pipeline events to an external webhook.
// Delivery is best effort: a failed POST is logged and dropped, never
// retried into the pipeline.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"pattern-trader/internal/bus"
	"pattern-trader/internal/processor"
)

const processorName = "webhook-notifier"

// Config configures the webhook notifier.
type Config struct {
	// URL receives a JSON POST per notified event. Empty disables delivery.
	URL string
	// Timeout bounds each POST including retries. Defaults to 10s.
	Timeout time.Duration
	// RetryCount is the number of retries per POST. Defaults to 2.
	RetryCount int
}

// Notifier posts entry signals, closed positions, and pipeline errors to a
// webhook. Registered as a blocking handler so slow endpoints never stall
// the dispatch loop.
type Notifier struct {
	*processor.Base

	cfg    Config
	client *resty.Client

	sentCount   int64
	failedCount int64
}

// Options configures a Notifier.
type Options struct {
	Bus    *bus.EventBus
	Config Config
}

// New creates a webhook notifier processor.
func New(opts Options) *Notifier {
	cfg := opts.Config
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryCount == 0 {
		cfg.RetryCount = 2
	}

	n := &Notifier{
		cfg: cfg,
		client: resty.New().
			SetTimeout(cfg.Timeout).
			SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second),
	}
	n.Base = processor.NewBase(processorName, opts.Bus, processor.Hooks{
		Register:   n.register,
		Unregister: n.unregister,
	})
	return n
}

var notifiedKinds = []bus.EventType{bus.EntrySignal, bus.PositionClosed, bus.Error}

func (n *Notifier) register() error {
	for _, kind := range notifiedKinds {
		err := n.Bus().Subscribe(kind, bus.Handler{
			Name: processorName,
			Kind: bus.HandlerBlocking,
			Fn:   n.onEvent,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) unregister() error {
	for _, kind := range notifiedKinds {
		if err := n.Bus().Unsubscribe(kind, processorName); err != nil {
			return err
		}
	}
	return nil
}

func (n *Notifier) onEvent(ctx context.Context, ev *bus.Event) error {
	if n.cfg.URL == "" {
		return nil
	}

	body := map[string]any{
		"kind":       ev.Type.String(),
		"source":     ev.Source,
		"created_at": ev.CreatedAt.UTC().Format(time.RFC3339Nano),
		"payload":    wirePayload(ev.Payload),
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(n.cfg.URL)
	if err != nil {
		n.failedCount++
		log.Warn().Err(err).Stringer("kind", ev.Type).Msg("webhook delivery failed")
		return nil
	}
	if resp.IsError() {
		n.failedCount++
		log.Warn().
			Int("status", resp.StatusCode()).
			Stringer("kind", ev.Type).
			Msg("webhook delivery rejected")
		return nil
	}

	n.sentCount++
	log.Debug().Stringer("kind", ev.Type).Msg("webhook delivered")
	return nil
}

// wirePayload strips values that do not serialize cleanly to JSON, keeping
// the flat primitive fields every event carries alongside its typed values.
func wirePayload(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		switch v.(type) {
		case string, bool,
			int, int32, int64,
			float32, float64:
			out[k] = v
		default:
			out[k] = fmt.Sprintf("%v", v)
		}
	}
	return out
}

// SentCount returns the number of successful deliveries.
func (n *Notifier) SentCount() int64 { return n.sentCount }

// FailedCount returns the number of failed deliveries.
func (n *Notifier) FailedCount() int64 { return n.failedCount }
