package processor

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrAllProcessorsFailed is returned by StartAll when no processor started.
var ErrAllProcessorsFailed = errors.New("all processors failed to start")

// Orchestrator manages a set of processors as one unit: start in registration
// order, stop in reverse order, tolerate individual failures.
type Orchestrator struct {
	processors []Processor
}

// NewOrchestrator creates an empty orchestrator.
func NewOrchestrator() *Orchestrator {
	return &Orchestrator{}
}

// Register appends a processor. Registration order determines start order and
// reverse stop order.
func (o *Orchestrator) Register(p Processor) {
	o.processors = append(o.processors, p)
	log.Info().
		Str("processor", p.Name()).
		Int("total", len(o.processors)).
		Msg("registered processor")
}

// StartAll starts processors in registration order. Individual failures are
// logged and skipped; an error is returned only when every processor fails.
func (o *Orchestrator) StartAll(ctx context.Context) error {
	log.Info().Int("count", len(o.processors)).Msg("starting processors")

	failed := 0
	for _, p := range o.processors {
		if err := p.Start(ctx); err != nil {
			log.Error().Err(err).Str("processor", p.Name()).Msg("processor failed to start")
			failed++
		}
	}

	switch {
	case len(o.processors) > 0 && failed == len(o.processors):
		return ErrAllProcessorsFailed
	case failed > 0:
		log.Warn().
			Int("failed", failed).
			Int("total", len(o.processors)).
			Msg("some processors failed to start")
	default:
		log.Info().Msg("all processors started")
	}
	return nil
}

// StopAll stops processors in reverse registration order, tolerating
// individual failures.
func (o *Orchestrator) StopAll(ctx context.Context) {
	log.Info().Int("count", len(o.processors)).Msg("stopping processors")

	failed := 0
	for i := len(o.processors) - 1; i >= 0; i-- {
		p := o.processors[i]
		if err := p.Stop(ctx); err != nil {
			log.Error().Err(err).Str("processor", p.Name()).Msg("processor failed to stop")
			failed++
		}
	}

	if failed > 0 {
		log.Warn().
			Int("failed", failed).
			Int("total", len(o.processors)).
			Msg("some processors failed to stop cleanly")
	} else {
		log.Info().Msg("all processors stopped")
	}
}

// Count returns the number of registered processors.
func (o *Orchestrator) Count() int {
	return len(o.processors)
}

// RunningCount returns the number of processors currently running.
func (o *Orchestrator) RunningCount() int {
	n := 0
	for _, p := range o.processors {
		if p.Running() {
			n++
		}
	}
	return n
}
