// Package processor provides the lifecycle base shared by all event
// processors and the orchestrator that coordinates them.
package processor

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"pattern-trader/internal/bus"
)

// Processor is a start/stoppable unit of event handling.
type Processor interface {
	// Name returns the processor identifier used in logs and handler names.
	Name() string
	// Start registers handlers and initializes state. Idempotent.
	Start(ctx context.Context) error
	// Stop unregisters handlers and releases state. Idempotent.
	Stop(ctx context.Context) error
	// Running reports whether the processor is started.
	Running() bool
}

// Hooks customize Base behavior. Register/Unregister manage bus
// subscriptions; OnStart/OnStop are optional state hooks.
type Hooks struct {
	// OnStart runs before handler registration. A failure propagates and
	// leaves the processor stopped.
	OnStart func(ctx context.Context) error
	// OnStop runs after handler unregistration. A failure is logged, not
	// propagated: the processor is marked stopped unconditionally.
	OnStop func(ctx context.Context) error
	// Register subscribes the processor's handlers on the bus.
	Register func() error
	// Unregister removes the processor's handlers from the bus.
	Unregister func() error
}

// Base implements the Stopped → Starting → Started → Stopping → Stopped
// lifecycle. Concrete processors embed it and supply Hooks.
type Base struct {
	name  string
	bus   *bus.EventBus
	hooks Hooks

	mu      sync.Mutex
	started bool
}

// NewBase creates a lifecycle base for a named processor.
func NewBase(name string, b *bus.EventBus, hooks Hooks) *Base {
	return &Base{name: name, bus: b, hooks: hooks}
}

// Name returns the processor identifier.
func (p *Base) Name() string {
	return p.name
}

// Bus returns the event bus the processor is wired to.
func (p *Base) Bus() *bus.EventBus {
	return p.bus
}

// Running reports whether the processor is started.
func (p *Base) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Start runs the pre-start hook, registers handlers, and marks the processor
// started. No-ops if already started. Hook or registration failure leaves the
// processor stopped and propagates.
func (p *Base) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		log.Debug().Str("processor", p.name).Msg("already started")
		return nil
	}

	log.Info().Str("processor", p.name).Msg("starting processor")

	if p.hooks.OnStart != nil {
		if err := p.hooks.OnStart(ctx); err != nil {
			log.Error().Err(err).Str("processor", p.name).Msg("processor start failed")
			return err
		}
	}
	if p.hooks.Register != nil {
		if err := p.hooks.Register(); err != nil {
			log.Error().Err(err).Str("processor", p.name).Msg("handler registration failed")
			return err
		}
	}

	p.started = true
	log.Info().Str("processor", p.name).Msg("processor started")
	return nil
}

// Stop unregisters handlers, runs the post-stop hook, and marks the processor
// stopped unconditionally so a failing hook cannot leave it stuck. No-ops if
// already stopped.
func (p *Base) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		log.Debug().Str("processor", p.name).Msg("already stopped")
		return nil
	}

	log.Info().Str("processor", p.name).Msg("stopping processor")

	if p.hooks.Unregister != nil {
		if err := p.hooks.Unregister(); err != nil {
			log.Error().Err(err).Str("processor", p.name).Msg("handler unregistration failed")
		}
	}
	if p.hooks.OnStop != nil {
		if err := p.hooks.OnStop(ctx); err != nil {
			log.Error().Err(err).Str("processor", p.name).Msg("processor stop hook failed")
		}
	}

	p.started = false
	log.Info().Str("processor", p.name).Msg("processor stopped")
	return nil
}
