// Package bus provides the in-process pub-sub broker for the trading
// pipeline. It offers two dispatch paths: Emit fans out synchronously to
// current subscribers, Publish enqueues onto a FIFO queue drained by a single
// dispatcher goroutine with per-handler timeout isolation.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// HandlerKind declares how the dispatcher schedules a handler. The capability
// is supplied at registration so no runtime probing is needed.
type HandlerKind int

const (
	// HandlerInline marks a handler that returns quickly and is run directly
	// under the dispatch timeout.
	HandlerInline HandlerKind = iota
	// HandlerBlocking marks a handler that may block on I/O; it is offloaded
	// to the worker pool so it cannot stall the dispatch loop.
	HandlerBlocking
)

// HandlerFunc processes one event. The context carries the per-invocation
// deadline on the async path.
type HandlerFunc func(ctx context.Context, ev *Event) error

// Handler is a named subscription. Name is the identity used for idempotent
// subscribe and for unsubscribe; two subscriptions with the same name on the
// same event type never increase fan-out.
type Handler struct {
	Name string
	Kind HandlerKind
	Fn   HandlerFunc
}

// Instrumentation receives bus telemetry. Implementations must be safe for
// concurrent use; all methods are called on hot paths and should not block.
type Instrumentation interface {
	EventPublished(kind string)
	EventDropped(kind string)
	HandlerError(handler string)
	HandlerTimeout(handler string)
	QueueDepth(depth int)
	DispatchDuration(seconds float64)
}

// Config controls bus behavior. Zero-value fields fall back to defaults.
type Config struct {
	// QueueSize is the capacity of the async publish queue.
	QueueSize int
	// HandlerTimeout bounds each handler invocation on the async path.
	HandlerTimeout time.Duration
	// DrainTimeout bounds how long Stop waits for the queue to drain.
	DrainTimeout time.Duration
	// PollInterval is the dispatcher liveness check interval.
	PollInterval time.Duration
	// Workers is the worker pool size for blocking handlers.
	Workers int
	// Instrumentation receives bus telemetry. Nil disables reporting.
	Instrumentation Instrumentation
}

// DefaultConfig returns the documented default bus configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize:      1024,
		HandlerTimeout: 1 * time.Second,
		DrainTimeout:   5 * time.Second,
		PollInterval:   100 * time.Millisecond,
		Workers:        8,
	}
}

// merged returns cfg with zero-value fields replaced by defaults.
func (c Config) merged() Config {
	def := DefaultConfig()
	if c.QueueSize <= 0 {
		c.QueueSize = def.QueueSize
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = def.HandlerTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = def.DrainTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	return c
}

// EventBus is an instance-scoped broker. The subscriber registry is a fixed
// array indexed by EventType, each slot owning its own handler list.
type EventBus struct {
	cfg Config

	mu   sync.RWMutex
	subs [numEventTypes][]Handler

	queue    chan *Event
	pending  atomic.Int64 // enqueued or mid-dispatch events
	running  atomic.Bool
	cancel   context.CancelFunc
	loopDone sync.WaitGroup

	workers chan struct{} // semaphore for blocking handler offload
}

// New creates an event bus. Call Start before using Publish; Emit and
// Subscribe work immediately.
func New(cfg Config) *EventBus {
	cfg = cfg.merged()
	return &EventBus{
		cfg:     cfg,
		queue:   make(chan *Event, cfg.QueueSize),
		workers: make(chan struct{}, cfg.Workers),
	}
}

// Subscribe registers a handler for an event type. Subscribing an identical
// handler (same name) again is a no-op.
func (b *EventBus) Subscribe(t EventType, h Handler) error {
	if !t.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidEventType, int(t))
	}
	if h.Fn == nil {
		return ErrNilHandler
	}
	if h.Name == "" {
		return ErrUnnamedHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.subs[t] {
		if existing.Name == h.Name {
			return nil
		}
	}
	b.subs[t] = append(b.subs[t], h)
	return nil
}

// Unsubscribe removes the named handler from an event type. Removing an
// absent handler is a no-op.
func (b *EventBus) Unsubscribe(t EventType, name string) error {
	if !t.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidEventType, int(t))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i, h := range b.subs[t] {
		if h.Name == name {
			b.subs[t] = append(b.subs[t][:i], b.subs[t][i+1:]...)
			return nil
		}
	}
	return nil
}

// SubscriberCount returns the number of handlers registered for an event type.
func (b *EventBus) SubscriberCount(t EventType) int {
	if !t.IsValid() {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[t])
}

// Emit synchronously fans the event out to current subscribers. A handler
// error or panic is logged and does not stop remaining handlers. There is no
// timeout isolation on this path.
func (b *EventBus) Emit(ev *Event) error {
	if err := validate(ev); err != nil {
		return err
	}

	for _, h := range b.snapshot(ev.Type) {
		b.invoke(context.Background(), h, ev)
	}
	return nil
}

// Publish enqueues the event for asynchronous dispatch without blocking.
// Fails with ErrNotStarted before Start and ErrQueueFull when the queue is at
// capacity.
func (b *EventBus) Publish(ev *Event) error {
	if err := validate(ev); err != nil {
		return err
	}
	if !b.running.Load() {
		return ErrNotStarted
	}

	b.pending.Add(1)
	select {
	case b.queue <- ev:
		if instr := b.cfg.Instrumentation; instr != nil {
			instr.EventPublished(ev.Type.String())
			instr.QueueDepth(len(b.queue))
		}
		return nil
	default:
		b.pending.Add(-1)
		if instr := b.cfg.Instrumentation; instr != nil {
			instr.EventDropped(ev.Type.String())
		}
		return fmt.Errorf("%w: capacity %d", ErrQueueFull, b.cfg.QueueSize)
	}
}

// Start launches the dispatcher goroutine. Idempotent.
func (b *EventBus) Start() {
	if !b.running.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel

	b.loopDone.Add(1)
	go b.dispatchLoop(ctx)
}

// Stop flips the running flag, waits up to DrainTimeout for queued events to
// finish dispatching, then cancels the dispatcher. On drain timeout remaining
// events are abandoned with a logged warning.
func (b *EventBus) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}

	deadline := time.Now().Add(b.cfg.DrainTimeout)
	for b.pending.Load() > 0 {
		if time.Now().After(deadline) {
			log.Warn().
				Int64("pending", b.pending.Load()).
				Dur("timeout", b.cfg.DrainTimeout).
				Msg("event queue did not drain before shutdown")
			break
		}
		time.Sleep(b.cfg.PollInterval / 10)
	}

	b.cancel()
	b.loopDone.Wait()
}

// Running reports whether the async dispatch loop is active.
func (b *EventBus) Running() bool {
	return b.running.Load()
}

// QueueSize returns the number of events waiting for dispatch.
func (b *EventBus) QueueSize() int {
	return len(b.queue)
}

// Pending returns the number of events enqueued or mid-dispatch. It reaches
// zero only once every published event, including cascades its handlers
// published, has fully resolved.
func (b *EventBus) Pending() int64 {
	return b.pending.Load()
}

// dispatchLoop is the single queue reader. Events dispatch in FIFO order and
// each event's handler set fully resolves (complete or timeout) before the
// next event's dispatch begins.
func (b *EventBus) dispatchLoop(ctx context.Context) {
	defer b.loopDone.Done()

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			b.dispatch(ctx, ev)
			b.pending.Add(-1)
		case <-ticker.C:
			// Liveness check: exit once stopped and drained.
			if !b.running.Load() && len(b.queue) == 0 {
				return
			}
		}
	}
}

// dispatch runs every current subscriber for the event. Handlers for one
// event run concurrently with each other; each invocation races a fixed
// timeout and the loser is abandoned.
func (b *EventBus) dispatch(ctx context.Context, ev *Event) {
	handlers := b.snapshot(ev.Type)
	if len(handlers) == 0 {
		return
	}

	log.Debug().
		Stringer("type", ev.Type).
		Str("source", ev.Source).
		Int("handlers", len(handlers)).
		Msg("dispatching event")

	start := time.Now()
	var wg sync.WaitGroup
	for _, h := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			b.invokeTimed(ctx, h, ev)
		}(h)
	}
	wg.Wait()

	if instr := b.cfg.Instrumentation; instr != nil {
		instr.DispatchDuration(time.Since(start).Seconds())
		instr.QueueDepth(len(b.queue))
	}
}

// invokeTimed runs one handler bounded by HandlerTimeout. A blocking handler
// first takes a worker-pool slot; slot acquisition counts against the same
// timeout. Timeout or error is logged and never affects sibling handlers.
func (b *EventBus) invokeTimed(ctx context.Context, h Handler, ev *Event) {
	invCtx, cancel := context.WithTimeout(ctx, b.cfg.HandlerTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		if h.Kind == HandlerBlocking {
			select {
			case b.workers <- struct{}{}:
				defer func() { <-b.workers }()
			case <-invCtx.Done():
				done <- invCtx.Err()
				return
			}
		}
		done <- b.run(invCtx, h, ev)
	}()

	select {
	case err := <-done:
		if err != nil {
			if instr := b.cfg.Instrumentation; instr != nil {
				instr.HandlerError(h.Name)
			}
			log.Error().
				Err(err).
				Str("handler", h.Name).
				Stringer("type", ev.Type).
				Msg("event handler failed")
		}
	case <-invCtx.Done():
		// Abandon the invocation; its goroutine finishes on its own.
		if instr := b.cfg.Instrumentation; instr != nil {
			instr.HandlerTimeout(h.Name)
		}
		log.Warn().
			Str("handler", h.Name).
			Stringer("type", ev.Type).
			Dur("timeout", b.cfg.HandlerTimeout).
			Msg("event handler exceeded timeout")
	}
}

// invoke runs one handler on the synchronous path, logging failures.
func (b *EventBus) invoke(ctx context.Context, h Handler, ev *Event) {
	if err := b.run(ctx, h, ev); err != nil {
		log.Error().
			Err(err).
			Str("handler", h.Name).
			Stringer("type", ev.Type).
			Msg("event handler failed")
	}
}

// run executes the handler converting a panic into an error so one subscriber
// cannot take down the loop or its siblings.
func (b *EventBus) run(ctx context.Context, h Handler, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Fn(ctx, ev)
}

// snapshot copies the current handler list for an event type so dispatch does
// not hold the lock while handlers run.
func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.subs[t]) == 0 {
		return nil
	}
	out := make([]Handler, len(b.subs[t]))
	copy(out, b.subs[t])
	return out
}
