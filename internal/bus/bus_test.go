package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testEvent(t *testing.T, kind EventType) *Event {
	t.Helper()
	ev, err := NewEvent(kind, map[string]any{"n": 1}, "test")
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	return ev
}

func namedHandler(name string, fn HandlerFunc) Handler {
	return Handler{Name: name, Kind: HandlerInline, Fn: fn}
}

func TestSubscribe_IdempotentByName(t *testing.T) {
	b := New(Config{})
	h := namedHandler("h1", func(context.Context, *Event) error { return nil })

	if err := b.Subscribe(CandleClosed, h); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := b.Subscribe(CandleClosed, h); err != nil {
		t.Fatalf("re-subscribe: %v", err)
	}
	if got := b.SubscriberCount(CandleClosed); got != 1 {
		t.Errorf("expected 1 subscriber after duplicate subscribe, got %d", got)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	b := New(Config{})

	err := b.Subscribe(numEventTypes, namedHandler("h", func(context.Context, *Event) error { return nil }))
	if !errors.Is(err, ErrInvalidEventType) {
		t.Errorf("unknown kind: expected ErrInvalidEventType, got %v", err)
	}
	if err := b.Subscribe(CandleClosed, Handler{Name: "h"}); !errors.Is(err, ErrNilHandler) {
		t.Errorf("nil fn: expected ErrNilHandler, got %v", err)
	}
	if err := b.Subscribe(CandleClosed, Handler{Fn: func(context.Context, *Event) error { return nil }}); !errors.Is(err, ErrUnnamedHandler) {
		t.Errorf("empty name: expected ErrUnnamedHandler, got %v", err)
	}
}

func TestUnsubscribe_AbsentIsNoOp(t *testing.T) {
	b := New(Config{})
	if err := b.Unsubscribe(CandleClosed, "ghost"); err != nil {
		t.Errorf("expected no-op, got %v", err)
	}

	b.Subscribe(CandleClosed, namedHandler("h1", func(context.Context, *Event) error { return nil }))
	if err := b.Unsubscribe(CandleClosed, "h1"); err != nil {
		t.Errorf("unsubscribe: %v", err)
	}
	if got := b.SubscriberCount(CandleClosed); got != 0 {
		t.Errorf("expected 0 subscribers, got %d", got)
	}
}

func TestEmit_SynchronousAndErrorIsolated(t *testing.T) {
	b := New(Config{})

	var calls []string
	b.Subscribe(ZoneDetected, namedHandler("failing", func(context.Context, *Event) error {
		calls = append(calls, "failing")
		return errors.New("boom")
	}))
	b.Subscribe(ZoneDetected, namedHandler("panicking", func(context.Context, *Event) error {
		calls = append(calls, "panicking")
		panic("boom")
	}))
	b.Subscribe(ZoneDetected, namedHandler("ok", func(context.Context, *Event) error {
		calls = append(calls, "ok")
		return nil
	}))

	if err := b.Emit(testEvent(t, ZoneDetected)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(calls) != 3 {
		t.Errorf("expected all 3 handlers called despite failures, got %v", calls)
	}
}

func TestEmit_MalformedEventFails(t *testing.T) {
	b := New(Config{})
	if err := b.Emit(nil); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("nil event: expected ErrInvalidEvent, got %v", err)
	}
	if err := b.Emit(&Event{Type: CandleClosed}); !errors.Is(err, ErrNilPayload) {
		t.Errorf("nil payload: expected ErrNilPayload, got %v", err)
	}
}

func TestPublish_BeforeStartFails(t *testing.T) {
	b := New(Config{})
	if err := b.Publish(testEvent(t, CandleClosed)); !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
}

func TestPublish_QueueFull(t *testing.T) {
	b := New(Config{QueueSize: 1, PollInterval: time.Hour})
	// No Start: enqueue directly against capacity by flipping the flag.
	b.running.Store(true)

	if err := b.Publish(testEvent(t, CandleClosed)); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := b.Publish(testEvent(t, CandleClosed)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestPublish_FIFOAcrossEvents(t *testing.T) {
	b := New(Config{})
	b.Start()
	defer b.Stop()

	var mu sync.Mutex
	var order []int

	// Two handlers per event: the slow one delays the fast one's next event.
	b.Subscribe(CandleClosed, namedHandler("slow", func(_ context.Context, ev *Event) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	}))
	b.Subscribe(CandleClosed, namedHandler("recorder", func(_ context.Context, ev *Event) error {
		n, _ := Int64(ev.Payload, "n")
		mu.Lock()
		order = append(order, int(n))
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 5; i++ {
		ev, err := NewEvent(CandleClosed, map[string]any{"n": i}, "test")
		if err != nil {
			t.Fatalf("event %d: %v", i, err)
		}
		if err := b.Publish(ev); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for dispatch, got %d events", n)
		}
		time.Sleep(5 * time.Millisecond)
	}

	for i, n := range order {
		if n != i {
			t.Fatalf("FIFO violated: got order %v", order)
		}
	}
}

func TestDispatch_SlowHandlerDoesNotBlockFastSibling(t *testing.T) {
	b := New(Config{HandlerTimeout: 100 * time.Millisecond})
	b.Start()
	defer b.Stop()

	release := make(chan struct{})
	var fastRan atomic.Bool

	b.Subscribe(EntrySignal, namedHandler("stuck", func(context.Context, *Event) error {
		<-release // never returns within the timeout
		return nil
	}))
	b.Subscribe(EntrySignal, namedHandler("fast", func(context.Context, *Event) error {
		fastRan.Store(true)
		return nil
	}))

	start := time.Now()
	if err := b.Publish(testEvent(t, EntrySignal)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !fastRan.Load() {
		if time.Now().After(deadline) {
			t.Fatal("fast handler never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("fast handler delayed %v by stuck sibling", elapsed)
	}
	close(release)
}

func TestDispatch_TimeoutDoesNotAffectNextEvent(t *testing.T) {
	b := New(Config{HandlerTimeout: 30 * time.Millisecond})
	b.Start()
	defer b.Stop()

	var handled atomic.Int32
	b.Subscribe(GapDetected, namedHandler("sometimes-stuck", func(_ context.Context, ev *Event) error {
		n, _ := Int64(ev.Payload, "n")
		if n == 0 {
			time.Sleep(time.Second)
			return nil
		}
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 2; i++ {
		ev, _ := NewEvent(GapDetected, map[string]any{"n": i}, "test")
		if err := b.Publish(ev); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for handled.Load() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("second event never dispatched after first timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStop_DrainsQueue(t *testing.T) {
	b := New(Config{})
	b.Start()

	var handled atomic.Int32
	b.Subscribe(CandleClosed, namedHandler("counter", func(context.Context, *Event) error {
		handled.Add(1)
		return nil
	}))

	for i := 0; i < 50; i++ {
		if err := b.Publish(testEvent(t, CandleClosed)); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	b.Stop()

	if got := handled.Load(); got != 50 {
		t.Errorf("expected all 50 events dispatched before shutdown, got %d", got)
	}
}

func TestStop_Idempotent(t *testing.T) {
	b := New(Config{})
	b.Start()
	b.Stop()
	b.Stop() // second stop must not panic or block

	if b.Running() {
		t.Error("bus still running after stop")
	}
}

func TestStart_Idempotent(t *testing.T) {
	b := New(Config{})
	b.Start()
	b.Start()
	defer b.Stop()

	if !b.Running() {
		t.Error("bus not running after start")
	}
}

func TestBlockingHandlerOffload(t *testing.T) {
	b := New(Config{HandlerTimeout: 500 * time.Millisecond, Workers: 2})
	b.Start()
	defer b.Stop()

	var ran atomic.Bool
	b.Subscribe(OrderPlaced, Handler{
		Name: "io-bound",
		Kind: HandlerBlocking,
		Fn: func(context.Context, *Event) error {
			time.Sleep(20 * time.Millisecond)
			ran.Store(true)
			return nil
		},
	})

	if err := b.Publish(testEvent(t, OrderPlaced)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !ran.Load() {
		if time.Now().After(deadline) {
			t.Fatal("blocking handler never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPending_CoversInFlightCascades(t *testing.T) {
	b := New(Config{})
	b.Start()
	defer b.Stop()

	var candles, zones atomic.Int32
	b.Subscribe(CandleClosed, namedHandler("cascading", func(_ context.Context, _ *Event) error {
		// A handler publishing a follow-up keeps Pending above zero until
		// the cascade itself resolves.
		time.Sleep(20 * time.Millisecond)
		candles.Add(1)
		return b.Publish(testEvent(t, ZoneDetected))
	}))
	b.Subscribe(ZoneDetected, namedHandler("leaf", func(context.Context, *Event) error {
		zones.Add(1)
		return nil
	}))

	if err := b.Publish(testEvent(t, CandleClosed)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := b.Pending(); got < 1 {
		t.Errorf("expected pending >= 1 right after publish, got %d", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for b.Pending() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("pending never drained, still %d", b.Pending())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if candles.Load() != 1 || zones.Load() != 1 {
		t.Errorf("expected cascade fully handled at pending 0, got candles=%d zones=%d",
			candles.Load(), zones.Load())
	}
}
