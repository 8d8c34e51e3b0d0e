package processor

import (
	"context"
	"errors"
	"testing"
)

// fakeProcessor records lifecycle calls for orchestration tests.
type fakeProcessor struct {
	name     string
	startErr error
	running  bool
	order    *[]string
}

func (f *fakeProcessor) Name() string { return f.name }

func (f *fakeProcessor) Start(context.Context) error {
	if f.order != nil {
		*f.order = append(*f.order, "start:"+f.name)
	}
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeProcessor) Stop(context.Context) error {
	if f.order != nil {
		*f.order = append(*f.order, "stop:"+f.name)
	}
	f.running = false
	return nil
}

func (f *fakeProcessor) Running() bool { return f.running }

func TestStartAll_PartialFailureTolerated(t *testing.T) {
	o := NewOrchestrator()
	good := &fakeProcessor{name: "good"}
	bad := &fakeProcessor{name: "bad", startErr: errors.New("boom")}
	o.Register(bad)
	o.Register(good)

	if err := o.StartAll(context.Background()); err != nil {
		t.Fatalf("partial failure must not raise, got %v", err)
	}
	if !good.running {
		t.Error("good processor should have started despite sibling failure")
	}
	if got := o.RunningCount(); got != 1 {
		t.Errorf("expected 1 running, got %d", got)
	}
}

func TestStartAll_AllFailedRaises(t *testing.T) {
	o := NewOrchestrator()
	o.Register(&fakeProcessor{name: "a", startErr: errors.New("boom")})
	o.Register(&fakeProcessor{name: "b", startErr: errors.New("boom")})

	if err := o.StartAll(context.Background()); !errors.Is(err, ErrAllProcessorsFailed) {
		t.Errorf("expected ErrAllProcessorsFailed, got %v", err)
	}
}

func TestStartAll_EmptyIsNoOp(t *testing.T) {
	o := NewOrchestrator()
	if err := o.StartAll(context.Background()); err != nil {
		t.Errorf("empty orchestrator: expected nil, got %v", err)
	}
}

func TestStopAll_ReverseOrder(t *testing.T) {
	var order []string
	o := NewOrchestrator()
	a := &fakeProcessor{name: "a", order: &order}
	b := &fakeProcessor{name: "b", order: &order}
	c := &fakeProcessor{name: "c", order: &order}
	o.Register(a)
	o.Register(b)
	o.Register(c)

	if err := o.StartAll(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	o.StopAll(context.Background())

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
	if got := o.RunningCount(); got != 0 {
		t.Errorf("expected 0 running after stop, got %d", got)
	}
}
