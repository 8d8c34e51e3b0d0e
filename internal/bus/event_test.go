package bus

import (
	"errors"
	"testing"
)

func TestNewEvent_ValidKinds(t *testing.T) {
	for kind := EventType(0); kind < numEventTypes; kind++ {
		ev, err := NewEvent(kind, map[string]any{"k": "v"}, "test")
		if err != nil {
			t.Errorf("kind %s: unexpected error %v", kind, err)
			continue
		}
		if ev.Type != kind {
			t.Errorf("kind %s: type mismatch", kind)
		}
		if ev.CreatedAt.IsZero() {
			t.Errorf("kind %s: zero CreatedAt", kind)
		}
	}
}

func TestNewEvent_UnknownKindFailsFast(t *testing.T) {
	if _, err := NewEvent(numEventTypes, map[string]any{}, "test"); !errors.Is(err, ErrInvalidEventType) {
		t.Errorf("expected ErrInvalidEventType, got %v", err)
	}
	if _, err := NewEvent(EventType(-1), map[string]any{}, "test"); !errors.Is(err, ErrInvalidEventType) {
		t.Errorf("negative kind: expected ErrInvalidEventType, got %v", err)
	}
}

func TestNewEvent_NilPayloadFailsFast(t *testing.T) {
	if _, err := NewEvent(CandleClosed, nil, "test"); !errors.Is(err, ErrNilPayload) {
		t.Errorf("expected ErrNilPayload, got %v", err)
	}
}

func TestNewEvent_CopiesPayload(t *testing.T) {
	payload := map[string]any{"price": 100.0}
	ev, err := NewEvent(CandleClosed, payload, "test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload["price"] = 200.0

	if got, _ := Float(ev.Payload, "price"); got != 100.0 {
		t.Errorf("event payload mutated through caller map: got %f", got)
	}
}

func TestEventTypeString(t *testing.T) {
	if got := CandleClosed.String(); got != "candle_closed" {
		t.Errorf("expected candle_closed, got %s", got)
	}
	if got := numEventTypes.String(); got != "unknown(8)" {
		t.Errorf("expected unknown(8), got %s", got)
	}
}

func TestPayloadHelpers(t *testing.T) {
	p := map[string]any{
		"f64": 1.5,
		"i":   42,
		"i64": int64(7),
		"s":   "hello",
	}

	if v, ok := Float(p, "f64"); !ok || v != 1.5 {
		t.Errorf("Float f64: got %f %v", v, ok)
	}
	if v, ok := Float(p, "i"); !ok || v != 42 {
		t.Errorf("Float int: got %f %v", v, ok)
	}
	if _, ok := Float(p, "s"); ok {
		t.Error("Float on string should fail")
	}
	if v, ok := Int64(p, "i64"); !ok || v != 7 {
		t.Errorf("Int64: got %d %v", v, ok)
	}
	if v, ok := Int64(p, "f64"); !ok || v != 1 {
		t.Errorf("Int64 from float: got %d %v", v, ok)
	}
	if v, ok := String(p, "s"); !ok || v != "hello" {
		t.Errorf("String: got %s %v", v, ok)
	}
	if _, ok := String(p, "missing"); ok {
		t.Error("String on missing key should fail")
	}
}
