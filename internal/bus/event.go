package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the closed set of event kinds flowing through the bus.
type EventType int

// Event kinds. The set is closed: the subscriber registry is a fixed array
// sized by numEventTypes, so new kinds must be added here.
const (
	CandleClosed EventType = iota
	ZoneDetected
	GapDetected
	EntrySignal
	OrderPlaced
	OrderFilled
	PositionClosed
	Error

	numEventTypes
)

var eventTypeNames = [numEventTypes]string{
	CandleClosed:   "candle_closed",
	ZoneDetected:   "zone_detected",
	GapDetected:    "gap_detected",
	EntrySignal:    "entry_signal",
	OrderPlaced:    "order_placed",
	OrderFilled:    "order_filled",
	PositionClosed: "position_closed",
	Error:          "error",
}

// String returns the wire name of the event type.
func (t EventType) String() string {
	if !t.IsValid() {
		return fmt.Sprintf("unknown(%d)", int(t))
	}
	return eventTypeNames[t]
}

// IsValid checks if the event type is a member of the closed set.
func (t EventType) IsValid() bool {
	return t >= 0 && t < numEventTypes
}

// Event construction and dispatch errors.
var (
	ErrInvalidEventType = errors.New("invalid event type")
	ErrInvalidEvent     = errors.New("invalid event")
	ErrNilPayload       = errors.New("event payload must be a non-nil mapping")
	ErrNotStarted       = errors.New("event bus not started")
	ErrQueueFull        = errors.New("event queue full")
	ErrNilHandler       = errors.New("handler func must not be nil")
	ErrUnnamedHandler   = errors.New("handler name must not be empty")
)

// Event is an immutable message on the bus: a kind, a key-value payload, a
// source tag, and a creation timestamp. The payload map is copied on
// construction; treat events as read-only after emission.
type Event struct {
	ID        uuid.UUID
	Type      EventType
	Payload   map[string]any
	Source    string
	CreatedAt time.Time
}

// NewEvent builds a validated event. Fails fast on an unknown type or a nil
// payload: both indicate a wiring bug upstream.
func NewEvent(t EventType, payload map[string]any, source string) (*Event, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEventType, int(t))
	}
	if payload == nil {
		return nil, ErrNilPayload
	}

	// Copy so later mutation of the caller's map cannot leak into the event.
	data := make(map[string]any, len(payload))
	for k, v := range payload {
		data[k] = v
	}

	return &Event{
		ID:        uuid.New(),
		Type:      t,
		Payload:   data,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// validate checks a caller-supplied event before dispatch.
func validate(ev *Event) error {
	if ev == nil {
		return ErrInvalidEvent
	}
	if !ev.Type.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidEventType, int(ev.Type))
	}
	if ev.Payload == nil {
		return ErrNilPayload
	}
	return nil
}

// Float extracts a float64 payload field, accepting the numeric types JSON
// decoding and in-process producers commonly use.
func Float(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Int64 extracts an int64 payload field.
func Int64(payload map[string]any, key string) (int64, bool) {
	switch v := payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}

// String extracts a string payload field.
func String(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key].(string)
	return v, ok
}
