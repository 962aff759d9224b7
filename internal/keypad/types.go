package keypad

import (
	"errors"
	"time"
)

var (
	ErrInvalidKey    = errors.New("keypad: invalid key")
	ErrDuplicateLine = errors.New("keypad: line bound more than once")
	ErrDuplicateKey  = errors.New("keypad: key bound more than once")
	ErrNoBindings    = errors.New("keypad: no bindings")
)

// Binding maps a physical input line to a logical key.
type Binding struct {
	Line int
	Key  KeyID
}

// EventType is a debounced key transition.
type EventType string

const (
	EventPressed  EventType = "KEY_PRESSED"
	EventReleased EventType = "KEY_RELEASED"
)

// Event is a debounced key transition delivered to the event listener.
type Event struct {
	Timestamp time.Time
	Key       KeyID
	Type      EventType
}

// Counts tracks the number of debounced transitions of one key.
type Counts struct {
	Presses  uint64
	Releases uint64
}
