package keypad

import (
	"fmt"
	"strings"
)

// KeyID identifies a logical key of the front panel.
type KeyID int

const (
	KeyTask1 KeyID = iota
	KeyTask2
	KeyTask3
	KeyTask4
	KeyLeft
	KeyRight
	KeyEnter
	KeyBack
)

var keyNames = [...]string{
	KeyTask1: "TASK1",
	KeyTask2: "TASK2",
	KeyTask3: "TASK3",
	KeyTask4: "TASK4",
	KeyLeft:  "LEFT",
	KeyRight: "RIGHT",
	KeyEnter: "ENTER",
	KeyBack:  "BACK",
}

func (k KeyID) String() string {
	if k < 0 || int(k) >= len(keyNames) {
		return fmt.Sprintf("KeyID(%d)", int(k))
	}
	return keyNames[k]
}

// Valid reports whether k is one of the defined keys.
func (k KeyID) Valid() bool {
	return k >= 0 && int(k) < len(keyNames)
}

// AllKeys returns every defined key in declaration order.
func AllKeys() []KeyID {
	keys := make([]KeyID, len(keyNames))
	for i := range keyNames {
		keys[i] = KeyID(i)
	}
	return keys
}

// ParseKeyID returns the key with the given name, ignoring case.
func ParseKeyID(name string) (KeyID, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range keyNames {
		if n == upper {
			return KeyID(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidKey, name)
}
