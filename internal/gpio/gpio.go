// Package gpio provides edge notification and level reads for input lines.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import "errors"

// DefaultChip is the GPIO chip used when none is configured.
const DefaultChip = "gpiochip0"

var (
	// ErrAlreadyWatched is returned when a line is watched twice.
	ErrAlreadyWatched = errors.New("gpio: line already watched")
	// ErrNotWatched is returned when reading a line that was never requested.
	ErrNotWatched = errors.New("gpio: line not watched")
	// ErrClosed is returned by a source after Close.
	ErrClosed = errors.New("gpio: source closed")
)

// Bias selects the internal pull resistor of an input line.
type Bias int

const (
	PullUp Bias = iota
	PullDown
)

func (b Bias) String() string {
	if b == PullDown {
		return "pull-down"
	}
	return "pull-up"
}

// Source delivers edge notifications and reads line levels.
type Source interface {
	// Watch requests line as an input and calls onEdge on every rising and
	// falling edge. onEdge runs in the source's event context and must not block.
	Watch(line int, bias Bias, onEdge func()) error

	// Unwatch stops edge notification for line and releases it.
	Unwatch(line int) error

	// Level returns the electrical level of a watched line (true = high).
	Level(line int) (bool, error)

	// Close releases all requested lines.
	Close() error
}
