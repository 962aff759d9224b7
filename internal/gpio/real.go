//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// consumer is the label shown for requested lines in gpioinfo.
const consumer = "keypad-sensor"

// RealSource reads GPIO from actual hardware using the Linux GPIO character device.
type RealSource struct {
	mu     sync.Mutex
	chip   *gpiocdev.Chip
	lines  map[int]*requestedLine
	closed bool
}

type requestedLine struct {
	*gpiocdev.Line
	bias Bias
}

// NewRealSource opens the named GPIO chip.
func NewRealSource(chipName string) (*RealSource, error) {
	if chipName == "" {
		chipName = DefaultChip
	}
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}
	return &RealSource{
		chip:  chip,
		lines: make(map[int]*requestedLine),
	}, nil
}

// Watch requests the line as an input with both-edge detection.
// The kernel delivers edge events on a gpiocdev goroutine, which calls onEdge.
func (r *RealSource) Watch(line int, bias Bias, onEdge func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if _, ok := r.lines[line]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyWatched, line)
	}

	l, err := r.chip.RequestLine(line,
		gpiocdev.AsInput,
		biasOption(bias),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(gpiocdev.LineEvent) { onEdge() }),
	)
	if err != nil {
		return fmt.Errorf("request line %d: %w", line, err)
	}
	r.lines[line] = &requestedLine{Line: l, bias: bias}
	return nil
}

// Unwatch releases line, leaving it an input with the bias it was requested with.
func (r *RealSource) Unwatch(line int) error {
	r.mu.Lock()
	l, ok := r.lines[line]
	delete(r.lines, line)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotWatched, line)
	}
	return release(line, l)
}

// Level returns the raw electrical level of a watched line.
func (r *RealSource) Level(line int) (bool, error) {
	r.mu.Lock()
	l, ok := r.lines[line]
	r.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrNotWatched, line)
	}

	v, err := l.Value()
	if err != nil {
		return false, fmt.Errorf("read line %d: %w", line, err)
	}
	return v == 1, nil
}

// Close releases GPIO resources.
// Lines are reconfigured to plain inputs with their requested bias before
// closing so the buttons idle in their released state during shutdown/reboot.
func (r *RealSource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for offset, l := range r.lines {
		if err := release(offset, l); err != nil {
			errs = append(errs, err)
		}
	}
	r.lines = nil
	if err := r.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// release reconfigures l as an input with its requested bias and closes it.
func release(offset int, l *requestedLine) error {
	if err := l.Reconfigure(gpiocdev.AsInput, biasOption(l.bias)); err != nil {
		l.Close()
		return fmt.Errorf("reconfigure line %d: %w", offset, err)
	}
	if err := l.Close(); err != nil {
		return fmt.Errorf("close line %d: %w", offset, err)
	}
	return nil
}

func biasOption(b Bias) gpiocdev.LineBias {
	if b == PullDown {
		return gpiocdev.WithPullDown
	}
	return gpiocdev.WithPullUp
}
