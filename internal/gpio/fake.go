package gpio

import (
	"fmt"
	"sync"
)

// FakeSource is a test double with scripted line levels.
// Edges are fired explicitly with Edge, Drive or Bounce.
type FakeSource struct {
	mu       sync.Mutex
	levels   map[int]bool
	biases   map[int]Bias
	handlers map[int]func()
	failing  map[int]error

	// Closed tracks if Close was called.
	Closed bool

	// WatchError, if set, will be returned by Watch.
	WatchError error

	// LevelError, if set, will be returned by Level.
	LevelError error
}

// NewFakeSource creates an empty FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{
		levels:   make(map[int]bool),
		biases:   make(map[int]Bias),
		handlers: make(map[int]func()),
		failing:  make(map[int]error),
	}
}

// Watch registers onEdge for line. A line without a scripted level idles at
// the level its bias pulls it to.
func (f *FakeSource) Watch(line int, bias Bias, onEdge func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.WatchError != nil {
		return f.WatchError
	}
	if f.Closed {
		return ErrClosed
	}
	if err := f.failing[line]; err != nil {
		return err
	}
	if _, ok := f.handlers[line]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyWatched, line)
	}
	f.handlers[line] = onEdge
	f.biases[line] = bias
	if _, ok := f.levels[line]; !ok {
		f.levels[line] = bias == PullUp
	}
	return nil
}

// Unwatch drops the edge handler of line.
func (f *FakeSource) Unwatch(line int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.handlers[line]; !ok {
		return fmt.Errorf("%w: %d", ErrNotWatched, line)
	}
	delete(f.handlers, line)
	delete(f.biases, line)
	return nil
}

// FailWatch makes Watch of line return err.
func (f *FakeSource) FailWatch(line int, err error) {
	f.mu.Lock()
	f.failing[line] = err
	f.mu.Unlock()
}

// Level returns the scripted level of a watched line.
func (f *FakeSource) Level(line int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.LevelError != nil {
		return false, f.LevelError
	}
	if _, ok := f.handlers[line]; !ok {
		return false, fmt.Errorf("%w: %d", ErrNotWatched, line)
	}
	return f.levels[line], nil
}

// Close marks the source as closed and drops all handlers.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.handlers = make(map[int]func())
	return nil
}

// SetLevel sets the level of line without firing an edge.
func (f *FakeSource) SetLevel(line int, high bool) {
	f.mu.Lock()
	f.levels[line] = high
	f.mu.Unlock()
}

// Edge fires the edge handler of line, if any. It reports whether a handler ran.
func (f *FakeSource) Edge(line int) bool {
	f.mu.Lock()
	h := f.handlers[line]
	f.mu.Unlock()
	if h == nil {
		return false
	}
	h()
	return true
}

// Drive sets the level of line and fires an edge.
func (f *FakeSource) Drive(line int, high bool) bool {
	f.SetLevel(line, high)
	return f.Edge(line)
}

// Bounce toggles line n times, firing an edge each time, and leaves it at final.
func (f *FakeSource) Bounce(line int, final bool, n int) {
	level := final
	if n%2 == 1 {
		level = !final
	}
	for i := 0; i < n; i++ {
		level = !level
		f.Drive(line, level)
	}
	f.SetLevel(line, final)
}

// Watched reports whether line has a registered handler.
func (f *FakeSource) Watched(line int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[line]
	return ok
}

// BiasOf returns the bias line was requested with.
func (f *FakeSource) BiasOf(line int) (Bias, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.biases[line]
	return b, ok
}
