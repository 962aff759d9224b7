// Package keypad tracks which front-panel keys are pressed.
//
// Every binding gets its own Debouncer whose Signal is registered as the
// line's both-edges handler. When a line has been quiet for the stable
// duration the debouncer reads the line level and updates the key state.
package keypad

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/keypad-sensor/internal/debounce"
	"github.com/sweeney/keypad-sensor/internal/gpio"
)

// Option configures a Keypad.
type Option func(*Keypad)

// WithActiveHigh treats a high line as pressed. The default is active low
// with pull-up bias, matching buttons wired to ground.
func WithActiveHigh() Option {
	return func(k *Keypad) { k.activeHigh = true }
}

// WithInitialRead reads every line once during New, so keys held at startup
// report pressed before their first edge.
func WithInitialRead() Option {
	return func(k *Keypad) { k.initialRead = true }
}

// WithPriority sets the priority of every debouncer.
func WithPriority(p int) Option {
	return func(k *Keypad) { k.priority = &p }
}

// WithLogger sets the logger.
func WithLogger(l log.FieldLogger) Option {
	return func(k *Keypad) { k.log = l }
}

// WithEventListener registers fn for every debounced press and release.
// fn runs on the key's debouncer goroutine.
func WithEventListener(fn func(Event)) Option {
	return func(k *Keypad) { k.listener = fn }
}

// WithClock sets the time source for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(k *Keypad) { k.now = now }
}

// Keypad maps debounced input lines to key states.
type Keypad struct {
	src      gpio.Source
	bindings []Binding
	index    map[KeyID]int
	stable   time.Duration

	pressed    []atomic.Bool
	presses    []atomic.Uint64
	releases   []atomic.Uint64
	debouncers []*debounce.Debouncer
	callback   atomic.Pointer[func(KeyID)]

	activeHigh  bool
	initialRead bool
	priority    *int
	listener    func(Event)
	now         func() time.Time
	log         log.FieldLogger

	closeOnce sync.Once
}

// New watches every bound line on src and starts one debouncer per binding.
// All keys start released unless WithInitialRead is given. If New fails, the
// lines it already watched are released. The caller keeps ownership of src and
// closes it after the Keypad.
func New(src gpio.Source, bindings []Binding, stable time.Duration, opts ...Option) (*Keypad, error) {
	if len(bindings) == 0 {
		return nil, ErrNoBindings
	}

	k := &Keypad{
		src:      src,
		bindings: append([]Binding(nil), bindings...),
		index:    make(map[KeyID]int, len(bindings)),
		stable:   stable,
		pressed:  make([]atomic.Bool, len(bindings)),
		presses:  make([]atomic.Uint64, len(bindings)),
		releases: make([]atomic.Uint64, len(bindings)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	if k.log == nil {
		k.log = log.StandardLogger()
	}

	lines := make(map[int]bool, len(bindings))
	for i, b := range k.bindings {
		if !b.Key.Valid() {
			return nil, fmt.Errorf("%w: %d", ErrInvalidKey, int(b.Key))
		}
		if lines[b.Line] {
			return nil, fmt.Errorf("%w: line %d", ErrDuplicateLine, b.Line)
		}
		if _, ok := k.index[b.Key]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateKey, b.Key)
		}
		lines[b.Line] = true
		k.index[b.Key] = i
	}

	bias := gpio.PullUp
	if k.activeHigh {
		bias = gpio.PullDown
	}

	var watched []int
	abort := func() {
		k.Close()
		for _, line := range watched {
			if err := src.Unwatch(line); err != nil {
				k.log.WithField("line", line).WithError(err).Warn("release line")
			}
		}
	}

	for i, b := range k.bindings {
		i := i
		dopts := []debounce.Option{
			debounce.WithName(b.Key.String()),
			debounce.WithLogger(k.log),
		}
		if k.priority != nil {
			dopts = append(dopts, debounce.WithPriority(*k.priority))
		}
		d, err := debounce.New(func() { k.update(i) }, stable, dopts...)
		if err != nil {
			abort()
			return nil, fmt.Errorf("debouncer for %s: %w", b.Key, err)
		}
		k.debouncers = append(k.debouncers, d)

		if err := src.Watch(b.Line, bias, d.Signal); err != nil {
			abort()
			return nil, fmt.Errorf("watch %s on line %d: %w", b.Key, b.Line, err)
		}
		watched = append(watched, b.Line)
	}

	if k.initialRead {
		for i, b := range k.bindings {
			high, err := src.Level(b.Line)
			if err != nil {
				abort()
				return nil, fmt.Errorf("initial read of %s: %w", b.Key, err)
			}
			k.pressed[i].Store(high == k.activeHigh)
		}
	}

	k.log.WithFields(log.Fields{
		"keys":        len(k.bindings),
		"stable":      stable,
		"active_high": k.activeHigh,
	}).Info("keypad ready")
	return k, nil
}

// update runs on the debouncer goroutine of binding i once its line is stable.
func (k *Keypad) update(i int) {
	b := k.bindings[i]
	high, err := k.src.Level(b.Line)
	if err != nil {
		k.log.WithFields(log.Fields{"key": b.Key, "line": b.Line}).WithError(err).Warn("read line")
		return
	}

	asserted := high == k.activeHigh
	// Only this goroutine writes pressed[i]; counters are updated first so a
	// reader that sees the new state also sees the count.
	was := k.pressed[i].Load()
	typ := EventReleased
	if asserted {
		typ = EventPressed
	}
	if was != asserted {
		if asserted {
			k.presses[i].Add(1)
		} else {
			k.releases[i].Add(1)
		}
	}
	k.pressed[i].Store(asserted)

	// The listener runs before the callback so a panicking callback cannot
	// hide a counted transition from it.
	if was != asserted {
		k.log.WithFields(log.Fields{"key": b.Key, "line": b.Line}).Debug(string(typ))
		if k.listener != nil {
			k.listener(Event{Timestamp: k.now(), Key: b.Key, Type: typ})
		}
	}

	if asserted {
		if cb := k.callback.Load(); cb != nil {
			(*cb)(b.Key)
		}
	}
}

// IsPressed reports whether key is currently pressed.
func (k *Keypad) IsPressed(key KeyID) (bool, error) {
	i, ok := k.index[key]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return k.pressed[i].Load(), nil
}

// SetCallback replaces the function called with the key on every debounced
// press. A nil fn removes the callback.
func (k *Keypad) SetCallback(fn func(KeyID)) {
	if fn == nil {
		k.callback.Store(nil)
		return
	}
	k.callback.Store(&fn)
}

// Keys returns the bound keys in binding order.
func (k *Keypad) Keys() []KeyID {
	keys := make([]KeyID, len(k.bindings))
	for i, b := range k.bindings {
		keys[i] = b.Key
	}
	return keys
}

// Bindings returns a copy of the bindings.
func (k *Keypad) Bindings() []Binding {
	return append([]Binding(nil), k.bindings...)
}

// StableDuration returns the stable duration shared by all keys.
func (k *Keypad) StableDuration() time.Duration {
	return k.stable
}

// Pressed returns the pressed state of every bound key.
func (k *Keypad) Pressed() map[KeyID]bool {
	m := make(map[KeyID]bool, len(k.bindings))
	for i, b := range k.bindings {
		m[b.Key] = k.pressed[i].Load()
	}
	return m
}

// Counts returns the transition counts of every bound key.
func (k *Keypad) Counts() map[KeyID]Counts {
	m := make(map[KeyID]Counts, len(k.bindings))
	for i, b := range k.bindings {
		m[b.Key] = Counts{
			Presses:  k.presses[i].Load(),
			Releases: k.releases[i].Load(),
		}
	}
	return m
}

// DebouncerStats returns the debouncer counters of key.
func (k *Keypad) DebouncerStats(key KeyID) (debounce.Stats, error) {
	i, ok := k.index[key]
	if !ok || i >= len(k.debouncers) {
		return debounce.Stats{}, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return k.debouncers[i].Stats(), nil
}

// Close stops and joins every debouncer. Edges arriving afterwards are ignored.
func (k *Keypad) Close() error {
	k.closeOnce.Do(func() {
		for _, d := range k.debouncers {
			d.Close()
		}
	})
	return nil
}
