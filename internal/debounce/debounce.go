// Package debounce turns a bouncy binary input into a single stable event.
//
// A Debouncer owns one waiting goroutine. Signal is the only entry point used
// from the edge-event context: it never blocks, never allocates and coalesces
// bursts into a single pending notification. The waiting goroutine restarts its
// stability window on every notification and calls the handler once the input
// has been quiet for the full stable duration (non-memorizing startup delay).
package debounce

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Priority range of the waiting goroutine. Go does not schedule goroutines by
// priority; the value is validated and reported so configurations stay portable
// with the firmware build that shares them.
const (
	MinPriority = 0
	MaxPriority = 24
)

// DefaultPriority returns the midpoint of the priority range.
func DefaultPriority() int {
	return MinPriority + (MaxPriority-MinPriority)/2
}

var (
	ErrInvalidDuration = errors.New("debounce: stable duration must be positive")
	ErrInvalidPriority = errors.New("debounce: priority out of range")
	ErrNilHandler      = errors.New("debounce: nil handler")
)

// Stats is a point-in-time view of a Debouncer's counters.
type Stats struct {
	Signals        uint64        // Signal calls, including coalesced ones
	Wakeups        uint64        // idle waits ended by a notification
	Restarts       uint64        // stability windows restarted by a new edge
	Fires          uint64        // handler invocations
	Panics         uint64        // handler invocations that panicked
	MaxHandlerTime time.Duration // longest handler run
}

// Option configures a Debouncer.
type Option func(*Debouncer)

// WithPriority sets the scheduling priority. Out of range values make New fail.
func WithPriority(p int) Option {
	return func(d *Debouncer) { d.priority = p }
}

// WithName sets the name used in log fields.
func WithName(name string) Option {
	return func(d *Debouncer) { d.name = name }
}

// WithLogger sets the logger used to report handler panics.
func WithLogger(l log.FieldLogger) Option {
	return func(d *Debouncer) { d.log = l }
}

// Debouncer calls its handler at most once per stable interval.
type Debouncer struct {
	handler  func()
	stable   time.Duration
	priority int
	name     string
	log      log.FieldLogger

	notify    chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	signals    atomic.Uint64
	wakeups    atomic.Uint64
	restarts   atomic.Uint64
	fires      atomic.Uint64
	panics     atomic.Uint64
	maxHandler atomic.Int64
}

// New validates the configuration and starts the waiting goroutine in the idle
// state. The handler is only ever called from that goroutine.
func New(handler func(), stable time.Duration, opts ...Option) (*Debouncer, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if stable <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDuration, stable)
	}

	d := &Debouncer{
		handler:  handler,
		stable:   stable,
		priority: DefaultPriority(),
		notify:   make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.priority < MinPriority || d.priority > MaxPriority {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidPriority, d.priority, MinPriority, MaxPriority)
	}
	if d.log == nil {
		d.log = log.StandardLogger()
	}
	if d.name != "" {
		d.log = d.log.WithField("debouncer", d.name)
	}

	go d.run()
	return d, nil
}

// Signal reports that the input changed. It is safe to call from any goroutine,
// concurrently, and after Close.
func (d *Debouncer) Signal() {
	d.signals.Add(1)
	select {
	case d.notify <- struct{}{}:
	default:
		// already pending
	}
}

// SignalFunc returns Signal as a plain func for edge-source registration.
func (d *Debouncer) SignalFunc() func() {
	return d.Signal
}

// StableDuration returns the configured stable duration.
func (d *Debouncer) StableDuration() time.Duration {
	return d.stable
}

// Priority returns the configured priority.
func (d *Debouncer) Priority() int {
	return d.priority
}

// Stats returns a snapshot of the counters.
func (d *Debouncer) Stats() Stats {
	return Stats{
		Signals:        d.signals.Load(),
		Wakeups:        d.wakeups.Load(),
		Restarts:       d.restarts.Load(),
		Fires:          d.fires.Load(),
		Panics:         d.panics.Load(),
		MaxHandlerTime: time.Duration(d.maxHandler.Load()),
	}
}

// Close stops the waiting goroutine and waits for it to exit. A stability
// window in progress is abandoned without calling the handler. If the handler
// is running, Close waits for it to return.
func (d *Debouncer) Close() error {
	d.closeOnce.Do(func() { close(d.stop) })
	<-d.done
	return nil
}

func (d *Debouncer) run() {
	defer close(d.done)

	timer := time.NewTimer(d.stable)
	stopTimer(timer)

	for {
		// Idle: wait for the first edge. An edge that arrived while the
		// handler was running is still pending here and starts a new cycle.
		select {
		case <-d.notify:
		case <-d.stop:
			return
		}
		d.wakeups.Add(1)

		if !d.settle(timer) {
			return
		}

		// Drop a notification that raced the timer. The handler has not read
		// the input yet, so it observes that edge.
		select {
		case <-d.notify:
		default:
		}
		d.fire()
	}
}

// settle blocks until no notification arrived for a full stable duration.
// It returns false if the debouncer was closed first.
func (d *Debouncer) settle(timer *time.Timer) bool {
	for {
		timer.Reset(d.stable)
		select {
		case <-d.notify:
			stopTimer(timer)
			d.restarts.Add(1)
		case <-timer.C:
			return true
		case <-d.stop:
			stopTimer(timer)
			return false
		}
	}
}

func (d *Debouncer) fire() {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.log.WithField("panic", r).Error("handler panicked, continuing")
		}
		d.observeHandlerTime(time.Since(start))
	}()
	d.fires.Add(1)
	d.handler()
}

func (d *Debouncer) observeHandlerTime(elapsed time.Duration) {
	for {
		cur := d.maxHandler.Load()
		if int64(elapsed) <= cur || d.maxHandler.CompareAndSwap(cur, int64(elapsed)) {
			return
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
