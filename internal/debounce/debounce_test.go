package debounce

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// slack bounds how late a handler may fire on a loaded test machine.
const slack = 250 * time.Millisecond

type recorder struct {
	fired chan time.Time
}

func newRecorder() *recorder {
	return &recorder{fired: make(chan time.Time, 64)}
}

func (r *recorder) handle() {
	r.fired <- time.Now()
}

func (r *recorder) waitFire(t *testing.T, timeout time.Duration) time.Time {
	t.Helper()
	select {
	case at := <-r.fired:
		return at
	case <-time.After(timeout):
		t.Fatalf("handler not called within %v", timeout)
		return time.Time{}
	}
}

func (r *recorder) expectNone(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case at := <-r.fired:
		t.Fatalf("unexpected handler call at %v", at)
	case <-time.After(wait):
	}
}

func newTestDebouncer(t *testing.T, handler func(), stable time.Duration, opts ...Option) *Debouncer {
	t.Helper()
	d, err := New(handler, stable, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestNewValidation(t *testing.T) {
	noop := func() {}

	if _, err := New(noop, 0); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("zero duration: got %v, want ErrInvalidDuration", err)
	}
	if _, err := New(noop, -time.Millisecond); !errors.Is(err, ErrInvalidDuration) {
		t.Errorf("negative duration: got %v, want ErrInvalidDuration", err)
	}
	if _, err := New(nil, time.Millisecond); !errors.Is(err, ErrNilHandler) {
		t.Errorf("nil handler: got %v, want ErrNilHandler", err)
	}
	if _, err := New(noop, time.Millisecond, WithPriority(MinPriority-1)); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("priority below range: got %v, want ErrInvalidPriority", err)
	}
	if _, err := New(noop, time.Millisecond, WithPriority(MaxPriority+1)); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("priority above range: got %v, want ErrInvalidPriority", err)
	}
}

func TestPriority(t *testing.T) {
	noop := func() {}

	d := newTestDebouncer(t, noop, time.Millisecond)
	if d.Priority() != DefaultPriority() {
		t.Errorf("default priority: got %d, want %d", d.Priority(), DefaultPriority())
	}
	if DefaultPriority() != 12 {
		t.Errorf("DefaultPriority: got %d, want 12", DefaultPriority())
	}

	for _, p := range []int{MinPriority, MaxPriority} {
		d := newTestDebouncer(t, noop, time.Millisecond, WithPriority(p))
		if d.Priority() != p {
			t.Errorf("priority: got %d, want %d", d.Priority(), p)
		}
	}
}

func TestSingleSignalFiresOnce(t *testing.T) {
	rec := newRecorder()
	stable := 20 * time.Millisecond
	d := newTestDebouncer(t, rec.handle, stable)

	start := time.Now()
	d.Signal()

	at := rec.waitFire(t, stable+slack)
	if got := at.Sub(start); got < stable {
		t.Errorf("latency: got %v, want >= %v", got, stable)
	}
	rec.expectNone(t, 3*stable)

	if s := d.Stats(); s.Fires != 1 {
		t.Errorf("Fires: got %d, want 1", s.Fires)
	}
}

// Edges at 0, 5 and 12ms with a 20ms window fire once, at about 32ms.
func TestBouncingEdgesFireAfterLastEdge(t *testing.T) {
	rec := newRecorder()
	stable := 20 * time.Millisecond
	d := newTestDebouncer(t, rec.handle, stable)

	start := time.Now()
	d.Signal()
	time.Sleep(5 * time.Millisecond)
	d.Signal()
	time.Sleep(7 * time.Millisecond)
	d.Signal()
	last := time.Now()

	at := rec.waitFire(t, stable+slack)
	if got := at.Sub(last); got < stable {
		t.Errorf("fired %v after last edge, want >= %v", got, stable)
	}
	if got := at.Sub(start); got < 32*time.Millisecond {
		t.Errorf("fired %v after first edge, want >= 32ms", got)
	}
	rec.expectNone(t, 3*stable)
}

func TestShortPulsesSuppressed(t *testing.T) {
	rec := newRecorder()
	stable := 40 * time.Millisecond
	d := newTestDebouncer(t, rec.handle, stable)

	// Glitches every 5ms never leave a quiet window.
	for i := 0; i < 30; i++ {
		d.Signal()
		time.Sleep(5 * time.Millisecond)
		select {
		case at := <-rec.fired:
			t.Fatalf("handler called during glitch train at %v", at)
		default:
		}
	}

	rec.waitFire(t, stable+slack)
	rec.expectNone(t, 2*stable)

	if s := d.Stats(); s.Restarts == 0 {
		t.Error("expected stability window restarts during glitch train")
	}
}

func TestConcurrentSignalsCoalesce(t *testing.T) {
	rec := newRecorder()
	stable := 50 * time.Millisecond
	d := newTestDebouncer(t, rec.handle, stable)

	const workers, perWorker = 8, 125
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				d.Signal()
			}
		}()
	}
	wg.Wait()

	rec.waitFire(t, stable+slack)
	rec.expectNone(t, 2*stable)

	s := d.Stats()
	if s.Signals != workers*perWorker {
		t.Errorf("Signals: got %d, want %d", s.Signals, workers*perWorker)
	}
	if s.Fires != 1 {
		t.Errorf("Fires: got %d, want 1", s.Fires)
	}
}

func TestSeparatedSignalsFireEach(t *testing.T) {
	rec := newRecorder()
	stable := 10 * time.Millisecond
	d := newTestDebouncer(t, rec.handle, stable)

	for i := 0; i < 3; i++ {
		d.Signal()
		rec.waitFire(t, stable+slack)
	}
	if s := d.Stats(); s.Fires != 3 || s.Wakeups != 3 {
		t.Errorf("stats: got fires=%d wakeups=%d, want 3 and 3", s.Fires, s.Wakeups)
	}
}

func TestHandlerPanicKeepsLoopAlive(t *testing.T) {
	var calls atomic.Int32
	fired := make(chan struct{}, 4)
	handler := func() {
		n := calls.Add(1)
		fired <- struct{}{}
		if n == 1 {
			panic("boom")
		}
	}
	stable := 10 * time.Millisecond
	d := newTestDebouncer(t, handler, stable, WithName("panicky"))

	d.Signal()
	select {
	case <-fired:
	case <-time.After(stable + slack):
		t.Fatal("first handler call missing")
	}

	d.Signal()
	select {
	case <-fired:
	case <-time.After(stable + slack):
		t.Fatal("handler not called after a panic")
	}

	s := d.Stats()
	if s.Panics != 1 {
		t.Errorf("Panics: got %d, want 1", s.Panics)
	}
	if s.Fires != 2 {
		t.Errorf("Fires: got %d, want 2", s.Fires)
	}
}

// An edge that arrives while the handler runs starts a new cycle, so a release
// landing during the press handler is not lost.
func TestSignalDuringHandlerFiresAgain(t *testing.T) {
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	var calls atomic.Int32
	handler := func() {
		if calls.Add(1) == 1 {
			entered <- struct{}{}
			<-release
		}
	}
	stable := 10 * time.Millisecond
	d := newTestDebouncer(t, handler, stable)

	d.Signal()
	select {
	case <-entered:
	case <-time.After(stable + slack):
		t.Fatal("first handler call missing")
	}

	d.Signal()
	close(release)

	deadline := time.Now().Add(stable + slack)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("handler calls: got %d, want 2", n)
	}
	if s := d.Stats(); s.Wakeups != 2 {
		t.Errorf("Wakeups: got %d, want 2", s.Wakeups)
	}
}

func TestHandlerInvocationsSerialized(t *testing.T) {
	var running, maxRunning atomic.Int32
	done := make(chan struct{}, 64)
	handler := func() {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		running.Add(-1)
		done <- struct{}{}
	}
	stable := 5 * time.Millisecond
	d := newTestDebouncer(t, handler, stable)

	// Keep signalling while the handler sleeps.
	for i := 0; i < 20; i++ {
		d.Signal()
		time.Sleep(3 * time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 10; i++ {
		d.Signal()
		time.Sleep(10 * time.Millisecond)
	}
	<-done

	d.Close()
	if m := maxRunning.Load(); m != 1 {
		t.Errorf("max concurrent handlers: got %d, want 1", m)
	}
	if s := d.Stats(); s.MaxHandlerTime < 30*time.Millisecond {
		t.Errorf("MaxHandlerTime: got %v, want >= 30ms", s.MaxHandlerTime)
	}
}

func TestCloseAbandonsPendingWindow(t *testing.T) {
	rec := newRecorder()
	stable := 50 * time.Millisecond
	d, err := New(rec.handle, stable)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d.Signal()
	time.Sleep(5 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(slack):
		t.Fatal("Close did not return")
	}

	rec.expectNone(t, 2*stable)

	// Both are no-ops now.
	d.Signal()
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSignalFunc(t *testing.T) {
	rec := newRecorder()
	d := newTestDebouncer(t, rec.handle, 5*time.Millisecond)

	trigger := d.SignalFunc()
	trigger()
	rec.waitFire(t, 5*time.Millisecond+slack)

	if d.StableDuration() != 5*time.Millisecond {
		t.Errorf("StableDuration: got %v, want 5ms", d.StableDuration())
	}
}

func BenchmarkSignal(b *testing.B) {
	d, err := New(func() {}, time.Hour)
	if err != nil {
		b.Fatal(err)
	}
	defer d.Close()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		d.Signal()
	}
}
