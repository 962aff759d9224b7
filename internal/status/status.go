// Package status provides a thread-safe status tracker for the keypad-sensor daemon.
// It is read by HTTP handlers and used to build lifecycle MQTT payloads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/keypad-sensor/internal/debounce"
	"github.com/sweeney/keypad-sensor/internal/keypad"
)

// NetworkInfo contains network state written by the host's network helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Chip        string
	DebounceMs  int64
	Priority    int
	ActiveHigh  bool
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// KeyState is the state of one bound key.
type KeyState struct {
	Key      keypad.KeyID
	Line     int
	Pressed  bool
	Counts   keypad.Counts
	Debounce debounce.Stats
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Keys          []KeyState
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the key states.
func (t *Tracker) Update(keys []KeyState) {
	keys = append([]KeyState(nil), keys...)
	t.mu.Lock()
	t.snap.Keys = keys
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Keys = append([]KeyState(nil), t.snap.Keys...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

// KeyStates reads the current state of every key bound on kp.
func KeyStates(kp *keypad.Keypad) []KeyState {
	pressed := kp.Pressed()
	counts := kp.Counts()
	bindings := kp.Bindings()

	states := make([]KeyState, 0, len(bindings))
	for _, b := range bindings {
		stats, _ := kp.DebouncerStats(b.Key)
		states = append(states, KeyState{
			Key:      b.Key,
			Line:     b.Line,
			Pressed:  pressed[b.Key],
			Counts:   counts[b.Key],
			Debounce: stats,
		})
	}
	return states
}
