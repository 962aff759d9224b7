package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Keys          []KeyJSON    `json:"keys"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// KeyJSON is the JSON representation of one key.
type KeyJSON struct {
	Name     string       `json:"name"`
	Line     int          `json:"line"`
	Pressed  bool         `json:"pressed"`
	Presses  uint64       `json:"presses"`
	Releases uint64       `json:"releases"`
	Debounce DebounceJSON `json:"debounce"`
}

// DebounceJSON is the JSON representation of debouncer counters.
type DebounceJSON struct {
	Signals          uint64 `json:"signals"`
	Restarts         uint64 `json:"restarts"`
	Fires            uint64 `json:"fires"`
	Panics           uint64 `json:"panics"`
	MaxHandlerMicros int64  `json:"max_handler_us"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip        string `json:"chip"`
	DebounceMs  int64  `json:"debounce_ms"`
	Priority    int    `json:"priority"`
	ActiveHigh  bool   `json:"active_high"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	keys := make([]KeyJSON, 0, len(snap.Keys))
	for _, k := range snap.Keys {
		keys = append(keys, KeyJSON{
			Name:     k.Key.String(),
			Line:     k.Line,
			Pressed:  k.Pressed,
			Presses:  k.Counts.Presses,
			Releases: k.Counts.Releases,
			Debounce: DebounceJSON{
				Signals:          k.Debounce.Signals,
				Restarts:         k.Debounce.Restarts,
				Fires:            k.Debounce.Fires,
				Panics:           k.Debounce.Panics,
				MaxHandlerMicros: k.Debounce.MaxHandlerTime.Microseconds(),
			},
		})
	}

	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Keys:          keys,
		Config: ConfigJSON{
			Chip:        snap.Config.Chip,
			DebounceMs:  snap.Config.DebounceMs,
			Priority:    snap.Config.Priority,
			ActiveHigh:  snap.Config.ActiveHigh,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
