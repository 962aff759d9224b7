// Package config loads the daemon configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/sweeney/keypad-sensor/internal/debounce"
	"github.com/sweeney/keypad-sensor/internal/gpio"
	"github.com/sweeney/keypad-sensor/internal/keypad"
)

// Defaults applied to fields left out of the file.
const (
	DefaultDebounceMs  = 20
	DefaultHeartbeatMs = 15 * 60 * 1000
	DefaultBroker      = "tcp://127.0.0.1:1883"
	DefaultClientID    = "keypad-sensor"
	DefaultHTTPAddr    = ":8080"
	DefaultPath        = "/etc/keypad-sensor.toml"
)

var ErrInvalid = errors.New("invalid config")

// Key binds a named key to a GPIO line offset.
type Key struct {
	Name string
	Line int
}

// Config is the daemon configuration.
type Config struct {
	Chip        string
	DebounceMs  int64
	Priority    *int
	ActiveHigh  bool
	InitialRead bool

	Broker      string
	ClientID    string
	HeartbeatMs int64
	HTTPAddr    string

	Key []Key
}

// Debounce returns the stable duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Heartbeat returns the heartbeat interval (0 = disabled).
func (c Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatMs) * time.Millisecond
}

// DebouncePriority returns the configured priority or the default midpoint.
func (c Config) DebouncePriority() int {
	if c.Priority == nil {
		return debounce.DefaultPriority()
	}
	return *c.Priority
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	var c Config
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return finish(c, md)
}

// Parse decodes and validates TOML text.
func Parse(data string) (Config, error) {
	var c Config
	md, err := toml.Decode(data, &c)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return finish(c, md)
}

func finish(c Config, md toml.MetaData) (Config, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q", ErrInvalid, undecoded[0].String())
	}
	// HeartbeatMs = 0 disables heartbeats, so only fill it in when absent.
	if !md.IsDefined("HeartbeatMs") {
		c.HeartbeatMs = DefaultHeartbeatMs
	}
	// An explicit DebounceMs = 0 is rejected by Validate.
	if !md.IsDefined("DebounceMs") {
		c.DebounceMs = DefaultDebounceMs
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Chip == "" {
		c.Chip = gpio.DefaultChip
	}
	if c.Broker == "" {
		c.Broker = DefaultBroker
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.HTTPAddr == "" {
		c.HTTPAddr = DefaultHTTPAddr
	}
}

// Validate checks the configuration. Out of range values are reported, never clamped.
func (c Config) Validate() error {
	if c.DebounceMs <= 0 {
		return fmt.Errorf("%w: DebounceMs must be positive, got %d", ErrInvalid, c.DebounceMs)
	}
	if p := c.DebouncePriority(); p < debounce.MinPriority || p > debounce.MaxPriority {
		return fmt.Errorf("%w: Priority %d not in [%d, %d]", ErrInvalid, p, debounce.MinPriority, debounce.MaxPriority)
	}
	if c.HeartbeatMs < 0 {
		return fmt.Errorf("%w: HeartbeatMs must not be negative, got %d", ErrInvalid, c.HeartbeatMs)
	}
	if len(c.Key) == 0 {
		return fmt.Errorf("%w: no keys configured", ErrInvalid)
	}

	lines := make(map[int]string, len(c.Key))
	names := make(map[keypad.KeyID]bool, len(c.Key))
	for i, k := range c.Key {
		id, err := keypad.ParseKeyID(k.Name)
		if err != nil {
			return fmt.Errorf("%w: key #%d: %v", ErrInvalid, i, err)
		}
		if k.Line < 0 {
			return fmt.Errorf("%w: key %s: negative line %d", ErrInvalid, id, k.Line)
		}
		if other, ok := lines[k.Line]; ok {
			return fmt.Errorf("%w: line %d bound to both %s and %s", ErrInvalid, k.Line, other, id)
		}
		if names[id] {
			return fmt.Errorf("%w: key %s bound more than once", ErrInvalid, id)
		}
		lines[k.Line] = id.String()
		names[id] = true
	}
	return nil
}

// Bindings converts the key table to keypad bindings. Call on a validated Config.
func (c Config) Bindings() []keypad.Binding {
	bindings := make([]keypad.Binding, 0, len(c.Key))
	for _, k := range c.Key {
		id, err := keypad.ParseKeyID(k.Name)
		if err != nil {
			continue
		}
		bindings = append(bindings, keypad.Binding{Line: k.Line, Key: id})
	}
	return bindings
}

// KeypadOptions returns the keypad options the configuration asks for.
func (c Config) KeypadOptions() []keypad.Option {
	opts := []keypad.Option{keypad.WithPriority(c.DebouncePriority())}
	if c.ActiveHigh {
		opts = append(opts, keypad.WithActiveHigh())
	}
	if c.InitialRead {
		opts = append(opts, keypad.WithInitialRead())
	}
	return opts
}

// Install writes the default configuration to prefix+path. An existing file
// is kept unless reset is set.
func Install(prefix, path string, reset bool) (string, error) {
	target := filepath.Join(prefix, path)
	if !reset {
		if _, err := os.Stat(target); err == nil {
			return target, nil
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("stat %s: %w", target, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(target, []byte(DefaultFile), 0o644); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return target, nil
}
