// Command keypad-sensor watches front-panel keys on GPIO lines and publishes
// debounced key presses and releases to MQTT.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sweeney/keypad-sensor/internal/config"
	"github.com/sweeney/keypad-sensor/internal/gpio"
	"github.com/sweeney/keypad-sensor/internal/keypad"
	"github.com/sweeney/keypad-sensor/internal/mqtt"
	"github.com/sweeney/keypad-sensor/internal/status"
	"github.com/sweeney/keypad-sensor/internal/web"
)

// eventQueueSize bounds key events waiting for the main loop.
const eventQueueSize = 64

var (
	configPath    string
	verbose       bool
	installPrefix string
	installReset  bool

	mainCmd = &cobra.Command{
		Use:          "keypad-sensor",
		Short:        "Debounced GPIO keypad to MQTT bridge",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		RunE:  runDaemon,
	}
	stateCmd = &cobra.Command{
		Use:   "state",
		Short: "Print the raw level of every configured key line and exit",
		RunE:  runState,
	}
	installCmd = &cobra.Command{
		Use:   "install",
		Short: "Write the default configuration",
		RunE:  runInstall,
	}
)

func main() {
	mainCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config path. The path to the configuration file")
	mainCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every key transition")
	installCmd.Flags().BoolVar(&installReset, "reset", false, "Reset config. Overwrites an existing configuration with the default")
	installCmd.Flags().StringVarP(&installPrefix, "prefix", "p", "/", "Install prefix. Prefix to the config path")
	mainCmd.AddCommand(runCmd, stateCmd, installCmd)

	if err := mainCmd.Execute(); err != nil {
		log.WithError(err).Fatal("fatal")
	}
}

func runInstall(cmd *cobra.Command, args []string) error {
	path, err := config.Install(installPrefix, configPath, installReset)
	if err != nil {
		return fmt.Errorf("install: %w", err)
	}
	log.WithField("path", path).Info("config installed")
	return nil
}

func runState(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	src, err := gpio.NewRealSource(c.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer src.Close()

	bias := gpio.PullUp
	if c.ActiveHigh {
		bias = gpio.PullDown
	}
	return printState(cmd.OutOrStdout(), src, c.Bindings(), bias, c.ActiveHigh)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	src, err := gpio.NewRealSource(c.Chip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer src.Close()

	events := make(chan keypad.Event, eventQueueSize)
	opts := append(c.KeypadOptions(), keypad.WithEventListener(queueEvents(events)))
	kp, err := keypad.New(src, c.Bindings(), c.Debounce(), opts...)
	if err != nil {
		return fmt.Errorf("init keypad: %w", err)
	}
	defer kp.Close()

	publisher, err := mqtt.NewRealPublisher(c.Broker, c.ClientID)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Tracker exists before STARTUP so the snapshot is available.
	tracker := status.NewTracker(time.Now(), status.Config{
		Chip:        c.Chip,
		DebounceMs:  c.DebounceMs,
		Priority:    c.DebouncePriority(),
		ActiveHigh:  c.ActiveHigh,
		HeartbeatMs: c.HeartbeatMs,
		Broker:      c.Broker,
		HTTPAddr:    c.HTTPAddr,
	})
	tracker.Update(status.KeyStates(kp))
	tracker.SetMQTTConnected(publisher.IsConnected())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	publishLifecycle(publisher, tracker, time.Now(), "STARTUP", "")

	if c.HTTPAddr != "" {
		srv := web.New(c.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("http server")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.WithField("addr", c.HTTPAddr).Info("http status server listening")
	}

	log.WithFields(log.Fields{
		"chip":      c.Chip,
		"keys":      len(c.Key),
		"debounce":  c.Debounce(),
		"priority":  c.DebouncePriority(),
		"broker":    c.Broker,
		"heartbeat": c.Heartbeat(),
	}).Info("started")

	var heartbeat <-chan time.Time
	if c.Heartbeat() > 0 {
		ticker := time.NewTicker(c.Heartbeat())
		defer ticker.Stop()
		heartbeat = ticker.C
	}
	refresh := time.NewTicker(time.Second)
	defer refresh.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		keypad:     kp,
		events:     events,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		now:        time.Now,
	}
	return l.run(heartbeat, refresh.C, sigCh)
}

// queueEvents returns a keypad listener that hands events to the main loop.
// It runs on debouncer goroutines and must not block them, so a full queue
// drops the event.
func queueEvents(ch chan<- keypad.Event) func(keypad.Event) {
	return func(e keypad.Event) {
		select {
		case ch <- e:
		default:
			log.WithFields(log.Fields{"key": e.Key, "event": e.Type}).Warn("event queue full, dropping event")
		}
	}
}

// loop is the daemon's main select loop. All publishing happens here.
type loop struct {
	keypad     *keypad.Keypad
	events     <-chan keypad.Event
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	now        func() time.Time
}

func (l *loop) run(heartbeat, refresh <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.WithField("signal", s).Info("shutting down")
			l.drainEvents()
			l.refresh()
			publishLifecycle(l.publisher, l.tracker, l.now(), "SHUTDOWN", signalName(s))
			return nil

		case e := <-l.events:
			l.publish(e)
			l.refresh()

		case <-heartbeat:
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				l.tracker.SetNetwork(net)
			}
			l.refresh()
			publishLifecycle(l.publisher, l.tracker, l.now(), "HEARTBEAT", "")

		case <-refresh:
			l.refresh()
		}
	}
}

func (l *loop) publish(e keypad.Event) {
	log.WithFields(log.Fields{"key": e.Key, "event": e.Type}).Debug("key event")
	if err := l.publisher.Publish(e); err != nil {
		// Don't crash on publish failure
		log.WithError(err).WithField("key", e.Key).Warn("publish")
	}
}

// drainEvents publishes events already queued when shutdown starts.
func (l *loop) drainEvents() {
	for {
		select {
		case e := <-l.events:
			l.publish(e)
		default:
			return
		}
	}
}

func (l *loop) refresh() {
	if l.keypad != nil {
		l.tracker.Update(status.KeyStates(l.keypad))
	}
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

// publishLifecycle publishes a retained system event carrying a full status
// snapshot. HEARTBEAT is not retained.
func publishLifecycle(pub mqtt.Publisher, tracker *status.Tracker, at time.Time, event, reason string) {
	snap := tracker.Snapshot()
	se := mqtt.SystemEvent{
		Timestamp:  at,
		Event:      event,
		Reason:     reason,
		Retained:   event != "HEARTBEAT",
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	entry := log.WithField("event", event)
	if err := pub.PublishSystem(se); err != nil {
		entry.WithError(err).Warn("publish system event")
		return
	}
	entry.Info("published system event")
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
