// Command climate-control samples inside and outside humidity and switches
// ventilation on when the inside air holds more water than the outside air.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/climate-control/internal/climate"
	"github.com/sweeney/climate-control/internal/config"
	"github.com/sweeney/climate-control/internal/control"
	"github.com/sweeney/climate-control/internal/journal"
	"github.com/sweeney/climate-control/internal/mqtt"
	"github.com/sweeney/climate-control/internal/relay"
	"github.com/sweeney/climate-control/internal/sensor"
	"github.com/sweeney/climate-control/internal/status"
	"github.com/sweeney/climate-control/internal/web"
)

func main() {
	cfg, err := config.Load(os.Getenv("CLIMATE_ENV_FILE"))
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	printSample := registerFlags(flag.CommandLine, &cfg)
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("fatal: invalid config: %v", err)
	}
	if err := run(cfg, *printSample); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// registerFlags binds command-line flags to cfg. Environment values become
// the flag defaults, so flags win when both are given.
func registerFlags(fs *flag.FlagSet, cfg *config.Config) *bool {
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "Control cycle interval")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "Delay between sensor read attempts")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Sensor read attempts per cycle")
	fs.IntVar(&cfg.EscalateAfter, "escalate-after", cfg.EscalateAfter, "Consecutive degraded cycles before a sensor fault is raised (0 to disable)")
	fs.StringVar(&cfg.Policy, "policy", cfg.Policy, `Ventilation policy ("threshold" or "dwell")`)
	fs.DurationVar(&cfg.MinDwell, "min-dwell", cfg.MinDwell, "Minimum time a new decision must hold (dwell policy)")

	fs.StringVar(&cfg.I2CBus, "i2c-bus", cfg.I2CBus, "I2C bus name (empty for the first bus)")
	fs.StringVar(&cfg.InsideDriver, "inside-driver", cfg.InsideDriver, `Inside sensor driver ("bme280" or "hdc302x")`)
	fs.StringVar(&cfg.InsideAddr, "inside-addr", cfg.InsideAddr, "Inside sensor I2C address")
	fs.StringVar(&cfg.OutsideDriver, "outside-driver", cfg.OutsideDriver, `Outside sensor driver ("bme280" or "hdc302x")`)
	fs.StringVar(&cfg.OutsideAddr, "outside-addr", cfg.OutsideAddr, "Outside sensor I2C address")

	fs.StringVar(&cfg.GPIOChip, "gpio-chip", cfg.GPIOChip, "GPIO chip for the relays")
	fs.Func("relay-pins", fmt.Sprintf("Comma separated BCM pins for the relays (default %s)", joinInts(cfg.RelayPins)), func(s string) error {
		pins, err := parseInts(s)
		if err != nil {
			return err
		}
		cfg.RelayPins = pins
		return nil
	})
	fs.BoolVar(&cfg.RelayTest, "relay-test", cfg.RelayTest, "Click the relays on/off twice at startup")

	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, `Journal storage ("dir" or "sqlite")`)
	fs.StringVar(&cfg.JournalDir, "journal-dir", cfg.JournalDir, "Journal directory (dir storage)")
	fs.StringVar(&cfg.JournalDB, "journal-db", cfg.JournalDB, "Journal database path (sqlite storage)")
	fs.StringVar(&cfg.Rotation, "rotation", cfg.Rotation, `Journal file rotation ("run" or "day")`)

	fs.StringVar(&cfg.Broker, "broker", cfg.Broker, "MQTT broker address for the diagnostic mirror (empty to disable)")
	fs.DurationVar(&cfg.Heartbeat, "heartbeat", cfg.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP status address (empty to disable)")

	return fs.Bool("print-sample", false, "Read both sensors once, print and exit")
}

func run(cfg config.Config, printSample bool) error {
	startTime := time.Now()
	session := uuid.NewString()

	// Signals cancel ctx so retry waits stop promptly; the signal itself is
	// forwarded to runLoop for the shutdown reason.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	sig := make(chan os.Signal, 1)
	go func() {
		s := <-sigCh
		sig <- s
		cancel()
	}()

	// Initialize sensors
	insidePort, err := openSensor(cfg.InsideDriver, cfg.I2CBus, cfg.InsideAddr)
	if err != nil {
		return fmt.Errorf("init inside sensor: %w", err)
	}
	defer insidePort.Close()
	outsidePort, err := openSensor(cfg.OutsideDriver, cfg.I2CBus, cfg.OutsideAddr)
	if err != nil {
		return fmt.Errorf("init outside sensor: %w", err)
	}
	defer outsidePort.Close()

	inside := newReader(climate.ZoneInside, insidePort, cfg)
	outside := newReader(climate.ZoneOutside, outsidePort, cfg)

	// Print sample mode
	if printSample {
		return printSamples(ctx, os.Stdout, inside, outside)
	}

	// Initialize relays
	actuator, err := relay.NewRealActuator(cfg.GPIOChip, cfg.RelayPins...)
	if err != nil {
		return fmt.Errorf("init relays: %w", err)
	}
	defer actuator.Close()

	if cfg.RelayTest {
		log.Printf("relay self-test")
		if err := relay.SelfTest(ctx, actuator, relay.SelfTestPause); err != nil {
			log.Printf("relay self-test: %v", err)
		}
	}

	// Initialize journal
	storage, closeStorage, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("init journal: %w", err)
	}
	defer closeStorage()
	rotation, _ := journal.ParseRotation(cfg.Rotation)
	logger := &journal.Logger{
		Storage:  storage,
		Rotation: rotation,
		RunFile:  journal.RunFileName(startTime, session),
	}

	tracker := status.NewTracker(startTime, statusConfig(cfg, session))

	// Initialize the optional MQTT mirror. Interfaces stay nil when disabled.
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.Broker, "climate-control-"+session[:8], mqtt.DefaultBufferSize)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
		tracker.SetMQTTConnected(p.IsConnected())

		snap := tracker.Snapshot()
		startupEvent := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      mqtt.EventStartup,
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, mqtt.EventStartup, ""),
		}
		if err := p.PublishSystem(startupEvent); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	ctrl := &control.Controller{
		Inside:        inside,
		Outside:       outside,
		Policy:        buildPolicy(cfg),
		Actuator:      actuator,
		Journal:       logger,
		Tracker:       tracker,
		EscalateAfter: cfg.EscalateAfter,
		OnSensorFault: sensorFaultHook(publisher, tracker, time.Now),
	}
	if publisher != nil {
		ctrl.Mirror = publisher
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: session=%s interval=%v attempts=%d retry-delay=%v policy=%s journal=%s",
		session, cfg.Interval, cfg.MaxAttempts, cfg.RetryDelay, cfg.Policy, describeStorage(cfg, logger))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	return runLoop(ctx, ctrl, publisher, mqttStatus, tracker, cfg.Heartbeat, time.Now, ticker.C, sig)
}

// runLoop runs one cycle immediately and then one per tick until a signal
// arrives or ctx is cancelled. Ventilation is switched off before it returns.
func runLoop(ctx context.Context, ctrl *control.Controller, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := now()

	step := func() bool {
		if _, err := ctrl.Cycle(ctx); err != nil {
			log.Printf("cycle interrupted: %v", err)
			return false
		}
		if tracker != nil && mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}

		// Check for heartbeat
		t := now()
		if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
			lastHeartbeat = t
			publishHeartbeat(publisher, tracker, t)
		}
		return true
	}

	if !step() {
		return shutdown(ctrl, publisher, mqttStatus, tracker, now, "", sig)
	}
	for {
		select {
		case s := <-sig:
			return shutdown(ctrl, publisher, mqttStatus, tracker, now, signalName(s), sig)
		case <-ctx.Done():
			return shutdown(ctrl, publisher, mqttStatus, tracker, now, "", sig)
		case <-tick:
			if !step() {
				return shutdown(ctrl, publisher, mqttStatus, tracker, now, "", sig)
			}
		}
	}
}

// shutdown switches ventilation off and publishes SHUTDOWN. An empty reason
// is taken from a pending signal if there is one.
func shutdown(ctrl *control.Controller, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, reason string, sig <-chan os.Signal) error {
	if reason == "" {
		select {
		case s := <-sig:
			reason = signalName(s)
		default:
		}
	}
	if reason == "" {
		reason = "CANCELLED"
	}
	log.Printf("shutting down (%s), ventilation OFF", reason)
	ctrl.Stop()

	if publisher == nil {
		return nil
	}
	event := mqtt.SystemEvent{
		Timestamp: now(),
		Event:     mqtt.EventShutdown,
		Reason:    reason,
		Retained:  true,
	}
	if tracker != nil {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), mqtt.EventShutdown, reason)
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish shutdown event: %v", err)
	} else {
		log.Printf("published shutdown event")
	}
	return nil
}

func publishHeartbeat(publisher mqtt.Publisher, tracker *status.Tracker, t time.Time) {
	event := mqtt.SystemEvent{
		Timestamp: t,
		Event:     mqtt.EventHeartbeat,
	}
	if tracker != nil {
		snap := tracker.Snapshot()
		log.Printf("heartbeat: uptime=%v cycles=%d degraded=%d ventilation_on=%d log_errors=%d",
			snap.Uptime().Truncate(time.Second), snap.Counts.Cycles, snap.Counts.Degraded,
			snap.Counts.VentilationOn, snap.Counts.LogErrors)
		event.RawPayload = status.FormatStatusEvent(snap, mqtt.EventHeartbeat, "")
	}
	if publisher == nil {
		return
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("heartbeat publish error: %v", err)
	}
}

// sensorFaultHook returns the escalation hook for the controller. It
// publishes a SENSOR_FAULT event naming the unreadable zones.
func sensorFaultHook(publisher mqtt.Publisher, tracker *status.Tracker, now func() time.Time) control.FaultFunc {
	return func(consecutive int, rec climate.CycleRecord) {
		reason := fmt.Sprintf("%s unreadable for %d consecutive cycles", faultyZones(rec), consecutive)
		log.Printf("SENSOR FAULT: %s", reason)
		if publisher == nil {
			return
		}
		event := mqtt.SystemEvent{
			Timestamp: now(),
			Event:     mqtt.EventSensorFault,
			Reason:    reason,
		}
		if tracker != nil {
			event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), mqtt.EventSensorFault, reason)
		}
		if err := publisher.PublishSystem(event); err != nil {
			log.Printf("sensor fault publish error: %v", err)
		}
	}
}

func faultyZones(rec climate.CycleRecord) string {
	var zones []string
	if !rec.Inside.Valid() {
		zones = append(zones, string(climate.ZoneInside))
	}
	if !rec.Outside.Valid() {
		zones = append(zones, string(climate.ZoneOutside))
	}
	return strings.Join(zones, "+")
}

func printSamples(ctx context.Context, w io.Writer, readers ...*sensor.Reader) error {
	for _, r := range readers {
		res, err := r.Read(ctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", r.Zone, err)
		}
		if !res.OK() {
			fmt.Fprintf(w, "%s: unreadable after %d attempts\n", r.Zone, res.Attempts)
			continue
		}
		s := res.Sample
		fmt.Fprintf(w, "%s: %.2f°C %.2f%%RH AH %.2f g/m³\n", r.Zone, s.TemperatureC, s.RelativeHumidity, s.Absolute())
	}
	return nil
}

func openSensor(driver, bus, addr string) (*sensor.I2CPort, error) {
	a, err := config.ParseAddr(addr)
	if err != nil {
		return nil, err
	}
	return sensor.OpenI2C(driver, bus, a)
}

func newReader(zone climate.Zone, port sensor.Port, cfg config.Config) *sensor.Reader {
	r := sensor.NewReader(zone, port)
	r.MaxAttempts = cfg.MaxAttempts
	r.RetryDelay = cfg.RetryDelay
	return r
}

// openStorage returns the journal backend and its close function.
func openStorage(cfg config.Config) (journal.Storage, func() error, error) {
	if cfg.Storage == config.StorageSQLite {
		s, err := journal.OpenSQLite(cfg.JournalDB)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	s, err := journal.NewDirStorage(cfg.JournalDir)
	if err != nil {
		return nil, nil, err
	}
	return s, func() error { return nil }, nil
}

func buildPolicy(cfg config.Config) climate.Policy {
	if cfg.Policy == config.PolicyDwell {
		return climate.NewDwell(climate.Threshold{}, cfg.MinDwell)
	}
	return climate.Threshold{}
}

func statusConfig(cfg config.Config, session string) status.Config {
	return status.Config{
		IntervalMs:    cfg.Interval.Milliseconds(),
		RetryDelayMs:  cfg.RetryDelay.Milliseconds(),
		MaxAttempts:   cfg.MaxAttempts,
		EscalateAfter: cfg.EscalateAfter,
		Policy:        cfg.Policy,
		Rotation:      cfg.Rotation,
		Storage:       cfg.Storage,
		Broker:        cfg.Broker,
		HTTPAddr:      cfg.HTTPAddr,
		Session:       session,
	}
}

func describeStorage(cfg config.Config, l *journal.Logger) string {
	if cfg.Storage == config.StorageSQLite {
		return cfg.JournalDB
	}
	if l.Rotation == journal.RotatePerRun {
		return filepath.Join(cfg.JournalDir, l.RunFile)
	}
	return cfg.JournalDir
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

func parseInts(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid pin %q", f)
		}
		out = append(out, n)
	}
	return out, nil
}

func joinInts(v []int) string {
	s := make([]string, len(v))
	for i, n := range v {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, ",")
}
