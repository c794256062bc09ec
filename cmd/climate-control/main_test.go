package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"math"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/climate-control/internal/climate"
	"github.com/sweeney/climate-control/internal/config"
	"github.com/sweeney/climate-control/internal/control"
	"github.com/sweeney/climate-control/internal/journal"
	"github.com/sweeney/climate-control/internal/mqtt"
	"github.com/sweeney/climate-control/internal/relay"
	"github.com/sweeney/climate-control/internal/sensor"
	"github.com/sweeney/climate-control/internal/status"
)

var (
	humid = climate.Sample{TemperatureC: 20, RelativeHumidity: 60}
	dry   = climate.Sample{TemperatureC: 20, RelativeHumidity: 40}
	nanH  = climate.Sample{TemperatureC: 20, RelativeHumidity: math.NaN()}
)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from runLoop's goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func noWait(ctx context.Context, d time.Duration) error { return ctx.Err() }

type rig struct {
	ctrl     *control.Controller
	actuator *relay.FakeActuator
	storage  *journal.FakeStorage
	pub      *mqtt.FakePublisher
	tracker  *status.Tracker
}

func newRig(inside, outside []climate.Sample) *rig {
	r := &rig{
		actuator: relay.NewFakeActuator(),
		storage:  journal.NewFakeStorage(),
		pub:      mqtt.NewFakePublisher(),
		tracker:  status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{}),
	}

	in := sensor.NewReader(climate.ZoneInside, sensor.NewFakePort(inside...))
	in.Wait = noWait
	out := sensor.NewReader(climate.ZoneOutside, sensor.NewFakePort(outside...))
	out.Wait = noWait

	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)
	r.ctrl = &control.Controller{
		Inside:        in,
		Outside:       out,
		Policy:        climate.Threshold{},
		Actuator:      r.actuator,
		Journal:       &journal.Logger{Storage: r.storage, Rotation: journal.RotatePerDay},
		Mirror:        r.pub,
		Tracker:       r.tracker,
		Now:           clock,
		EscalateAfter: control.DefaultEscalateAfter,
		OnSensorFault: sensorFaultHook(r.pub, r.tracker, clock),
	}
	return r
}

// runRunLoop drives runLoop through nTicks ticks after the initial cycle,
// then delivers signal.
func runRunLoop(t *testing.T, r *rig, heartbeat time.Duration, clock func() time.Time, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(context.Background(), r.ctrl, r.pub, r.pub, r.tracker, heartbeat, clock, tick, sig)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	return <-errCh
}

func TestRunLoopCyclesImmediatelyAndPerTick(t *testing.T) {
	r := newRig([]climate.Sample{humid}, []climate.Sample{dry})
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	if err := runRunLoop(t, r, 0, clock, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	lines := r.storage.Lines("2026-01-01.txt")
	if len(lines) != 3 {
		t.Fatalf("expected 3 journal lines (1 immediate + 2 ticks), got %d", len(lines))
	}
	for _, l := range lines {
		if !strings.HasSuffix(l, ";true\n") {
			t.Errorf("expected ventilation on, got %q", l)
		}
	}
	if len(r.pub.Records) != 3 {
		t.Errorf("expected 3 mirrored records, got %d", len(r.pub.Records))
	}
}

func TestRunLoopShutdownSwitchesOff(t *testing.T) {
	r := newRig([]climate.Sample{humid}, []climate.Sample{dry})
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	if err := runRunLoop(t, r, 0, clock, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if r.actuator.State() {
		t.Error("expected ventilation off after shutdown")
	}
	calls := r.actuator.Calls
	if len(calls) == 0 || calls[len(calls)-1] {
		t.Errorf("expected last actuator call to be off, got %v", calls)
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	r := newRig([]climate.Sample{dry}, []climate.Sample{dry})
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	if err := runRunLoop(t, r, 0, clock, 0, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if len(r.pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(r.pub.SystemEvents))
	}
	se := r.pub.SystemEvents[0]
	if se.Event != mqtt.EventShutdown {
		t.Errorf("expected SHUTDOWN, got %q", se.Event)
	}
	if se.Reason != "SIGINT" {
		t.Errorf("expected reason SIGINT, got %q", se.Reason)
	}
	if !se.Retained {
		t.Error("expected Retained=true for SHUTDOWN")
	}
	if !bytes.Contains(se.RawPayload, []byte(`"event":"SHUTDOWN"`)) {
		t.Errorf("expected status snapshot payload, got %s", se.RawPayload)
	}
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	r := newRig([]climate.Sample{dry}, []climate.Sample{dry})
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	if err := runRunLoop(t, r, 0, clock, 0, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	names := r.pub.EventNames()
	if len(names) != 1 || names[0] != mqtt.EventShutdown {
		t.Fatalf("expected only SHUTDOWN, got %v", names)
	}
	if r.pub.SystemEvents[0].Reason != "SIGTERM" {
		t.Errorf("expected reason SIGTERM, got %q", r.pub.SystemEvents[0].Reason)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// runLoop clock calls: start (t0), after each cycle (t0+10m, t0+20m, t0+30m), shutdown.
	// With a 15 minute heartbeat only the cycle at t0+20m fires.
	r := newRig([]climate.Sample{humid}, []climate.Sample{dry})
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 10*time.Minute)

	if err := runRunLoop(t, r, 15*time.Minute, clock, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var heartbeats, shutdowns int
	for _, se := range r.pub.SystemEvents {
		switch se.Event {
		case mqtt.EventHeartbeat:
			heartbeats++
			if !bytes.Contains(se.RawPayload, []byte(`"cycles":2`)) {
				t.Errorf("expected heartbeat after 2 cycles, got %s", se.RawPayload)
			}
		case mqtt.EventShutdown:
			shutdowns++
		}
	}
	if heartbeats != 1 {
		t.Errorf("expected 1 HEARTBEAT event, got %d", heartbeats)
	}
	if shutdowns != 1 {
		t.Errorf("expected 1 SHUTDOWN event, got %d", shutdowns)
	}
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	r := newRig([]climate.Sample{humid}, []climate.Sample{dry})
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Hour)

	if err := runRunLoop(t, r, 0, clock, 3, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	for _, name := range r.pub.EventNames() {
		if name == mqtt.EventHeartbeat {
			t.Error("heartbeat should be disabled")
		}
	}
}

func TestRunLoopSensorFaultEscalation(t *testing.T) {
	r := newRig([]climate.Sample{nanH}, []climate.Sample{dry})
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	if err := runRunLoop(t, r, 0, clock, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	var faults []mqtt.SystemEvent
	for _, se := range r.pub.SystemEvents {
		if se.Event == mqtt.EventSensorFault {
			faults = append(faults, se)
		}
	}
	// 3 degraded cycles, escalation from the 2nd.
	if len(faults) != 2 {
		t.Fatalf("expected 2 SENSOR_FAULT events, got %d (%v)", len(faults), r.pub.EventNames())
	}
	if faults[0].Reason != "inside unreadable for 2 consecutive cycles" {
		t.Errorf("unexpected reason %q", faults[0].Reason)
	}

	for _, l := range r.storage.Lines("2026-01-01.txt") {
		if !strings.HasSuffix(l, ";false\n") {
			t.Errorf("degraded cycle must log ventilation false, got %q", l)
		}
	}
	if r.tracker.Snapshot().Counts.SensorFaults != 2 {
		t.Errorf("SensorFaults: got %d, want 2", r.tracker.Snapshot().Counts.SensorFaults)
	}
}

func TestRunLoopPublishErrorIgnored(t *testing.T) {
	r := newRig([]climate.Sample{humid}, []climate.Sample{dry})
	r.pub.PublishError = errors.New("broker unavailable")
	clock := fakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)

	if err := runRunLoop(t, r, 0, clock, 2, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if n := len(r.storage.Lines("2026-01-01.txt")); n != 3 {
		t.Errorf("expected 3 journal lines despite publish errors, got %d", n)
	}
	if names := r.pub.EventNames(); len(names) != 1 || names[0] != mqtt.EventShutdown {
		t.Errorf("expected SHUTDOWN system event despite publish errors, got %v", names)
	}
}

func TestRunLoopWithoutMirror(t *testing.T) {
	r := newRig([]climate.Sample{humid}, []climate.Sample{dry})
	r.ctrl.Mirror = nil
	r.ctrl.OnSensorFault = sensorFaultHook(nil, r.tracker, time.Now)
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(context.Background(), r.ctrl, nil, nil, r.tracker, time.Minute, time.Now, tick, sig)
	}()
	tick <- time.Time{}
	sig <- syscall.SIGTERM

	if err := <-errCh; err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if n := len(r.storage.Lines("2026-01-01.txt")); n != 2 {
		t.Errorf("expected 2 journal lines, got %d", n)
	}
	if r.actuator.State() {
		t.Error("expected ventilation off after shutdown")
	}
}

func TestRunLoopCancelledDuringRetry(t *testing.T) {
	r := newRig([]climate.Sample{nanH}, []climate.Sample{dry})
	r.actuator.Set(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sig := make(chan os.Signal, 1)

	err := runLoop(ctx, r.ctrl, r.pub, r.pub, r.tracker, 0, time.Now, make(chan time.Time), sig)
	if err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if r.actuator.State() {
		t.Error("expected ventilation off")
	}
	if n := len(r.storage.Entries); n != 0 {
		t.Errorf("interrupted cycle must not be logged, got %d entries", n)
	}
	if len(r.pub.SystemEvents) != 1 || r.pub.SystemEvents[0].Reason != "CANCELLED" {
		t.Errorf("expected SHUTDOWN with reason CANCELLED, got %+v", r.pub.SystemEvents)
	}
}

func TestRunLoopCancelledWithPendingSignal(t *testing.T) {
	r := newRig([]climate.Sample{nanH}, []climate.Sample{dry})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sig := make(chan os.Signal, 1)
	sig <- syscall.SIGINT

	if err := runLoop(ctx, r.ctrl, r.pub, r.pub, r.tracker, 0, time.Now, make(chan time.Time), sig); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if len(r.pub.SystemEvents) != 1 || r.pub.SystemEvents[0].Reason != "SIGINT" {
		t.Errorf("expected SHUTDOWN with reason SIGINT, got %+v", r.pub.SystemEvents)
	}
}

// --- helpers ---

func TestRegisterFlagsOverrideEnv(t *testing.T) {
	t.Setenv("CLIMATE_INTERVAL", "30s")
	t.Setenv("CLIMATE_POLICY", "dwell")
	cfg, err := config.Parse()
	if err != nil {
		t.Fatal(err)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	printSample := registerFlags(fs, &cfg)
	err = fs.Parse([]string{"-interval", "2m", "-relay-pins", "5, 6", "-broker", "tcp://pi:1883", "-print-sample"})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	if cfg.Interval != 2*time.Minute {
		t.Errorf("Interval: got %v, want 2m (flag wins)", cfg.Interval)
	}
	if cfg.Policy != config.PolicyDwell {
		t.Errorf("Policy: got %q, want dwell from env", cfg.Policy)
	}
	if len(cfg.RelayPins) != 2 || cfg.RelayPins[0] != 5 || cfg.RelayPins[1] != 6 {
		t.Errorf("RelayPins: got %v, want [5 6]", cfg.RelayPins)
	}
	if cfg.Broker != "tcp://pi:1883" {
		t.Errorf("Broker: got %q", cfg.Broker)
	}
	if !*printSample {
		t.Error("expected print-sample")
	}
}

func TestRegisterFlagsBadPins(t *testing.T) {
	cfg, err := config.Parse()
	if err != nil {
		t.Fatal(err)
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	registerFlags(fs, &cfg)
	if err := fs.Parse([]string{"-relay-pins", "17,x"}); err == nil {
		t.Error("expected error for invalid relay pin")
	}
}

func TestSignalName(t *testing.T) {
	tests := []struct {
		sig  os.Signal
		want string
	}{
		{syscall.SIGINT, "SIGINT"},
		{syscall.SIGTERM, "SIGTERM"},
		{syscall.SIGHUP, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := signalName(tt.sig); got != tt.want {
			t.Errorf("signalName(%v) = %q, want %q", tt.sig, got, tt.want)
		}
	}
}

func TestFaultyZones(t *testing.T) {
	rec := climate.CycleRecord{Inside: nanH, Outside: dry}
	if got := faultyZones(rec); got != "inside" {
		t.Errorf("got %q, want inside", got)
	}
	rec.Outside = climate.Unreadable()
	if got := faultyZones(rec); got != "inside+outside" {
		t.Errorf("got %q, want inside+outside", got)
	}
}

func TestBuildPolicy(t *testing.T) {
	if _, ok := buildPolicy(config.Config{Policy: config.PolicyThreshold}).(climate.Threshold); !ok {
		t.Error("expected Threshold policy")
	}
	p, ok := buildPolicy(config.Config{Policy: config.PolicyDwell, MinDwell: time.Minute}).(*climate.Dwell)
	if !ok {
		t.Fatal("expected Dwell policy")
	}
	if p.MinDwell != time.Minute {
		t.Errorf("MinDwell: got %v", p.MinDwell)
	}
}

func TestPrintSamples(t *testing.T) {
	in := sensor.NewReader(climate.ZoneInside, sensor.NewFakePort(humid))
	out := sensor.NewReader(climate.ZoneOutside, sensor.NewFakePort(climate.Unreadable()))
	out.Wait = noWait

	var buf bytes.Buffer
	if err := printSamples(context.Background(), &buf, in, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "inside: 20.00°C 60.00%RH") {
		t.Errorf("missing inside reading in %q", got)
	}
	if !strings.Contains(got, "outside: unreadable after 3 attempts") {
		t.Errorf("missing outside failure in %q", got)
	}
}

func TestOpenStorage(t *testing.T) {
	dir := t.TempDir()

	t.Run("dir", func(t *testing.T) {
		cfg := config.Config{Storage: config.StorageDir, JournalDir: filepath.Join(dir, "journal")}
		s, closeFn, err := openStorage(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer closeFn()
		if err := s.Append("a.txt", []byte("line\n")); err != nil {
			t.Fatalf("append: %v", err)
		}
		data, err := os.ReadFile(filepath.Join(dir, "journal", "a.txt"))
		if err != nil || string(data) != "line\n" {
			t.Errorf("file contents: %q, %v", data, err)
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Config{Storage: config.StorageSQLite, JournalDB: filepath.Join(dir, "journal.db")}
		s, closeFn, err := openStorage(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := s.(*journal.SQLiteStorage); !ok {
			t.Errorf("expected SQLiteStorage, got %T", s)
		}
		if err := s.Append("a.txt", []byte("line\n")); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := closeFn(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
}

func TestStatusConfig(t *testing.T) {
	cfg, err := config.Parse()
	if err != nil {
		t.Fatal(err)
	}
	sc := statusConfig(cfg, "abc")
	if sc.IntervalMs != 60000 || sc.RetryDelayMs != 5000 || sc.MaxAttempts != 3 {
		t.Errorf("unexpected status config %+v", sc)
	}
	if sc.Session != "abc" {
		t.Errorf("Session: got %q", sc.Session)
	}
}
