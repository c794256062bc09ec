// Package status provides a thread-safe status tracker for the climate-control daemon.
// It is read by the HTTP handlers and the MQTT heartbeat.
package status

import (
	"math"
	"sync"
	"time"

	"github.com/sweeney/climate-control/internal/climate"
)

// Config contains daemon configuration for display.
type Config struct {
	IntervalMs    int64
	RetryDelayMs  int64
	MaxAttempts   int
	EscalateAfter int
	Policy        string
	Rotation      string
	Storage       string
	Broker        string // empty = MQTT mirror disabled
	HTTPAddr      string
	Session       string
}

// Counts tracks cycle outcomes since startup.
type Counts struct {
	Cycles        int
	Degraded      int
	VentilationOn int
	LogErrors     int
	SensorFaults  int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Inside              climate.Sample
	Outside             climate.Sample
	InsideAH            float64 // NaN when the inside reading is invalid
	OutsideAH           float64
	Ventilation         bool
	Degraded            bool
	ConsecutiveDegraded int
	LastCycle           time.Time
	Counts              Counts
	StartTime           time.Time
	Now                 time.Time
	MQTTConnected       bool
	Config              Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether at least one cycle has completed.
func (s Snapshot) Ready() bool {
	return !s.LastCycle.IsZero()
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
			Inside:    climate.Unreadable(),
			Outside:   climate.Unreadable(),
			InsideAH:  math.NaN(),
			OutsideAH: math.NaN(),
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Record stores the outcome of a completed cycle.
// consecutive is the current run of degraded cycles (0 after a valid cycle).
func (t *Tracker) Record(rec climate.CycleRecord, consecutive int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Inside = rec.Inside
	t.snap.Outside = rec.Outside
	t.snap.InsideAH = absoluteOrNaN(rec.Inside)
	t.snap.OutsideAH = absoluteOrNaN(rec.Outside)
	t.snap.Ventilation = rec.Ventilation
	t.snap.Degraded = rec.Degraded
	t.snap.ConsecutiveDegraded = consecutive
	t.snap.LastCycle = rec.Time

	t.snap.Counts.Cycles++
	if rec.Degraded {
		t.snap.Counts.Degraded++
	}
	if rec.Ventilation {
		t.snap.Counts.VentilationOn++
	}
}

// LogError counts a failed journal append.
func (t *Tracker) LogError() {
	t.mu.Lock()
	t.snap.Counts.LogErrors++
	t.mu.Unlock()
}

// SensorFault counts an escalated sensor fault.
func (t *Tracker) SensorFault() {
	t.mu.Lock()
	t.snap.Counts.SensorFaults++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}

func absoluteOrNaN(s climate.Sample) float64 {
	if !s.Valid() {
		return math.NaN()
	}
	return s.Absolute()
}
