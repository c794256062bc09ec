package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/climate-control/internal/climate"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event               string     `json:"event,omitempty"`
	Reason              string     `json:"reason,omitempty"`
	Ventilation         string     `json:"ventilation"`
	Degraded            bool       `json:"degraded"`
	ConsecutiveDegraded int        `json:"consecutive_degraded"`
	Ready               bool       `json:"ready"`
	Inside              ZoneJSON   `json:"inside"`
	Outside             ZoneJSON   `json:"outside"`
	LastCycle           string     `json:"last_cycle,omitempty"`
	UptimeSeconds       int64      `json:"uptime_seconds"`
	StartTime           string     `json:"start_time"`
	Timestamp           string     `json:"timestamp"`
	MQTT                MQTTStatus `json:"mqtt"`
	Counts              CountsJSON `json:"cycle_counts"`
	Config              ConfigJSON `json:"config"`
}

// ZoneJSON is one zone's last reading. Unreadable values are null.
type ZoneJSON struct {
	TemperatureC *float64 `json:"temperature_c"`
	HumidityPct  *float64 `json:"humidity_pct"`
	AbsoluteGM3  *float64 `json:"absolute_g_m3"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of cycle counts.
type CountsJSON struct {
	Cycles        int `json:"cycles"`
	Degraded      int `json:"degraded"`
	VentilationOn int `json:"ventilation_on"`
	LogErrors     int `json:"log_errors"`
	SensorFaults  int `json:"sensor_faults"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalMs    int64  `json:"interval_ms"`
	RetryDelayMs  int64  `json:"retry_delay_ms"`
	MaxAttempts   int    `json:"max_attempts"`
	EscalateAfter int    `json:"escalate_after"`
	Policy        string `json:"policy"`
	Rotation      string `json:"rotation"`
	Storage       string `json:"storage"`
	Broker        string `json:"broker,omitempty"`
	HTTPAddr      string `json:"http_addr,omitempty"`
	Session       string `json:"session"`
}

// Num returns a pointer to v, or nil for NaN so it encodes as null.
func Num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Zone builds the JSON form of a reading.
func Zone(s climate.Sample, ah float64) ZoneJSON {
	return ZoneJSON{
		TemperatureC: Num(s.TemperatureC),
		HumidityPct:  Num(s.RelativeHumidity),
		AbsoluteGM3:  Num(ah),
	}
}

func buildInner(snap Snapshot) StatusInner {
	vent := string(climate.StateOf(snap.Ventilation))
	if !snap.Ready() {
		vent = "UNKNOWN"
	}

	inner := StatusInner{
		Ventilation:         vent,
		Degraded:            snap.Degraded,
		ConsecutiveDegraded: snap.ConsecutiveDegraded,
		Ready:               snap.Ready(),
		Inside:              Zone(snap.Inside, snap.InsideAH),
		Outside:             Zone(snap.Outside, snap.OutsideAH),
		UptimeSeconds:       int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:           snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:           snap.Now.UTC().Format(time.RFC3339),
		MQTT:                MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Cycles:        snap.Counts.Cycles,
			Degraded:      snap.Counts.Degraded,
			VentilationOn: snap.Counts.VentilationOn,
			LogErrors:     snap.Counts.LogErrors,
			SensorFaults:  snap.Counts.SensorFaults,
		},
		Config: ConfigJSON{
			IntervalMs:    snap.Config.IntervalMs,
			RetryDelayMs:  snap.Config.RetryDelayMs,
			MaxAttempts:   snap.Config.MaxAttempts,
			EscalateAfter: snap.Config.EscalateAfter,
			Policy:        snap.Config.Policy,
			Rotation:      snap.Config.Rotation,
			Storage:       snap.Config.Storage,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
			Session:       snap.Config.Session,
		},
	}
	if snap.Ready() {
		inner.LastCycle = snap.LastCycle.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
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
