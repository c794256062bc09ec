// Package mqtt mirrors cycle records and lifecycle events to an MQTT broker.
// The mirror is diagnostic only: the control loop never waits on it.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/climate-control/internal/climate"
)

// TopicCycles is the MQTT topic for per-cycle records.
const TopicCycles = "climate/ventilation/cycles"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "climate/ventilation/system"

// System event names.
const (
	EventStartup     = "STARTUP"
	EventShutdown    = "SHUTDOWN"
	EventHeartbeat   = "HEARTBEAT"
	EventSensorFault = "SENSOR_FAULT"
	EventOffline     = "OFFLINE"
	EventReconnected = "RECONNECTED"
)

// Publisher publishes cycle records and system events.
type Publisher interface {
	// PublishRecord sends one cycle record.
	// Returns error if publishing fails (should not crash the process).
	PublishRecord(rec climate.CycleRecord) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "SENSOR_FAULT"
	Reason     string // e.g., "SIGTERM", "inside sensor unreadable for 3 cycles"
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for a cycle record.
type Payload struct {
	Cycle CyclePayload `json:"cycle"`
}

// CyclePayload contains the cycle details.
type CyclePayload struct {
	Timestamp   string    `json:"timestamp"`
	Inside      ZoneState `json:"inside"`
	Outside     ZoneState `json:"outside"`
	Ventilation string    `json:"ventilation"`
	Degraded    bool      `json:"degraded"`
}

// ZoneState is one zone's reading. Unreadable values are null.
type ZoneState struct {
	TemperatureC *float64 `json:"temperature_c"`
	HumidityPct  *float64 `json:"humidity_pct"`
	AbsoluteGM3  *float64 `json:"absolute_g_m3"`
}

func zoneState(s climate.Sample) ZoneState {
	z := ZoneState{
		TemperatureC: num(s.TemperatureC),
		HumidityPct:  num(s.RelativeHumidity),
	}
	if s.Valid() {
		z.AbsoluteGM3 = num(s.Absolute())
	}
	return z
}

func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// FormatPayload creates the JSON payload for a cycle record.
func FormatPayload(rec climate.CycleRecord) ([]byte, error) {
	payload := Payload{
		Cycle: CyclePayload{
			Timestamp:   rec.Time.UTC().Format(time.RFC3339),
			Inside:      zoneState(rec.Inside),
			Outside:     zoneState(rec.Outside),
			Ventilation: string(climate.StateOf(rec.Ventilation)),
			Degraded:    rec.Degraded,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
