// Package climate contains the pure decision logic for the ventilation controller.
// This package has NO external dependencies (no GPIO, I2C, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package climate

import (
	"math"
	"time"
)

// Zone names one of the two monitored spaces.
type Zone string

const (
	ZoneInside  Zone = "inside"
	ZoneOutside Zone = "outside"
)

// State is the display form of a ventilation decision.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// StateOf converts a ventilation decision to its display form.
func StateOf(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// Sample is a single sensor read attempt.
// Either field may be NaN, meaning the sensor could not be read this attempt.
type Sample struct {
	TemperatureC     float64 // °C
	RelativeHumidity float64 // %RH
}

// Unreadable returns a sample with both fields set to NaN.
func Unreadable() Sample {
	return Sample{TemperatureC: math.NaN(), RelativeHumidity: math.NaN()}
}

// Valid reports whether both fields are numeric.
func (s Sample) Valid() bool {
	return !math.IsNaN(s.TemperatureC) && !math.IsNaN(s.RelativeHumidity)
}

// Absolute returns the absolute humidity of a valid sample in g/m³.
// The caller must check Valid first.
func (s Sample) Absolute() float64 {
	return AbsoluteHumidity(s.RelativeHumidity, s.TemperatureC)
}

// CycleRecord is the outcome of one control cycle, as written to the journal.
type CycleRecord struct {
	Time        time.Time
	Inside      Sample
	Outside     Sample
	Ventilation bool
	// Degraded is set when either zone could not be read within the retry budget.
	// Ventilation is always false on a degraded cycle.
	Degraded bool
}

// Valid reports whether both zone readings are numeric.
func (r CycleRecord) Valid() bool {
	return r.Inside.Valid() && r.Outside.Valid()
}
