// Package control runs one acquire → decide → actuate → log cycle at a time.
package control

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/sweeney/climate-control/internal/climate"
	"github.com/sweeney/climate-control/internal/relay"
	"github.com/sweeney/climate-control/internal/sensor"
	"github.com/sweeney/climate-control/internal/status"
)

// DefaultEscalateAfter is the number of consecutive degraded cycles before
// the sensor fault hook fires.
const DefaultEscalateAfter = 2

// Journal persists cycle records.
type Journal interface {
	Append(rec climate.CycleRecord) error
}

// Mirror receives a copy of every record. Failures are logged only.
type Mirror interface {
	PublishRecord(rec climate.CycleRecord) error
}

// FaultFunc is called on each degraded cycle once the consecutive degraded
// count has reached the escalation threshold.
type FaultFunc func(consecutive int, rec climate.CycleRecord)

// Controller owns the per-cycle pipeline and the consecutive failure count.
// It is not safe for concurrent use; cycles must run one at a time.
type Controller struct {
	Inside   *sensor.Reader
	Outside  *sensor.Reader
	Policy   climate.Policy
	Actuator relay.Actuator
	Journal  Journal

	// Optional observers.
	Mirror  Mirror
	Tracker *status.Tracker

	Now func() time.Time

	// EscalateAfter counts whole cycles, independent of the per-read retry
	// budget in the sensor readers. 0 disables escalation.
	EscalateAfter int
	OnSensorFault FaultFunc

	consecutive int
}

// ConsecutiveDegraded returns the current run of degraded cycles.
func (c *Controller) ConsecutiveDegraded() int {
	return c.consecutive
}

// Cycle runs one full control cycle and returns its record.
//
// A zone that cannot be read within its retry budget makes the cycle
// degraded: the policy is skipped and ventilation is forced off. Actuation
// always happens before logging, and logging failures never fail the cycle.
//
// The only error is ctx cancellation during sampling. Ventilation is then
// switched off and nothing is logged.
func (c *Controller) Cycle(ctx context.Context) (climate.CycleRecord, error) {
	rec := climate.CycleRecord{Time: c.now()}

	// Sampling
	in, err := c.Inside.Read(ctx)
	if err != nil {
		c.failSafe()
		return rec, err
	}
	out, err := c.Outside.Read(ctx)
	if err != nil {
		c.failSafe()
		return rec, err
	}
	rec.Inside, rec.Outside = in.Sample, out.Sample
	rec.Degraded = !rec.Valid()

	// Deciding
	insideAH, outsideAH := math.NaN(), math.NaN()
	if rec.Degraded {
		if r, ok := c.Policy.(interface{ Reset() }); ok {
			r.Reset()
		}
	} else {
		insideAH, outsideAH = rec.Inside.Absolute(), rec.Outside.Absolute()
		rec.Ventilation = c.Policy.Decide(rec.Time, insideAH, outsideAH)
	}

	// Actuating
	if err := c.Actuator.Set(rec.Ventilation); err != nil {
		log.Printf("actuator: set %s: %v", climate.StateOf(rec.Ventilation), err)
	}

	if rec.Degraded {
		log.Printf("cycle: DEGRADED inside=%s (%d attempts) outside=%s (%d attempts) ventilation=OFF",
			describe(rec.Inside), in.Attempts, describe(rec.Outside), out.Attempts)
	} else {
		log.Printf("cycle: inside=%s AH=%.2fg/m³ outside=%s AH=%.2fg/m³ ventilation=%s",
			describe(rec.Inside), insideAH, describe(rec.Outside), outsideAH, climate.StateOf(rec.Ventilation))
	}

	// Logging
	if err := c.Journal.Append(rec); err != nil {
		log.Printf("journal: %v", err)
		if c.Tracker != nil {
			c.Tracker.LogError()
		}
	}

	c.track(rec)

	if c.Mirror != nil {
		if err := c.Mirror.PublishRecord(rec); err != nil {
			log.Printf("mirror: %v", err)
		}
	}

	return rec, nil
}

// track updates the consecutive degraded count and escalates when due.
func (c *Controller) track(rec climate.CycleRecord) {
	if !rec.Degraded {
		c.consecutive = 0
	} else {
		c.consecutive++
	}

	if c.Tracker != nil {
		c.Tracker.Record(rec, c.consecutive)
	}

	if rec.Degraded && c.EscalateAfter > 0 && c.consecutive >= c.EscalateAfter {
		log.Printf("cycle: %d consecutive degraded cycles, escalating sensor fault", c.consecutive)
		if c.Tracker != nil {
			c.Tracker.SensorFault()
		}
		if c.OnSensorFault != nil {
			c.OnSensorFault(c.consecutive, rec)
		}
	}
}

// Stop switches ventilation off. Call it on shutdown.
func (c *Controller) Stop() {
	c.failSafe()
}

func (c *Controller) failSafe() {
	if err := c.Actuator.Set(false); err != nil {
		log.Printf("actuator: set OFF: %v", err)
	}
}

func (c *Controller) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func describe(s climate.Sample) string {
	return fmt.Sprintf("%.1f°C/%.1f%%RH", s.TemperatureC, s.RelativeHumidity)
}
