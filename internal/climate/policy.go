package climate

import "time"

// Policy decides whether to ventilate from the absolute humidity of both zones.
// Decide is only called for valid cycles; degraded cycles are forced off by the caller.
type Policy interface {
	Decide(now time.Time, insideAH, outsideAH float64) bool
}

// Threshold is the baseline policy: ventilate iff the inside air holds strictly
// more water than the outside air. Ties do not ventilate.
//
// There is no hysteresis: readings near the crossover can flip the decision
// every cycle. Wrap it in a Dwell to damp that.
type Threshold struct{}

// Decide implements Policy.
func (Threshold) Decide(_ time.Time, insideAH, outsideAH float64) bool {
	return insideAH > outsideAH
}

// Dwell wraps another policy and only changes its output once the wrapped
// decision has been stable for MinDwell. The first decision is taken as-is.
type Dwell struct {
	Inner    Policy
	MinDwell time.Duration

	stable       bool
	baselined    bool
	pending      bool
	hasPending   bool
	pendingSince time.Time
}

// NewDwell creates a Dwell around inner.
func NewDwell(inner Policy, minDwell time.Duration) *Dwell {
	return &Dwell{Inner: inner, MinDwell: minDwell}
}

// Decide implements Policy.
func (d *Dwell) Decide(now time.Time, insideAH, outsideAH float64) bool {
	want := d.Inner.Decide(now, insideAH, outsideAH)

	if !d.baselined {
		d.stable = want
		d.baselined = true
		return d.stable
	}

	if want == d.stable {
		d.hasPending = false
		return d.stable
	}

	if !d.hasPending || d.pending != want {
		d.pending = want
		d.hasPending = true
		d.pendingSince = now
	}

	if now.Sub(d.pendingSince) >= d.MinDwell {
		d.stable = want
		d.hasPending = false
	}
	return d.stable
}

// Reset forgets the stable state, e.g. after a run of degraded cycles.
func (d *Dwell) Reset() {
	d.baselined = false
	d.hasPending = false
}
