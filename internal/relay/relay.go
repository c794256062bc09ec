// Package relay drives the ventilation relays with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package relay

import (
	"context"
	"time"
)

// Actuator applies a ventilation state to the physical output.
type Actuator interface {
	// Set commands ventilation on or off. It is safe to call repeatedly with
	// the same value. There is no confirmation readback.
	Set(on bool) error

	// State returns the last commanded state.
	State() bool

	// Close switches ventilation off and releases resources.
	Close() error
}

// Pin definitions (BCM numbering). The board carries two relays wired in
// parallel to the fan supply.
const (
	DefaultPin1 = 17
	DefaultPin2 = 27
)

// SelfTestPause is the time each relay state is held during SelfTest.
const SelfTestPause = 500 * time.Millisecond

// SelfTest clicks the relays on/off twice so an installer can hear them,
// leaving ventilation off.
func SelfTest(ctx context.Context, a Actuator, pause time.Duration) error {
	seq := []bool{true, false, true, false}
	for i, on := range seq {
		if err := a.Set(on); err != nil {
			return err
		}
		if i == len(seq)-1 {
			break
		}
		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			a.Set(false)
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}
