//go:build linux

package relay

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealActuator drives relay pins using Linux GPIO character device.
type RealActuator struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
	state bool
}

// NewRealActuator requests the given pins as outputs, initially off.
// The relay board is active-low: a low pin energizes the relay, so lines
// are requested active-low and logical 1 means ventilation on.
func NewRealActuator(chipName string, pins ...int) (*RealActuator, error) {
	if len(pins) == 0 {
		return nil, errors.New("relay: no pins configured")
	}

	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer("climate-control"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	lines, err := chip.RequestLines(pins, gpiocdev.AsOutput(make([]int, len(pins))...), gpiocdev.AsActiveLow)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pins %v: %w", pins, err)
	}

	return &RealActuator{
		chip:  chip,
		lines: lines,
	}, nil
}

// Set drives all relay pins to the commanded state.
func (a *RealActuator) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	values := make([]int, len(a.lines.Offsets()))
	for i := range values {
		values[i] = v
	}
	if err := a.lines.SetValues(values); err != nil {
		return fmt.Errorf("set relay pins: %w", err)
	}
	a.state = on
	return nil
}

// State returns the last commanded state.
func (a *RealActuator) State() bool {
	return a.state
}

// Close switches ventilation off and releases the lines.
// The lines are left as outputs driven inactive (pin high) so the relays stay
// released; reverting to an input would let a pull-down energize them.
func (a *RealActuator) Close() error {
	var errs []error

	if a.lines != nil {
		if err := a.Set(false); err != nil {
			errs = append(errs, err)
		}
		if err := a.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay lines: %w", err))
		}
	}
	if a.chip != nil {
		if err := a.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
