package sensor

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/devices/v3/hdc302x"
	"periph.io/x/host/v3"

	"github.com/sweeney/climate-control/internal/climate"
)

// Supported driver names for OpenI2C.
const (
	DriverBME280  = "bme280"
	DriverHDC302x = "hdc302x"
)

// Default I²C addresses per driver.
const (
	AddrBME280  = 0x76
	AddrHDC302x = 0x44
)

// senser is the subset of a periph.io environmental device we use.
type senser interface {
	Sense(e *physic.Env) error
}

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

// I2CPort reads a periph.io environmental sensor on an I²C bus.
type I2CPort struct {
	name string
	bus  i2c.BusCloser
	dev  senser
}

// OpenI2C opens the named I²C bus ("" = first available) and attaches the
// given driver at addr. addr 0 selects the driver's default address.
func OpenI2C(driver, busName string, addr uint16) (*I2CPort, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}

	var dev senser
	switch driver {
	case DriverBME280:
		if addr == 0 {
			addr = AddrBME280
		}
		dev, err = bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	case DriverHDC302x:
		if addr == 0 {
			addr = AddrHDC302x
		}
		dev, err = hdc302x.NewI2C(bus, addr, hdc302x.RateFourHertz)
	default:
		err = fmt.Errorf("unknown sensor driver %q", driver)
	}
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("attach %s at 0x%02x on %q: %w", driver, addr, busName, err)
	}

	return &I2CPort{
		name: fmt.Sprintf("%s@%s/0x%02x", driver, busName, addr),
		bus:  bus,
		dev:  dev,
	}, nil
}

// ReadSample takes one measurement. Driver errors are logged and reported
// as an unreadable sample.
func (p *I2CPort) ReadSample() climate.Sample {
	var env physic.Env
	if err := p.dev.Sense(&env); err != nil {
		log.Printf("sensor %s: %v", p.name, err)
		return climate.Unreadable()
	}
	return fromEnv(env)
}

// Close halts the device and releases the bus.
func (p *I2CPort) Close() error {
	var errs []error
	if h, ok := p.dev.(interface{ Halt() error }); ok {
		if err := h.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %s: %w", p.name, err))
		}
	}
	if err := p.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	return errors.Join(errs...)
}

// fromEnv converts periph.io fixed-point units to °C and %RH.
func fromEnv(env physic.Env) climate.Sample {
	return climate.Sample{
		TemperatureC:     float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Celsius),
		RelativeHumidity: float64(env.Humidity) / float64(physic.PercentRH),
	}
}
