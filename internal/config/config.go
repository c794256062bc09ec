// Package config loads daemon settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/sweeney/climate-control/internal/journal"
	"github.com/sweeney/climate-control/internal/sensor"
)

// Policy names.
const (
	PolicyThreshold = "threshold"
	PolicyDwell     = "dwell"
)

// Storage backends.
const (
	StorageDir    = "dir"
	StorageSQLite = "sqlite"
)

// DefaultEnvFile is read if present.
const DefaultEnvFile = ".env"

// Config holds every tunable of the daemon. Command-line flags are layered
// on top by main using these values as defaults.
type Config struct {
	Interval      time.Duration `env:"CLIMATE_INTERVAL" envDefault:"60s"`
	RetryDelay    time.Duration `env:"CLIMATE_RETRY_DELAY" envDefault:"5s"`
	MaxAttempts   int           `env:"CLIMATE_MAX_ATTEMPTS" envDefault:"3"`
	EscalateAfter int           `env:"CLIMATE_ESCALATE_AFTER" envDefault:"2"`

	Policy   string        `env:"CLIMATE_POLICY" envDefault:"threshold"`
	MinDwell time.Duration `env:"CLIMATE_MIN_DWELL" envDefault:"10m"`

	I2CBus        string `env:"CLIMATE_I2C_BUS"`
	InsideDriver  string `env:"CLIMATE_INSIDE_DRIVER" envDefault:"bme280"`
	InsideAddr    string `env:"CLIMATE_INSIDE_ADDR" envDefault:"0x76"`
	OutsideDriver string `env:"CLIMATE_OUTSIDE_DRIVER" envDefault:"bme280"`
	OutsideAddr   string `env:"CLIMATE_OUTSIDE_ADDR" envDefault:"0x77"`

	GPIOChip  string `env:"CLIMATE_GPIO_CHIP" envDefault:"gpiochip0"`
	RelayPins []int  `env:"CLIMATE_RELAY_PINS" envDefault:"17,27" envSeparator:","`
	RelayTest bool   `env:"CLIMATE_RELAY_TEST" envDefault:"true"`

	Storage    string `env:"CLIMATE_STORAGE" envDefault:"dir"`
	JournalDir string `env:"CLIMATE_JOURNAL_DIR" envDefault:"/var/lib/climate-control"`
	JournalDB  string `env:"CLIMATE_JOURNAL_DB" envDefault:"/var/lib/climate-control/journal.db"`
	Rotation   string `env:"CLIMATE_ROTATION" envDefault:"run"`

	Broker    string        `env:"CLIMATE_MQTT_BROKER"`
	Heartbeat time.Duration `env:"CLIMATE_HEARTBEAT" envDefault:"15m"`
	HTTPAddr  string        `env:"CLIMATE_HTTP_ADDR"`
}

// Load reads envFile (skipped if missing; empty means DefaultEnvFile) into
// the process environment without overriding existing variables, then parses
// the environment into a Config.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	return Parse()
}

// Parse reads the environment into a Config without touching any file.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %v", c.Interval))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must not be negative, got %v", c.RetryDelay))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.EscalateAfter < 0 {
		errs = append(errs, fmt.Errorf("escalate after must not be negative, got %d", c.EscalateAfter))
	}

	switch c.Policy {
	case PolicyThreshold:
	case PolicyDwell:
		if c.MinDwell <= 0 {
			errs = append(errs, fmt.Errorf("min dwell must be positive for the dwell policy, got %v", c.MinDwell))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown policy %q", c.Policy))
	}

	for _, d := range []string{c.InsideDriver, c.OutsideDriver} {
		if d != sensor.DriverBME280 && d != sensor.DriverHDC302x {
			errs = append(errs, fmt.Errorf("unknown sensor driver %q", d))
		}
	}
	if _, err := ParseAddr(c.InsideAddr); err != nil {
		errs = append(errs, fmt.Errorf("inside address: %w", err))
	}
	if _, err := ParseAddr(c.OutsideAddr); err != nil {
		errs = append(errs, fmt.Errorf("outside address: %w", err))
	}

	if len(c.RelayPins) == 0 {
		errs = append(errs, errors.New("at least one relay pin is required"))
	}
	for _, p := range c.RelayPins {
		if p < 0 {
			errs = append(errs, fmt.Errorf("invalid relay pin %d", p))
		}
	}

	switch c.Storage {
	case StorageDir:
		if c.JournalDir == "" {
			errs = append(errs, errors.New("journal dir is required for dir storage"))
		}
	case StorageSQLite:
		if c.JournalDB == "" {
			errs = append(errs, errors.New("journal db is required for sqlite storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}
	if _, err := journal.ParseRotation(c.Rotation); err != nil {
		errs = append(errs, err)
	}

	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	return errors.Join(errs...)
}

// ParseAddr parses an I2C address in decimal, hex (0x76) or octal notation.
func ParseAddr(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("parse i2c address %q: %w", s, err)
	}
	if v > 0x7f {
		return 0, fmt.Errorf("i2c address %#x out of 7-bit range", v)
	}
	return uint16(v), nil
}
