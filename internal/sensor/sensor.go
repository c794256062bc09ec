// Package sensor reads temperature and relative humidity from a zone sensor
// with a bounded retry budget.
// The real ports use periph.io I²C drivers. The fake port allows testing without hardware.
package sensor

import (
	"context"
	"log"
	"time"

	"github.com/sweeney/climate-control/internal/climate"
)

// Defaults for the retry budget of a single Read.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 5 * time.Second
)

// Port yields one sample per call.
// A NaN field is the only failure signal; ports never return errors.
type Port interface {
	ReadSample() climate.Sample
}

// Result is the outcome of a Read: the last sample obtained and how many
// attempts it took. Sample may contain NaN if the retry budget ran out.
type Result struct {
	Sample   climate.Sample
	Attempts int
}

// OK reports whether the sample is fully numeric.
func (r Result) OK() bool {
	return r.Sample.Valid()
}

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Reader wraps a Port with retry on NaN samples.
type Reader struct {
	Zone        climate.Zone
	Port        Port
	MaxAttempts int
	RetryDelay  time.Duration

	// Wait is used between attempts. Defaults to a timer honouring ctx.
	Wait WaitFunc
}

// NewReader creates a Reader with the default retry budget.
func NewReader(zone climate.Zone, port Port) *Reader {
	return &Reader{
		Zone:        zone,
		Port:        port,
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
		Wait:        Sleep,
	}
}

// Read samples the port up to MaxAttempts times, waiting RetryDelay between
// failed attempts. It returns the first fully numeric sample, or the last
// NaN-bearing sample once the budget is exhausted.
//
// The returned error is non-nil only if ctx was cancelled during a wait; the
// Result then holds the last sample read.
func (r *Reader) Read(ctx context.Context) (Result, error) {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	wait := r.Wait
	if wait == nil {
		wait = Sleep
	}

	var res Result
	for i := 1; i <= attempts; i++ {
		res = Result{Sample: r.Port.ReadSample(), Attempts: i}
		if res.OK() {
			return res, nil
		}
		if i == attempts {
			break
		}
		log.Printf("sensor %s: unreadable sample (attempt %d/%d), retrying in %v", r.Zone, i, attempts, r.RetryDelay)
		if err := wait(ctx, r.RetryDelay); err != nil {
			return res, err
		}
	}
	log.Printf("sensor %s: no valid sample after %d attempts", r.Zone, res.Attempts)
	return res, nil
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
