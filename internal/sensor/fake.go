package sensor

import "github.com/sweeney/climate-control/internal/climate"

// FakePort is a test double that returns scripted samples.
type FakePort struct {
	// Samples contains scripted samples to return.
	// Each call to ReadSample consumes the next sample.
	Samples []climate.Sample

	// index tracks current position in Samples
	index int

	// Calls counts ReadSample invocations.
	Calls int
}

// NewFakePort creates a FakePort with the given samples.
func NewFakePort(samples ...climate.Sample) *FakePort {
	return &FakePort{Samples: samples}
}

// ReadSample returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
// With no samples configured it returns an unreadable sample.
func (f *FakePort) ReadSample() climate.Sample {
	f.Calls++
	if len(f.Samples) == 0 {
		return climate.Unreadable()
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample
}

// Reset rewinds the port to the first sample.
func (f *FakePort) Reset() {
	f.index = 0
	f.Calls = 0
}
