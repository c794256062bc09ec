package journal

// Entry is one recorded append.
type Entry struct {
	Name string
	Line string
}

// FakeStorage records appends for test assertions.
type FakeStorage struct {
	// Entries contains every successful append, in order.
	Entries []Entry

	// AppendError, if set, will be returned by Append and nothing is recorded.
	AppendError error
}

// NewFakeStorage creates a FakeStorage for testing.
func NewFakeStorage() *FakeStorage {
	return &FakeStorage{}
}

// Append records the line.
func (f *FakeStorage) Append(name string, line []byte) error {
	if f.AppendError != nil {
		return f.AppendError
	}
	f.Entries = append(f.Entries, Entry{Name: name, Line: string(line)})
	return nil
}

// Lines returns the lines appended under name.
func (f *FakeStorage) Lines(name string) []string {
	var out []string
	for _, e := range f.Entries {
		if e.Name == name {
			out = append(out, e.Line)
		}
	}
	return out
}

// Reset clears recorded entries.
func (f *FakeStorage) Reset() {
	f.Entries = nil
	f.AppendError = nil
}
