package journal

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirStorage appends to plain text files in a directory.
// No file handle is held between calls: a crash loses at most the line
// being written.
type DirStorage struct {
	Dir string
}

// NewDirStorage creates dir if needed.
func NewDirStorage(dir string) (*DirStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &DirStorage{Dir: dir}, nil
}

// Append opens name in append mode, writes line, syncs and closes.
func (s *DirStorage) Append(name string, line []byte) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("invalid journal file name %q", name)
	}

	f, err := os.OpenFile(filepath.Join(s.Dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
