// Package journal appends one line per control cycle to durable storage.
//
// Line format (semicolon separated, newline terminated, no header):
//
//	timestamp;insideRH;insideTemp;outsideRH;outsideTemp;ventilation
//	2026-03-01T14:05:00;61.20;19.85;43.10;7.40;true
//
// Unreadable values are written as NaN; ventilation is always false for them.
package journal

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/climate-control/internal/climate"
)

// TimeFormat is the layout of the timestamp column.
const TimeFormat = "2006-01-02T15:04:05"

// DayFileFormat is the layout of per-day file names.
const DayFileFormat = "2006-01-02"

// ErrStorage wraps every failure to persist a record.
var ErrStorage = errors.New("journal storage")

// Storage is an append-only writer keyed by file name.
// Each Append must open, write, flush and close as one unit.
type Storage interface {
	Append(name string, line []byte) error
}

// Rotation selects which file a record goes to.
type Rotation string

const (
	// RotatePerRun writes every record of a process run to one file.
	RotatePerRun Rotation = "run"
	// RotatePerDay writes to YYYY-MM-DD.txt taken from the record's own date.
	RotatePerDay Rotation = "day"
)

// ParseRotation validates a rotation name.
func ParseRotation(s string) (Rotation, error) {
	switch r := Rotation(strings.ToLower(s)); r {
	case RotatePerRun, RotatePerDay:
		return r, nil
	}
	return "", fmt.Errorf("unknown rotation %q (want %q or %q)", s, RotatePerRun, RotatePerDay)
}

// RunFileName names the per-run file from the process start time and session id.
func RunFileName(start time.Time, session string) string {
	if len(session) > 8 {
		session = session[:8]
	}
	return fmt.Sprintf("run-%s-%s.txt", start.Format("20060102T150405"), session)
}

// Logger formats cycle records and appends them to Storage.
type Logger struct {
	Storage  Storage
	Rotation Rotation
	// RunFile is the file used with RotatePerRun.
	RunFile string
}

// FileName returns the file rec is appended to.
func (l *Logger) FileName(rec climate.CycleRecord) string {
	if l.Rotation == RotatePerDay {
		return rec.Time.Format(DayFileFormat) + ".txt"
	}
	return l.RunFile
}

// Append writes rec as one line. Failures wrap ErrStorage.
func (l *Logger) Append(rec climate.CycleRecord) error {
	name := l.FileName(rec)
	if name == "" {
		return fmt.Errorf("%w: no file name for rotation %q", ErrStorage, l.Rotation)
	}
	if err := l.Storage.Append(name, Format(rec)); err != nil {
		return fmt.Errorf("%w: append %s: %w", ErrStorage, name, err)
	}
	return nil
}

// Format serializes rec as a newline-terminated journal line.
func Format(rec climate.CycleRecord) []byte {
	b := make([]byte, 0, 64)
	b = rec.Time.AppendFormat(b, TimeFormat)
	b = append(b, ';')
	b = appendFloat(b, rec.Inside.RelativeHumidity)
	b = append(b, ';')
	b = appendFloat(b, rec.Inside.TemperatureC)
	b = append(b, ';')
	b = appendFloat(b, rec.Outside.RelativeHumidity)
	b = append(b, ';')
	b = appendFloat(b, rec.Outside.TemperatureC)
	b = append(b, ';')
	b = strconv.AppendBool(b, rec.Ventilation)
	return append(b, '\n')
}

func appendFloat(b []byte, v float64) []byte {
	return strconv.AppendFloat(b, v, 'f', 2, 64)
}

// Parse reads a journal line back into a record. Degraded is derived from
// the presence of NaN values.
func Parse(line string) (climate.CycleRecord, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ";")
	if len(fields) != 6 {
		return climate.CycleRecord{}, fmt.Errorf("journal line: want 6 fields, got %d", len(fields))
	}

	ts, err := time.Parse(TimeFormat, fields[0])
	if err != nil {
		return climate.CycleRecord{}, fmt.Errorf("journal line timestamp: %w", err)
	}

	var vals [4]float64
	for i := range vals {
		vals[i], err = strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return climate.CycleRecord{}, fmt.Errorf("journal line field %d: %w", i+2, err)
		}
	}

	vent, err := strconv.ParseBool(fields[5])
	if err != nil {
		return climate.CycleRecord{}, fmt.Errorf("journal line ventilation: %w", err)
	}

	rec := climate.CycleRecord{
		Time:        ts,
		Inside:      climate.Sample{RelativeHumidity: vals[0], TemperatureC: vals[1]},
		Outside:     climate.Sample{RelativeHumidity: vals[2], TemperatureC: vals[3]},
		Ventilation: vent,
	}
	rec.Degraded = !rec.Valid()
	return rec, nil
}
