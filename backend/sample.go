package backend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEmptyInputIgnored is returned when a bulk replacement carries no
	// samples. The existing series is left untouched; callers are free to
	// treat this as success.
	ErrEmptyInputIgnored = errors.New("empty input ignored")
	// ErrInvalidSample is returned for samples without a timestamp or a finite
	// value.
	ErrInvalidSample = errors.New("invalid sample")
)

// Direction is the trend reported by the CGM alongside a reading.
type Direction uint8

const (
	DirectionNone Direction = iota
	DirectionDoubleUp
	DirectionSingleUp
	DirectionFortyFiveUp
	DirectionFlat
	DirectionFortyFiveDown
	DirectionSingleDown
	DirectionDoubleDown
	DirectionNotComputable
	DirectionRateOutOfRange
)

var directionNames = [...]string{
	DirectionNone:           "",
	DirectionDoubleUp:       "DoubleUp",
	DirectionSingleUp:       "SingleUp",
	DirectionFortyFiveUp:    "FortyFiveUp",
	DirectionFlat:           "Flat",
	DirectionFortyFiveDown:  "FortyFiveDown",
	DirectionSingleDown:     "SingleDown",
	DirectionDoubleDown:     "DoubleDown",
	DirectionNotComputable:  "NOT COMPUTABLE",
	DirectionRateOutOfRange: "RATE OUT OF RANGE",
}

func (d Direction) String() string {
	if int(d) < len(directionNames) {
		return directionNames[d]
	}
	return ""
}

// Arrow returns the glyph used on the trend stat card. Unknown and absent
// trends draw as flat.
func (d Direction) Arrow() string {
	switch d {
	case DirectionDoubleUp:
		return "⇈"
	case DirectionSingleUp:
		return "↑"
	case DirectionFortyFiveUp:
		return "↗"
	case DirectionFortyFiveDown:
		return "↘"
	case DirectionSingleDown:
		return "↓"
	case DirectionDoubleDown:
		return "⇊"
	default:
		return "→"
	}
}

// ParseDirection maps a Nightscout trend name onto a Direction. Unrecognized
// names map to DirectionNone.
func ParseDirection(name string) Direction {
	name = strings.TrimSpace(name)
	for d, n := range directionNames {
		if n != "" && strings.EqualFold(n, name) {
			return Direction(d)
		}
	}
	return DirectionNone
}

// DirectionFromRate classifies a rate of change in mg/dL per minute using the
// usual Nightscout bucket edges.
func DirectionFromRate(mgdlPerMinute float64) Direction {
	switch {
	case mgdlPerMinute > 3:
		return DirectionDoubleUp
	case mgdlPerMinute > 2:
		return DirectionSingleUp
	case mgdlPerMinute > 1:
		return DirectionFortyFiveUp
	case mgdlPerMinute >= -1:
		return DirectionFlat
	case mgdlPerMinute >= -2:
		return DirectionFortyFiveDown
	case mgdlPerMinute >= -3:
		return DirectionSingleDown
	default:
		return DirectionDoubleDown
	}
}

// Sample is one glucose reading. Values are always stored in mg/dL.
type Sample struct {
	Time      time.Time
	Value     float64
	Direction Direction
}

// Valid reports whether the sample carries a timestamp and a finite value.
func (s Sample) Valid() bool {
	return !s.Time.IsZero() && !math.IsNaN(s.Value) && !math.IsInf(s.Value, 0)
}

// Timestamp is an entry date that may arrive either as epoch milliseconds or
// as an ISO-8601 string.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := ParseTimestamp(s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("timestamp %s: %w", b, err)
	}
	t.Time = time.UnixMilli(int64(ms))
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(t.UnixMilli(), 10)), nil
}

// ParseTimestamp accepts epoch milliseconds or RFC 3339 (with or without
// fractional seconds and zone).
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Entry is the wire representation of a reading as served by the entries
// endpoint and pushed on the live channel.
type Entry struct {
	Date       Timestamp `json:"date"`
	DateString string    `json:"dateString,omitempty"`
	SGV        *float64  `json:"sgv,omitempty"`
	Direction  string    `json:"direction,omitempty"`
	Type       string    `json:"type,omitempty"`
}

// Sample converts the entry. Entries without a usable timestamp or without a
// sensor glucose value yield ErrInvalidSample.
func (e Entry) Sample() (Sample, error) {
	ts := e.Date.Time
	if ts.IsZero() && e.DateString != "" {
		parsed, err := ParseTimestamp(e.DateString)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: %v", ErrInvalidSample, err)
		}
		ts = parsed
	}
	if ts.IsZero() {
		return Sample{}, fmt.Errorf("%w: missing timestamp", ErrInvalidSample)
	}
	if e.SGV == nil {
		return Sample{}, fmt.Errorf("%w: missing sgv at %s", ErrInvalidSample, ts.Format(time.RFC3339))
	}
	return Sample{
		Time:      ts,
		Value:     *e.SGV,
		Direction: ParseDirection(e.Direction),
	}, nil
}

// EntryFromSample builds the wire form of a sample.
func EntryFromSample(s Sample) Entry {
	v := s.Value
	return Entry{
		Date:       Timestamp{s.Time},
		DateString: s.Time.UTC().Format(time.RFC3339Nano),
		SGV:        &v,
		Direction:  s.Direction.String(),
		Type:       "sgv",
	}
}
