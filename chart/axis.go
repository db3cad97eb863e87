package chart

import (
	"time"

	"git.sr.ht/~whereswaldon/glucoscope/backend"
)

// ValueTicks are the glucose levels labelled on the value axis, in mg/dL.
var ValueTicks = []float64{40, 55, 80, 120, 180, 260, 400}

// timeTickCount is the number of time ticks aimed for across a view.
const timeTickCount = 6

var tickIntervals = []time.Duration{
	time.Second,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
	time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	time.Hour,
	3 * time.Hour,
	6 * time.Hour,
	12 * time.Hour,
	24 * time.Hour,
	2 * 24 * time.Hour,
	7 * 24 * time.Hour,
}

// Tick is an axis tick at a domain position.
type Tick struct {
	Time  time.Time
	Value float64
	Label string
}

// valueTicks returns the fixed ticks inside the scale's domain.
func valueTicks(s LinearScale, units backend.Units) []Tick {
	var out []Tick
	for _, v := range ValueTicks {
		if s.Contains(v) {
			out = append(out, Tick{Value: v, Label: units.Format(v)})
		}
	}
	return out
}

// tickInterval picks the smallest interval giving at most timeTickCount ticks
// across span.
func tickInterval(span time.Duration) time.Duration {
	for _, iv := range tickIntervals {
		if span/iv <= timeTickCount {
			return iv
		}
	}
	last := tickIntervals[len(tickIntervals)-1]
	return last * (span/last/timeTickCount + 1)
}

// TimeTicks returns ticks at a round interval inside [start, end], aligned to
// wall-clock boundaries in loc.
func TimeTicks(start, end time.Time, loc *time.Location) []Tick {
	if loc == nil {
		loc = time.Local
	}
	if !end.After(start) {
		return nil
	}
	iv := tickInterval(end.Sub(start))
	start, end = start.In(loc), end.In(loc)
	var out []Tick
	if iv >= 24*time.Hour {
		days := int(iv / (24 * time.Hour))
		t := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		for ; !t.After(end); t = t.AddDate(0, 0, days) {
			if !t.Before(start) {
				out = append(out, Tick{Time: t, Label: FormatTick(t)})
			}
		}
		return out
	}
	midnight := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
	steps := start.Sub(midnight) / iv
	for t := midnight.Add(steps * iv); !t.After(end); t = t.Add(iv) {
		if !t.Before(start) {
			out = append(out, Tick{Time: t, Label: FormatTick(t)})
		}
	}
	return out
}

// FormatTick labels a time tick by the coarsest boundary it falls on.
func FormatTick(t time.Time) string {
	switch {
	case t.Second() != 0 || t.Nanosecond() != 0:
		return t.Format(":05")
	case t.Minute() != 0 || t.Hour() != 0:
		return t.Format("15:04")
	case t.Day() != 1:
		return t.Format("Mon 02")
	default:
		return t.Format("Jan 02")
	}
}
