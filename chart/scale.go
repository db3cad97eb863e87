package chart

import (
	"math"
	"time"

	"golang.org/x/exp/constraints"
)

const (
	// MaxZoom is the largest zoom factor a zoom gesture can reach. A brush
	// may select a narrower window; gestures then cannot zoom in further.
	MaxZoom = 10
	// MinSpan is the narrowest time domain a scale will hold. Narrower
	// domains (a single sample) are widened around their center.
	MinSpan = 5 * time.Minute
)

func ceil[T constraints.Integer | constraints.Float](a T) T {
	return T(math.Ceil(float64(a)))
}

func floor[T constraints.Integer | constraints.Float](a T) T {
	return T(math.Floor(float64(a)))
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	return max(lo, min(hi, v))
}

// TimeScale maps the time domain [Start, End] linearly onto the pixel range
// [R0, R1].
type TimeScale struct {
	Start, End time.Time
	R0, R1     float64
}

// NewTimeScale builds a scale, widening degenerate domains to MinSpan.
func NewTimeScale(start, end time.Time, r0, r1 float64) TimeScale {
	return TimeScale{R0: r0, R1: r1}.WithDomain(start, end)
}

// WithDomain returns a copy of s over the new domain. Reversed bounds are
// swapped.
func (s TimeScale) WithDomain(start, end time.Time) TimeScale {
	if end.Before(start) {
		start, end = end, start
	}
	if span := end.Sub(start); span < MinSpan {
		pad := (MinSpan - span) / 2
		start = start.Add(-pad)
		end = start.Add(MinSpan)
	}
	s.Start, s.End = start, end
	return s
}

// WithRange returns a copy of s drawn across a new pixel range.
func (s TimeScale) WithRange(r0, r1 float64) TimeScale {
	s.R0, s.R1 = r0, r1
	return s
}

// Span is the length of the domain.
func (s TimeScale) Span() time.Duration {
	return s.End.Sub(s.Start)
}

// Map converts an instant into a pixel coordinate. Instants outside the
// domain extrapolate linearly.
func (s TimeScale) Map(t time.Time) float64 {
	span := float64(s.Span())
	if span == 0 {
		return s.R0
	}
	return s.R0 + float64(t.Sub(s.Start))/span*(s.R1-s.R0)
}

// Invert converts a pixel coordinate back into an instant.
func (s TimeScale) Invert(x float64) time.Time {
	width := s.R1 - s.R0
	if width == 0 {
		return s.Start
	}
	offset := (x - s.R0) / width * float64(s.Span())
	return s.Start.Add(time.Duration(math.Round(offset)))
}

// Contains reports whether t lies within the closed domain.
func (s TimeScale) Contains(t time.Time) bool {
	return !t.Before(s.Start) && !t.After(s.End)
}

// LinearScale maps the value domain [D0, D1] linearly onto [R0, R1]. Value
// scales use R0 = height and R1 = 0 so that larger values draw higher.
type LinearScale struct {
	D0, D1 float64
	R0, R1 float64
}

// Map converts a value into a pixel coordinate.
func (s LinearScale) Map(v float64) float64 {
	if s.D1 == s.D0 {
		return (s.R0 + s.R1) / 2
	}
	return s.R0 + (v-s.D0)/(s.D1-s.D0)*(s.R1-s.R0)
}

// Invert converts a pixel coordinate back into a value.
func (s LinearScale) Invert(y float64) float64 {
	if s.R1 == s.R0 {
		return s.D0
	}
	return s.D0 + (y-s.R0)/(s.R1-s.R0)*(s.D1-s.D0)
}

// Contains reports whether v lies within the closed domain.
func (s LinearScale) Contains(v float64) bool {
	return v >= min(s.D0, s.D1) && v <= max(s.D0, s.D1)
}

// ValueDomain returns the value axis bounds. The thresholds always stay
// visible with a 20 unit margin; extreme data widens the domain further.
func ValueDomain(alarmLow, alarmHigh, dataMin, dataMax float64, haveData bool) (lo, hi float64) {
	lo, hi = alarmLow-20, alarmHigh+20
	if haveData {
		lo = min(lo, dataMin)
		hi = max(hi, dataMax)
	}
	return floor(lo), ceil(hi)
}

// Transform is a horizontal zoom transform: a point x of the context view
// appears at x*K + X in the focus view.
type Transform struct {
	K, X float64
}

// Identity shows the whole context in the focus view.
var Identity = Transform{K: 1}

// ApplyX maps a context coordinate into focus coordinates.
func (t Transform) ApplyX(x float64) float64 {
	return x*t.K + t.X
}

// InvertX maps a focus coordinate back into context coordinates.
func (t Transform) InvertX(x float64) float64 {
	return (x - t.X) / t.K
}

// RescaleX returns a copy of s whose domain is what the transform shows
// across s's range.
func (t Transform) RescaleX(s TimeScale) TimeScale {
	return s.WithDomain(s.Invert(t.InvertX(s.R0)), s.Invert(t.InvertX(s.R1)))
}

// SelectionTransform is the transform that shows the context range [x0, x1]
// across the full width.
func SelectionTransform(x0, x1, width float64) Transform {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if x1-x0 <= 0 {
		return Identity
	}
	k := width / (x1 - x0)
	return Transform{K: k, X: -x0 * k}
}

// Selection is the context range currently shown by the transform.
func (t Transform) Selection(width float64) (x0, x1 float64) {
	return t.InvertX(0), t.InvertX(width)
}

// Constrain keeps K at least 1 and the view within the context:
// X in [width*(1-K), 0].
func (t Transform) Constrain(width float64) Transform {
	if math.IsNaN(t.K) || math.IsInf(t.K, 0) {
		t.K = 1
	}
	t.K = max(t.K, 1)
	t.X = clamp(t.X, width*(1-t.K), 0)
	return t
}

// ScaleAround multiplies the zoom by factor while keeping the point under
// focus coordinate x fixed. The result never zooms in past MaxZoom, or past
// the current zoom if that is already deeper.
func (t Transform) ScaleAround(x, factor float64) Transform {
	anchor := t.InvertX(x)
	k := clamp(t.K*factor, 1, max(MaxZoom, t.K))
	return Transform{K: k, X: x - anchor*k}
}

// Translate pans the view by dx focus pixels.
func (t Transform) Translate(dx float64) Transform {
	t.X += dx
	return t
}
