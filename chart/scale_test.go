package chart

import (
	"math"
	"testing"
	"time"
)

var testEpoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestTimeScale(t *testing.T) {
	s := NewTimeScale(testEpoch, testEpoch.Add(time.Hour), 0, 600)
	for _, tc := range []struct {
		name string
		t    time.Time
		x    float64
	}{
		{name: "start", t: testEpoch, x: 0},
		{name: "middle", t: testEpoch.Add(30 * time.Minute), x: 300},
		{name: "end", t: testEpoch.Add(time.Hour), x: 600},
		{name: "extrapolated", t: testEpoch.Add(-6 * time.Minute), x: -60},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Map(tc.t); !near(got, tc.x) {
				t.Errorf("expected %v to map to %v, got %v", tc.t, tc.x, got)
			}
			if got := s.Invert(tc.x); !got.Equal(tc.t) {
				t.Errorf("expected %v to invert to %v, got %v", tc.x, tc.t, got)
			}
		})
	}
}

func TestTimeScaleDegenerateDomain(t *testing.T) {
	s := NewTimeScale(testEpoch, testEpoch, 0, 100)
	if s.Span() != MinSpan {
		t.Fatalf("expected a single instant to widen to %v, got %v", MinSpan, s.Span())
	}
	if !near(s.Map(testEpoch), 50) {
		t.Errorf("expected the instant centered, got x=%v", s.Map(testEpoch))
	}
	reversed := NewTimeScale(testEpoch.Add(time.Hour), testEpoch, 0, 100)
	if !reversed.Start.Equal(testEpoch) {
		t.Errorf("reversed bounds were not swapped: %v", reversed.Start)
	}
}

func TestLinearScaleInverted(t *testing.T) {
	s := LinearScale{D0: 50, D1: 280, R0: 230, R1: 0}
	if got := s.Map(50); !near(got, 230) {
		t.Errorf("expected the domain minimum at the bottom, got %v", got)
	}
	if got := s.Map(280); !near(got, 0) {
		t.Errorf("expected the domain maximum at the top, got %v", got)
	}
	if s.Map(200) >= s.Map(100) {
		t.Errorf("larger values must draw higher")
	}
	if got := s.Invert(s.Map(123)); !near(got, 123) {
		t.Errorf("round trip gave %v", got)
	}
}

func TestValueDomain(t *testing.T) {
	for _, tc := range []struct {
		name     string
		min, max float64
		haveData bool
		lo, hi   float64
	}{
		{name: "no data", lo: 50, hi: 280},
		{name: "in range", min: 90, max: 170, haveData: true, lo: 50, hi: 280},
		{name: "high excursion", min: 90, max: 300, haveData: true, lo: 50, hi: 300},
		{name: "low excursion", min: 39.5, max: 120, haveData: true, lo: 39, hi: 280},
		{name: "fractional high", min: 100, max: 300.2, haveData: true, lo: 50, hi: 301},
	} {
		t.Run(tc.name, func(t *testing.T) {
			lo, hi := ValueDomain(70, 260, tc.min, tc.max, tc.haveData)
			if lo != tc.lo || hi != tc.hi {
				t.Errorf("expected [%v, %v], got [%v, %v]", tc.lo, tc.hi, lo, hi)
			}
		})
	}
}

func TestSelectionTransform(t *testing.T) {
	tr := SelectionTransform(200, 400, 1000)
	if !near(tr.K, 5) || !near(tr.X, -1000) {
		t.Fatalf("unexpected transform %+v", tr)
	}
	x0, x1 := tr.Selection(1000)
	if !near(x0, 200) || !near(x1, 400) {
		t.Errorf("expected selection [200, 400], got [%v, %v]", x0, x1)
	}
	if SelectionTransform(300, 300, 1000) != Identity {
		t.Errorf("an empty selection should give the identity")
	}
}

func TestTransformConstrain(t *testing.T) {
	for _, tc := range []struct {
		name     string
		in, want Transform
	}{
		{name: "identity", in: Identity, want: Identity},
		{name: "zoomed out too far", in: Transform{K: 0.5, X: 100}, want: Identity},
		{name: "panned past start", in: Transform{K: 2, X: 50}, want: Transform{K: 2, X: 0}},
		{name: "panned past end", in: Transform{K: 2, X: -1500}, want: Transform{K: 2, X: -1000}},
		{name: "inside", in: Transform{K: 4, X: -1200}, want: Transform{K: 4, X: -1200}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.Constrain(1000); !near(got.K, tc.want.K) || !near(got.X, tc.want.X) {
				t.Errorf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestScaleAroundKeepsAnchor(t *testing.T) {
	tr := Transform{K: 2, X: -300}
	anchor := tr.InvertX(400)
	zoomed := tr.ScaleAround(400, 1.5)
	if !near(zoomed.K, 3) {
		t.Errorf("expected K=3, got %v", zoomed.K)
	}
	if got := zoomed.InvertX(400); !near(got, anchor) {
		t.Errorf("anchor moved from %v to %v", anchor, got)
	}
	if got := Identity.ScaleAround(0, 100).K; got != MaxZoom {
		t.Errorf("expected zoom limited to %v, got %v", MaxZoom, got)
	}
	deep := Transform{K: 16}
	if got := deep.ScaleAround(0, 2).K; got != 16 {
		t.Errorf("expected a deeper brush zoom to be kept, got %v", got)
	}
	if got := deep.ScaleAround(0, 0.5).K; got != 8 {
		t.Errorf("expected zooming out to work from a deep zoom, got %v", got)
	}
}

func TestRescaleX(t *testing.T) {
	s := NewTimeScale(testEpoch, testEpoch.Add(10*time.Hour), 0, 1000)
	focus := Transform{K: 5, X: -2000}.RescaleX(s)
	if !focus.Start.Equal(testEpoch.Add(4*time.Hour)) || !focus.End.Equal(testEpoch.Add(6*time.Hour)) {
		t.Errorf("unexpected rescaled domain %v..%v", focus.Start, focus.End)
	}
	if focus.R0 != 0 || focus.R1 != 1000 {
		t.Errorf("rescaling must keep the range, got %v..%v", focus.R0, focus.R1)
	}
}
