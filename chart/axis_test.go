package chart

import (
	"slices"
	"testing"
	"time"

	"git.sr.ht/~whereswaldon/glucoscope/backend"
)

func TestTickInterval(t *testing.T) {
	for _, tc := range []struct {
		span     time.Duration
		expected time.Duration
	}{
		{span: 30 * time.Second, expected: 5 * time.Second},
		{span: 5 * time.Minute, expected: time.Minute},
		{span: 3 * time.Hour, expected: 30 * time.Minute},
		{span: 24 * time.Hour, expected: 6 * time.Hour},
		{span: 14 * 24 * time.Hour, expected: 7 * 24 * time.Hour},
	} {
		if got := tickInterval(tc.span); got != tc.expected {
			t.Errorf("span %v: expected interval %v, got %v", tc.span, tc.expected, got)
		}
	}
}

func TestFormatTick(t *testing.T) {
	for _, tc := range []struct {
		t        time.Time
		expected string
	}{
		{t: time.Date(2024, 3, 1, 10, 30, 15, 0, time.UTC), expected: ":15"},
		{t: time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC), expected: "10:30"},
		{t: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), expected: "10:00"},
		{t: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), expected: "Sat 02"},
		{t: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), expected: "Mar 01"},
	} {
		if got := FormatTick(tc.t); got != tc.expected {
			t.Errorf("%v: expected %q, got %q", tc.t, tc.expected, got)
		}
	}
}

func TestTimeTicks(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 7, 0, 0, time.UTC)
	ticks := TimeTicks(start, start.Add(3*time.Hour), time.UTC)
	var labels []string
	for _, tick := range ticks {
		labels = append(labels, tick.Label)
	}
	expected := []string{"10:30", "11:00", "11:30", "12:00", "12:30", "13:00"}
	if !slices.Equal(labels, expected) {
		t.Errorf("expected %v, got %v", expected, labels)
	}

	days := TimeTicks(start, start.Add(5*24*time.Hour), time.UTC)
	if len(days) == 0 || days[0].Label != "Sat 02" {
		t.Errorf("expected day ticks starting at Sat 02, got %+v", days)
	}
	if TimeTicks(start, start, time.UTC) != nil {
		t.Errorf("an empty domain has no ticks")
	}
}

func TestValueTicks(t *testing.T) {
	s := LinearScale{D0: 50, D1: 280, R0: 100, R1: 0}
	ticks := valueTicks(s, backend.UnitsMgdl)
	var values []float64
	for _, tick := range ticks {
		values = append(values, tick.Value)
	}
	if !slices.Equal(values, []float64{55, 80, 120, 180, 260}) {
		t.Errorf("unexpected ticks %v", values)
	}
	if ticks[1].Label != "80" {
		t.Errorf("expected mg/dL label 80, got %q", ticks[1].Label)
	}
	mmol := valueTicks(s, backend.UnitsMmol)
	if mmol[1].Label != "4.4" {
		t.Errorf("expected mmol label 4.4, got %q", mmol[1].Label)
	}
}
