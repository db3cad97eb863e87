package sensors

import (
	"testing"
	"time"
)

func TestGlucoseBounded(t *testing.T) {
	g := NewGlucose(Profile{Baseline: 120, Noise: 40, Reversion: 0.1, MealsPerDay: 20, MealRise: 300}, 5*time.Minute, 7)
	for i := 0; i < 10_000; i++ {
		v, err := g.Read()
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		if v < MinReading || v > MaxReading {
			t.Fatalf("read %d out of bounds: %v", i, v)
		}
	}
}

func TestGlucoseDeterministic(t *testing.T) {
	a := NewGlucose(DefaultProfile, 5*time.Minute, 42)
	b := NewGlucose(DefaultProfile, 5*time.Minute, 42)
	for i := 0; i < 100; i++ {
		va, _ := a.Read()
		vb, _ := b.Read()
		if va != vb {
			t.Fatalf("read %d diverged: %v != %v", i, va, vb)
		}
	}
}

func TestGlucoseReverts(t *testing.T) {
	g := NewGlucose(Profile{Baseline: 100, Reversion: 1}, 5*time.Minute, 1)
	g.value = 300
	var v float64
	for i := 0; i < 24*12; i++ {
		v, _ = g.Read()
	}
	if v < 95 || v > 105 {
		t.Errorf("expected the walk to settle near the baseline, got %v", v)
	}
	if g.Unit() != MilligramsPerDeciliter || g.Unit().String() != "mg/dL" {
		t.Errorf("unexpected unit %v", g.Unit())
	}
}
