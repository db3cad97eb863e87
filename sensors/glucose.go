package sensors

import (
	"math"
	"math/rand"
	"time"
)

// Physiological limits reported by CGM transmitters.
const (
	MinReading = 40
	MaxReading = 400
)

// Profile shapes a simulated glucose trace.
type Profile struct {
	// Baseline is the level the walk is pulled back towards.
	Baseline float64
	// Noise is the standard deviation of the per-sample change.
	Noise float64
	// Reversion is the fraction of the distance to Baseline recovered per
	// hour.
	Reversion float64
	// MealsPerDay is the expected number of meal excursions a day.
	MealsPerDay float64
	// MealRise is the peak rise caused by a meal.
	MealRise float64
}

// DefaultProfile roughly resembles a well-managed type 1 diabetic.
var DefaultProfile = Profile{
	Baseline:    120,
	Noise:       3,
	Reversion:   0.4,
	MealsPerDay: 3,
	MealRise:    90,
}

// Glucose is a simulated CGM sensor: a bounded random walk that reverts to a
// baseline, disturbed by occasional meal excursions.
type Glucose struct {
	profile  Profile
	interval time.Duration
	rng      *rand.Rand
	value    float64
	// carbs is the meal load still to be absorbed.
	carbs float64
}

var _ Sensor = (*Glucose)(nil)

// NewGlucose returns a sensor producing one reading per interval. The same
// seed always produces the same trace.
func NewGlucose(p Profile, interval time.Duration, seed int64) *Glucose {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Glucose{
		profile:  p,
		interval: interval,
		rng:      rand.New(rand.NewSource(seed)),
		value:    p.Baseline,
	}
}

func (g *Glucose) Name() string {
	return "simulated CGM"
}

func (g *Glucose) Unit() Unit {
	return MilligramsPerDeciliter
}

// Read advances the walk by one interval and returns the new reading.
func (g *Glucose) Read() (float64, error) {
	hours := g.interval.Hours()
	p := g.profile

	if g.rng.Float64() < p.MealsPerDay*hours/24 {
		g.carbs += p.MealRise * (0.6 + 0.8*g.rng.Float64())
	}
	// Absorb roughly two thirds of the outstanding load each hour.
	absorbed := g.carbs * min(1, hours*0.66)
	g.carbs -= absorbed

	revert := (p.Baseline - g.value) * min(1, p.Reversion*hours)
	noise := g.rng.NormFloat64() * p.Noise * math.Sqrt(hours*12)
	g.value = clamp(g.value+revert+absorbed+noise, MinReading, MaxReading)
	return math.Round(g.value), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
