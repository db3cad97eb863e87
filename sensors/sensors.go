package sensors

type Unit uint8

func (u Unit) String() string {
	switch u {
	case MilligramsPerDeciliter:
		return "mg/dL"
	case MillimolesPerLiter:
		return "mmol/L"
	default:
		return "?"
	}
}

const (
	MilligramsPerDeciliter Unit = iota
	MillimolesPerLiter
	Unknown
)

const (
	// MgdlPerMmol is the conversion factor from mmol/L to mg/dL for glucose.
	MgdlPerMmol = 18.0182
)

// Sensor is a source of glucose readings. Each Read advances the sensor by
// one sample interval.
type Sensor interface {
	Name() string
	Unit() Unit
	Read() (float64, error)
}
