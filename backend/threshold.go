package backend

import (
	"fmt"
	"strconv"
	"strings"
)

// Units selects how glucose values are presented. Values are always stored
// in mg/dL.
type Units uint8

const (
	UnitsMgdl Units = iota
	UnitsMmol
)

// MgdlPerMmol is the conversion factor between mmol/L and mg/dL for glucose.
const MgdlPerMmol = 18.0182

func (u Units) String() string {
	switch u {
	case UnitsMmol:
		return "mmol/L"
	default:
		return "mg/dL"
	}
}

// ParseUnits accepts the spellings used by Nightscout settings.
func ParseUnits(s string) Units {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mmol", "mmol/l":
		return UnitsMmol
	default:
		return UnitsMgdl
	}
}

// Display converts a stored mg/dL value into the unit of presentation.
func (u Units) Display(mgdl float64) float64 {
	if u == UnitsMmol {
		return mgdl / MgdlPerMmol
	}
	return mgdl
}

// Format renders a stored mg/dL value for display: integers for mg/dL, one
// decimal for mmol/L.
func (u Units) Format(mgdl float64) string {
	if u == UnitsMmol {
		return strconv.FormatFloat(u.Display(mgdl), 'f', 1, 64)
	}
	return strconv.FormatFloat(mgdl, 'f', 0, 64)
}

// Severity classifies a glucose value relative to the configured thresholds.
type Severity uint8

const (
	SeverityInRange Severity = iota
	SeverityWarning
	SeverityUrgent
)

func (s Severity) String() string {
	switch s {
	case SeverityInRange:
		return "in range"
	case SeverityWarning:
		return "warning"
	case SeverityUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Side reports which side of the target range a value falls on.
type Side uint8

const (
	SideNone Side = iota
	SideLow
	SideHigh
)

// Default thresholds used when the server does not supply a value.
const (
	DefaultTargetTop    = 180
	DefaultTargetBottom = 80
	DefaultAlarmHigh    = 260
	DefaultAlarmLow     = 70
)

// Thresholds are the clinical limits a chart is drawn against. They are
// fixed for the lifetime of a chart; settings changes require a new chart.
type Thresholds struct {
	TargetTop    float64
	TargetBottom float64
	AlarmHigh    float64
	AlarmLow     float64
	Units        Units
}

// DefaultThresholds returns the standard Nightscout limits in mg/dL.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TargetTop:    DefaultTargetTop,
		TargetBottom: DefaultTargetBottom,
		AlarmHigh:    DefaultAlarmHigh,
		AlarmLow:     DefaultAlarmLow,
		Units:        UnitsMgdl,
	}
}

// Validate checks that the limits are ordered sensibly.
func (t Thresholds) Validate() error {
	if t.AlarmLow > t.TargetBottom {
		return fmt.Errorf("alarm low %v above target bottom %v", t.AlarmLow, t.TargetBottom)
	}
	if t.TargetBottom > t.TargetTop {
		return fmt.Errorf("target bottom %v above target top %v", t.TargetBottom, t.TargetTop)
	}
	if t.TargetTop > t.AlarmHigh {
		return fmt.Errorf("target top %v above alarm high %v", t.TargetTop, t.AlarmHigh)
	}
	return nil
}

// Classify returns the severity of a value. Rules are checked in order and
// the first match wins:
//
//  1. value >= AlarmHigh is urgent
//  2. value <= AlarmLow is urgent
//  3. TargetBottom <= value <= TargetTop is in range
//  4. anything else is a warning
//
// A value between AlarmLow and TargetBottom is therefore a warning, not
// urgent.
func (t Thresholds) Classify(value float64) Severity {
	switch {
	case value >= t.AlarmHigh:
		return SeverityUrgent
	case value <= t.AlarmLow:
		return SeverityUrgent
	case value >= t.TargetBottom && value <= t.TargetTop:
		return SeverityInRange
	default:
		return SeverityWarning
	}
}

// Side reports whether an out-of-range value is low or high. In-range values
// report SideNone.
func (t Thresholds) Side(value float64) Side {
	switch t.Classify(value) {
	case SeverityInRange:
		return SideNone
	case SeverityUrgent:
		if value >= t.AlarmHigh {
			return SideHigh
		}
		return SideLow
	default:
		if value > t.TargetTop {
			return SideHigh
		}
		return SideLow
	}
}
