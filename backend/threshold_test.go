package backend

import "testing"

func TestClassify(t *testing.T) {
	th := Thresholds{TargetTop: 180, TargetBottom: 80, AlarmHigh: 260, AlarmLow: 70}
	for _, tc := range []struct {
		value    float64
		severity Severity
		side     Side
	}{
		{value: 260, severity: SeverityUrgent, side: SideHigh},
		{value: 400, severity: SeverityUrgent, side: SideHigh},
		{value: 70, severity: SeverityUrgent, side: SideLow},
		{value: 39, severity: SeverityUrgent, side: SideLow},
		{value: 75, severity: SeverityWarning, side: SideLow},
		{value: 79.9, severity: SeverityWarning, side: SideLow},
		{value: 80, severity: SeverityInRange, side: SideNone},
		{value: 100, severity: SeverityInRange, side: SideNone},
		{value: 180, severity: SeverityInRange, side: SideNone},
		{value: 180.5, severity: SeverityWarning, side: SideHigh},
		{value: 250, severity: SeverityWarning, side: SideHigh},
	} {
		if got := th.Classify(tc.value); got != tc.severity {
			t.Errorf("classify(%v): expected %v, got %v", tc.value, tc.severity, got)
		}
		if got := th.Side(tc.value); got != tc.side {
			t.Errorf("side(%v): expected %v, got %v", tc.value, tc.side, got)
		}
	}
}

func TestClassifyOverlappingLimits(t *testing.T) {
	// An alarm high at or below the target top still wins: rule order matters.
	th := Thresholds{TargetTop: 180, TargetBottom: 80, AlarmHigh: 150, AlarmLow: 90}
	if got := th.Classify(160); got != SeverityUrgent {
		t.Errorf("expected alarm high to take precedence over target range, got %v", got)
	}
	if got := th.Classify(85); got != SeverityUrgent {
		t.Errorf("expected alarm low to take precedence over target range, got %v", got)
	}
	if err := th.Validate(); err == nil {
		t.Errorf("expected overlapping limits to fail validation")
	}
}

func TestUnits(t *testing.T) {
	if got := ParseUnits("mmol"); got != UnitsMmol {
		t.Errorf("expected mmol, got %v", got)
	}
	if got := ParseUnits("mg/dl"); got != UnitsMgdl {
		t.Errorf("expected mg/dl, got %v", got)
	}
	if got := UnitsMmol.Format(180.182); got != "10.0" {
		t.Errorf("expected 10.0 mmol/L, got %q", got)
	}
	if got := UnitsMgdl.Format(99.6); got != "100" {
		t.Errorf("expected 100 mg/dL, got %q", got)
	}
}
