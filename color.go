package main

import (
	"image/color"

	"git.sr.ht/~whereswaldon/glucoscope/backend"
	"git.sr.ht/~whereswaldon/glucoscope/chart"
)

var (
	plotBackground = color.NRGBA{A: 0xff}
	gridColor      = color.NRGBA{R: 0x33, G: 0x33, B: 0x33, A: 0xff}
	axisLabelColor = color.NRGBA{R: 0xbd, G: 0xbd, B: 0xbd, A: 0xff}
	staleColor     = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
	white          = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	errorColor     = color.NRGBA{R: 0x96, A: 0xff}
)

// roleColors holds the paint for each scene role.
var roleColors = map[chart.Role]color.NRGBA{
	chart.RoleGrid:            gridColor,
	chart.RoleTargetBand:      {G: 0xff, A: 0x1a},
	chart.RoleThresholdHigh:   {R: 0xff, G: 0xff, A: 0x80},
	chart.RoleThresholdTarget: {G: 0xff, A: 0x80},
	chart.RoleThresholdLow:    {R: 0xff, A: 0x80},
	chart.RoleLine:            {R: 0x99, G: 0x99, B: 0x99, A: 0xff},
	chart.RoleInRange:         {G: 0xff, A: 0xff},
	chart.RoleWarning:         {R: 0xff, G: 0xff, A: 0xff},
	chart.RoleUrgent:          {R: 0xff, A: 0xff},
	chart.RoleBrush:           {R: 0xff, G: 0xff, B: 0xff, A: 0x30},
	chart.RoleCursorCurrent:   {G: 0x99, B: 0xff, A: 0xff},
	chart.RoleCursorStale:     staleColor,
}

func roleColor(r chart.Role) color.NRGBA {
	if c, ok := roleColors[r]; ok {
		return c
	}
	return white
}

// cardColor is the stat card background for a reading's severity.
func cardColor(s backend.Severity) color.NRGBA {
	switch s {
	case backend.SeverityUrgent:
		return color.NRGBA{R: 0xd9, G: 0x53, B: 0x4f, A: 0xff}
	case backend.SeverityWarning:
		return color.NRGBA{R: 0xf0, G: 0xad, B: 0x4e, A: 0xff}
	default:
		return color.NRGBA{R: 0x5c, G: 0xb8, B: 0x5c, A: 0xff}
	}
}
