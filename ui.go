package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"strconv"
	"time"

	"gioui.org/font/gofont"
	"gioui.org/layout"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"gioui.org/x/explorer"
	"git.sr.ht/~gioverse/skel/stream"

	"git.sr.ht/~whereswaldon/glucoscope/backend"
	"git.sr.ht/~whereswaldon/glucoscope/chart"
	"git.sr.ht/~whereswaldon/glucoscope/config"
)

type (
	C = layout.Context
	D = layout.Dimensions
)

// rangeHours are the selectable lengths of history, in hours.
var rangeHours = []int{2, 4, 6, 8, 12, 24}

// UI is responsible for holding the state of and drawing the top-level UI.
type UI struct {
	ws   backend.WindowState
	expl *explorer.Explorer
	cfg  *config.Config

	view       *ChartView
	thresholds backend.Thresholds
	generation uint64
	loaded     bool

	// reading is the sample shown on the stat cards.
	reading    backend.Sample
	hasReading bool

	hours      widget.Enum
	day        time.Time
	prevDay    widget.Clickable
	nextDay    widget.Clickable
	dayBtn     widget.Clickable
	connectBtn widget.Clickable
	openBtn    widget.Clickable
	errMsg     string

	th          *material.Theme
	stateStream *stream.Stream[backend.State]
	state       backend.State
}

func NewUI(ws backend.WindowState, expl *explorer.Explorer, cfg *config.Config) *UI {
	th := material.NewTheme()
	th.Shaper = text.NewShaper(text.WithCollection(gofont.Collection()), text.NoSystemFonts())
	th.Palette.Bg = color.NRGBA{R: 0x12, G: 0x12, B: 0x12, A: 0xff}
	th.Palette.Fg = color.NRGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
	th.Palette.ContrastBg = color.NRGBA{G: 0x66, B: 0xaa, A: 0xff}
	th.Palette.ContrastFg = white
	ui := &UI{
		ws:          ws,
		th:          th,
		expl:        expl,
		cfg:         cfg,
		hours:       widget.Enum{Value: strconv.Itoa(cfg.Chart.DefaultHours)},
		stateStream: stream.New(ws.Controller, ws.Bundle.Datasource.State),
	}
	ui.resetChart(backend.DefaultThresholds())
	return ui
}

// resetChart replaces the chart with an empty one drawn against t.
func (ui *UI) resetChart(t backend.Thresholds) {
	ui.thresholds = t
	ui.loaded = false
	view := NewChartView(chart.Config{
		Thresholds:    t,
		Logger:        ui.ws.Bundle.Logger,
		Metrics:       ui.ws.Bundle.Metrics,
		DefaultWindow: ui.cfg.Chart.DefaultWindow,
		StaleAfter:    ui.cfg.Chart.StaleAfter,
	})
	view.Controller().OnDragUpdate = ui.showReading
	view.Controller().OnVisibleRangeUpdate = ui.showReading
	ui.view = view
}

func (ui *UI) showReading(s backend.Sample) {
	ui.reading = s
	ui.hasReading = true
}

func (ui *UI) showLatest() {
	ctrl := ui.view.Controller()
	if ctrl.Len() == 0 {
		ui.hasReading = false
		return
	}
	samples := ctrl.Series()
	ui.showReading(samples[len(samples)-1])
}

// Update the state of the UI from the datasource and from input events.
func (ui *UI) Update(gtx C) {
	ui.stateStream.ReadInto(gtx, &ui.state, backend.State{})
	ds := ui.ws.Bundle.Datasource

	thresholds := ui.state.Status.Thresholds
	if thresholds == (backend.Thresholds{}) {
		thresholds = backend.DefaultThresholds()
	}
	if thresholds != ui.thresholds {
		ui.resetChart(thresholds)
	}
	if !ui.loaded || ui.state.Generation != ui.generation {
		ui.loaded = true
		ui.generation = ui.state.Generation
		ctrl := ui.view.Controller()
		if len(ui.state.Samples) == 0 && ctrl.Len() > 0 {
			// Empty loads are ignored by the controller, so start over.
			ui.resetChart(thresholds)
			ui.loaded = true
		} else if err := ctrl.UpdateData(ui.state.Samples); err != nil && !errors.Is(err, chart.ErrUninitializedRender) {
			ui.ws.Bundle.Logger.Error("failed updating chart", "err", err)
		}
		ui.showLatest()
	}
	ui.drainEntries()

	if ui.hours.Update(gtx) {
		if h, err := strconv.Atoi(ui.hours.Value); err == nil {
			ui.day = time.Time{}
			ds.Load(backend.EntriesQuery{Hours: h})
		}
	}
	if ui.prevDay.Clicked(gtx) {
		ui.loadDay(-1)
	}
	if ui.nextDay.Clicked(gtx) {
		ui.loadDay(1)
	}
	if ui.dayBtn.Clicked(gtx) && !ui.day.IsZero() {
		ui.day = time.Time{}
		h, err := strconv.Atoi(ui.hours.Value)
		if err != nil {
			h = ui.cfg.Chart.DefaultHours
		}
		ds.Load(backend.EntriesQuery{Hours: h})
	}
	if ui.connectBtn.Clicked(gtx) {
		ds.Connect(backend.EntriesQuery{Hours: ui.cfg.Chart.DefaultHours})
	}
	if ui.openBtn.Clicked(gtx) {
		go ui.openTrace()
	}

	ui.errMsg = ""
	if ui.state.Err != nil {
		ui.errMsg = ui.state.Err.Error()
	}
}

// drainEntries appends every waiting live sample to the chart in one
// redraw. Samples outside the loaded range, such as while a past day is
// shown, are skipped.
func (ui *UI) drainEntries() {
	var batch []backend.Sample
	entries := ui.ws.Bundle.Datasource.Entries()
drain:
	for {
		select {
		case s := <-entries:
			if ui.state.Query.Contains(s.Time) {
				batch = append(batch, s)
			}
		default:
			break drain
		}
	}
	if len(batch) == 0 {
		return
	}
	ctrl := ui.view.Controller()
	if err := ctrl.AddEntries(batch); err != nil && !errors.Is(err, chart.ErrUninitializedRender) {
		ui.ws.Bundle.Logger.Warn("rejected live entries", "err", err)
	}
	if ctrl.State() != chart.StateDragDriven {
		ui.showLatest()
	}
}

func (ui *UI) loadDay(delta int) {
	base := ui.day
	if base.IsZero() {
		base = time.Now()
	}
	ui.day = base.AddDate(0, 0, delta)
	ui.hours.Value = "24"
	ui.ws.Bundle.Datasource.Load(backend.DayQuery(ui.day))
}

func (ui *UI) openTrace() {
	file, err := ui.expl.ChooseFile(".csv")
	if err != nil {
		if !errors.Is(err, explorer.ErrUserDecline) {
			ui.ws.Bundle.Logger.Error("failed choosing trace", "err", err)
		}
		return
	}
	if err := ui.ws.Bundle.Datasource.OpenTrace(file); err != nil {
		ui.ws.Bundle.Logger.Error("failed opening trace", "err", err)
	}
}

// dayLabel names the selected day relative to today.
func dayLabel(day, now time.Time) string {
	if day.IsZero() {
		return "Today"
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	y, m, d = day.In(now.Location()).Date()
	selected := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	switch selected.Sub(today).Round(time.Hour) / (24 * time.Hour) {
	case 0:
		return "Today"
	case -1:
		return "Yesterday"
	case 1:
		return "Tomorrow"
	}
	return selected.Format("Jan 2, 2006")
}

type TabStyle struct {
	state  *widget.Enum
	label  material.LabelStyle
	border widget.Border
	inset  layout.Inset
	value  string
	fill   color.NRGBA
}

func Tab(th *material.Theme, state *widget.Enum, value, display string) TabStyle {
	selected := state.Value == value
	ts := TabStyle{
		state: state,
		label: material.Body1(th, display),
		inset: layout.UniformInset(2),
		border: widget.Border{
			Width: 2,
			Color: th.ContrastBg,
		},
		value: value,
	}
	ts.label.Alignment = text.Middle
	if selected {
		ts.label.Color = th.ContrastFg
		ts.fill = th.ContrastBg
	}
	return ts
}

func (t TabStyle) Layout(gtx C) D {
	return t.inset.Layout(gtx, func(gtx C) D {
		return t.border.Layout(gtx, func(gtx C) D {
			return t.inset.Layout(gtx, func(gtx C) D {
				return t.state.Layout(gtx, t.value, func(gtx C) D {
					return layout.Background{}.Layout(gtx, func(gtx C) D {
						paint.FillShape(gtx.Ops, t.fill, clip.Rect{Max: gtx.Constraints.Min}.Op())
						return D{Size: gtx.Constraints.Min}
					}, t.label.Layout)
				})
			})
		})
	})
}

// statCard draws a single headline value on a colored card.
func (ui *UI) statCard(gtx C, value string, fg, bg color.NRGBA) D {
	return layout.UniformInset(4).Layout(gtx, func(gtx C) D {
		return layout.Background{}.Layout(gtx,
			func(gtx C) D {
				rr := gtx.Dp(6)
				paint.FillShape(gtx.Ops, bg, clip.UniformRRect(image.Rectangle{Max: gtx.Constraints.Min}, rr).Op(gtx.Ops))
				return D{Size: gtx.Constraints.Min}
			},
			func(gtx C) D {
				return layout.UniformInset(12).Layout(gtx, func(gtx C) D {
					l := material.H5(ui.th, value)
					l.Color = fg
					l.Alignment = text.Middle
					l.MaxLines = 1
					return l.Layout(gtx)
				})
			},
		)
	})
}

func (ui *UI) layoutStatCards(gtx C) D {
	timeText, trendText, valueText := "--", "--", "--"
	timeFg, valueFg := white, white
	cardBg := color.NRGBA{R: 0x2a, G: 0x2a, B: 0x2a, A: 0xff}
	valueBg := cardBg
	if ui.hasReading {
		r := ui.reading
		current := time.Since(r.Time) < ui.cfg.Chart.StaleAfter
		if !current {
			timeFg = staleColor
		}
		timeText = r.Time.Local().Format("15:04")
		trendText = r.Direction.Arrow()
		valueText = fmt.Sprintf("%s %s", ui.thresholds.Units.Format(r.Value), ui.thresholds.Units)
		severity := ui.thresholds.Classify(r.Value)
		valueBg = cardColor(severity)
		if severity == backend.SeverityInRange && !current {
			valueFg = staleColor
		}
	}
	return layout.Flex{}.Layout(gtx,
		layout.Flexed(1, func(gtx C) D {
			return ui.statCard(gtx, timeText, timeFg, cardBg)
		}),
		layout.Flexed(1, func(gtx C) D {
			return ui.statCard(gtx, trendText, white, cardBg)
		}),
		layout.Flexed(1, func(gtx C) D {
			return ui.statCard(gtx, valueText, valueFg, valueBg)
		}),
	)
}

func (ui *UI) layoutRangeControls(gtx C) D {
	children := []layout.FlexChild{
		layout.Rigid(func(gtx C) D {
			return material.Button(ui.th, &ui.prevDay, "←").Layout(gtx)
		}),
		layout.Rigid(func(gtx C) D {
			b := material.Button(ui.th, &ui.dayBtn, dayLabel(ui.day, time.Now()))
			b.Background = color.NRGBA{R: 0x2a, G: 0x2a, B: 0x2a, A: 0xff}
			return layout.Inset{Left: 4, Right: 4}.Layout(gtx, b.Layout)
		}),
		layout.Rigid(func(gtx C) D {
			return material.Button(ui.th, &ui.nextDay, "→").Layout(gtx)
		}),
		layout.Rigid(layout.Spacer{Width: 16}.Layout),
	}
	for _, h := range rangeHours {
		v := strconv.Itoa(h)
		children = append(children, layout.Flexed(1, Tab(ui.th, &ui.hours, v, v+"hr").Layout))
	}
	return layout.Flex{Alignment: layout.Middle}.Layout(gtx, children...)
}

// statusText summarizes where readings come from and whether they are live.
func (ui *UI) statusText() string {
	var source string
	switch ui.state.Source {
	case backend.SourceAPI:
		source = ui.cfg.API.BaseURL
		if ui.state.Status.Name != "" {
			source = ui.state.Status.Name
		}
	case backend.SourceTrace:
		source = "trace " + ui.state.TraceName
	}
	conn := "offline"
	switch {
	case ui.state.Live:
		conn = "live"
	case ui.state.Connection == backend.LifecycleDisconnected:
		conn = "reconnecting"
	case ui.state.Connection == backend.LifecycleGaveUp:
		conn = "disconnected"
	}
	out := fmt.Sprintf("%s · %s · %d readings", source, conn, ui.view.Controller().Len())
	if ui.state.Loading {
		out += " · loading…"
	}
	return out
}

func (ui *UI) layoutMainArea(gtx C) D {
	return layout.UniformInset(8).Layout(gtx, func(gtx C) D {
		return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
			layout.Rigid(ui.layoutStatCards),
			layout.Rigid(ui.layoutRangeControls),
			layout.Rigid(func(gtx C) D {
				l := material.Caption(ui.th, ui.statusText())
				l.MaxLines = 1
				return l.Layout(gtx)
			}),
			layout.Rigid(func(gtx C) D {
				if len(ui.errMsg) == 0 {
					return D{}
				}
				l := material.Body1(ui.th, ui.errMsg)
				l.Color = errorColor
				return l.Layout(gtx)
			}),
			layout.Flexed(1, func(gtx C) D {
				return ui.view.Layout(gtx, ui.th)
			}),
			layout.Rigid(func(gtx C) D {
				gtx.Constraints.Max.Y = min(gtx.Constraints.Max.Y, gtx.Dp(unit.Dp(160)))
				gtx.Constraints.Min.Y = gtx.Constraints.Max.Y
				return ui.view.LayoutReadings(gtx, ui.th)
			}),
		)
	})
}

func (ui *UI) layoutStartScreen(gtx C) D {
	l := material.Body1(ui.th, "No data yet.")
	return layout.Flex{
		Axis:      layout.Vertical,
		Alignment: layout.Middle,
		Spacing:   layout.SpaceAround,
	}.Layout(gtx,
		layout.Rigid(func(gtx C) D {
			gtx.Constraints.Min = image.Point{}
			return l.Layout(gtx)
		}),
		layout.Rigid(func(gtx C) D {
			gtx.Constraints.Min = image.Point{}
			return material.Button(ui.th, &ui.connectBtn, "Connect to "+ui.cfg.API.BaseURL).Layout(gtx)
		}),
		layout.Rigid(func(gtx C) D {
			gtx.Constraints.Min = image.Point{}
			return material.Button(ui.th, &ui.openBtn, "Open Existing Trace").Layout(gtx)
		}),
		layout.Rigid(func(gtx C) D {
			gtx.Constraints.Min = image.Point{}
			return material.Body2(ui.th, ui.errMsg).Layout(gtx)
		}),
	)
}

// Layout the UI into the provided context.
func (ui *UI) Layout(gtx C) D {
	ui.Update(gtx)
	paint.FillShape(gtx.Ops, ui.th.Bg, clip.Rect{Max: gtx.Constraints.Max}.Op())
	if ui.state.Source != backend.SourceNone {
		return ui.layoutMainArea(gtx)
	}
	return ui.layoutStartScreen(gtx)
}
