package main

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sort"
	"time"

	"gioui.org/f32"
	"gioui.org/gesture"
	"gioui.org/io/event"
	"gioui.org/io/pointer"
	"gioui.org/layout"
	"gioui.org/op"
	"gioui.org/op/clip"
	"gioui.org/op/paint"
	"gioui.org/text"
	"gioui.org/unit"
	"gioui.org/widget"
	"gioui.org/widget/material"
	"gioui.org/x/component"
	"golang.org/x/exp/shiny/materialdesign/icons"

	"git.sr.ht/~whereswaldon/glucoscope/backend"
	"git.sr.ht/~whereswaldon/glucoscope/chart"
)

var pauseIcon = func() *widget.Icon {
	icon, _ := widget.NewIcon(icons.AVPause)
	return icon
}()

var playIcon = func() *widget.Icon {
	icon, _ := widget.NewIcon(icons.AVPlayArrow)
	return icon
}()

const (
	contextHeight = unit.Dp(80)
	plotGap       = unit.Dp(8)
	dashLength    = unit.Dp(6)
	dashGap       = unit.Dp(4)
	// recencyInterval is how often the cursor's recency is re-evaluated
	// while no new data arrives.
	recencyInterval = 30 * time.Second
)

// ChartView draws a chart controller's retained scene and turns pointer
// input into brush, zoom, pan and cursor drag gestures.
type ChartView struct {
	ctrl   *chart.Controller
	scene  *chart.Retained
	logger *slog.Logger
	size   chart.Size

	// focusTag and contextTag are the pointer targets of the two plots.
	focusTag, contextTag int
	zoom                 gesture.Scroll
	pan                  gesture.Scroll
	hover                f32.Point
	hovered              bool
	dragging             bool

	// brushing is true while a context drag is in progress. When moving
	// is set the existing selection is being dragged, otherwise a new one
	// is being drawn from brushFrom.
	brushing   bool
	moving     bool
	brushFrom  float64
	grabbed    [2]float64
	followBtn  widget.Clickable
	nextRedraw time.Time

	readings        component.GridState
	visible         []backend.Sample
	visibleVersion  uint64
	visibleComputed bool
}

// NewChartView constructs a view and the controller it draws. The view acts
// as the controller's container and renders into its own retained scene.
func NewChartView(cfg chart.Config) *ChartView {
	cv := &ChartView{
		scene:  chart.NewRetained(),
		logger: cfg.Logger,
	}
	if cv.logger == nil {
		cv.logger = slog.Default()
	}
	cfg.Container = cv
	cfg.Renderer = cv.scene
	cv.ctrl = chart.New(cfg)
	return cv
}

// Size implements chart.Container.
func (cv *ChartView) Size() chart.Size {
	return cv.size
}

func (cv *ChartView) Controller() *chart.Controller {
	return cv.ctrl
}

func rec(gtx C, w layout.Widget) (D, op.CallOp) {
	macro := op.Record(gtx.Ops)
	dims := w(gtx)
	call := macro.Stop()
	return dims, call
}

func (cv *ChartView) setSize(size chart.Size) {
	if size == cv.size {
		return
	}
	cv.size = size
	if err := cv.ctrl.Resize(); err != nil {
		cv.logger.Debug("chart resize deferred", "err", err)
	}
}

// Update processes input for the chart. It must be called after the plot
// size for this frame is known.
func (cv *ChartView) Update(gtx C) {
	if cv.followBtn.Clicked(gtx) {
		cv.ctrl.SetFollow(!cv.ctrl.Follow())
	}
	cv.updateFocus(gtx)
	cv.updateContext(gtx)

	if !gtx.Now.Before(cv.nextRedraw) {
		cv.nextRedraw = gtx.Now.Add(recencyInterval)
		if cv.ctrl.Len() > 0 && !cv.dragging && !cv.brushing {
			if err := cv.ctrl.Redraw(); err != nil {
				cv.logger.Debug("recency redraw deferred", "err", err)
			}
		}
	}
	gtx.Execute(op.InvalidateCmd{At: cv.nextRedraw})
}

func (cv *ChartView) updateFocus(gtx C) {
	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target: &cv.focusTag,
			Kinds:  pointer.Enter | pointer.Leave | pointer.Move | pointer.Press | pointer.Drag | pointer.Release | pointer.Cancel,
		})
		if !ok {
			break
		}
		e, ok := ev.(pointer.Event)
		if !ok {
			continue
		}
		x, y := float64(e.Position.X), float64(e.Position.Y)
		switch e.Kind {
		case pointer.Enter, pointer.Move:
			cv.hovered = true
			cv.hover = e.Position
		case pointer.Leave:
			cv.hovered = false
		case pointer.Press:
			if cv.ctrl.CursorHit(x, y) && cv.ctrl.BeginDrag(x) {
				cv.dragging = true
				gtx.Execute(pointer.GrabCmd{Tag: &cv.focusTag, ID: e.PointerID})
			}
		case pointer.Drag:
			cv.hover = e.Position
			if cv.dragging {
				cv.ctrl.DragTo(x)
			}
		case pointer.Release, pointer.Cancel:
			if cv.dragging {
				cv.dragging = false
				cv.ctrl.EndDrag()
			}
		}
	}

	if cv.size.FocusHeight <= 0 {
		return
	}
	dist := cv.zoom.Update(gtx.Metric, gtx.Source, gtx.Now, gesture.Vertical, image.Rect(0, -1e6, 0, 1e6))
	if dist != 0 {
		factor := 1 - float64(dist)/cv.size.FocusHeight
		factor = math.Max(0.5, math.Min(2, factor))
		anchor := cv.size.Width / 2
		if cv.hovered {
			anchor = float64(cv.hover.X)
		}
		cv.ctrl.ZoomAt(anchor, factor)
	}
	dist = cv.pan.Update(gtx.Metric, gtx.Source, gtx.Now, gesture.Horizontal, image.Rect(-1e6, 0, 1e6, 0))
	if dist != 0 {
		cv.ctrl.Pan(-float64(dist))
	}
}

func (cv *ChartView) updateContext(gtx C) {
	for {
		ev, ok := gtx.Event(pointer.Filter{
			Target: &cv.contextTag,
			Kinds:  pointer.Press | pointer.Drag | pointer.Release | pointer.Cancel,
		})
		if !ok {
			break
		}
		e, ok := ev.(pointer.Event)
		if !ok {
			continue
		}
		x := float64(e.Position.X)
		switch e.Kind {
		case pointer.Press:
			b0, b1 := cv.ctrl.Brush()
			cv.brushing = true
			cv.moving = x > b0 && x < b1 && b1-b0 < cv.size.Width
			cv.brushFrom = x
			cv.grabbed = [2]float64{b0, b1}
			gtx.Execute(pointer.GrabCmd{Tag: &cv.contextTag, ID: e.PointerID})
		case pointer.Drag:
			if !cv.brushing {
				break
			}
			if cv.moving {
				dx := x - cv.brushFrom
				dx = math.Max(-cv.grabbed[0], math.Min(cv.size.Width-cv.grabbed[1], dx))
				cv.ctrl.BrushTo(cv.grabbed[0]+dx, cv.grabbed[1]+dx)
			} else {
				cv.ctrl.BrushTo(cv.brushFrom, x)
			}
		case pointer.Release, pointer.Cancel:
			cv.brushing = false
			cv.moving = false
		}
	}
}

// Layout draws the toolbar, the focus plot and the context plot.
func (cv *ChartView) Layout(gtx C, th *material.Theme) D {
	return layout.Flex{Axis: layout.Vertical}.Layout(gtx,
		layout.Rigid(func(gtx C) D {
			return cv.layoutToolbar(gtx, th)
		}),
		layout.Flexed(1, func(gtx C) D {
			ctxH := gtx.Dp(contextHeight)
			gap := gtx.Dp(plotGap)
			focusH := max(gtx.Constraints.Max.Y-ctxH-gap, 0)
			cv.setSize(chart.Size{
				Width:         float64(gtx.Constraints.Max.X),
				FocusHeight:   float64(focusH),
				ContextHeight: float64(ctxH),
			})
			cv.Update(gtx)

			cv.layoutPlot(gtx, th, image.Pt(gtx.Constraints.Max.X, focusH), &cv.focusTag, chart.GroupFocus, chart.GroupCursor)
			defer op.Offset(image.Pt(0, focusH+gap)).Push(gtx.Ops).Pop()
			cv.layoutPlot(gtx, th, image.Pt(gtx.Constraints.Max.X, ctxH), &cv.contextTag, chart.GroupContext, chart.GroupBrush)
			return D{Size: gtx.Constraints.Max}
		}),
	)
}

func (cv *ChartView) layoutToolbar(gtx C, th *material.Theme) D {
	icon := pauseIcon
	if !cv.ctrl.Follow() {
		icon = playIcon
	}
	fs := cv.ctrl.FocusScale()
	span := fs.Span().Round(time.Minute)
	desc := "No readings"
	if cv.ctrl.Len() > 0 {
		desc = fmt.Sprintf("%s – %s (%s)", fs.Start.Local().Format("Jan 02 15:04"), fs.End.Local().Format("15:04"), shortDuration(span))
	}
	l := material.Body2(th, desc)
	l.MaxLines = 1
	return layout.Flex{Alignment: layout.Middle}.Layout(gtx,
		layout.Rigid(func(gtx C) D {
			sz := gtx.Dp(32)
			gtx.Constraints = layout.Exact(image.Pt(sz, sz))
			return material.Clickable(gtx, &cv.followBtn, func(gtx C) D {
				return layout.Center.Layout(gtx, func(gtx C) D {
					return icon.Layout(gtx, th.Fg)
				})
			})
		}),
		layout.Rigid(layout.Spacer{Width: 8}.Layout),
		layout.Flexed(1, l.Layout),
	)
}

func shortDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", d/time.Hour, (d%time.Hour)/time.Minute)
	default:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
}

// layoutPlot paints the nodes of groups, in order, into a plot of size sz
// that receives pointer input for tag.
func (cv *ChartView) layoutPlot(gtx C, th *material.Theme, sz image.Point, tag event.Tag, groups ...chart.Group) {
	defer clip.Rect{Max: sz}.Push(gtx.Ops).Pop()
	paint.FillShape(gtx.Ops, plotBackground, clip.Rect{Max: sz}.Op())
	if tag == &cv.focusTag {
		cv.pan.Add(gtx.Ops)
		cv.zoom.Add(gtx.Ops)
		if cv.dragging || (cv.hovered && cv.ctrl.CursorHit(float64(cv.hover.X), float64(cv.hover.Y))) {
			pointer.CursorGrab.Add(gtx.Ops)
		}
	} else {
		pointer.CursorColResize.Add(gtx.Ops)
	}
	event.Op(gtx.Ops, tag)
	for _, g := range groups {
		for _, n := range cv.scene.Nodes(g) {
			cv.paintNode(gtx, th, sz, n)
		}
	}
}

func fpt(p chart.Point) f32.Point {
	return f32.Pt(float32(p.X), float32(p.Y))
}

func (cv *ChartView) paintNode(gtx C, th *material.Theme, sz image.Point, n chart.Node) {
	col := roleColor(n.Role)
	scale := gtx.Metric.PxPerDp
	switch n.ID.Kind {
	case chart.KindValueTick, chart.KindTimeTick:
		strokeLine(gtx, col, float32(n.Width), false, n.Points)
		if n.Label == "" {
			break
		}
		if n.ID.Kind == chart.KindValueTick {
			cv.label(gtx, th, sz, n.Label, axisLabelColor, fpt(n.LabelAt), text.Start, true)
		} else {
			cv.label(gtx, th, sz, n.Label, axisLabelColor, fpt(n.LabelAt), text.Middle, true)
		}
	case chart.KindThreshold:
		strokeLine(gtx, col, float32(n.Width)*scale, true, n.Points)
	case chart.KindPath, chart.KindCursorLine:
		strokeLine(gtx, col, float32(n.Width)*scale, false, n.Points)
	case chart.KindBand, chart.KindBrush:
		r := image.Rect(
			int(math.Round(n.Rect.Min.X)), int(math.Round(n.Rect.Min.Y)),
			int(math.Round(n.Rect.Max.X)), int(math.Round(n.Rect.Max.Y)),
		)
		paint.FillShape(gtx.Ops, col, clip.Rect(r).Op())
		if n.ID.Kind == chart.KindBrush {
			edge := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x90}
			w := max(gtx.Dp(1), 1)
			paint.FillShape(gtx.Ops, edge, clip.Rect(image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y)).Op())
			paint.FillShape(gtx.Ops, edge, clip.Rect(image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y)).Op())
		}
	case chart.KindPoint, chart.KindCursorHandle:
		c := fpt(n.Center)
		rad := float32(n.Radius) * scale
		if n.ID.Kind == chart.KindCursorHandle {
			rad = float32(n.Radius)
		}
		ellipse := clip.Ellipse{
			Min: image.Pt(int(c.X-rad), int(c.Y-rad)),
			Max: image.Pt(int(c.X+rad), int(c.Y+rad)),
		}
		paint.FillShape(gtx.Ops, col, ellipse.Op(gtx.Ops))
	case chart.KindCursorLabel:
		cv.label(gtx, th, sz, n.Label, col, fpt(n.LabelAt), text.Start, false)
	}
}

// label draws txt next to at. Labels are kept inside the plot; above places
// the label's baseline on at rather than its top edge.
func (cv *ChartView) label(gtx C, th *material.Theme, sz image.Point, txt string, col color.NRGBA, at f32.Point, align text.Alignment, above bool) {
	l := material.Caption(th, txt)
	l.Color = col
	l.MaxLines = 1
	gtx.Constraints.Min = image.Point{}
	dims, call := rec(gtx, l.Layout)
	pad := gtx.Dp(2)
	pos := image.Pt(int(at.X)+pad, int(at.Y))
	if align == text.Middle {
		pos.X = int(at.X) - dims.Size.X/2
	}
	if above {
		pos.Y -= dims.Size.Y
	}
	if pos.X+dims.Size.X > sz.X {
		pos.X = int(at.X) - dims.Size.X - pad
	}
	pos.X = max(0, min(pos.X, sz.X-dims.Size.X))
	pos.Y = max(0, min(pos.Y, sz.Y-dims.Size.Y))
	defer op.Offset(pos).Push(gtx.Ops).Pop()
	call.Add(gtx.Ops)
}

// strokeLine strokes a polyline. Dashed lines are only supported for single
// segments.
func strokeLine(gtx C, col color.NRGBA, width float32, dashed bool, pts []chart.Point) {
	if len(pts) < 2 {
		return
	}
	width = max(width, 1)
	var p clip.Path
	p.Begin(gtx.Ops)
	if dashed {
		a, b := fpt(pts[0]), fpt(pts[len(pts)-1])
		d := b.Sub(a)
		length := float32(math.Hypot(float64(d.X), float64(d.Y)))
		if length == 0 {
			return
		}
		dir := d.Mul(1 / length)
		on, off := float32(gtx.Dp(dashLength)), float32(gtx.Dp(dashGap))
		for pos := float32(0); pos < length; pos += on + off {
			end := min(pos+on, length)
			p.MoveTo(a.Add(dir.Mul(pos)))
			p.LineTo(a.Add(dir.Mul(end)))
		}
	} else {
		p.MoveTo(fpt(pts[0]))
		for _, pt := range pts[1:] {
			p.LineTo(fpt(pt))
		}
	}
	paint.FillShape(gtx.Ops, col, clip.Stroke{
		Path:  p.End(),
		Width: width,
	}.Op())
}

// visibleReadings returns the samples inside the focus window, newest first.
// The result is cached until the scene changes.
func (cv *ChartView) visibleReadings() []backend.Sample {
	if cv.visibleComputed && cv.visibleVersion == cv.scene.Version() {
		return cv.visible
	}
	cv.visibleComputed = true
	cv.visibleVersion = cv.scene.Version()
	fs := cv.ctrl.FocusScale()
	samples := cv.ctrl.Series()
	lo := sort.Search(len(samples), func(i int) bool {
		return !samples[i].Time.Before(fs.Start)
	})
	hi := sort.Search(len(samples), func(i int) bool {
		return samples[i].Time.After(fs.End)
	})
	cv.visible = cv.visible[:0]
	for i := hi - 1; i >= lo; i-- {
		cv.visible = append(cv.visible, samples[i])
	}
	return cv.visible
}

// LayoutReadings draws a table of the readings inside the focus window.
func (cv *ChartView) LayoutReadings(gtx C, th *material.Theme) D {
	readings := cv.visibleReadings()
	thresholds := cv.ctrl.Thresholds()
	table := component.Table(th, &cv.readings)
	table.HScrollbarStyle.Indicator.MinorWidth = 0
	table.HScrollbarStyle.Track.MinorPadding = 0
	rowHeight := gtx.Sp(20)
	const (
		timeCol = iota
		valueCol
		trendCol
		statusCol
		numCols
	)
	colWidth := (gtx.Constraints.Max.X - gtx.Dp(table.VScrollbarStyle.Width())) / numCols
	return table.Layout(gtx, len(readings), numCols,
		func(axis layout.Axis, index, constraint int) int {
			if axis == layout.Vertical {
				return min(constraint, rowHeight)
			}
			return min(colWidth, constraint)
		},
		func(gtx C, index int) D {
			var l material.LabelStyle
			switch index {
			case timeCol:
				l = material.Body1(th, "Time")
			case valueCol:
				l = material.Body1(th, "Glucose")
				l.Alignment = text.End
			case trendCol:
				l = material.Body1(th, "Trend")
				l.Alignment = text.Middle
			case statusCol:
				l = material.Body1(th, "Status")
			default:
				l = material.Body1(th, "???")
			}
			l.Color = th.ContrastFg
			return layout.Background{}.Layout(gtx,
				func(gtx C) D {
					paint.FillShape(gtx.Ops, th.ContrastBg, clip.Rect{Max: gtx.Constraints.Max}.Op())
					return D{Size: gtx.Constraints.Min}
				}, l.Layout,
			)
		},
		func(gtx C, row, col int) (dims D) {
			defer func() {
				dims.Size = gtx.Constraints.Constrain(dims.Size)
			}()
			s := readings[row]
			severity := thresholds.Classify(s.Value)
			dims = layout.UniformInset(2).Layout(gtx, func(gtx C) D {
				var l material.LabelStyle
				switch col {
				case timeCol:
					l = material.Body2(th, s.Time.Local().Format("Jan 02 15:04"))
				case valueCol:
					l = material.Body2(th, thresholds.Units.Format(s.Value))
					l.Alignment = text.End
				case trendCol:
					l = material.Body2(th, s.Direction.Arrow())
					l.Alignment = text.Middle
				case statusCol:
					l = material.Body2(th, severity.String())
				default:
					return D{Size: gtx.Constraints.Max}
				}
				return l.Layout(gtx)
			})
			if row&1 != 0 {
				c := cardColor(severity)
				c.A = 50
				paint.FillShape(gtx.Ops, c, clip.Rect{Max: gtx.Constraints.Max}.Op())
			}
			return dims
		})
}
