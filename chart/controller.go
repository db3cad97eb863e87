package chart

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"git.sr.ht/~whereswaldon/glucoscope/backend"
)

// ErrUninitializedRender is returned by a redraw requested before the
// container has a size. The redraw is deferred until Init or Resize succeeds.
var ErrUninitializedRender = errors.New("chart container has no size yet")

const (
	// DefaultWindow is the focus span selected after new data is loaded.
	DefaultWindow = 3 * time.Hour
	// StaleAfter is how old the newest sample may be before the cursor is
	// drawn as stale.
	StaleAfter = 15 * time.Minute

	FocusPointRadius   = 5
	ContextPointRadius = 2
	FocusLineWidth     = 2
	ContextLineWidth   = 1.5
	CursorHandleRadius = 12
)

// Size is the pixel size of the two plot areas. Both plots share a width.
type Size struct {
	Width         float64
	FocusHeight   float64
	ContextHeight float64
}

func (s Size) valid() bool {
	return s.Width > 0 && s.FocusHeight > 0 && s.ContextHeight > 0
}

// Container reports the size the chart is laid out at.
type Container interface {
	Size() Size
}

// CursorState describes the recency of the newest sample.
type CursorState uint8

const (
	CursorNone CursorState = iota
	CursorCurrent
	CursorStale
)

func (c CursorState) String() string {
	switch c {
	case CursorCurrent:
		return "current"
	case CursorStale:
		return "stale"
	default:
		return "none"
	}
}

// Cursor is the now-cursor as last drawn. X is in focus coordinates.
type Cursor struct {
	Sample  backend.Sample
	State   CursorState
	X       float64
	Dragged bool
}

// Config configures a Controller. Only Container is required.
type Config struct {
	Thresholds backend.Thresholds
	Container  Container
	// Renderer receives scene patches. Defaults to a Retained scene.
	Renderer Renderer
	// Now is the wall clock used for cursor recency.
	Now func() time.Time
	// Location is used for tick and cursor labels.
	Location      *time.Location
	Logger        *slog.Logger
	Metrics       *backend.Metrics
	DefaultWindow time.Duration
	StaleAfter    time.Duration
}

// Controller owns a glucose series and the viewport it is shown through. It
// rebuilds the scene whenever data, size or the viewport change, and runs the
// interaction state machine linking the context brush, the focus zoom and the
// cursor drag.
//
// A Controller is not safe for concurrent use. All methods must be called
// from the goroutine that processes UI events.
type Controller struct {
	// OnDragUpdate is called with the sample the cursor snapped to.
	OnDragUpdate func(backend.Sample)
	// OnVisibleRangeUpdate is called after a brush or zoom with the newest
	// sample inside the focus window.
	OnVisibleRangeUpdate func(backend.Sample)

	thresholds    backend.Thresholds
	container     Container
	renderer      Renderer
	now           func() time.Time
	loc           *time.Location
	logger        *slog.Logger
	metrics       *backend.Metrics
	defaultWindow time.Duration
	staleAfter    time.Duration
	bus           Bus

	series  backend.Series
	size    Size
	sized   bool
	pending bool

	contextX, focusX TimeScale
	contextY, focusY LinearScale
	transform        Transform
	brush            [2]float64
	state            InteractionState
	follow           bool
	windowSpan       time.Duration
	dragSample       *backend.Sample
	cursor           Cursor

	scene [groupCount]map[NodeID]Node
}

// New constructs a controller. Call Init once the container has been laid
// out.
func New(cfg Config) *Controller {
	c := &Controller{
		thresholds:    cfg.Thresholds,
		container:     cfg.Container,
		renderer:      cfg.Renderer,
		now:           cfg.Now,
		loc:           cfg.Location,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		defaultWindow: cfg.DefaultWindow,
		staleAfter:    cfg.StaleAfter,
		transform:     Identity,
		follow:        true,
	}
	if c.thresholds == (backend.Thresholds{}) {
		c.thresholds = backend.DefaultThresholds()
	}
	if c.renderer == nil {
		c.renderer = NewRetained()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.defaultWindow <= 0 {
		c.defaultWindow = DefaultWindow
	}
	if c.staleAfter <= 0 {
		c.staleAfter = StaleAfter
	}
	if err := c.thresholds.Validate(); err != nil {
		c.logger.Warn("thresholds out of order", "err", err)
	}
	c.windowSpan = c.defaultWindow
	for g := range c.scene {
		c.scene[g] = make(map[NodeID]Node)
	}
	c.recomputeDomains()
	c.setFocus(c.contextX.Start, c.contextX.End)
	return c
}

// Bus returns the controller's event bus.
func (c *Controller) Bus() *Bus {
	return &c.bus
}

// Renderer returns the renderer receiving scene patches.
func (c *Controller) Renderer() Renderer {
	return c.renderer
}

// Thresholds returns the limits the chart is drawn against.
func (c *Controller) Thresholds() backend.Thresholds {
	return c.thresholds
}

// State returns the active interaction.
func (c *Controller) State() InteractionState {
	return c.state
}

// Series returns the samples currently charted. Callers must not modify the
// returned slice.
func (c *Controller) Series() []backend.Sample {
	return c.series.Samples()
}

// Len returns the number of samples charted.
func (c *Controller) Len() int {
	return c.series.Len()
}

// FocusScale returns the time scale of the focus view.
func (c *Controller) FocusScale() TimeScale {
	return c.focusX
}

// ContextScale returns the time scale of the context view.
func (c *Controller) ContextScale() TimeScale {
	return c.contextX
}

// ValueScales returns the value scales of the focus and context views.
func (c *Controller) ValueScales() (focus, context LinearScale) {
	return c.focusY, c.contextY
}

// Transform returns the current zoom transform.
func (c *Controller) Transform() Transform {
	return c.transform
}

// Brush returns the brush selection in context coordinates.
func (c *Controller) Brush() (x0, x1 float64) {
	return c.brush[0], c.brush[1]
}

// Cursor returns the now-cursor as last drawn.
func (c *Controller) Cursor() Cursor {
	return c.cursor
}

// Size returns the size the chart was last laid out at.
func (c *Controller) Size() Size {
	return c.size
}

// Follow reports whether the focus window tracks new samples.
func (c *Controller) Follow() bool {
	return c.follow
}

// SetFollow controls whether a focus window ending at the newest sample
// slides along as samples arrive.
func (c *Controller) SetFollow(follow bool) {
	c.follow = follow
}

// Init sizes the chart from its container and flushes any deferred redraw.
func (c *Controller) Init() error {
	if c.container == nil {
		c.pending = true
		return ErrUninitializedRender
	}
	size := c.container.Size()
	if !size.valid() {
		c.pending = true
		return ErrUninitializedRender
	}
	c.sized = true
	c.applySize(size)
	return c.redraw(ScopeFull)
}

// Resize re-reads the container size. An unchanged size does nothing. Any
// other change, including a height-only one, redraws the whole chart. The
// visible time window is kept and only pixel ranges change.
func (c *Controller) Resize() error {
	if !c.sized {
		return c.Init()
	}
	size := c.container.Size()
	if size == c.size {
		return nil
	}
	if !size.valid() {
		c.logger.Debug("ignoring resize to empty container", "size", size)
		return nil
	}
	c.applySize(size)
	return c.redraw(ScopeFull)
}

// Redraw rebuilds the whole scene, re-evaluating cursor recency against the
// clock.
func (c *Controller) Redraw() error {
	return c.redraw(ScopeFull)
}

// UpdateData replaces the series and selects the last DefaultWindow of it.
// Empty input is ignored.
func (c *Controller) UpdateData(samples []backend.Sample) error {
	if err := c.series.Replace(samples); err != nil {
		if errors.Is(err, backend.ErrEmptyInputIgnored) {
			c.logger.Debug("ignoring empty data update")
			return nil
		}
		return c.reject(err)
	}
	c.recomputeDomains()
	c.resetWindow()
	c.logger.Debug("data replaced", "samples", c.series.Len())
	return c.deferred(c.redraw(ScopeFull))
}

// AddEntry merges one live sample and redraws. Invalid samples are rejected
// and leave the series unchanged.
func (c *Controller) AddEntry(sample backend.Sample) error {
	following := c.atLiveEdge()
	if err := c.series.Append(sample); err != nil {
		return c.reject(err)
	}
	c.afterAppend(following)
	return c.deferred(c.redraw(ScopeFull))
}

// AddEntries merges several live samples with a single redraw. Invalid
// samples are rejected individually and their errors joined.
func (c *Controller) AddEntries(samples []backend.Sample) error {
	if len(samples) == 0 {
		return nil
	}
	following := c.atLiveEdge()
	var errs []error
	added := 0
	for _, s := range samples {
		if err := c.series.Append(s); err != nil {
			errs = append(errs, c.reject(err))
			continue
		}
		added++
	}
	if added > 0 {
		c.afterAppend(following)
		errs = append(errs, c.deferred(c.redraw(ScopeFull)))
	}
	return errors.Join(errs...)
}

func (c *Controller) reject(err error) error {
	c.logger.Warn("rejected sample", "err", err)
	c.bus.Publish(Event{Kind: EventRejected, Err: err})
	return err
}

func (c *Controller) deferred(err error) error {
	if errors.Is(err, ErrUninitializedRender) {
		c.logger.Debug("redraw deferred until the chart is sized")
		return nil
	}
	return err
}

// atLiveEdge reports whether the focus window should slide with the next
// sample.
func (c *Controller) atLiveEdge() bool {
	if !c.follow || c.state != StateIdle {
		return false
	}
	last, ok := c.series.Last()
	if !ok {
		return true
	}
	return !c.focusX.End.Before(last.Time)
}

func (c *Controller) afterAppend(following bool) {
	start, end := c.focusX.Start, c.focusX.End
	c.recomputeDomains()
	switch {
	case c.series.Len() == 1:
		c.resetWindow()
	case following:
		last, _ := c.series.Last()
		c.setFocus(last.Time.Add(-c.windowSpan), last.Time)
	default:
		c.setFocus(start, end)
	}
}

// resetWindow selects the last defaultWindow of the series.
func (c *Controller) resetWindow() {
	c.windowSpan = c.defaultWindow
	end := c.contextX.End
	if last, ok := c.series.Last(); ok {
		end = last.Time
	}
	c.setFocus(end.Add(-c.defaultWindow), end)
}

// setFocus sets the focus domain, shifted to lie within the context domain.
func (c *Controller) setFocus(start, end time.Time) {
	cs, ce := c.contextX.Start, c.contextX.End
	span := end.Sub(start)
	switch {
	case span >= ce.Sub(cs):
		start, end = cs, ce
	case start.Before(cs):
		start, end = cs, cs.Add(span)
	case end.After(ce):
		start, end = ce.Add(-span), ce
	}
	c.focusX = c.focusX.WithDomain(start, end)
}

// recomputeDomains derives the context time domain and both value domains
// from the series.
func (c *Controller) recomputeDomains() {
	start, end, ok := c.series.TimeExtent()
	if !ok {
		now := c.now()
		start, end = now.Add(-c.defaultWindow), now
	}
	c.contextX = c.contextX.WithDomain(start, end)
	lo, hi, ok := c.series.ValueExtent()
	d0, d1 := ValueDomain(c.thresholds.AlarmLow, c.thresholds.AlarmHigh, lo, hi, ok)
	c.focusY = LinearScale{D0: d0, D1: d1, R0: c.size.FocusHeight, R1: 0}
	c.contextY = LinearScale{D0: d0, D1: d1, R0: c.size.ContextHeight, R1: 0}
}

func (c *Controller) applySize(size Size) {
	c.size = size
	c.contextX = c.contextX.WithRange(0, size.Width)
	c.focusX = c.focusX.WithRange(0, size.Width)
	c.focusY.R0 = size.FocusHeight
	c.contextY.R0 = size.ContextHeight
}

// syncControls derives the brush selection and zoom transform from the focus
// domain without invoking either handler.
func (c *Controller) syncControls() {
	x0, x1 := c.contextX.Map(c.focusX.Start), c.contextX.Map(c.focusX.End)
	t := SelectionTransform(x0, x1, c.size.Width)
	if c.brush != [2]float64{x0, x1} {
		c.brush = [2]float64{x0, x1}
		c.bus.Publish(Event{Kind: EventBrushMove, Origin: OriginProgram, Selection: c.brush})
	}
	if t != c.transform {
		c.transform = t
		c.bus.Publish(Event{Kind: EventZoomTransform, Origin: OriginProgram, Transform: t})
	}
}

func (c *Controller) setState(s InteractionState) {
	if c.state == s {
		return
	}
	c.state = s
	c.bus.Publish(Event{Kind: EventStateChange, State: s})
}

// redraw rebuilds the groups covered by scope and hands the differences to
// the renderer.
func (c *Controller) redraw(scope Scope) error {
	if !c.sized {
		c.pending = true
		return ErrUninitializedRender
	}
	var groups []Group
	switch scope {
	case ScopeFull:
		c.pending = false
		c.recomputeDomains()
		c.setFocus(c.focusX.Start, c.focusX.End)
		c.syncControls()
		groups = []Group{GroupFocus, GroupContext, GroupBrush, GroupCursor}
	case ScopeFocus:
		groups = []Group{GroupFocus, GroupCursor}
	case ScopeBrush:
		groups = []Group{GroupBrush}
	case ScopeCursor:
		groups = []Group{GroupCursor}
	}
	if scope != ScopeCursor && c.state != StateDragDriven {
		c.dragSample = nil
	}
	var patches []Patch
	for _, g := range groups {
		next := c.build(g)
		patches = append(patches, Diff(c.scene[g], next)...)
		c.scene[g] = next
	}
	c.renderer.Apply(patches)
	c.metrics.ObserveRedraw(scope.String())
	c.bus.Publish(Event{Kind: EventRedraw, Scope: scope})
	return nil
}

func (c *Controller) build(g Group) map[NodeID]Node {
	nodes := make(map[NodeID]Node)
	add := func(n Node) {
		nodes[n.ID] = n
	}
	switch g {
	case GroupFocus:
		c.buildView(add, g, c.focusX, c.focusY, c.size.FocusHeight, true)
	case GroupContext:
		c.buildView(add, g, c.contextX, c.contextY, c.size.ContextHeight, false)
	case GroupBrush:
		add(Node{
			ID:   NodeID{Group: g, Kind: KindBrush},
			Role: RoleBrush,
			Rect: Rect{Min: Point{X: c.brush[0]}, Max: Point{X: c.brush[1], Y: c.size.ContextHeight}},
		})
	case GroupCursor:
		c.buildCursor(add)
	}
	return nodes
}

// buildView lays out one plot. The focus view carries the value grid, the
// target band and all four threshold lines and only marks visible samples.
// The context view shows the target lines and every sample.
func (c *Controller) buildView(add func(Node), g Group, xs TimeScale, ys LinearScale, height float64, focus bool) {
	width := c.size.Width
	if focus {
		for _, t := range valueTicks(ys, c.thresholds.Units) {
			y := ys.Map(t.Value)
			add(Node{
				ID:      NodeID{Group: g, Kind: KindValueTick, Key: int64(t.Value)},
				Role:    RoleGrid,
				Points:  []Point{{X: 0, Y: y}, {X: width, Y: y}},
				Width:   1,
				Label:   t.Label,
				LabelAt: Point{X: 0, Y: y},
			})
		}
	}
	for _, t := range TimeTicks(xs.Start, xs.End, c.loc) {
		x := xs.Map(t.Time)
		add(Node{
			ID:      NodeID{Group: g, Kind: KindTimeTick, Key: t.Time.UnixMilli()},
			Role:    RoleGrid,
			Points:  []Point{{X: x, Y: 0}, {X: x, Y: height}},
			Width:   1,
			Label:   t.Label,
			LabelAt: Point{X: x, Y: height},
		})
	}

	threshold := func(key int64, role Role, v float64) {
		y := ys.Map(v)
		add(Node{
			ID:     NodeID{Group: g, Kind: KindThreshold, Key: key},
			Role:   role,
			Points: []Point{{X: 0, Y: y}, {X: width, Y: y}},
			Width:  1,
			Dashed: true,
		})
	}
	if focus {
		top, bottom := ys.Map(c.thresholds.TargetTop), ys.Map(c.thresholds.TargetBottom)
		add(Node{
			ID:   NodeID{Group: g, Kind: KindBand},
			Role: RoleTargetBand,
			Rect: Rect{Min: Point{X: 0, Y: min(top, bottom)}, Max: Point{X: width, Y: max(top, bottom)}},
		})
		threshold(0, RoleThresholdHigh, c.thresholds.AlarmHigh)
		threshold(3, RoleThresholdLow, c.thresholds.AlarmLow)
	}
	threshold(1, RoleThresholdTarget, c.thresholds.TargetTop)
	threshold(2, RoleThresholdTarget, c.thresholds.TargetBottom)

	samples := c.series.Samples()
	if len(samples) == 0 {
		return
	}
	lo, hi := 0, len(samples)
	if focus {
		lo, hi = visibleRange(samples, xs.Start, xs.End)
	}
	// The line runs one sample past each edge so it reaches the plot border.
	pathLo, pathHi := max(lo-1, 0), min(hi+1, len(samples))
	if pathHi-pathLo > 1 {
		path := make([]Point, 0, pathHi-pathLo)
		for _, s := range samples[pathLo:pathHi] {
			path = append(path, Point{X: xs.Map(s.Time), Y: ys.Map(s.Value)})
		}
		stroke := float64(ContextLineWidth)
		if focus {
			stroke = FocusLineWidth
		}
		add(Node{ID: NodeID{Group: g, Kind: KindPath}, Role: RoleLine, Points: path, Width: stroke})
	}

	radius := float64(ContextPointRadius)
	if focus {
		radius = FocusPointRadius
	}
	var prev int64
	seq := 0
	for i, s := range samples[lo:hi] {
		key := s.Time.UnixMilli()
		if i > 0 && key == prev {
			seq++
		} else {
			seq = 0
		}
		prev = key
		add(Node{
			ID:     NodeID{Group: g, Kind: KindPoint, Key: key, Seq: seq},
			Role:   c.severityRole(s.Value),
			Center: Point{X: xs.Map(s.Time), Y: ys.Map(s.Value)},
			Radius: radius,
		})
	}
}

// visibleRange returns the index range of samples inside [start, end].
func visibleRange(samples []backend.Sample, start, end time.Time) (lo, hi int) {
	lo = sort.Search(len(samples), func(i int) bool {
		return !samples[i].Time.Before(start)
	})
	hi = sort.Search(len(samples), func(i int) bool {
		return samples[i].Time.After(end)
	})
	return lo, max(lo, hi)
}

func (c *Controller) severityRole(v float64) Role {
	switch c.thresholds.Classify(v) {
	case backend.SeverityUrgent:
		return RoleUrgent
	case backend.SeverityWarning:
		return RoleWarning
	default:
		return RoleInRange
	}
}

// buildCursor positions the now-cursor at the newest sample, or at the
// dragged sample while a drag override is active.
func (c *Controller) buildCursor(add func(Node)) {
	last, ok := c.series.Last()
	if !ok {
		c.cursor = Cursor{}
		return
	}
	state := CursorStale
	if c.now().Sub(last.Time) < c.staleAfter {
		state = CursorCurrent
	}
	role := RoleCursorStale
	if state == CursorCurrent {
		role = RoleCursorCurrent
	}
	sample := last
	if c.dragSample != nil {
		sample = *c.dragSample
	}
	x := c.focusX.Map(sample.Time)
	h := c.size.FocusHeight
	c.cursor = Cursor{Sample: sample, State: state, X: x, Dragged: c.dragSample != nil}

	add(Node{
		ID:     NodeID{Group: GroupCursor, Kind: KindCursorLine},
		Role:   role,
		Points: []Point{{X: x, Y: 0}, {X: x, Y: h}},
		Width:  2,
	})
	add(Node{
		ID:      NodeID{Group: GroupCursor, Kind: KindCursorLabel},
		Role:    role,
		Label:   sample.Time.In(c.loc).Format("15:04"),
		LabelAt: Point{X: x, Y: 0},
	})
	add(Node{
		ID:     NodeID{Group: GroupCursor, Kind: KindCursorHandle},
		Role:   role,
		Center: Point{X: x, Y: h},
		Radius: CursorHandleRadius,
	})
}

// visibleSample returns the newest sample inside the focus window.
func (c *Controller) visibleSample() (backend.Sample, bool) {
	visible := c.series.Between(c.focusX.Start, c.focusX.End)
	if len(visible) == 0 {
		return backend.Sample{}, false
	}
	return visible[len(visible)-1], true
}

func (c *Controller) notifyVisible() {
	s, ok := c.visibleSample()
	if !ok {
		return
	}
	c.bus.Publish(Event{Kind: EventVisibleRange, Sample: s})
	if c.OnVisibleRangeUpdate != nil {
		c.OnVisibleRangeUpdate(s)
	}
}
