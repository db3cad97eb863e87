package chart

import (
	"git.sr.ht/~whereswaldon/glucoscope/backend"
)

// InteractionState is the gesture currently driving the focus view. Exactly
// one state is active at a time.
type InteractionState uint8

const (
	StateIdle InteractionState = iota
	StateBrushDriven
	StateZoomDriven
	StateDragDriven
)

func (s InteractionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBrushDriven:
		return "brush"
	case StateZoomDriven:
		return "zoom"
	case StateDragDriven:
		return "drag"
	default:
		return "unknown"
	}
}

// Origin records what caused a brush or zoom change.
type Origin uint8

const (
	// OriginUser is a pointer gesture on the control itself.
	OriginUser Origin = iota
	// OriginBrush is a zoom change made to follow the brush.
	OriginBrush
	// OriginZoom is a brush change made to follow the zoom.
	OriginZoom
	// OriginProgram is a change made after new data or a resize.
	OriginProgram
)

func (o Origin) String() string {
	switch o {
	case OriginUser:
		return "user"
	case OriginBrush:
		return "brush"
	case OriginZoom:
		return "zoom"
	case OriginProgram:
		return "program"
	default:
		return "unknown"
	}
}

// Scope is the part of the scene a redraw rebuilds.
type Scope uint8

const (
	// ScopeFull rebuilds every group after data or size changes.
	ScopeFull Scope = iota
	// ScopeFocus rebuilds the focus view and cursor after a brush or zoom.
	ScopeFocus
	// ScopeBrush repositions the brush selection.
	ScopeBrush
	// ScopeCursor repositions the cursor during a drag.
	ScopeCursor
)

func (s Scope) String() string {
	switch s {
	case ScopeFull:
		return "full"
	case ScopeFocus:
		return "focus"
	case ScopeBrush:
		return "brush"
	case ScopeCursor:
		return "cursor"
	default:
		return "unknown"
	}
}

// EventKind is the closed set of controller notifications.
type EventKind uint8

const (
	// EventRedraw reports a redraw and its Scope.
	EventRedraw EventKind = iota
	// EventZoomTransform reports a new Transform and its Origin.
	EventZoomTransform
	// EventBrushMove reports a new brush Selection and its Origin.
	EventBrushMove
	// EventStateChange reports a new interaction State.
	EventStateChange
	// EventVisibleRange carries the newest Sample in the focus window.
	EventVisibleRange
	// EventDrag carries the Sample the cursor snapped to.
	EventDrag
	// EventRejected carries the Err of a rejected input.
	EventRejected
	eventKindCount
)

func (k EventKind) String() string {
	switch k {
	case EventRedraw:
		return "redraw"
	case EventZoomTransform:
		return "zoom-transform"
	case EventBrushMove:
		return "brush-move"
	case EventStateChange:
		return "state-change"
	case EventVisibleRange:
		return "visible-range"
	case EventDrag:
		return "drag"
	case EventRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Event is a controller notification. Which fields are set depends on Kind.
type Event struct {
	Kind      EventKind
	Scope     Scope
	Origin    Origin
	State     InteractionState
	Transform Transform
	Selection [2]float64
	Sample    backend.Sample
	Err       error
}

// Bus dispatches events to observers registered per kind.
type Bus struct {
	emitters [eventKindCount]backend.Emitter[Event]
}

// Subscribe registers fn for events of kind k and returns a function
// removing it.
func (b *Bus) Subscribe(k EventKind, fn func(Event)) (off func()) {
	if k >= eventKindCount {
		return func() {}
	}
	return b.emitters[k].On(fn)
}

// Publish delivers ev to the observers of its kind.
func (b *Bus) Publish(ev Event) {
	if ev.Kind >= eventKindCount {
		return
	}
	b.emitters[ev.Kind].Emit(ev)
}
