package chart

import (
	"math"
)

// Deferred reports whether a redraw is waiting for the container to be
// sized.
func (c *Controller) Deferred() bool {
	return c.pending
}

// BrushTo handles a brush gesture selecting [x0, x1] of the context view.
func (c *Controller) BrushTo(x0, x1 float64) bool {
	return c.HandleBrush(x0, x1, OriginUser)
}

// HandleBrush is the brush handler. It ignores changes made to follow the
// zoom, then refuses to run while another interaction is active. Otherwise
// it moves the focus window to the selection, redraws the focus view and
// updates the zoom transform to match. It reports whether the event was
// handled.
func (c *Controller) HandleBrush(x0, x1 float64, origin Origin) bool {
	if origin == OriginZoom {
		return false
	}
	if c.state != StateIdle {
		return false
	}
	if !c.sized || c.series.Len() == 0 {
		return false
	}
	w := c.size.Width
	x0, x1 = clamp(x0, 0, w), clamp(x1, 0, w)
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if x1-x0 < 1 || math.IsNaN(x0) || math.IsNaN(x1) {
		return false
	}

	c.setState(StateBrushDriven)
	defer c.setState(StateIdle)

	c.setFocus(c.contextX.Invert(x0), c.contextX.Invert(x1))
	c.windowSpan = c.focusX.Span()
	c.moveBrush(c.contextX.Map(c.focusX.Start), c.contextX.Map(c.focusX.End), origin)
	c.logDeferred(c.redraw(ScopeFocus))
	c.notifyVisible()
	c.applyTransform(SelectionTransform(c.brush[0], c.brush[1], w), OriginBrush)
	return true
}

// SetTransform handles a zoom gesture that produced t.
func (c *Controller) SetTransform(t Transform) bool {
	return c.HandleZoom(t, OriginUser)
}

// ZoomAt zooms the focus view by factor around focus coordinate x.
func (c *Controller) ZoomAt(x, factor float64) bool {
	if factor <= 0 || math.IsNaN(factor) {
		return false
	}
	return c.HandleZoom(c.transform.ScaleAround(x, factor), OriginUser)
}

// Pan moves the focus view right by dx pixels, revealing earlier samples.
func (c *Controller) Pan(dx float64) bool {
	return c.HandleZoom(c.transform.Translate(dx), OriginUser)
}

// HandleZoom is the zoom handler, the mirror image of HandleBrush: it
// ignores changes made to follow the brush, refuses to run during another
// interaction, and otherwise rescales the focus window through t and moves
// the brush to match. It reports whether the event was handled.
func (c *Controller) HandleZoom(t Transform, origin Origin) bool {
	if origin == OriginBrush {
		return false
	}
	if c.state != StateIdle {
		return false
	}
	if !c.sized || c.series.Len() == 0 {
		return false
	}
	w := c.size.Width
	t = t.Constrain(w)

	c.setState(StateZoomDriven)
	defer c.setState(StateIdle)

	focus := t.RescaleX(c.contextX)
	c.setFocus(focus.Start, focus.End)
	c.windowSpan = c.focusX.Span()
	x0, x1 := c.contextX.Map(c.focusX.Start), c.contextX.Map(c.focusX.End)
	c.transform = SelectionTransform(x0, x1, w)
	c.bus.Publish(Event{Kind: EventZoomTransform, Origin: origin, Transform: c.transform})
	c.logDeferred(c.redraw(ScopeFocus))
	c.notifyVisible()
	c.moveBrush(x0, x1, OriginZoom)
	return true
}

// applyTransform is the programmatic zoom update made by the brush handler.
// The zoom handler observes it like any other zoom event and discards it.
func (c *Controller) applyTransform(t Transform, origin Origin) {
	c.transform = t
	c.bus.Publish(Event{Kind: EventZoomTransform, Origin: origin, Transform: t})
	c.HandleZoom(t, origin)
}

// moveBrush repositions the brush selection. When the zoom handler moves the
// brush, the brush handler observes the move and discards it.
func (c *Controller) moveBrush(x0, x1 float64, origin Origin) {
	sel := [2]float64{x0, x1}
	if sel == c.brush {
		return
	}
	c.brush = sel
	c.bus.Publish(Event{Kind: EventBrushMove, Origin: origin, Selection: sel})
	c.logDeferred(c.redraw(ScopeBrush))
	if origin == OriginZoom {
		c.HandleBrush(x0, x1, origin)
	}
}

func (c *Controller) logDeferred(err error) {
	if err != nil {
		c.logger.Debug("redraw skipped", "err", err)
	}
}

// CursorHit reports whether focus coordinate (x, y) grabs the cursor. The
// whole cursor column is a handle, widened to the drag knob's radius.
func (c *Controller) CursorHit(x, y float64) bool {
	if c.cursor.State == CursorNone {
		return false
	}
	if y < 0 || y > c.size.FocusHeight+CursorHandleRadius {
		return false
	}
	return math.Abs(x-c.cursor.X) <= CursorHandleRadius
}

// BeginDrag starts dragging the cursor from focus coordinate x. It reports
// false if another interaction is active or there is nothing to drag.
func (c *Controller) BeginDrag(x float64) bool {
	if c.state != StateIdle || !c.sized || c.series.Len() == 0 {
		return false
	}
	c.setState(StateDragDriven)
	c.DragTo(x)
	return true
}

// DragTo moves the cursor to the sample nearest focus coordinate x. Scale
// domains are never changed by a drag.
func (c *Controller) DragTo(x float64) {
	if c.state != StateDragDriven {
		return
	}
	x = clamp(x, 0, c.size.Width)
	s, ok := c.series.Nearest(c.focusX.Invert(x))
	if !ok {
		return
	}
	if c.dragSample != nil && *c.dragSample == s {
		return
	}
	c.dragSample = &s
	c.logDeferred(c.redraw(ScopeCursor))
	c.bus.Publish(Event{Kind: EventDrag, Sample: s})
	if c.OnDragUpdate != nil {
		c.OnDragUpdate(s)
	}
}

// EndDrag finishes a cursor drag. The cursor stays on the dragged sample
// until the next redraw caused by data, a brush or a zoom.
func (c *Controller) EndDrag() {
	if c.state != StateDragDriven {
		return
	}
	c.setState(StateIdle)
}
