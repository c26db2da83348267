package canvas

import (
	"math"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
)

// GridSize is the snap-to-grid quantum in canvas units.
const GridSize = 10.0

// Local-only transitions. None of these produce operations and none are
// ever broadcast or persisted.

// withLoaded runs f against a copy of the current model and swaps the
// copy in, keeping previously returned snapshots stable. f may reassign
// container fields but must not write into maps shared with the copy's
// source; see SelectShape.
func (e *Engine) withLoaded(f func(st *Loaded)) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur, ok := e.loadedLocked()
	if !ok {
		return false
	}
	next := *cur
	f(&next)
	e.setLoadedLocked(&next)
	return true
}

// SelectShape selects a shape, optionally adding to the current selection.
func (e *Engine) SelectShape(id string, additive bool) {
	e.withLoaded(func(st *Loaded) {
		if _, ok := st.Shapes[id]; !ok {
			return
		}
		if additive {
			st.Selection = cloneSelection(st.Selection)
		} else {
			st.Selection = map[string]struct{}{}
		}
		st.Selection[id] = struct{}{}
		st.SelectedConnector = ""
	})
}

// SelectConnector selects a connector and clears the shape selection.
func (e *Engine) SelectConnector(id string) {
	e.withLoaded(func(st *Loaded) {
		if _, ok := st.Connectors[id]; !ok {
			return
		}
		st.Selection = map[string]struct{}{}
		st.SelectedConnector = id
	})
}

// ClearSelection deselects everything.
func (e *Engine) ClearSelection() {
	e.withLoaded(func(st *Loaded) {
		st.Selection = map[string]struct{}{}
		st.SelectedConnector = ""
	})
}

// SelectWithin replaces the selection with every shape whose bounds
// intersect the marquee rectangle (given by any two opposite corners).
func (e *Engine) SelectWithin(a, b board.Point) {
	e.withLoaded(func(st *Loaded) {
		minX, maxX := math.Min(a.X, b.X), math.Max(a.X, b.X)
		minY, maxY := math.Min(a.Y, b.Y), math.Max(a.Y, b.Y)
		st.Selection = map[string]struct{}{}
		st.SelectedConnector = ""
		for id, s := range st.Shapes {
			if s.X+s.Width < minX || s.X > maxX || s.Y+s.Height < minY || s.Y > maxY {
				continue
			}
			st.Selection[id] = struct{}{}
		}
	})
}

// SetTool switches the active tool.
func (e *Engine) SetTool(t Tool) {
	e.withLoaded(func(st *Loaded) { st.Tool = t })
}

// SetColor sets the color used for newly created objects.
func (e *Engine) SetColor(c string) {
	e.withLoaded(func(st *Loaded) { st.CurrentColor = c })
}

// PanBy shifts the viewport by a screen-space delta.
func (e *Engine) PanBy(d board.Point) {
	e.withLoaded(func(st *Loaded) {
		st.Viewport.Pan.X += d.X
		st.Viewport.Pan.Y += d.Y
	})
}

// SetZoom sets the zoom factor, clamped to a sane range.
func (e *Engine) SetZoom(z float64) {
	e.withLoaded(func(st *Loaded) {
		st.Viewport.Zoom = math.Max(0.1, math.Min(8, z))
	})
}

// ToggleSnapToGrid flips grid snapping.
func (e *Engine) ToggleSnapToGrid() {
	e.withLoaded(func(st *Loaded) { st.SnapToGrid = !st.SnapToGrid })
}

// StartConnecting enters connecting mode from a shape anchor.
func (e *Engine) StartConnecting(shapeID string, anchor board.Anchor) {
	e.withLoaded(func(st *Loaded) {
		s, ok := st.Shapes[shapeID]
		if !ok {
			return
		}
		st.Connecting = &ConnectingMode{
			FromShapeID: shapeID,
			FromAnchor:  anchor,
			Cursor:      s.AnchorPoint(anchor),
		}
	})
}

// CancelConnecting leaves connecting mode without creating a connector.
func (e *Engine) CancelConnecting() {
	e.withLoaded(func(st *Loaded) { st.Connecting = nil })
}

// StartTextEdit begins in-place text editing of a shape.
func (e *Engine) StartTextEdit(shapeID string) {
	e.withLoaded(func(st *Loaded) {
		if _, ok := st.Shapes[shapeID]; ok {
			st.EditingTextShape = shapeID
		}
	})
}

// EndTextEdit leaves text editing. The final text travels as a
// SetShapeText operation, not through this transition.
func (e *Engine) EndTextEdit() {
	e.withLoaded(func(st *Loaded) { st.EditingTextShape = "" })
}

// ToCanvasPosition converts a screen position to canvas space using the
// current viewport.
func (e *Engine) ToCanvasPosition(screen board.Point) board.Point {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.loadedLocked()
	if !ok {
		return screen
	}
	return st.Viewport.ToCanvas(screen)
}

// SnapPosition quantizes p to the grid when snapping is on; otherwise it
// returns p unchanged. Applied when operations are constructed, so peers
// never see the local grid setting.
func (e *Engine) SnapPosition(p board.Point) board.Point {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.loadedLocked()
	if !ok || !st.SnapToGrid {
		return p
	}
	return board.Point{
		X: math.Round(p.X/GridSize) * GridSize,
		Y: math.Round(p.Y/GridSize) * GridSize,
	}
}
