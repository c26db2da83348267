// Package canvas holds the authoritative in-memory whiteboard model and
// the state machine that mutates it. All mutation flows through
// Engine.ApplyOperation; everything else only reads.
package canvas

import (
	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
)

// Tool is the active editing tool.
type Tool string

const (
	ToolSelect    Tool = "select"
	ToolPan       Tool = "pan"
	ToolRectangle Tool = "rectangle"
	ToolCircle    Tool = "circle"
	ToolTriangle  Tool = "triangle"
	ToolText      Tool = "text"
)

// Viewport is the pan/zoom transform between screen and canvas space.
type Viewport struct {
	Pan  board.Point
	Zoom float64
}

// ToCanvas converts a screen position into canvas space.
func (v Viewport) ToCanvas(screen board.Point) board.Point {
	zoom := v.Zoom
	if zoom <= 0 {
		zoom = 1
	}
	return board.Point{X: (screen.X - v.Pan.X) / zoom, Y: (screen.Y - v.Pan.Y) / zoom}
}

// ConnectingMode is the live "drawing a connector" preview: the source
// anchor plus the current cursor position.
type ConnectingMode struct {
	FromShapeID string
	FromAnchor  board.Anchor
	Cursor      board.Point
}

// State is the closed canvas state variant set. Exactly one variant is
// live at a time.
type State interface{ canvasState() }

// Loading is the state before the session fetch completes.
type Loading struct{}

func (Loading) canvasState() {}

// ErrorState is a failed session load; retryable, no partial model.
type ErrorState struct {
	Cause error
}

func (ErrorState) canvasState() {}

// Loaded is the live object model plus the transient editing state.
type Loaded struct {
	Shapes     map[string]*board.Shape
	Connectors map[string]*board.Connector
	// Order is the z-order of shape ids, oldest first. Hit testing walks
	// it back to front.
	Order []string
	// Routes is the derived draw-point list per connector, rebuilt
	// whenever an endpoint shape moves. Never persisted.
	Routes map[string][]board.Point

	Selection         map[string]struct{}
	SelectedConnector string
	Viewport          Viewport
	Tool              Tool
	CurrentColor      string
	SnapToGrid        bool
	Connecting        *ConnectingMode
	EditingTextShape  string
}

func (Loaded) canvasState() {}

// PersistError is Loaded plus a surfaced write failure. The full model is
// retained; the next successful persist transitions back to Loaded.
type PersistError struct {
	Loaded
	Cause error
}

func (PersistError) canvasState() {}

func newLoaded(shapes []*board.Shape, connectors []*board.Connector) *Loaded {
	st := &Loaded{
		Shapes:       make(map[string]*board.Shape, len(shapes)),
		Connectors:   make(map[string]*board.Connector, len(connectors)),
		Routes:       make(map[string][]board.Point, len(connectors)),
		Selection:    make(map[string]struct{}),
		Viewport:     Viewport{Zoom: 1},
		Tool:         ToolSelect,
		CurrentColor: "#1a73e8",
	}
	for _, s := range shapes {
		st.Shapes[s.ID] = s
		st.Order = append(st.Order, s.ID)
	}
	for _, c := range connectors {
		// 连接线引用的图形必须存在，否则直接丢弃。
		if _, ok := st.Shapes[c.FromShapeID]; !ok {
			continue
		}
		if _, ok := st.Shapes[c.ToShapeID]; !ok {
			continue
		}
		st.Connectors[c.ID] = c
	}
	return st
}

// selectedShape returns the shape if exactly one shape is selected.
func (st *Loaded) selectedShape() (*board.Shape, bool) {
	if len(st.Selection) != 1 {
		return nil, false
	}
	for id := range st.Selection {
		s, ok := st.Shapes[id]
		return s, ok
	}
	return nil, false
}

// shapesBackToFront yields shape ids topmost first.
func (st *Loaded) shapesBackToFront() []string {
	out := make([]string, 0, len(st.Order))
	for i := len(st.Order) - 1; i >= 0; i-- {
		if _, ok := st.Shapes[st.Order[i]]; ok {
			out = append(out, st.Order[i])
		}
	}
	return out
}
