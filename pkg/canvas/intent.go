package canvas

import (
	"sort"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/op"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/router"
)

// IntentKind classifies what a pointer-down at a position would start.
type IntentKind string

const (
	IntentConnect         IntentKind = "connect"
	IntentResize          IntentKind = "resize"
	IntentMove            IntentKind = "move"
	IntentDragNode        IntentKind = "drag_node"
	IntentSelectConnector IntentKind = "select_connector"
	IntentPan             IntentKind = "pan"
	IntentMarquee         IntentKind = "marquee"
	IntentCreateShape     IntentKind = "create_shape"
)

// Intent is a semantic edit intent resolved from a canvas position and the
// current state. Callers turn intents into operations.
type Intent struct {
	Kind IntentKind

	ShapeID string
	Anchor  board.Anchor
	Handle  op.Handle

	ConnectorID  string
	NodeIndex    int
	SegmentIndex int

	CreateKind board.ShapeKind
}

// IntentAt resolves, in priority order: connector-anchor hit on the single
// selected shape, resize handle, shape body, connector node/segment, and
// finally the empty-space intent for the active tool.
func (e *Engine) IntentAt(pos board.Point) Intent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.loadedLocked()
	if !ok {
		return Intent{Kind: IntentPan}
	}

	// 1. Connecting starts only from the single selected shape's anchors.
	if sel, ok := st.selectedShape(); ok {
		for _, a := range board.Anchors {
			if within(sel.AnchorPoint(a), pos) {
				return Intent{Kind: IntentConnect, ShapeID: sel.ID, Anchor: a}
			}
		}
	}

	// 2+3. Shapes, topmost first; handles before body.
	for _, id := range st.shapesBackToFront() {
		s := st.Shapes[id]
		for _, h := range op.Handles {
			if within(handlePoint(s, h), pos) {
				return Intent{Kind: IntentResize, ShapeID: id, Handle: h}
			}
		}
		if s.Contains(pos) {
			return Intent{Kind: IntentMove, ShapeID: id}
		}
	}

	// 4. Connector nodes and segments.
	if it, ok := connectorIntent(st, pos); ok {
		return it
	}

	// 5. Empty space: tool decides.
	switch st.Tool {
	case ToolPan:
		return Intent{Kind: IntentPan}
	case ToolRectangle:
		return Intent{Kind: IntentCreateShape, CreateKind: board.KindRectangle}
	case ToolCircle:
		return Intent{Kind: IntentCreateShape, CreateKind: board.KindCircle}
	case ToolTriangle:
		return Intent{Kind: IntentCreateShape, CreateKind: board.KindTriangle}
	case ToolText:
		return Intent{Kind: IntentCreateShape, CreateKind: board.KindText}
	default:
		return Intent{Kind: IntentMarquee}
	}
}

// ConnectorIntentAt resolves only connector node/segment hits; the zero
// intent (ok false semantics via Kind == "") means no connector was hit.
func (e *Engine) ConnectorIntentAt(pos board.Point) (Intent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.loadedLocked()
	if !ok {
		return Intent{}, false
	}
	return connectorIntent(st, pos)
}

func connectorIntent(st *Loaded, pos board.Point) (Intent, bool) {
	ids := make([]string, 0, len(st.Connectors))
	for id := range st.Connectors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		c := st.Connectors[id]
		nodes, ok := router.ConnectorNodes(c, st.Shapes)
		if !ok {
			continue
		}
		handles := router.HandleNodes(nodes)
		if idx, hit := router.HitNode(handles, pos); hit {
			return Intent{Kind: IntentDragNode, ConnectorID: id, NodeIndex: idx}, true
		}
		if seg, hit := router.HitSegment(router.Route(nodes), pos); hit {
			return Intent{Kind: IntentSelectConnector, ConnectorID: id, SegmentIndex: seg}, true
		}
	}
	return Intent{}, false
}

// HitTestConnectorNode tests a single connector's draggable nodes (anchors
// excluded) against a position, in the same index space NodeDrag and
// FinalizeNodeDrag use.
func (e *Engine) HitTestConnectorNode(connectorID string, pos board.Point) (int, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.loadedLocked()
	if !ok {
		return 0, false
	}
	c, ok := st.Connectors[connectorID]
	if !ok {
		return 0, false
	}
	nodes, ok := router.ConnectorNodes(c, st.Shapes)
	if !ok {
		return 0, false
	}
	return router.HitNode(router.HandleNodes(nodes), pos)
}

// MoveBounds returns the clamped bounds a resize drag would produce,
// without constructing the operation. UI callers use it for live preview.
func (e *Engine) MoveBounds(shapeID string, h op.Handle, dx, dy float64) (op.Bounds, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.loadedLocked()
	if !ok {
		return op.Bounds{}, false
	}
	s, ok := st.Shapes[shapeID]
	if !ok {
		return op.Bounds{}, false
	}
	return op.ResizeBounds(op.Bounds{X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}, h, dx, dy), true
}

func within(a, b board.Point) bool {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx+dy*dy <= router.HitRadius*router.HitRadius
}

// handlePoint returns the canvas position of a resize handle.
func handlePoint(s *board.Shape, h op.Handle) board.Point {
	switch h {
	case op.HandleTopLeft:
		return board.Point{X: s.X, Y: s.Y}
	case op.HandleTop:
		return board.Point{X: s.X + s.Width/2, Y: s.Y}
	case op.HandleTopRight:
		return board.Point{X: s.X + s.Width, Y: s.Y}
	case op.HandleRight:
		return board.Point{X: s.X + s.Width, Y: s.Y + s.Height/2}
	case op.HandleBottomRight:
		return board.Point{X: s.X + s.Width, Y: s.Y + s.Height}
	case op.HandleBottom:
		return board.Point{X: s.X + s.Width/2, Y: s.Y + s.Height}
	case op.HandleBottomLeft:
		return board.Point{X: s.X, Y: s.Y + s.Height}
	default:
		return board.Point{X: s.X, Y: s.Y + s.Height/2}
	}
}
