package op

import (
	"github.com/google/uuid"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
)

// Kind 表示操作的类型。
type Kind string

const (
	KindCreateShape      Kind = "shape.create"
	KindMoveShape        Kind = "shape.move"
	KindResizeShape      Kind = "shape.resize"
	KindSetShapeText     Kind = "shape.text"
	KindDeleteShape      Kind = "shape.delete"
	KindCreateConnector  Kind = "connector.create"
	KindRerouteConnector Kind = "connector.reroute"
	KindDeleteConnector  Kind = "connector.delete"

	// Ephemeral kinds: broadcast but never persisted.
	KindConnectPreview Kind = "preview.connect"
	KindNodeDrag       Kind = "preview.node_drag"
)

// Operation is one immutable, uniquely identified mutation of the canvas
// model. Persistent operations carry absolute final values, not deltas;
// the newest operation for a target is authoritative.
type Operation interface {
	// ID returns the globally unique operation id used for deduplication.
	ID() string
	// Kind returns the operation variant.
	Kind() Kind
	// Target returns the shape or connector id the operation applies to.
	Target() string
	// Ephemeral reports whether the operation is excluded from persistence.
	Ephemeral() bool
}

// Meta carries the fields common to every operation.
type Meta struct {
	OpID      string `msgpack:"op_id"`
	SessionID string `msgpack:"session_id"`
}

// ID returns the operation id.
func (m Meta) ID() string { return m.OpID }

// NewMeta mints a Meta with a fresh UUID.
func NewMeta(sessionID string) Meta {
	return Meta{OpID: uuid.NewString(), SessionID: sessionID}
}

// ---- persistent shape operations ----

// CreateShape adds a whole shape to the session.
type CreateShape struct {
	Meta  `msgpack:"meta"`
	Shape board.Shape `msgpack:"shape"`
}

func (o CreateShape) Kind() Kind { return KindCreateShape }
func (o CreateShape) Target() string { return o.Shape.ID }
func (o CreateShape) Ephemeral() bool { return false }

// MoveShape sets a shape's absolute position.
type MoveShape struct {
	Meta    `msgpack:"meta"`
	ShapeID string  `msgpack:"shape_id"`
	X       float64 `msgpack:"x"`
	Y       float64 `msgpack:"y"`
}

func (o MoveShape) Kind() Kind { return KindMoveShape }
func (o MoveShape) Target() string { return o.ShapeID }
func (o MoveShape) Ephemeral() bool { return false }

// ResizeShape sets a shape's absolute bounds. Bounds are clamped to the
// minimum size at construction (see NewResizeShape), never after apply.
type ResizeShape struct {
	Meta    `msgpack:"meta"`
	ShapeID string  `msgpack:"shape_id"`
	X       float64 `msgpack:"x"`
	Y       float64 `msgpack:"y"`
	Width   float64 `msgpack:"width"`
	Height  float64 `msgpack:"height"`
}

func (o ResizeShape) Kind() Kind { return KindResizeShape }
func (o ResizeShape) Target() string { return o.ShapeID }
func (o ResizeShape) Ephemeral() bool { return false }

// SetShapeText replaces a shape's text.
type SetShapeText struct {
	Meta    `msgpack:"meta"`
	ShapeID string `msgpack:"shape_id"`
	Text    string `msgpack:"text"`
}

func (o SetShapeText) Kind() Kind { return KindSetShapeText }
func (o SetShapeText) Target() string { return o.ShapeID }
func (o SetShapeText) Ephemeral() bool { return false }

// DeleteShape removes a shape. Applying it cascades to every connector
// referencing the shape.
type DeleteShape struct {
	Meta    `msgpack:"meta"`
	ShapeID string `msgpack:"shape_id"`
}

func (o DeleteShape) Kind() Kind { return KindDeleteShape }
func (o DeleteShape) Target() string { return o.ShapeID }
func (o DeleteShape) Ephemeral() bool { return false }

// ---- persistent connector operations ----

// CreateConnector adds a whole connector to the session.
type CreateConnector struct {
	Meta      `msgpack:"meta"`
	Connector board.Connector `msgpack:"connector"`
}

func (o CreateConnector) Kind() Kind { return KindCreateConnector }
func (o CreateConnector) Target() string { return o.Connector.ID }
func (o CreateConnector) Ephemeral() bool { return false }

// RerouteConnector replaces a connector's waypoint list with an absolute
// new list (the finalized result of a node drag).
type RerouteConnector struct {
	Meta        `msgpack:"meta"`
	ConnectorID string           `msgpack:"connector_id"`
	Waypoints   []board.Waypoint `msgpack:"waypoints"`
}

func (o RerouteConnector) Kind() Kind { return KindRerouteConnector }
func (o RerouteConnector) Target() string { return o.ConnectorID }
func (o RerouteConnector) Ephemeral() bool { return false }

// DeleteConnector removes a connector.
type DeleteConnector struct {
	Meta        `msgpack:"meta"`
	ConnectorID string `msgpack:"connector_id"`
}

func (o DeleteConnector) Kind() Kind { return KindDeleteConnector }
func (o DeleteConnector) Target() string { return o.ConnectorID }
func (o DeleteConnector) Ephemeral() bool { return false }

// ---- ephemeral operations ----

// ConnectPreview updates the live connecting-mode preview (source anchor
// plus the current cursor position) on every peer.
type ConnectPreview struct {
	Meta    `msgpack:"meta"`
	ShapeID string       `msgpack:"shape_id"`
	Anchor  board.Anchor `msgpack:"anchor"`
	Cursor  board.Point  `msgpack:"cursor"`
}

func (o ConnectPreview) Kind() Kind { return KindConnectPreview }
func (o ConnectPreview) Target() string { return o.ShapeID }
func (o ConnectPreview) Ephemeral() bool { return true }

// NodeDrag is the in-flight position of a connector control node being
// dragged. Only the finalizing RerouteConnector is ever persisted.
type NodeDrag struct {
	Meta        `msgpack:"meta"`
	ConnectorID string      `msgpack:"connector_id"`
	NodeIndex   int         `msgpack:"node_index"`
	Position    board.Point `msgpack:"position"`
}

func (o NodeDrag) Kind() Kind { return KindNodeDrag }
func (o NodeDrag) Target() string { return o.ConnectorID }
func (o NodeDrag) Ephemeral() bool { return true }

// ---- constructors ----

// NewCreateShape mints a create operation for s.
func NewCreateShape(sessionID string, s board.Shape) CreateShape {
	return CreateShape{Meta: NewMeta(sessionID), Shape: s}
}

// NewMoveShape mints a move operation carrying the absolute position.
func NewMoveShape(sessionID, shapeID string, pos board.Point) MoveShape {
	return MoveShape{Meta: NewMeta(sessionID), ShapeID: shapeID, X: pos.X, Y: pos.Y}
}

// NewSetShapeText mints a text edit operation.
func NewSetShapeText(sessionID, shapeID, text string) SetShapeText {
	return SetShapeText{Meta: NewMeta(sessionID), ShapeID: shapeID, Text: text}
}

// NewDeleteShape mints a shape delete operation.
func NewDeleteShape(sessionID, shapeID string) DeleteShape {
	return DeleteShape{Meta: NewMeta(sessionID), ShapeID: shapeID}
}

// NewCreateConnector mints a create operation for c.
func NewCreateConnector(sessionID string, c board.Connector) CreateConnector {
	return CreateConnector{Meta: NewMeta(sessionID), Connector: c}
}

// NewRerouteConnector mints a reroute operation carrying the full new
// waypoint list.
func NewRerouteConnector(sessionID, connectorID string, waypoints []board.Waypoint) RerouteConnector {
	return RerouteConnector{Meta: NewMeta(sessionID), ConnectorID: connectorID, Waypoints: waypoints}
}

// NewDeleteConnector mints a connector delete operation.
func NewDeleteConnector(sessionID, connectorID string) DeleteConnector {
	return DeleteConnector{Meta: NewMeta(sessionID), ConnectorID: connectorID}
}

// NewConnectPreview mints an ephemeral connecting-preview update.
func NewConnectPreview(sessionID, shapeID string, anchor board.Anchor, cursor board.Point) ConnectPreview {
	return ConnectPreview{Meta: NewMeta(sessionID), ShapeID: shapeID, Anchor: anchor, Cursor: cursor}
}

// NewNodeDrag mints an ephemeral in-flight node drag update.
func NewNodeDrag(sessionID, connectorID string, nodeIndex int, pos board.Point) NodeDrag {
	return NodeDrag{Meta: NewMeta(sessionID), ConnectorID: connectorID, NodeIndex: nodeIndex, Position: pos}
}
