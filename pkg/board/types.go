package board

// Point is a position in canvas space.
type Point struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
}

// Anchor is one of the four fixed attachment sides of a shape.
type Anchor string

const (
	AnchorTop    Anchor = "top"
	AnchorRight  Anchor = "right"
	AnchorBottom Anchor = "bottom"
	AnchorLeft   Anchor = "left"
)

// Anchors lists all anchors in hit-test order.
var Anchors = []Anchor{AnchorTop, AnchorRight, AnchorBottom, AnchorLeft}

// ShapeKind is the closed set of drawable shape variants.
type ShapeKind string

const (
	KindRectangle ShapeKind = "rectangle"
	KindCircle    ShapeKind = "circle"
	KindTriangle  ShapeKind = "triangle"
	KindText      ShapeKind = "text"
)

// ArrowStyle controls connector arrowheads.
type ArrowStyle string

const (
	ArrowNone  ArrowStyle = "none"
	ArrowEnd   ArrowStyle = "end"
	ArrowStart ArrowStyle = "start"
	ArrowBoth  ArrowStyle = "both"
)

// Shape is one whiteboard object. Instances are treated as immutable once
// inside the canvas state; mutation happens by whole-object replacement.
type Shape struct {
	ID        string    `msgpack:"id"`
	SessionID string    `msgpack:"session_id"`
	Kind      ShapeKind `msgpack:"kind"`
	X         float64   `msgpack:"x"`
	Y         float64   `msgpack:"y"`
	Width     float64   `msgpack:"width"`
	Height    float64   `msgpack:"height"`
	Rotation  float64   `msgpack:"rotation"`
	Color     string    `msgpack:"color"`
	Text      string    `msgpack:"text,omitempty"`
}

// Clone returns an independent copy.
func (s *Shape) Clone() *Shape {
	c := *s
	return &c
}

// Center returns the geometric center of the shape's bounds.
func (s *Shape) Center() Point {
	return Point{X: s.X + s.Width/2, Y: s.Y + s.Height/2}
}

// AnchorPoint returns the canvas position of a connector anchor: the
// midpoint of the named side of the shape's bounds.
func (s *Shape) AnchorPoint(a Anchor) Point {
	switch a {
	case AnchorTop:
		return Point{X: s.X + s.Width/2, Y: s.Y}
	case AnchorRight:
		return Point{X: s.X + s.Width, Y: s.Y + s.Height/2}
	case AnchorBottom:
		return Point{X: s.X + s.Width/2, Y: s.Y + s.Height}
	case AnchorLeft:
		return Point{X: s.X, Y: s.Y + s.Height/2}
	default:
		return s.Center()
	}
}

// Contains reports whether p falls inside the shape's bounds.
func (s *Shape) Contains(p Point) bool {
	return p.X >= s.X && p.X <= s.X+s.Width && p.Y >= s.Y && p.Y <= s.Y+s.Height
}

// Waypoint is a persisted intermediate control point on a connector path.
type Waypoint struct {
	Index int     `msgpack:"index"`
	X     float64 `msgpack:"x"`
	Y     float64 `msgpack:"y"`
}

// Connector links two shapes by their anchors, optionally through waypoints.
type Connector struct {
	ID          string     `msgpack:"id"`
	SessionID   string     `msgpack:"session_id"`
	FromShapeID string     `msgpack:"from_shape_id"`
	ToShapeID   string     `msgpack:"to_shape_id"`
	FromAnchor  Anchor     `msgpack:"from_anchor"`
	ToAnchor    Anchor     `msgpack:"to_anchor"`
	Arrow       ArrowStyle `msgpack:"arrow"`
	Color       string     `msgpack:"color"`
	Waypoints   []Waypoint `msgpack:"waypoints,omitempty"`
}

// Clone returns an independent copy, including the waypoint slice.
func (c *Connector) Clone() *Connector {
	cc := *c
	if len(c.Waypoints) > 0 {
		cc.Waypoints = make([]Waypoint, len(c.Waypoints))
		copy(cc.Waypoints, c.Waypoints)
	}
	return &cc
}

// Touches reports whether the connector has shapeID as either endpoint.
func (c *Connector) Touches(shapeID string) bool {
	return c.FromShapeID == shapeID || c.ToShapeID == shapeID
}
