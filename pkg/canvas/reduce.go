package canvas

import (
	"fmt"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/op"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/router"
)

// reduceResult is what a reducer hands back: replacement collections (nil
// means unchanged), derived-geometry work, and scheduling payloads.
type reduceResult struct {
	applied bool

	shapes     map[string]*board.Shape
	connectors map[string]*board.Connector
	orderAdd   string
	orderDrop  string

	// geometryChanged lists shape ids whose position or size changed;
	// their connectors are re-routed before commit finishes.
	geometryChanged []string
	routeDrop       []string
	previewRoutes   map[string][]board.Point

	connecting      *ConnectingMode
	clearConnecting bool

	snapshot Snapshot
	cascade  []*board.Connector
}

// commit builds the successor model from st. st itself is never written:
// a snapshot handed out earlier stays internally consistent no matter how
// many operations apply after it.
func (r *reduceResult) commit(st *Loaded) *Loaded {
	next := *st
	if r.shapes != nil {
		next.Shapes = r.shapes
	}
	if r.connectors != nil {
		next.Connectors = r.connectors
	}
	if r.orderAdd != "" {
		order := make([]string, 0, len(st.Order)+1)
		order = append(order, st.Order...)
		next.Order = append(order, r.orderAdd)
	}
	if r.orderDrop != "" {
		order := make([]string, 0, len(st.Order))
		for _, id := range st.Order {
			if id != r.orderDrop {
				order = append(order, id)
			}
		}
		next.Order = order
	}
	next.Routes = cloneRoutes(st.Routes)
	for _, id := range r.routeDrop {
		delete(next.Routes, id)
		if next.SelectedConnector == id {
			next.SelectedConnector = ""
		}
	}
	for id, pts := range r.previewRoutes {
		next.Routes[id] = pts
	}
	if r.clearConnecting {
		next.Connecting = nil
	} else if r.connecting != nil {
		next.Connecting = r.connecting
	}
	if r.orderDrop != "" {
		next.Selection = cloneSelection(st.Selection)
		delete(next.Selection, r.orderDrop)
		if next.EditingTextShape == r.orderDrop {
			next.EditingTextShape = ""
		}
	}
	return &next
}

// cloneShapes/cloneConnectors are shallow map copies; entries being
// replaced are cloned individually (copy-on-write).
func cloneShapes(in map[string]*board.Shape) map[string]*board.Shape {
	out := make(map[string]*board.Shape, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneConnectors(in map[string]*board.Connector) map[string]*board.Connector {
	out := make(map[string]*board.Connector, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneRoutes(in map[string][]board.Point) map[string][]board.Point {
	out := make(map[string][]board.Point, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneSelection(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in)+1)
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// reduce dispatches an operation to its reducer. The closed variant set is
// matched exhaustively; an unknown variant is an internal error, not a
// recoverable condition.
func reduce(st *Loaded, o op.Operation) (reduceResult, error) {
	switch v := o.(type) {
	case op.CreateShape:
		return reduceCreateShape(st, v), nil
	case op.MoveShape:
		return reduceMoveShape(st, v), nil
	case op.ResizeShape:
		return reduceResizeShape(st, v), nil
	case op.SetShapeText:
		return reduceSetShapeText(st, v), nil
	case op.DeleteShape:
		return reduceDeleteShape(st, v), nil
	case op.CreateConnector:
		return reduceCreateConnector(st, v), nil
	case op.RerouteConnector:
		return reduceRerouteConnector(st, v), nil
	case op.DeleteConnector:
		return reduceDeleteConnector(st, v), nil
	case op.ConnectPreview:
		return reduceConnectPreview(st, v), nil
	case op.NodeDrag:
		return reduceNodeDrag(st, v), nil
	default:
		return reduceResult{}, fmt.Errorf("%w: %T", op.ErrUnknownKind, o)
	}
}

func reduceCreateShape(st *Loaded, o op.CreateShape) reduceResult {
	if _, exists := st.Shapes[o.Shape.ID]; exists {
		// Same shape created twice under different opIDs: last write wins,
		// replace wholesale but keep z-order.
		shapes := cloneShapes(st.Shapes)
		shapes[o.Shape.ID] = o.Shape.Clone()
		return reduceResult{
			applied:         true,
			shapes:          shapes,
			geometryChanged: []string{o.Shape.ID},
			snapshot:        Snapshot{Shape: shapes[o.Shape.ID]},
		}
	}
	shapes := cloneShapes(st.Shapes)
	s := o.Shape.Clone()
	shapes[s.ID] = s
	return reduceResult{
		applied:  true,
		shapes:   shapes,
		orderAdd: s.ID,
		snapshot: Snapshot{Shape: s},
	}
}

func reduceMoveShape(st *Loaded, o op.MoveShape) reduceResult {
	cur, ok := st.Shapes[o.ShapeID]
	if !ok {
		return reduceResult{}
	}
	s := cur.Clone()
	s.X, s.Y = o.X, o.Y
	shapes := cloneShapes(st.Shapes)
	shapes[s.ID] = s
	return reduceResult{
		applied:         true,
		shapes:          shapes,
		geometryChanged: []string{s.ID},
		snapshot:        Snapshot{Shape: s},
	}
}

func reduceResizeShape(st *Loaded, o op.ResizeShape) reduceResult {
	cur, ok := st.Shapes[o.ShapeID]
	if !ok {
		return reduceResult{}
	}
	s := cur.Clone()
	s.X, s.Y, s.Width, s.Height = o.X, o.Y, o.Width, o.Height
	shapes := cloneShapes(st.Shapes)
	shapes[s.ID] = s
	return reduceResult{
		applied:         true,
		shapes:          shapes,
		geometryChanged: []string{s.ID},
		snapshot:        Snapshot{Shape: s},
	}
}

func reduceSetShapeText(st *Loaded, o op.SetShapeText) reduceResult {
	cur, ok := st.Shapes[o.ShapeID]
	if !ok {
		return reduceResult{}
	}
	s := cur.Clone()
	s.Text = o.Text
	shapes := cloneShapes(st.Shapes)
	shapes[s.ID] = s
	return reduceResult{
		applied:  true,
		shapes:   shapes,
		snapshot: Snapshot{Shape: s},
	}
}

func reduceDeleteShape(st *Loaded, o op.DeleteShape) reduceResult {
	if _, ok := st.Shapes[o.ShapeID]; !ok {
		return reduceResult{}
	}
	shapes := cloneShapes(st.Shapes)
	delete(shapes, o.ShapeID)

	// Cascade: every connector referencing the shape goes with it.
	var connectors map[string]*board.Connector
	var cascade []*board.Connector
	var routeDrop []string
	for id, c := range st.Connectors {
		if !c.Touches(o.ShapeID) {
			continue
		}
		if connectors == nil {
			connectors = cloneConnectors(st.Connectors)
		}
		delete(connectors, id)
		cascade = append(cascade, c)
		routeDrop = append(routeDrop, id)
	}
	return reduceResult{
		applied:    true,
		shapes:     shapes,
		connectors: connectors,
		orderDrop:  o.ShapeID,
		routeDrop:  routeDrop,
		cascade:    cascade,
	}
}

func reduceCreateConnector(st *Loaded, o op.CreateConnector) reduceResult {
	// 两端图形必须存在；否则连接线不进入内存。
	if _, ok := st.Shapes[o.Connector.FromShapeID]; !ok {
		return reduceResult{}
	}
	if _, ok := st.Shapes[o.Connector.ToShapeID]; !ok {
		return reduceResult{}
	}
	c := o.Connector.Clone()
	connectors := cloneConnectors(st.Connectors)
	connectors[c.ID] = c

	res := reduceResult{
		applied:         true,
		connectors:      connectors,
		clearConnecting: true,
		snapshot:        Snapshot{Connector: c},
	}
	if nodes, ok := router.ConnectorNodes(c, st.Shapes); ok {
		res.previewRoutes = map[string][]board.Point{c.ID: router.Route(nodes)}
	}
	return res
}

func reduceRerouteConnector(st *Loaded, o op.RerouteConnector) reduceResult {
	cur, ok := st.Connectors[o.ConnectorID]
	if !ok {
		return reduceResult{}
	}
	c := cur.Clone()
	c.Waypoints = make([]board.Waypoint, len(o.Waypoints))
	copy(c.Waypoints, o.Waypoints)
	connectors := cloneConnectors(st.Connectors)
	connectors[c.ID] = c

	res := reduceResult{
		applied:    true,
		connectors: connectors,
		snapshot:   Snapshot{Connector: c},
	}
	if nodes, ok := router.ConnectorNodes(c, st.Shapes); ok {
		res.previewRoutes = map[string][]board.Point{c.ID: router.Route(nodes)}
	}
	return res
}

func reduceDeleteConnector(st *Loaded, o op.DeleteConnector) reduceResult {
	if _, ok := st.Connectors[o.ConnectorID]; !ok {
		return reduceResult{}
	}
	connectors := cloneConnectors(st.Connectors)
	delete(connectors, o.ConnectorID)
	return reduceResult{
		applied:    true,
		connectors: connectors,
		routeDrop:  []string{o.ConnectorID},
	}
}

func reduceConnectPreview(st *Loaded, o op.ConnectPreview) reduceResult {
	if _, ok := st.Shapes[o.ShapeID]; !ok {
		return reduceResult{}
	}
	return reduceResult{
		applied: true,
		connecting: &ConnectingMode{
			FromShapeID: o.ShapeID,
			FromAnchor:  o.Anchor,
			Cursor:      o.Cursor,
		},
	}
}

// reduceNodeDrag updates only the derived route for the dragged connector;
// the persisted waypoints stay untouched until the finalizing reroute.
func reduceNodeDrag(st *Loaded, o op.NodeDrag) reduceResult {
	c, ok := st.Connectors[o.ConnectorID]
	if !ok {
		return reduceResult{}
	}
	nodes, ok := router.ConnectorNodes(c, st.Shapes)
	if !ok {
		return reduceResult{}
	}
	moved, err := router.MovedWaypoint(router.HandleNodes(nodes), o.NodeIndex, o.Position)
	if err != nil {
		return reduceResult{}
	}
	return reduceResult{
		applied:       true,
		previewRoutes: map[string][]board.Point{o.ConnectorID: router.Route(moved)},
	}
}
