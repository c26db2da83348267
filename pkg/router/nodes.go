// Package router computes connector control-point geometry: building the
// ordered node sequence between two anchored shapes, routing it into draw
// points, simplifying waypoints after a drag, and hit testing nodes and
// segments. Everything here is a pure function over its inputs.
package router

import (
	"errors"
	"sort"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
)

// NodeKind tags a control node variant.
type NodeKind int

const (
	// NodeAnchor is a connector endpoint fixed to a shape side. Anchors
	// are immutable during waypoint edits and never removed.
	NodeAnchor NodeKind = iota
	// NodeWaypoint is a user-placed, persisted control point.
	NodeWaypoint
	// NodeSegmentMid is a transient midpoint handle; dragging it promotes
	// it to a waypoint.
	NodeSegmentMid
)

// Node is one control point in a connector's node sequence.
type Node struct {
	Kind   NodeKind
	Anchor board.Anchor // set only for NodeAnchor
	Pos    board.Point
}

// ErrAnchorImmutable reports an attempt to move or remove an anchor node.
var ErrAnchorImmutable = errors.New("anchor nodes are immutable")

// ErrIndexOutOfRange reports a node index outside the sequence.
var ErrIndexOutOfRange = errors.New("node index out of range")

// InitialNodes builds the control sequence for a connector:
// [source anchor, waypoints in index order, target anchor].
// Both endpoint positions are recomputed by the caller whenever either
// shape moves; waypoints keep their absolute positions.
func InitialNodes(sourcePos, targetPos board.Point, sourceAnchor, targetAnchor board.Anchor, waypoints []board.Waypoint) []Node {
	wps := make([]board.Waypoint, len(waypoints))
	copy(wps, waypoints)
	sort.Slice(wps, func(i, j int) bool { return wps[i].Index < wps[j].Index })

	nodes := make([]Node, 0, len(wps)+2)
	nodes = append(nodes, Node{Kind: NodeAnchor, Anchor: sourceAnchor, Pos: sourcePos})
	for _, wp := range wps {
		nodes = append(nodes, Node{Kind: NodeWaypoint, Pos: board.Point{X: wp.X, Y: wp.Y}})
	}
	nodes = append(nodes, Node{Kind: NodeAnchor, Anchor: targetAnchor, Pos: targetPos})
	return nodes
}

// ConnectorNodes builds the control sequence for c given the current shape
// set. Returns false if either endpoint shape is missing.
func ConnectorNodes(c *board.Connector, shapes map[string]*board.Shape) ([]Node, bool) {
	from, okFrom := shapes[c.FromShapeID]
	to, okTo := shapes[c.ToShapeID]
	if !okFrom || !okTo {
		return nil, false
	}
	return InitialNodes(from.AnchorPoint(c.FromAnchor), to.AnchorPoint(c.ToAnchor), c.FromAnchor, c.ToAnchor, c.Waypoints), true
}

// HandleNodes interleaves a transient segment-mid handle between every pair
// of consecutive control nodes, producing the full draggable sequence.
func HandleNodes(nodes []Node) []Node {
	if len(nodes) < 2 {
		out := make([]Node, len(nodes))
		copy(out, nodes)
		return out
	}
	out := make([]Node, 0, len(nodes)*2-1)
	for i := 0; i < len(nodes)-1; i++ {
		a, b := nodes[i], nodes[i+1]
		out = append(out, a)
		out = append(out, Node{
			Kind: NodeSegmentMid,
			Pos:  board.Point{X: (a.Pos.X + b.Pos.X) / 2, Y: (a.Pos.Y + b.Pos.Y) / 2},
		})
	}
	return append(out, nodes[len(nodes)-1])
}

// Waypoints extracts the persistable waypoint list from a node sequence,
// reindexed from zero. Anchors and untouched segment mids are skipped.
func Waypoints(nodes []Node) []board.Waypoint {
	var wps []board.Waypoint
	for _, n := range nodes {
		if n.Kind != NodeWaypoint {
			continue
		}
		wps = append(wps, board.Waypoint{Index: len(wps), X: n.Pos.X, Y: n.Pos.Y})
	}
	return wps
}
