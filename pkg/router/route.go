package router

import (
	"math"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
)

// Tolerance is the collinearity threshold: an interior point closer than
// this to the line through its neighbors is dropped.
const Tolerance = 5.0

// Strategy turns a control-node sequence into an ordered list of draw
// points. Implementations must be pure.
type Strategy interface {
	Route(nodes []Node) []board.Point
}

// Straight is the baseline strategy: draw points are the node positions
// unchanged.
type Straight struct{}

func (Straight) Route(nodes []Node) []board.Point {
	pts := make([]board.Point, len(nodes))
	for i, n := range nodes {
		pts[i] = n.Pos
	}
	return pts
}

// Route routes with the baseline straight strategy.
func Route(nodes []Node) []board.Point {
	return Straight{}.Route(nodes)
}

// MovedWaypoint replaces the node at index with a waypoint at pos, drops
// the untouched transient mids, and simplifies the sequence: interior
// points collinear (within Tolerance) with their neighbors are removed.
// Index 0 and the last index are anchors and cannot be moved here.
func MovedWaypoint(nodes []Node, index int, pos board.Point) ([]Node, error) {
	if index < 0 || index >= len(nodes) {
		return nil, ErrIndexOutOfRange
	}
	if index == 0 || index == len(nodes)-1 {
		return nil, ErrAnchorImmutable
	}

	out := make([]Node, 0, len(nodes))
	for i, n := range nodes {
		if i == index {
			// The dragged node becomes a real waypoint, whatever it was.
			out = append(out, Node{Kind: NodeWaypoint, Pos: pos})
			continue
		}
		// Untouched segment mids are transient handles, not path points.
		if n.Kind == NodeSegmentMid {
			continue
		}
		out = append(out, n)
	}
	return simplify(out), nil
}

// simplify removes interior nodes that are collinear with their immediate
// neighbors, repeating until stable. Anchors stay.
func simplify(nodes []Node) []Node {
	for {
		removed := false
		for i := 1; i < len(nodes)-1; i++ {
			if nodes[i].Kind == NodeAnchor {
				continue
			}
			if collinear(nodes[i-1].Pos, nodes[i].Pos, nodes[i+1].Pos) {
				nodes = append(nodes[:i], nodes[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			return nodes
		}
	}
}

// collinear reports whether mid lies within Tolerance of the line through
// a and b. Coincident neighbors degenerate to a point; the middle is then
// treated as collinear.
func collinear(a, mid, b board.Point) bool {
	if dist(a, b) < Tolerance {
		return true
	}
	return perpendicularDistance(mid, a, b) < Tolerance
}

func dist(a, b board.Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// perpendicularDistance is the distance from p to the infinite line
// through a and b.
func perpendicularDistance(p, a, b board.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return dist(p, a)
	}
	return math.Abs(dx*(a.Y-p.Y)-dy*(a.X-p.X)) / length
}

// segmentDistance is the distance from p to the segment a-b, clamped to
// the segment's extent.
func segmentDistance(p, a, b board.Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		return dist(p, a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lengthSq
	t = math.Max(0, math.Min(1, t))
	return dist(p, board.Point{X: a.X + t*dx, Y: a.Y + t*dy})
}
