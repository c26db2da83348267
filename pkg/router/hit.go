package router

import "github.com/lucasbiancogs/framing-session-sub000/pkg/board"

// HitRadius is how close (canvas units) a query point must be to a node or
// segment to count as a hit.
const HitRadius = 12.0

// HitNode returns the index of the first interior node within HitRadius of
// p. Anchor endpoints (index 0 and last) are not draggable and are never
// returned.
func HitNode(nodes []Node, p board.Point) (int, bool) {
	for i := 1; i < len(nodes)-1; i++ {
		if dist(nodes[i].Pos, p) <= HitRadius {
			return i, true
		}
	}
	return 0, false
}

// HitSegment returns the index of the first path segment whose clamped
// distance to p is within HitRadius. Segment i runs from points[i] to
// points[i+1].
func HitSegment(points []board.Point, p board.Point) (int, bool) {
	for i := 0; i < len(points)-1; i++ {
		if segmentDistance(p, points[i], points[i+1]) <= HitRadius {
			return i, true
		}
	}
	return 0, false
}
