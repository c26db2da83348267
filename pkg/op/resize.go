package op

import "github.com/lucasbiancogs/framing-session-sub000/pkg/board"

// MinShapeSize is the smallest width/height a resize may produce.
const MinShapeSize = 20

// Handle identifies which resize handle is being dragged.
type Handle string

const (
	HandleTopLeft     Handle = "top_left"
	HandleTop         Handle = "top"
	HandleTopRight    Handle = "top_right"
	HandleRight       Handle = "right"
	HandleBottomRight Handle = "bottom_right"
	HandleBottom      Handle = "bottom"
	HandleBottomLeft  Handle = "bottom_left"
	HandleLeft        Handle = "left"
)

// Handles lists all resize handles in hit-test order.
var Handles = []Handle{
	HandleTopLeft, HandleTopRight, HandleBottomRight, HandleBottomLeft,
	HandleTop, HandleRight, HandleBottom, HandleLeft,
}

// movesLeft/movesRight/movesTop/movesBottom classify which edges a handle
// drags.
func (h Handle) movesLeft() bool {
	return h == HandleTopLeft || h == HandleLeft || h == HandleBottomLeft
}

func (h Handle) movesRight() bool {
	return h == HandleTopRight || h == HandleRight || h == HandleBottomRight
}

func (h Handle) movesTop() bool {
	return h == HandleTopLeft || h == HandleTop || h == HandleTopRight
}

func (h Handle) movesBottom() bool {
	return h == HandleBottomLeft || h == HandleBottom || h == HandleBottomRight
}

// Bounds is an axis-aligned rectangle.
type Bounds struct {
	X, Y, Width, Height float64
}

// ResizeBounds applies a cumulative drag delta from handle h to the
// original bounds and clamps the result: the dragged edge never crosses
// the opposite edge, and width/height never drop below MinShapeSize. The
// non-dragged edge stays fixed.
func ResizeBounds(orig Bounds, h Handle, dx, dy float64) Bounds {
	b := orig

	if h.movesLeft() {
		b.X = orig.X + dx
		b.Width = orig.Width - dx
		if b.Width < MinShapeSize {
			b.X = orig.X + orig.Width - MinShapeSize
			b.Width = MinShapeSize
		}
	} else if h.movesRight() {
		b.Width = orig.Width + dx
		if b.Width < MinShapeSize {
			b.Width = MinShapeSize
		}
	}

	if h.movesTop() {
		b.Y = orig.Y + dy
		b.Height = orig.Height - dy
		if b.Height < MinShapeSize {
			b.Y = orig.Y + orig.Height - MinShapeSize
			b.Height = MinShapeSize
		}
	} else if h.movesBottom() {
		b.Height = orig.Height + dy
		if b.Height < MinShapeSize {
			b.Height = MinShapeSize
		}
	}

	return b
}

// NewResizeShape mints a resize operation from a handle drag. The clamp
// happens here, before the operation exists; applying a ResizeShape never
// re-clamps.
func NewResizeShape(sessionID string, s *board.Shape, h Handle, dx, dy float64) ResizeShape {
	b := ResizeBounds(Bounds{X: s.X, Y: s.Y, Width: s.Width, Height: s.Height}, h, dx, dy)
	return ResizeShape{
		Meta:    NewMeta(sessionID),
		ShapeID: s.ID,
		X:       b.X,
		Y:       b.Y,
		Width:   b.Width,
		Height:  b.Height,
	}
}
