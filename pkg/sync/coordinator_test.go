package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/canvas"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/op"
)

const waitTimeout = 2 * time.Second

type writeRec struct {
	op    op.Kind
	id    string
	shape *board.Shape
	conn  *board.Connector
}

// recordingStore reports every write on a channel so tests can wait for
// the asynchronous worker, and optionally fails all writes.
type recordingStore struct {
	mu     stdsync.Mutex
	fail   error
	writes chan writeRec
}

func newRecordingStore() *recordingStore {
	return &recordingStore{writes: make(chan writeRec, 32)}
}

func (s *recordingStore) setFail(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *recordingStore) record(r writeRec) error {
	s.mu.Lock()
	err := s.fail
	s.mu.Unlock()
	s.writes <- r
	return err
}

func (s *recordingStore) SessionShapes(ctx context.Context, sessionID string) ([]*board.Shape, error) {
	return nil, nil
}

func (s *recordingStore) SessionConnectors(ctx context.Context, sessionID string) ([]*board.Connector, error) {
	return nil, nil
}

func (s *recordingStore) CreateShape(ctx context.Context, sh *board.Shape) error {
	return s.record(writeRec{op: op.KindCreateShape, id: sh.ID, shape: sh})
}

func (s *recordingStore) UpdateShape(ctx context.Context, sh *board.Shape) error {
	return s.record(writeRec{op: op.KindMoveShape, id: sh.ID, shape: sh})
}

func (s *recordingStore) DeleteShape(ctx context.Context, sessionID, shapeID string) error {
	return s.record(writeRec{op: op.KindDeleteShape, id: shapeID})
}

func (s *recordingStore) CreateConnector(ctx context.Context, c *board.Connector) error {
	return s.record(writeRec{op: op.KindCreateConnector, id: c.ID, conn: c})
}

func (s *recordingStore) UpdateConnector(ctx context.Context, c *board.Connector) error {
	return s.record(writeRec{op: op.KindRerouteConnector, id: c.ID, conn: c})
}

func (s *recordingStore) DeleteConnector(ctx context.Context, sessionID, connectorID string) error {
	return s.record(writeRec{op: op.KindDeleteConnector, id: connectorID})
}

type recordingSink struct {
	failed    chan error
	recovered chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failed: make(chan error, 32), recovered: make(chan struct{}, 32)}
}

func (s *recordingSink) PersistFailed(err error) { s.failed <- err }
func (s *recordingSink) PersistRecovered()       { s.recovered <- struct{}{} }

func waitWrite(t *testing.T, st *recordingStore) writeRec {
	t.Helper()
	select {
	case r := <-st.writes:
		return r
	case <-time.After(waitTimeout):
		t.Fatal("等待持久化写入超时")
		return writeRec{}
	}
}

func expectNoWrite(t *testing.T, st *recordingStore) {
	t.Helper()
	select {
	case r := <-st.writes:
		t.Fatalf("unexpected write: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func testCoordinator(t *testing.T, st *recordingStore, sink StateSink, clk clockwork.Clock) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(Config{
		SessionID: "sess",
		NodeID:    "node-a",
		Store:     st,
		Sink:      sink,
		Clock:     clk,
	})
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func shapeSnap(id string, x float64) canvas.Snapshot {
	s := board.Shape{ID: id, SessionID: "sess", Kind: board.KindRectangle, X: x, Y: 0, Width: 100, Height: 100}
	return canvas.Snapshot{Shape: &s}
}

func TestSchedule_DebounceCoalesces(t *testing.T) {
	st := newRecordingStore()
	clk := clockwork.NewFakeClock()
	c := testCoordinator(t, st, nil, clk)

	// 防抖窗口内的连续移动只落一次盘
	for i := 1; i <= 5; i++ {
		c.Schedule(op.NewMoveShape("sess", "s1", board.Point{X: float64(i * 10)}), shapeSnap("s1", float64(i*10)))
	}
	expectNoWrite(t, st)

	clk.Advance(DefaultDebounce)
	r := waitWrite(t, st)
	if r.id != "s1" || r.shape == nil || r.shape.X != 50 {
		t.Fatalf("write must carry the state after the last edit: %+v", r)
	}
	expectNoWrite(t, st)
}

func TestSchedule_SeparateTargetsDebounceIndependently(t *testing.T) {
	st := newRecordingStore()
	clk := clockwork.NewFakeClock()
	c := testCoordinator(t, st, nil, clk)

	c.Schedule(op.NewMoveShape("sess", "a", board.Point{X: 1}), shapeSnap("a", 1))
	c.Schedule(op.NewMoveShape("sess", "b", board.Point{X: 2}), shapeSnap("b", 2))
	clk.Advance(DefaultDebounce)

	got := map[string]bool{}
	got[waitWrite(t, st).id] = true
	got[waitWrite(t, st).id] = true
	if !got["a"] || !got["b"] {
		t.Fatalf("expected one write per shape, got %v", got)
	}
}

func TestSchedule_DiscreteWritesImmediately(t *testing.T) {
	st := newRecordingStore()
	c := testCoordinator(t, st, nil, clockwork.NewFakeClock())

	c.Schedule(op.NewCreateShape("sess", board.Shape{ID: "s1", SessionID: "sess"}), shapeSnap("s1", 0))
	if r := waitWrite(t, st); r.op != op.KindCreateShape {
		t.Fatalf("create must persist without waiting for the clock: %+v", r)
	}

	c.Schedule(op.NewDeleteShape("sess", "s1"), canvas.Snapshot{})
	if r := waitWrite(t, st); r.op != op.KindDeleteShape || r.id != "s1" {
		t.Fatalf("delete must persist immediately: %+v", r)
	}
}

func TestSchedule_DeleteCancelsPendingMove(t *testing.T) {
	st := newRecordingStore()
	clk := clockwork.NewFakeClock()
	c := testCoordinator(t, st, nil, clk)

	c.Schedule(op.NewMoveShape("sess", "s1", board.Point{X: 10}), shapeSnap("s1", 10))
	c.Schedule(op.NewDeleteShape("sess", "s1"), canvas.Snapshot{})

	if r := waitWrite(t, st); r.op != op.KindDeleteShape {
		t.Fatalf("expected the delete, got %+v", r)
	}
	// 已删除目标的防抖写入不得复活
	clk.Advance(DefaultDebounce)
	expectNoWrite(t, st)
}

func TestSchedule_EphemeralNeverPersists(t *testing.T) {
	st := newRecordingStore()
	clk := clockwork.NewFakeClock()
	c := testCoordinator(t, st, nil, clk)

	c.Schedule(op.NewNodeDrag("sess", "c1", 1, board.Point{X: 5, Y: 5}), canvas.Snapshot{})
	c.Schedule(op.NewConnectPreview("sess", "s1", board.AnchorRight, board.Point{}), canvas.Snapshot{})
	clk.Advance(DefaultDebounce)
	expectNoWrite(t, st)
}

func TestSchedule_CascadeDelete(t *testing.T) {
	st := newRecordingStore()
	c := testCoordinator(t, st, nil, clockwork.NewFakeClock())

	conn := board.Connector{ID: "c1", SessionID: "sess", FromShapeID: "s1", ToShapeID: "s2"}
	c.ScheduleCascadeDelete(&conn)
	if r := waitWrite(t, st); r.op != op.KindDeleteConnector || r.id != "c1" {
		t.Fatalf("expected connector delete, got %+v", r)
	}
}

func TestPersistFailureAndRecovery(t *testing.T) {
	st := newRecordingStore()
	sink := newRecordingSink()
	c := testCoordinator(t, st, sink, clockwork.NewFakeClock())

	boom := errors.New("disk full")
	st.setFail(boom)
	c.Schedule(op.NewCreateShape("sess", board.Shape{ID: "s1", SessionID: "sess"}), shapeSnap("s1", 0))
	waitWrite(t, st)
	select {
	case err := <-sink.failed:
		if !errors.Is(err, boom) {
			t.Fatalf("sink got wrong error: %v", err)
		}
	case <-time.After(waitTimeout):
		t.Fatal("sink never saw the persistence failure")
	}

	st.setFail(nil)
	c.Schedule(op.NewCreateShape("sess", board.Shape{ID: "s2", SessionID: "sess"}), shapeSnap("s2", 0))
	waitWrite(t, st)
	select {
	case <-sink.recovered:
	case <-time.After(waitTimeout):
		t.Fatal("sink never saw the recovery")
	}
}

func TestClose_FlushesPendingWrites(t *testing.T) {
	st := newRecordingStore()
	clk := clockwork.NewFakeClock()
	c, err := NewCoordinator(Config{SessionID: "sess", Store: st, Clock: clk})
	if err != nil {
		t.Fatal(err)
	}

	c.Schedule(op.NewMoveShape("sess", "s1", board.Point{X: 7}), shapeSnap("s1", 7))
	c.Close() // debounce window still open

	if r := waitWrite(t, st); r.shape == nil || r.shape.X != 7 {
		t.Fatalf("close must flush the pending edit: %+v", r)
	}
}

// stuckStore blocks every write until released and counts completions.
type stuckStore struct {
	entered chan struct{}
	release chan struct{}
	done    chan struct{}
}

func newStuckStore() *stuckStore {
	return &stuckStore{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
		done:    make(chan struct{}, writeQueueSize*2),
	}
}

func (s *stuckStore) write() error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	s.done <- struct{}{}
	return nil
}

func (s *stuckStore) SessionShapes(ctx context.Context, sessionID string) ([]*board.Shape, error) {
	return nil, nil
}

func (s *stuckStore) SessionConnectors(ctx context.Context, sessionID string) ([]*board.Connector, error) {
	return nil, nil
}

func (s *stuckStore) CreateShape(ctx context.Context, sh *board.Shape) error { return s.write() }
func (s *stuckStore) UpdateShape(ctx context.Context, sh *board.Shape) error { return s.write() }
func (s *stuckStore) DeleteShape(ctx context.Context, sid, id string) error { return s.write() }
func (s *stuckStore) CreateConnector(ctx context.Context, c *board.Connector) error { return s.write() }
func (s *stuckStore) UpdateConnector(ctx context.Context, c *board.Connector) error { return s.write() }
func (s *stuckStore) DeleteConnector(ctx context.Context, sid, id string) error { return s.write() }

func TestSchedule_FullQueueDoesNotBlockOtherTargets(t *testing.T) {
	st := newStuckStore()
	clk := clockwork.NewFakeClock()
	c, err := NewCoordinator(Config{SessionID: "sess", Store: st, Clock: clk})
	if err != nil {
		t.Fatal(err)
	}

	// One write in flight and a full queue behind it.
	c.Schedule(op.NewCreateShape("sess", board.Shape{ID: "s0", SessionID: "sess"}), shapeSnap("s0", 0))
	select {
	case <-st.entered:
	case <-time.After(waitTimeout):
		t.Fatal("worker never reached the store")
	}
	for i := 0; i < writeQueueSize; i++ {
		id := fmt.Sprintf("q%d", i)
		c.Schedule(op.NewCreateShape("sess", board.Shape{ID: id, SessionID: "sess"}), shapeSnap(id, 0))
	}

	// One more discrete write blocks on the queue...
	overflowed := make(chan struct{})
	go func() {
		c.Schedule(op.NewCreateShape("sess", board.Shape{ID: "over", SessionID: "sess"}), shapeSnap("over", 0))
		close(overflowed)
	}()

	// ...but a debounced edit on another target must still go through: the
	// caller is never blocked behind a stuck persistence backend.
	scheduled := make(chan struct{})
	go func() {
		c.Schedule(op.NewMoveShape("sess", "other", board.Point{X: 1}), shapeSnap("other", 1))
		close(scheduled)
	}()
	select {
	case <-scheduled:
	case <-time.After(waitTimeout):
		t.Fatal("卡住的持久化后端不应阻塞其他调度")
	}

	// Release the store: the backlog, the overflow write, and teardown all
	// drain normally.
	close(st.release)
	select {
	case <-overflowed:
	case <-time.After(waitTimeout):
		t.Fatal("overflow schedule never completed")
	}
	deadline := time.After(waitTimeout)
	for n := 0; n < writeQueueSize+2; n++ {
		select {
		case <-st.done:
		case <-deadline:
			t.Fatalf("backlog stalled: %d of %d writes completed", n, writeQueueSize+2)
		}
	}
	c.Close()
}

func TestStart_OfflineIsNotAnError(t *testing.T) {
	st := newRecordingStore()
	c := testCoordinator(t, st, nil, clockwork.NewFakeClock())
	if err := c.Start(applyFunc(func(o op.Operation, originLocal bool) error { return nil })); err != nil {
		t.Fatalf("NoNetwork must mean offline, not failure: %v", err)
	}
}

type applyFunc func(o op.Operation, originLocal bool) error

func (f applyFunc) ApplyOperation(o op.Operation, originLocal bool) error { return f(o, originLocal) }

func TestBroadcast_ReachesPeersNotSelf(t *testing.T) {
	hub := NewLoopback()
	st := newRecordingStore()

	var mu stdsync.Mutex
	var aliceGot, bobGot []op.Operation
	collect := func(dst *[]op.Operation) applyFunc {
		return func(o op.Operation, originLocal bool) error {
			if originLocal {
				return errors.New("remote delivery must be originLocal=false")
			}
			mu.Lock()
			*dst = append(*dst, o)
			mu.Unlock()
			return nil
		}
	}

	alice, err := NewCoordinator(Config{SessionID: "sess", NodeID: "alice", Store: st, Network: hub.Node("alice")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(alice.Close)
	bob, err := NewCoordinator(Config{SessionID: "sess", NodeID: "bob", Store: st, Network: hub.Node("bob")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(bob.Close)

	if err := alice.Start(collect(&aliceGot)); err != nil {
		t.Fatal(err)
	}
	if err := bob.Start(collect(&bobGot)); err != nil {
		t.Fatal(err)
	}

	mv := op.NewMoveShape("sess", "s1", board.Point{X: 3, Y: 4})
	alice.Schedule(mv, shapeSnap("s1", 3))

	mu.Lock()
	defer mu.Unlock()
	if len(aliceGot) != 0 {
		t.Fatal("a peer must not receive its own broadcast")
	}
	if len(bobGot) != 1 {
		t.Fatalf("bob should have received one operation, got %d", len(bobGot))
	}
	got, ok := bobGot[0].(op.MoveShape)
	if !ok || got.OpID != mv.OpID || got.X != 3 || got.Y != 4 {
		t.Fatalf("操作应原样到达对端: %+v", bobGot[0])
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	o := op.NewRerouteConnector("sess", "c1", []board.Waypoint{{Index: 0, X: 1, Y: 2}})
	payload, err := packEnvelope("node-a", 42, o)
	if err != nil {
		t.Fatal(err)
	}
	env, got, err := unpackEnvelope(payload)
	if err != nil {
		t.Fatal(err)
	}
	if env.NodeID != "node-a" || env.Timestamp != 42 {
		t.Fatalf("envelope metadata lost: %+v", env)
	}
	rr, ok := got.(op.RerouteConnector)
	if !ok || rr.ConnectorID != "c1" || len(rr.Waypoints) != 1 {
		t.Fatalf("operation lost in transit: %+v", got)
	}

	if _, _, err := unpackEnvelope([]byte{0xc1}); err == nil {
		t.Fatal("garbage payload must not unpack")
	}
}
