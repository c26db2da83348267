// Demo: two whiteboard engines editing one session over a loopback
// network, each persisting into its own store. The scripted walkthrough
// creates shapes, connects them, moves and resizes, then deletes a shape
// and shows the connector cascade on both peers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/canvas"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/op"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/store"
	boardsync "github.com/lucasbiancogs/framing-session-sub000/pkg/sync"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

type peer struct {
	name   string
	store  *store.KVSessionStore
	engine *canvas.Engine
	coord  *boardsync.Coordinator
}

func newPeer(sessionID, name string, hub *boardsync.Loopback) (*peer, error) {
	st := store.NewSessionStore(store.NewMemoryKV())
	coord, err := boardsync.NewCoordinator(boardsync.Config{
		SessionID: sessionID,
		NodeID:    name,
		Store:     st,
		Network:   hub.Node(name),
	})
	if err != nil {
		return nil, err
	}
	engine := canvas.NewEngine(canvas.Config{
		SessionID: sessionID,
		Loader:    st,
		Scheduler: coord,
	})
	coord.SetSink(engine)
	if err := engine.Load(context.Background()); err != nil {
		return nil, err
	}
	if err := coord.Start(engine); err != nil {
		return nil, err
	}
	return &peer{name: name, store: st, engine: engine, coord: coord}, nil
}

func (p *peer) report() {
	st, ok := p.engine.State().(*canvas.Loaded)
	if !ok {
		fmt.Printf("  %s: state %T\n", p.name, p.engine.State())
		return
	}
	fmt.Printf("  %s: %d shapes, %d connectors\n", p.name, len(st.Shapes), len(st.Connectors))
}

func run() error {
	sessionID := flag.String("session", "demo-session", "会话 ID")
	flag.Parse()

	hub := boardsync.NewLoopback()
	alice, err := newPeer(*sessionID, "alice", hub)
	if err != nil {
		return err
	}
	defer alice.coord.Close()
	bob, err := newPeer(*sessionID, "bob", hub)
	if err != nil {
		return err
	}
	defer bob.coord.Close()

	// Alice draws two rectangles and connects them.
	s1 := board.Shape{ID: "s1", SessionID: *sessionID, Kind: board.KindRectangle, X: 0, Y: 0, Width: 150, Height: 150, Color: "#1a73e8"}
	s2 := board.Shape{ID: "s2", SessionID: *sessionID, Kind: board.KindRectangle, X: 400, Y: 0, Width: 150, Height: 150, Color: "#34a853"}
	apply(alice, op.NewCreateShape(*sessionID, s1))
	apply(alice, op.NewCreateShape(*sessionID, s2))
	apply(alice, op.NewCreateConnector(*sessionID, board.Connector{
		ID: "c1", SessionID: *sessionID,
		FromShapeID: "s1", ToShapeID: "s2",
		FromAnchor: board.AnchorRight, ToAnchor: board.AnchorLeft,
		Arrow: board.ArrowEnd, Color: "#1a73e8",
	}))

	fmt.Println("after create:")
	alice.report()
	bob.report()

	// Bob moves and resizes the first rectangle; the connector re-routes.
	apply(bob, op.NewMoveShape(*sessionID, "s1", board.Point{X: 50, Y: 50}))
	if shape := currentShape(bob.engine, "s1"); shape != nil {
		apply(bob, op.NewResizeShape(*sessionID, shape, op.HandleBottomRight, 20, 20))
	}

	fmt.Println("after move+resize on bob:")
	alice.report()
	bob.report()
	if s := currentShape(alice.engine, "s1"); s != nil {
		fmt.Printf("  s1 on alice: (%.0f,%.0f) %.0fx%.0f\n", s.X, s.Y, s.Width, s.Height)
	}

	// Deleting s1 cascades to the connector everywhere.
	apply(alice, op.NewDeleteShape(*sessionID, "s1"))
	fmt.Println("after delete s1:")
	alice.report()
	bob.report()

	// Let the debounced writes settle before closing.
	time.Sleep(2 * boardsync.DefaultDebounce)
	return nil
}

func apply(p *peer, o op.Operation) {
	if err := p.engine.ApplyOperation(o, true); err != nil {
		fmt.Fprintf(os.Stderr, "%s: apply %s: %v\n", p.name, o.Kind(), err)
	}
}

func currentShape(e *canvas.Engine, id string) *board.Shape {
	st, ok := e.State().(*canvas.Loaded)
	if !ok {
		return nil
	}
	return st.Shapes[id]
}
