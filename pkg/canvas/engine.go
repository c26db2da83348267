package canvas

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/op"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/router"
)

// ErrNotLoaded reports an operation arriving before the session is loaded
// (or after a failed load).
var ErrNotLoaded = errors.New("canvas is not loaded")

// Loader is the read half of the persistence collaborator.
type Loader interface {
	SessionShapes(ctx context.Context, sessionID string) ([]*board.Shape, error)
	SessionConnectors(ctx context.Context, sessionID string) ([]*board.Connector, error)
}

// Snapshot is the state of an operation's target immediately after the
// operation applied. Deletes carry a nil snapshot.
type Snapshot struct {
	Shape     *board.Shape
	Connector *board.Connector
}

// Scheduler receives locally originated operations for broadcast and
// persistence scheduling. Remote operations never reach it.
type Scheduler interface {
	// Schedule hands over a local operation plus its target snapshot.
	Schedule(o op.Operation, snap Snapshot)
	// ScheduleCascadeDelete persists the deletion of a connector removed
	// by a shape-delete cascade. It is persistence only: remote peers run
	// the same cascade themselves.
	ScheduleCascadeDelete(c *board.Connector)
}

// Config wires an Engine. No ambient singletons: every collaborator is
// injected here.
type Config struct {
	SessionID string
	Loader    Loader
	// Scheduler may be nil for a read-only or offline engine.
	Scheduler Scheduler
}

// Engine is the canvas state machine. ApplyOperation is the single
// mutation entry point; the applied-opID set makes it idempotent.
type Engine struct {
	mu        sync.RWMutex
	sessionID string
	loader    Loader
	sched     Scheduler

	state   State
	applied map[string]struct{}
}

// NewEngine creates an engine in the Loading state.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		sessionID: cfg.SessionID,
		loader:    cfg.Loader,
		sched:     cfg.Scheduler,
		state:     Loading{},
		applied:   make(map[string]struct{}),
	}
}

// SessionID returns the session this engine edits.
func (e *Engine) SessionID() string { return e.sessionID }

// State returns the current state variant. The Loaded payload is a
// snapshot: mutations swap in a fresh model rather than writing the one
// already handed out, so callers may keep reading it without a lock.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Load fetches the session's shapes and connectors and transitions
// Loading → Loaded, or → ErrorState on fetch failure. A connector whose
// endpoint shape is missing from the fetch is dropped, never loaded.
func (e *Engine) Load(ctx context.Context) error {
	shapes, err := e.loader.SessionShapes(ctx, e.sessionID)
	if err != nil {
		return e.failLoad(fmt.Errorf("load shapes: %w", err))
	}
	connectors, err := e.loader.SessionConnectors(ctx, e.sessionID)
	if err != nil {
		return e.failLoad(fmt.Errorf("load connectors: %w", err))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	st := newLoaded(shapes, connectors)
	rebuildRoutes(st, nil)
	e.state = st
	return nil
}

func (e *Engine) failLoad(err error) error {
	e.mu.Lock()
	e.state = ErrorState{Cause: err}
	e.mu.Unlock()
	log.Printf("canvas: session %s load failed: %v", e.sessionID, err)
	return err
}

// Retry re-runs a failed load. Only valid from ErrorState.
func (e *Engine) Retry(ctx context.Context) error {
	e.mu.Lock()
	if _, ok := e.state.(ErrorState); !ok {
		e.mu.Unlock()
		return fmt.Errorf("retry from %T is not a valid transition", e.state)
	}
	e.state = Loading{}
	e.mu.Unlock()
	return e.Load(ctx)
}

// Close drops the in-memory model and the applied-op set. The set lives
// exactly as long as the loaded session; a reload starts empty.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = Loading{}
	e.applied = make(map[string]struct{})
}

// loadedLocked returns the current object model for both Loaded and
// PersistError variants. Callers hold e.mu and must not write through the
// returned pointer; successors install via setLoadedLocked.
func (e *Engine) loadedLocked() (*Loaded, bool) {
	switch s := e.state.(type) {
	case *Loaded:
		return s, true
	case *PersistError:
		return &s.Loaded, true
	default:
		return nil, false
	}
}

// setLoadedLocked installs a successor model, preserving the state
// variant. Callers hold e.mu.
func (e *Engine) setLoadedLocked(next *Loaded) {
	switch s := e.state.(type) {
	case *Loaded:
		e.state = next
	case *PersistError:
		e.state = &PersistError{Loaded: *next, Cause: s.Cause}
	}
}

// ApplyOperation applies one operation to the model.
//
//  1. A duplicate opID returns with the state unchanged.
//  2. The opID is recorded as applied.
//  3. The operation dispatches to a pure reducer; an operation whose
//     target is missing is silently dropped.
//  4. Connectors attached to a shape whose geometry changed are re-routed
//     before the new state commits.
//  5. If originLocal, the operation goes to the Scheduler; remote-origin
//     operations skip this step.
func (e *Engine) ApplyOperation(o op.Operation, originLocal bool) error {
	e.mu.Lock()
	st, ok := e.loadedLocked()
	if !ok {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	if _, dup := e.applied[o.ID()]; dup {
		e.mu.Unlock()
		return nil
	}
	e.applied[o.ID()] = struct{}{}

	res, err := reduce(st, o)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if !res.applied {
		// Referential miss (e.g. a remote connector arrived before its
		// shapes): drop silently, never fatal.
		e.mu.Unlock()
		return nil
	}
	next := res.commit(st)
	if len(res.geometryChanged) > 0 {
		rebuildRoutes(next, res.geometryChanged)
	}
	e.setLoadedLocked(next)

	sched := e.sched
	snap := res.snapshot
	cascade := res.cascade
	e.mu.Unlock()

	if originLocal && sched != nil {
		sched.Schedule(o, snap)
		for _, c := range cascade {
			sched.ScheduleCascadeDelete(c)
		}
	}
	return nil
}

// PersistFailed transitions Loaded → PersistError, retaining the full
// in-memory model. Safe to call repeatedly; only the cause updates.
func (e *Engine) PersistFailed(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch s := e.state.(type) {
	case *Loaded:
		e.state = &PersistError{Loaded: *s, Cause: err}
	case *PersistError:
		e.state = &PersistError{Loaded: s.Loaded, Cause: err}
	}
}

// PersistRecovered transitions PersistError → Loaded after a successful
// write. A no-op in any other state.
func (e *Engine) PersistRecovered() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.state.(*PersistError); ok {
		loaded := s.Loaded
		e.state = &loaded
	}
}

// rebuildRoutes recomputes derived connector routes. With a nil filter it
// rebuilds everything; otherwise only connectors touching one of the given
// shape ids. st must not have been handed out yet: commit gives every
// successor a fresh Routes map, so the writes here stay private.
func rebuildRoutes(st *Loaded, shapeIDs []string) {
	touched := func(c *board.Connector) bool {
		if shapeIDs == nil {
			return true
		}
		for _, id := range shapeIDs {
			if c.Touches(id) {
				return true
			}
		}
		return false
	}
	for id, c := range st.Connectors {
		if !touched(c) {
			continue
		}
		nodes, ok := router.ConnectorNodes(c, st.Shapes)
		if !ok {
			delete(st.Routes, id)
			continue
		}
		st.Routes[id] = router.Route(nodes)
	}
}

// FinalizeNodeDrag re-runs the waypoint-move geometry once for the release
// position and mints the persistent reroute operation. Returns false if
// the connector or its endpoints are gone, or the index is an anchor.
func (e *Engine) FinalizeNodeDrag(connectorID string, nodeIndex int, pos board.Point) (op.RerouteConnector, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st, ok := e.loadedLocked()
	if !ok {
		return op.RerouteConnector{}, false
	}
	c, ok := st.Connectors[connectorID]
	if !ok {
		return op.RerouteConnector{}, false
	}
	nodes, ok := router.ConnectorNodes(c, st.Shapes)
	if !ok {
		return op.RerouteConnector{}, false
	}
	moved, err := router.MovedWaypoint(router.HandleNodes(nodes), nodeIndex, pos)
	if err != nil {
		return op.RerouteConnector{}, false
	}
	return op.NewRerouteConnector(e.sessionID, connectorID, router.Waypoints(moved)), true
}
