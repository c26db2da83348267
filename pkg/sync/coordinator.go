package sync

import (
	"context"
	"fmt"
	"log"
	stdsync "sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/canvas"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/hlc"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/op"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/store"
)

// DefaultDebounce is the quiet period before a continuous edit persists.
const DefaultDebounce = 300 * time.Millisecond

const writeQueueSize = 256

// StateSink receives persistence outcomes. The canvas Engine implements it
// with its Loaded ⇄ PersistError transitions.
type StateSink interface {
	PersistFailed(err error)
	PersistRecovered()
}

// Applier is where inbound remote operations land.
type Applier interface {
	ApplyOperation(o op.Operation, originLocal bool) error
}

// Config wires a Coordinator.
type Config struct {
	SessionID string
	// NodeID identifies this editor on the network.
	NodeID  string
	Store   store.SessionStore
	Network NetworkInterface
	Sink    StateSink
	// Clock defaults to the real clock; tests inject a fake.
	Clock clockwork.Clock
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
}

// Coordinator schedules the side effects of local operations: immediate
// broadcast, immediate persistence for create/delete, and debounced
// persistence for continuous edits. Writes run on a single worker in
// scheduling order; the caller is never blocked on a write.
type Coordinator struct {
	sessionID string
	nodeID    string
	store     store.SessionStore
	network   NetworkInterface
	sink      StateSink
	clock     clockwork.Clock
	debounce  time.Duration
	hlc       *hlc.Clock

	mu      stdsync.Mutex
	pending map[string]*pendingWrite

	// closeMu guards closed and orders sends against the channel close.
	// The worker never takes it, so a full queue always drains.
	closeMu stdsync.RWMutex
	closed  bool

	sub      Subscription
	writeQ   chan writeJob
	workerWg stdsync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

type writeJob struct {
	kind   op.Kind
	target string
	fn     func(ctx context.Context) error
}

type pendingWrite struct {
	seq   uint64
	timer clockwork.Timer
	job   writeJob
}

// NewCoordinator creates a coordinator and starts its write worker.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("sync: store is required")
	}
	if cfg.Network == nil {
		cfg.Network = NoNetwork{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		sessionID: cfg.SessionID,
		nodeID:    cfg.NodeID,
		store:     cfg.Store,
		network:   cfg.Network,
		sink:      cfg.Sink,
		clock:     cfg.Clock,
		debounce:  cfg.Debounce,
		hlc:       hlc.New(),
		pending:   make(map[string]*pendingWrite),
		writeQ:    make(chan writeJob, writeQueueSize),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.workerWg.Add(1)
	go c.writeWorker()
	return c, nil
}

// SetSink installs the persistence-outcome receiver after construction.
// The engine and the coordinator reference each other, so one side is
// always wired late.
func (c *Coordinator) SetSink(s StateSink) {
	c.mu.Lock()
	c.sink = s
	c.mu.Unlock()
}

// Start subscribes to the inbound operation stream and feeds every remote
// operation into the applier with originLocal=false.
func (c *Coordinator) Start(applier Applier) error {
	sub, err := c.network.Subscribe(c.sessionID, func(payload []byte) {
		env, o, err := unpackEnvelope(payload)
		if err != nil {
			// Unknown variants are version/programming errors; log and
			// drop rather than poison the session.
			log.Printf("sync: session %s: bad inbound envelope from %s: %v", c.sessionID, env.NodeID, err)
			return
		}
		c.hlc.Observe(env.Timestamp)
		if err := applier.ApplyOperation(o, false); err != nil {
			log.Printf("sync: session %s: apply remote %s failed: %v", c.sessionID, o.Kind(), err)
		}
	})
	if err != nil {
		if err == ErrNoNetwork {
			return nil // offline session
		}
		return err
	}
	c.sub = sub
	return nil
}

// Schedule implements canvas.Scheduler for locally originated operations.
func (c *Coordinator) Schedule(o op.Operation, snap canvas.Snapshot) {
	c.broadcast(o)
	if o.Ephemeral() {
		return
	}

	job, ok := c.jobFor(o, snap)
	if !ok {
		return
	}
	switch o.Kind() {
	case op.KindCreateShape, op.KindDeleteShape, op.KindCreateConnector, op.KindDeleteConnector:
		// Discrete: exactly one write per operation, and any pending
		// debounced write for the target is obsolete.
		c.cancelPending(o.Target())
		c.enqueue(job)
	default:
		c.schedulePending(job)
	}
}

// ScheduleCascadeDelete persists a connector deletion caused by a shape
// delete cascade. Persistence only: peers cascade on their own.
func (c *Coordinator) ScheduleCascadeDelete(conn *board.Connector) {
	c.cancelPending(conn.ID)
	sessionID, connectorID := conn.SessionID, conn.ID
	c.enqueue(writeJob{
		kind:   op.KindDeleteConnector,
		target: connectorID,
		fn: func(ctx context.Context) error {
			return c.store.DeleteConnector(ctx, sessionID, connectorID)
		},
	})
}

func (c *Coordinator) broadcast(o op.Operation) {
	payload, err := packEnvelope(c.nodeID, c.hlc.Now(), o)
	if err != nil {
		log.Printf("sync: session %s: pack %s: %v", c.sessionID, o.Kind(), err)
		return
	}
	// Fire and forget; an unreachable transport is not a persistence
	// failure.
	if err := c.network.Broadcast(c.sessionID, payload); err != nil && err != ErrNoNetwork {
		log.Printf("sync: session %s: broadcast %s: %v", c.sessionID, o.Kind(), err)
	}
}

// jobFor maps a persistent operation to its store write.
func (c *Coordinator) jobFor(o op.Operation, snap canvas.Snapshot) (writeJob, bool) {
	job := writeJob{kind: o.Kind(), target: o.Target()}
	switch o.Kind() {
	case op.KindCreateShape:
		s := snap.Shape
		if s == nil {
			return writeJob{}, false
		}
		job.fn = func(ctx context.Context) error { return c.store.CreateShape(ctx, s) }
	case op.KindMoveShape, op.KindResizeShape, op.KindSetShapeText:
		s := snap.Shape
		if s == nil {
			return writeJob{}, false
		}
		job.fn = func(ctx context.Context) error { return c.store.UpdateShape(ctx, s) }
	case op.KindDeleteShape:
		target := o.Target()
		job.fn = func(ctx context.Context) error { return c.store.DeleteShape(ctx, c.sessionID, target) }
	case op.KindCreateConnector:
		conn := snap.Connector
		if conn == nil {
			return writeJob{}, false
		}
		job.fn = func(ctx context.Context) error { return c.store.CreateConnector(ctx, conn) }
	case op.KindRerouteConnector:
		conn := snap.Connector
		if conn == nil {
			return writeJob{}, false
		}
		job.fn = func(ctx context.Context) error { return c.store.UpdateConnector(ctx, conn) }
	case op.KindDeleteConnector:
		target := o.Target()
		job.fn = func(ctx context.Context) error { return c.store.DeleteConnector(ctx, c.sessionID, target) }
	default:
		return writeJob{}, false
	}
	return job, true
}

// schedulePending (re)arms the debounce window for a continuous edit. A
// newer edit to the same target cancels the pending write and restarts the
// quiet period with the newer snapshot.
func (c *Coordinator) schedulePending(job writeJob) {
	if c.isClosed() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var seq uint64
	if prev, ok := c.pending[job.target]; ok {
		prev.timer.Stop()
		seq = prev.seq + 1
	}
	pw := &pendingWrite{seq: seq, job: job}
	target := job.target
	pw.timer = c.clock.AfterFunc(c.debounce, func() {
		c.flushPending(target, seq)
	})
	c.pending[job.target] = pw
}

func (c *Coordinator) flushPending(target string, seq uint64) {
	c.mu.Lock()
	pw, ok := c.pending[target]
	if !ok || pw.seq != seq {
		c.mu.Unlock()
		return
	}
	delete(c.pending, target)
	c.mu.Unlock()
	c.enqueue(pw.job)
}

func (c *Coordinator) cancelPending(target string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pw, ok := c.pending[target]; ok {
		pw.timer.Stop()
		delete(c.pending, target)
	}
}

// enqueue sends under closeMu's read lock so a send can never race Close's
// channel close. c.mu is never held across the send: a full queue must not
// stall callers that only touch the pending map, and the worker takes c.mu
// after every job.
func (c *Coordinator) enqueue(job writeJob) {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return
	}
	c.writeQ <- job
}

func (c *Coordinator) stateSink() StateSink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sink
}

func (c *Coordinator) writeWorker() {
	defer c.workerWg.Done()
	for job := range c.writeQ {
		err := job.fn(c.ctx)
		sink := c.stateSink()
		if err != nil {
			log.Printf("sync: session %s: persist %s %s failed: %v", c.sessionID, job.kind, job.target, err)
			if sink != nil {
				sink.PersistFailed(err)
			}
			continue
		}
		if sink != nil {
			sink.PersistRecovered()
		}
	}
}

// Flush forces every pending debounced write to run now. Mainly for
// teardown and tests.
func (c *Coordinator) Flush() {
	c.mu.Lock()
	jobs := make([]writeJob, 0, len(c.pending))
	for target, pw := range c.pending {
		pw.timer.Stop()
		jobs = append(jobs, pw.job)
		delete(c.pending, target)
	}
	c.mu.Unlock()
	for _, job := range jobs {
		c.enqueue(job)
	}
}

// Close releases the inbound subscription, flushes pending writes, and
// stops the worker. The last quiet-period edit is never lost on session
// exit.
func (c *Coordinator) Close() {
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
	c.Flush()

	// Taking the write lock waits out every in-flight enqueue, so the
	// close below can never race a send.
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	c.closeMu.Unlock()

	close(c.writeQ)
	c.workerWg.Wait()
	c.cancel()
}

func (c *Coordinator) isClosed() bool {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	return c.closed
}
