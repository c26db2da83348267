// Package sync coordinates the side effects of locally originated
// operations: best-effort broadcast to peers and debounced persistence,
// with persistence failures surfaced to the canvas state machine instead
// of rolling back in-memory edits.
package sync

import (
	"errors"
	"sync"
)

// ErrNoNetwork indicates there is no registered network interface.
var ErrNoNetwork = errors.New("no network interface registered")

// NetworkInterface abstracts the realtime transport boundary. Broadcast is
// best-effort with no acknowledgment; delivery order and retries are the
// transport's concern.
type NetworkInterface interface {
	// Broadcast sends an operation envelope to every peer in the session.
	Broadcast(sessionID string, payload []byte) error

	// Subscribe registers a handler for inbound envelopes of a session.
	Subscribe(sessionID string, fn func(payload []byte)) (Subscription, error)
}

// Subscription is a cancellable inbound registration.
type Subscription interface {
	Close()
}

// NoNetwork is an explicit "no transport" implementation. Methods return
// ErrNoNetwork rather than silently swallowing operations.
type NoNetwork struct{}

// Broadcast returns ErrNoNetwork.
func (NoNetwork) Broadcast(sessionID string, payload []byte) error {
	return ErrNoNetwork
}

// Subscribe returns ErrNoNetwork.
func (NoNetwork) Subscribe(sessionID string, fn func(payload []byte)) (Subscription, error) {
	return nil, ErrNoNetwork
}

// Loopback is an in-process hub connecting several engines, mainly for
// tests and the demo. Delivery is synchronous and in send order.
type Loopback struct {
	mu   sync.RWMutex
	subs map[string][]*loopbackSub
	next int
}

// NewLoopback creates an empty hub.
func NewLoopback() *Loopback {
	return &Loopback{subs: make(map[string][]*loopbackSub)}
}

// Node returns the hub endpoint for one peer. A peer never receives its
// own broadcasts.
func (l *Loopback) Node(nodeID string) NetworkInterface {
	return &loopbackNode{hub: l, nodeID: nodeID}
}

type loopbackSub struct {
	id        int
	nodeID    string
	sessionID string
	fn        func(payload []byte)
	hub       *Loopback
}

func (s *loopbackSub) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	subs := s.hub.subs[s.sessionID]
	for i, sub := range subs {
		if sub.id == s.id {
			s.hub.subs[s.sessionID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

type loopbackNode struct {
	hub    *Loopback
	nodeID string
}

func (n *loopbackNode) Broadcast(sessionID string, payload []byte) error {
	n.hub.mu.RLock()
	subs := make([]*loopbackSub, len(n.hub.subs[sessionID]))
	copy(subs, n.hub.subs[sessionID])
	n.hub.mu.RUnlock()

	for _, sub := range subs {
		if sub.nodeID == n.nodeID {
			continue
		}
		sub.fn(payload)
	}
	return nil
}

func (n *loopbackNode) Subscribe(sessionID string, fn func(payload []byte)) (Subscription, error) {
	n.hub.mu.Lock()
	defer n.hub.mu.Unlock()
	n.hub.next++
	sub := &loopbackSub{
		id:        n.hub.next,
		nodeID:    n.nodeID,
		sessionID: sessionID,
		fn:        fn,
		hub:       n.hub,
	}
	n.hub.subs[sessionID] = append(n.hub.subs[sessionID], sub)
	return sub, nil
}
