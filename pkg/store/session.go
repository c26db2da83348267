package store

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
	"github.com/lucasbiancogs/framing-session-sub000/pkg/hlc"
)

// Key layout:
//   sess/<session_id>/shape/<shape_id>
//   sess/<session_id>/conn/<connector_id>
func shapeKey(sessionID, shapeID string) []byte {
	return []byte(fmt.Sprintf("sess/%s/shape/%s", sessionID, shapeID))
}

func connectorKey(sessionID, connectorID string) []byte {
	return []byte(fmt.Sprintf("sess/%s/conn/%s", sessionID, connectorID))
}

func shapePrefix(sessionID string) []byte {
	return []byte(fmt.Sprintf("sess/%s/shape/", sessionID))
}

func connectorPrefix(sessionID string) []byte {
	return []byte(fmt.Sprintf("sess/%s/conn/", sessionID))
}

// shapeRecord/connectorRecord wrap the object with an HLC update stamp.
// The stamp is bookkeeping only; reads return the object as written.
type shapeRecord struct {
	UpdatedAt int64       `msgpack:"updated_at"`
	Shape     board.Shape `msgpack:"shape"`
}

type connectorRecord struct {
	UpdatedAt int64           `msgpack:"updated_at"`
	Connector board.Connector `msgpack:"connector"`
}

// KVSessionStore implements SessionStore over a KV backend.
type KVSessionStore struct {
	kv    KV
	clock *hlc.Clock
}

// NewSessionStore wraps a KV backend into a SessionStore.
func NewSessionStore(kv KV) *KVSessionStore {
	return &KVSessionStore{kv: kv, clock: hlc.New()}
}

// Close closes the underlying KV.
func (s *KVSessionStore) Close() error {
	return s.kv.Close()
}

// SessionShapes returns every shape stored for the session.
func (s *KVSessionStore) SessionShapes(ctx context.Context, sessionID string) ([]*board.Shape, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var shapes []*board.Shape
	err := s.kv.View(func(tx Tx) error {
		return tx.Scan(shapePrefix(sessionID), func(k, v []byte) error {
			var rec shapeRecord
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode shape record %s: %w", k, err)
			}
			shapes = append(shapes, rec.Shape.Clone())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return shapes, nil
}

// SessionConnectors returns every connector stored for the session.
func (s *KVSessionStore) SessionConnectors(ctx context.Context, sessionID string) ([]*board.Connector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var connectors []*board.Connector
	err := s.kv.View(func(tx Tx) error {
		return tx.Scan(connectorPrefix(sessionID), func(k, v []byte) error {
			var rec connectorRecord
			if err := msgpack.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode connector record %s: %w", k, err)
			}
			connectors = append(connectors, rec.Connector.Clone())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return connectors, nil
}

func (s *KVSessionStore) putShape(ctx context.Context, sh *board.Shape) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := msgpack.Marshal(shapeRecord{UpdatedAt: s.clock.Now(), Shape: *sh})
	if err != nil {
		return fmt.Errorf("encode shape %s: %w", sh.ID, err)
	}
	return s.kv.Update(func(tx Tx) error {
		return tx.Set(shapeKey(sh.SessionID, sh.ID), data)
	})
}

// CreateShape writes a new shape record.
func (s *KVSessionStore) CreateShape(ctx context.Context, sh *board.Shape) error {
	return s.putShape(ctx, sh)
}

// UpdateShape replaces a shape record wholesale (upsert).
func (s *KVSessionStore) UpdateShape(ctx context.Context, sh *board.Shape) error {
	return s.putShape(ctx, sh)
}

// DeleteShape removes a shape record. Deleting a missing record succeeds.
func (s *KVSessionStore) DeleteShape(ctx context.Context, sessionID, shapeID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.kv.Update(func(tx Tx) error {
		return tx.Delete(shapeKey(sessionID, shapeID))
	})
}

func (s *KVSessionStore) putConnector(ctx context.Context, c *board.Connector) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := msgpack.Marshal(connectorRecord{UpdatedAt: s.clock.Now(), Connector: *c})
	if err != nil {
		return fmt.Errorf("encode connector %s: %w", c.ID, err)
	}
	return s.kv.Update(func(tx Tx) error {
		return tx.Set(connectorKey(c.SessionID, c.ID), data)
	})
}

// CreateConnector writes a new connector record.
func (s *KVSessionStore) CreateConnector(ctx context.Context, c *board.Connector) error {
	return s.putConnector(ctx, c)
}

// UpdateConnector replaces a connector record wholesale (upsert).
func (s *KVSessionStore) UpdateConnector(ctx context.Context, c *board.Connector) error {
	return s.putConnector(ctx, c)
}

// DeleteConnector removes a connector record. Deleting a missing record
// succeeds.
func (s *KVSessionStore) DeleteConnector(ctx context.Context, sessionID, connectorID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.kv.Update(func(tx Tx) error {
		return tx.Delete(connectorKey(sessionID, connectorID))
	})
}
