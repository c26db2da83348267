// Package store is the durable persistence collaborator: a small KV
// abstraction (Badger-backed in production, in-memory in tests) and the
// SessionStore CRUD surface the sync coordinator writes through.
package store

import (
	"context"
	"errors"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
)

// ErrKeyNotFound 表示键不存在。
var ErrKeyNotFound = errors.New("key not found")

// ErrReadOnlyTx 表示在只读事务中尝试写入。
var ErrReadOnlyTx = errors.New("write in read-only transaction")

// KV 代表底层键值存储接口 (例如 BadgerDB)。
type KV interface {
	// Close 关闭存储。
	Close() error

	// View 执行只读事务。
	View(fn func(Tx) error) error

	// Update 执行读写事务。
	Update(fn func(Tx) error) error
}

// Tx 代表事务。
type Tx interface {
	// Set 设置键的值。
	Set(key, value []byte) error

	// Get 获取键的值。不存在时返回 ErrKeyNotFound。
	Get(key []byte) ([]byte, error)

	// Delete 删除键。
	Delete(key []byte) error

	// Scan 按前缀遍历键值对。
	Scan(prefix []byte, fn func(key, value []byte) error) error
}

// SessionStore is the CRUD surface for whiteboard sessions. Writes are
// absolute (whole-record replacement); Update is an upsert and Delete of a
// missing record succeeds, so replayed operations stay harmless.
type SessionStore interface {
	SessionShapes(ctx context.Context, sessionID string) ([]*board.Shape, error)
	SessionConnectors(ctx context.Context, sessionID string) ([]*board.Connector, error)

	CreateShape(ctx context.Context, s *board.Shape) error
	UpdateShape(ctx context.Context, s *board.Shape) error
	DeleteShape(ctx context.Context, sessionID, shapeID string) error

	CreateConnector(ctx context.Context, c *board.Connector) error
	UpdateConnector(ctx context.Context, c *board.Connector) error
	DeleteConnector(ctx context.Context, sessionID, connectorID string) error
}
