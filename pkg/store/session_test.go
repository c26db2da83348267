package store

import (
	"context"
	"errors"
	"testing"

	"github.com/lucasbiancogs/framing-session-sub000/pkg/board"
)

func testShape(sessionID, id string, x float64) *board.Shape {
	return &board.Shape{
		ID: id, SessionID: sessionID,
		Kind: board.KindRectangle,
		X:    x, Y: 0, Width: 100, Height: 100,
		Color: "#1e90ff",
	}
}

func testConnector(sessionID, id, from, to string) *board.Connector {
	return &board.Connector{
		ID: id, SessionID: sessionID,
		FromShapeID: from, ToShapeID: to,
		FromAnchor: board.AnchorRight, ToAnchor: board.AnchorLeft,
		Arrow: board.ArrowEnd, Color: "#333",
		Waypoints: []board.Waypoint{{Index: 0, X: 10, Y: 20}},
	}
}

func runSessionStoreTests(t *testing.T, kv KV) {
	ctx := context.Background()
	s := NewSessionStore(kv)

	t.Run("ShapeCRUD", func(t *testing.T) {
		if err := s.CreateShape(ctx, testShape("sess", "s1", 0)); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if err := s.UpdateShape(ctx, testShape("sess", "s1", 42)); err != nil {
			t.Fatalf("update failed: %v", err)
		}
		shapes, err := s.SessionShapes(ctx, "sess")
		if err != nil {
			t.Fatal(err)
		}
		if len(shapes) != 1 || shapes[0].X != 42 {
			t.Fatalf("期望读回更新后的图形, got %+v", shapes)
		}

		if err := s.DeleteShape(ctx, "sess", "s1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if err := s.DeleteShape(ctx, "sess", "s1"); err != nil {
			t.Fatalf("deleting a missing shape must succeed: %v", err)
		}
		if shapes, _ = s.SessionShapes(ctx, "sess"); len(shapes) != 0 {
			t.Fatalf("expected empty session, got %+v", shapes)
		}
	})

	t.Run("UpdateIsUpsert", func(t *testing.T) {
		// 远端先更新后创建也要能落盘
		if err := s.UpdateShape(ctx, testShape("sess", "s2", 7)); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		shapes, err := s.SessionShapes(ctx, "sess")
		if err != nil {
			t.Fatal(err)
		}
		if len(shapes) != 1 || shapes[0].ID != "s2" {
			t.Fatalf("expected upserted shape, got %+v", shapes)
		}
		if err := s.DeleteShape(ctx, "sess", "s2"); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("ConnectorCRUD", func(t *testing.T) {
		if err := s.CreateConnector(ctx, testConnector("sess", "c1", "a", "b")); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		updated := testConnector("sess", "c1", "a", "b")
		updated.Waypoints = []board.Waypoint{{Index: 0, X: 5, Y: 5}, {Index: 1, X: 6, Y: 6}}
		if err := s.UpdateConnector(ctx, updated); err != nil {
			t.Fatalf("update failed: %v", err)
		}

		conns, err := s.SessionConnectors(ctx, "sess")
		if err != nil {
			t.Fatal(err)
		}
		if len(conns) != 1 || len(conns[0].Waypoints) != 2 {
			t.Fatalf("expected rerouted connector, got %+v", conns)
		}
		if conns[0].FromAnchor != board.AnchorRight || conns[0].Arrow != board.ArrowEnd {
			t.Fatalf("connector fields lost: %+v", conns[0])
		}

		if err := s.DeleteConnector(ctx, "sess", "c1"); err != nil {
			t.Fatal(err)
		}
		if err := s.DeleteConnector(ctx, "sess", "c1"); err != nil {
			t.Fatalf("deleting a missing connector must succeed: %v", err)
		}
	})

	t.Run("SessionsAreIsolated", func(t *testing.T) {
		if err := s.CreateShape(ctx, testShape("one", "s1", 1)); err != nil {
			t.Fatal(err)
		}
		if err := s.CreateShape(ctx, testShape("two", "s1", 2)); err != nil {
			t.Fatal(err)
		}
		one, err := s.SessionShapes(ctx, "one")
		if err != nil {
			t.Fatal(err)
		}
		if len(one) != 1 || one[0].X != 1 {
			t.Fatalf("session one leaked: %+v", one)
		}
		// 会话前缀不能串到连接线键空间
		conns, err := s.SessionConnectors(ctx, "one")
		if err != nil {
			t.Fatal(err)
		}
		if len(conns) != 0 {
			t.Fatalf("shape keys leaked into connector scan: %+v", conns)
		}
	})

	t.Run("CancelledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := s.CreateShape(cctx, testShape("sess", "s9", 0)); err == nil {
			t.Fatal("expected context error")
		}
	})
}

func TestSessionStore_Memory(t *testing.T) {
	kv := NewMemoryKV()
	defer kv.Close()
	runSessionStoreTests(t, kv)
}

func TestSessionStore_Badger(t *testing.T) {
	kv, err := NewBadgerKV(t.TempDir(), WithBadgerValueLogFileSize(1<<20))
	if err != nil {
		t.Fatalf("打开 badger 失败: %v", err)
	}
	defer kv.Close()
	runSessionStoreTests(t, kv)
}

func TestMemoryKV_TxSemantics(t *testing.T) {
	kv := NewMemoryKV()
	defer kv.Close()

	if err := kv.Update(func(tx Tx) error {
		return tx.Set([]byte("k/a"), []byte("1"))
	}); err != nil {
		t.Fatal(err)
	}

	// 失败的事务不留痕迹
	boom := errors.New("boom")
	err := kv.Update(func(tx Tx) error {
		if err := tx.Set([]byte("k/b"), []byte("2")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the tx error back, got %v", err)
	}
	if err := kv.View(func(tx Tx) error {
		if _, err := tx.Get([]byte("k/b")); !errors.Is(err, ErrKeyNotFound) {
			t.Fatalf("aborted write leaked: %v", err)
		}
		v, err := tx.Get([]byte("k/a"))
		if err != nil || string(v) != "1" {
			t.Fatalf("committed write lost: %q %v", v, err)
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := kv.View(func(tx Tx) error {
		return tx.Set([]byte("k/c"), []byte("3"))
	}); !errors.Is(err, ErrReadOnlyTx) {
		t.Fatalf("read-only tx must reject writes, got %v", err)
	}
}

func TestMemoryKV_ScanPrefix(t *testing.T) {
	kv := NewMemoryKV()
	defer kv.Close()

	if err := kv.Update(func(tx Tx) error {
		for _, k := range []string{"p/1", "p/2", "q/1"} {
			if err := tx.Set([]byte(k), []byte(k)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	var keys []string
	if err := kv.View(func(tx Tx) error {
		return tx.Scan([]byte("p/"), func(key, value []byte) error {
			keys = append(keys, string(key))
			return nil
		})
	}); err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "p/1" || keys[1] != "p/2" {
		t.Fatalf("scan must be prefix-bounded and ordered: %v", keys)
	}
}
