package broadcastws

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/brettsam/offlinesync/internal/syncengine"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = log.New(os.Stderr, "[test] ", log.LstdFlags)
	s := New(cfg)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	time.Sleep(50 * time.Millisecond)
	return s
}

func TestServerStartStop(t *testing.T) {
	s := newTestServer(t)
	if s.Addr() == "" {
		t.Fatal("expected a non-empty listening address")
	}
}

func TestWebSocketConnectionCountsClients(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && s.ClientCount() != 1 {
		time.Sleep(10 * time.Millisecond)
	}
	if s.ClientCount() != 1 {
		t.Fatalf("ClientCount() = %d, want 1", s.ClientCount())
	}
}

func TestPublishDeliversEventToConnectedClient(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	s.Publish(syncengine.Event{
		Type:      syncengine.EventPushCompleted,
		TableName: "todo",
		Data:      map[string]any{"succeeded": 3},
	})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != syncengine.EventPushCompleted || msg.TableName != "todo" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestPublishWithoutClientsDoesNotBlock(t *testing.T) {
	s := newTestServer(t)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			s.Publish(syncengine.Event{Type: syncengine.EventOperationEnqueued})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with no connected clients")
	}
}

func TestMultipleClientsEachReceiveBroadcast(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const n = 3
	conns := make([]*websocket.Conn, n)
	for i := range conns {
		conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/events", nil)
		if err != nil {
			t.Fatalf("dial client %d: %v", i, err)
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		conns[i] = conn
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && s.ClientCount() != n {
		time.Sleep(10 * time.Millisecond)
	}
	if s.ClientCount() != n {
		t.Fatalf("ClientCount() = %d, want %d", s.ClientCount(), n)
	}

	s.Publish(syncengine.Event{Type: syncengine.EventPullCompleted})

	for i, conn := range conns {
		if _, _, err := conn.Read(ctx); err != nil {
			t.Fatalf("client %d failed to read broadcast: %v", i, err)
		}
	}
}
