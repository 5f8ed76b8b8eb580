package transport

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialTransport(t *testing.T, wst *WebSocketTransport) *websocket.Conn {
	t.Helper()
	url := "ws://" + wst.Addr().String() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, wst *WebSocketTransport, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for wst.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("have %d clients, want %d", wst.Clients(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWebSocketBroadcastsResults(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer wst.Close()

	a := dialTransport(t, wst)
	b := dialTransport(t, wst)
	waitForClients(t, wst, 2)

	if err := wst.Send(sampleResult()); err != nil {
		t.Fatal(err)
	}

	for name, conn := range map[string]*websocket.Conn{"a": a, "b": b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("client %s: %v", name, err)
		}
		if msg.Seq != 7 || msg.Session != "s-1" || len(msg.Scores) != 3 || msg.Scores[0].Label != "English" {
			t.Errorf("client %s got %+v", name, msg)
		}
	}
}

func TestWebSocketClientDisconnect(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer wst.Close()

	conn := dialTransport(t, wst)
	waitForClients(t, wst, 1)
	conn.Close()
	waitForClients(t, wst, 0)
}

func TestWebSocketSendAfterClose(t *testing.T) {
	wst, err := NewWebSocketTransport("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if err := wst.Close(); err != nil {
		t.Fatal(err)
	}
	if err := wst.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if err := wst.Send(sampleResult()); err == nil {
		t.Error("Send after Close succeeded")
	}
}

func TestWebSocketDropsWhenQueueFull(t *testing.T) {
	// No broadcaster is draining this queue.
	wst := &WebSocketTransport{broadcast: make(chan any, 2), done: make(chan struct{})}
	for range 5 {
		if err := wst.Send(sampleResult()); err != nil {
			t.Fatal(err)
		}
	}
	if got := wst.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
	if _, ok := (<-wst.broadcast).(Message); !ok {
		t.Error("queued result was not converted to a Message")
	}
}

func TestWebSocketListenError(t *testing.T) {
	if _, err := NewWebSocketTransport("256.0.0.1:bad"); err == nil {
		t.Error("expected listen error")
	}
}
