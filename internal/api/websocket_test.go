package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/ProjectBoard/internal/events"
)

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func dialEvents(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	return e
}

func TestWebSocketReceivesRecentEvents(t *testing.T) {
	s, bus := newTestServer(t)
	for i := 0; i < 5; i++ {
		bus.Emit("info", "cards.drawn", "", map[string]interface{}{"i": i})
	}

	server := httptest.NewServer(s.Handler())
	defer server.Close()
	conn := dialEvents(t, server)
	defer conn.Close()

	for i := 0; i < 5; i++ {
		e := readEvent(t, conn)
		if e.Name != "cards.drawn" {
			t.Errorf("expected 'cards.drawn', got '%s'", e.Name)
		}
		if got := e.Fields["i"]; got != float64(i) {
			t.Errorf("event %d out of order: %v", i, got)
		}
	}
}

func TestWebSocketReceivesNewEvents(t *testing.T) {
	s, bus := newTestServer(t)
	server := httptest.NewServer(s.Handler())
	defer server.Close()
	conn := dialEvents(t, server)
	defer conn.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		bus.Emit("info", "game.finished", "", map[string]interface{}{"player": "Alice"})
	}()

	e := readEvent(t, conn)
	if e.Name != "game.finished" {
		t.Errorf("expected 'game.finished', got '%s'", e.Name)
	}
	if e.Fields["player"] != "Alice" {
		t.Errorf("expected player 'Alice', got '%v'", e.Fields["player"])
	}
}

func TestWebSocketStreamsGameActions(t *testing.T) {
	s, _ := newTestServer(t)
	server := httptest.NewServer(s.Handler())
	defer server.Close()
	conn := dialEvents(t, server)
	defer conn.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		s.game.NewGame([]string{"Alice"})
	}()

	if e := readEvent(t, conn); e.Name != "game.started" {
		t.Errorf("expected 'game.started', got '%s'", e.Name)
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	s, bus := newTestServer(t)
	server := httptest.NewServer(s.Handler())
	defer server.Close()
	conn := dialEvents(t, server)

	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.Emit("info", "turn.advanced", "", map[string]interface{}{"player": "Bob"})
	}()
	if e := readEvent(t, conn); e.Name != "turn.advanced" {
		t.Errorf("expected 'turn.advanced', got '%s'", e.Name)
	}

	conn.Close()

	// Emit events so the writer notices the close.
	for i := 0; i < 5; i++ {
		bus.Emit("info", "turn.advanced", "", nil)
		time.Sleep(50 * time.Millisecond)
	}

	waitFor(t, 5*time.Second, func() bool {
		return bus.SubscriberCount() == 0
	}, "subscriber count to return to 0 after close")
}

func TestWebSocketMultipleClients(t *testing.T) {
	s, bus := newTestServer(t)
	server := httptest.NewServer(s.Handler())
	defer server.Close()

	conn1 := dialEvents(t, server)
	defer conn1.Close()
	conn2 := dialEvents(t, server)
	defer conn2.Close()

	waitFor(t, 2*time.Second, func() bool {
		return bus.SubscriberCount() == 2
	}, "both clients to subscribe")

	bus.Emit("info", "game.ended", "", map[string]interface{}{"winner": "Alice"})

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		if e := readEvent(t, conn); e.Name != "game.ended" {
			t.Errorf("client%d: expected 'game.ended', got '%s'", i+1, e.Name)
		}
	}
}
