package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/skybridge/pkg/logger"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func dialTestClient(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub := NewServer(logger.NewNop())
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	defer srv.Close()

	c1 := dialTestClient(t, srv)
	defer c1.Close()
	c2 := dialTestClient(t, srv)
	defer c2.Close()

	waitFor(t, "both clients registered", func() bool { return hub.ClientCount() == 2 })

	payload := []byte(`{"a1b2c3":{"callsign":"UAL123"}}`)
	hub.Broadcast(payload)

	for i, conn := range []*websocket.Conn{c1, c2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, got, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d read: %v", i+1, err)
		}
		if string(got) != string(payload) {
			t.Errorf("client %d payload = %s, want %s", i+1, got, payload)
		}
	}
}

func TestHub_DisconnectedClientIsRemoved(t *testing.T) {
	hub := NewServer(logger.NewNop())
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	defer srv.Close()

	c1 := dialTestClient(t, srv)
	defer c1.Close()
	c2 := dialTestClient(t, srv)

	waitFor(t, "both clients registered", func() bool { return hub.ClientCount() == 2 })

	c2.Close()
	waitFor(t, "dead client removed", func() bool { return hub.ClientCount() == 1 })

	// The surviving client still receives broadcasts.
	payload := []byte(`{}`)
	hub.Broadcast(payload)

	c1.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := c1.ReadMessage()
	if err != nil {
		t.Fatalf("surviving client read: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("payload = %s, want %s", got, payload)
	}
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := NewServer(logger.NewNop())
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	defer srv.Close()

	conn := dialTestClient(t, srv)
	defer conn.Close()

	waitFor(t, "client registered", func() bool { return hub.ClientCount() == 1 })

	hub.Stop()

	if n := hub.ClientCount(); n != 0 {
		t.Errorf("client count after stop = %d, want 0", n)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("read succeeded after hub stop, want connection closed")
	}
}
