package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/you/bustracker/models"
)

type liveSource struct {
	mu    sync.Mutex
	buses []models.BusWithETA
}

func (s *liveSource) Query(context.Context, *time.Duration) ([]models.BusWithETA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.BusWithETA, len(s.buses))
	copy(out, s.buses)
	return out, nil
}

func (s *liveSource) set(buses []models.BusWithETA) {
	s.mu.Lock()
	s.buses = buses
	s.mu.Unlock()
}

func dialLive(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readLive(t *testing.T, conn *websocket.Conn) LiveMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg LiveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestLiveHandler_SnapshotOnConnectAndNotify(t *testing.T) {
	src := &liveSource{}
	h := NewLiveHandler(src, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(h.Subscribe))
	defer srv.Close()
	defer h.Close()

	conn := dialLive(t, srv)

	first := readLive(t, conn)
	if first.Type != "snapshot" || first.Count != 0 {
		t.Fatalf("unexpected initial message: %+v", first)
	}
	if first.Buses == nil {
		t.Error("expected empty bus list, got null")
	}

	src.set(sampleBuses())
	h.Notify(context.Background(), "703")

	second := readLive(t, conn)
	if second.Count != 2 || len(second.Buses) != 2 {
		t.Fatalf("expected 2 buses after notify, got %+v", second)
	}
	if second.Buses[0].VehicleID != "703" || second.Buses[0].ETA != "5 mins" {
		t.Errorf("unexpected bus: %+v", second.Buses[0])
	}
}

func TestLiveHandler_ClientLifecycle(t *testing.T) {
	h := NewLiveHandler(&liveSource{}, quietLogger())
	srv := httptest.NewServer(http.HandlerFunc(h.Subscribe))
	defer srv.Close()

	conn := dialLive(t, srv)
	readLive(t, conn)

	if n := h.ClientCount(); n != 1 {
		t.Fatalf("expected 1 client, got %d", n)
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveHandler_NotifyWithoutClients(t *testing.T) {
	called := false
	h := NewLiveHandler(snapshotFunc(func(context.Context, *time.Duration) ([]models.BusWithETA, error) {
		called = true
		return nil, nil
	}), quietLogger())

	h.Notify(context.Background(), "1")

	if called {
		t.Error("snapshot must not be built with no subscribers")
	}
}

func TestLiveHandler_StalledClientDoesNotBlockNotify(t *testing.T) {
	src := &liveSource{}
	src.set(sampleBuses())
	h := NewLiveHandler(src, quietLogger())

	stalled := &liveClient{id: "stalled", send: make(chan []byte, 1)}
	stalled.send <- []byte("unread")
	h.mu.Lock()
	h.clients[stalled] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.Notify(context.Background(), "703")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a client with a full buffer")
	}

	if n := h.ClientCount(); n != 0 {
		t.Errorf("expected stalled client to be dropped, got %d clients", n)
	}
	if _, open := <-stalled.send; !open {
		t.Fatal("expected buffered frame before close")
	}
	if _, open := <-stalled.send; open {
		t.Error("expected send channel to be closed")
	}
}

func TestLiveHandler_ClientRegisteredBeforeFirstSnapshot(t *testing.T) {
	h := NewLiveHandler(nil, quietLogger())
	registered := make(chan int, 1)
	h.source = snapshotFunc(func(context.Context, *time.Duration) ([]models.BusWithETA, error) {
		registered <- h.ClientCount()
		return []models.BusWithETA{}, nil
	})

	srv := httptest.NewServer(http.HandlerFunc(h.Subscribe))
	defer srv.Close()
	defer h.Close()

	conn := dialLive(t, srv)
	readLive(t, conn)

	if n := <-registered; n != 1 {
		t.Errorf("expected client registered while its snapshot was read, got %d clients", n)
	}
}
