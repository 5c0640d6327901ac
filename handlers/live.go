package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/you/bustracker/models"
)

const (
	liveWriteTimeout = 5 * time.Second
	liveSendBuffer   = 16
)

// LiveMessage is pushed to websocket subscribers
type LiveMessage struct {
	Type   string              `json:"type"`
	Buses  []models.BusWithETA `json:"buses"`
	Count  int                 `json:"count"`
	SentAt time.Time           `json:"sentAt"`
}

type liveClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// LiveHandler pushes the full bus snapshot to websocket clients on connect
// and after every accepted location update. Each client has its own writer
// goroutine; a client whose buffer fills up is disconnected.
type LiveHandler struct {
	source   SnapshotSource
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	// snapMu orders snapshot queries with their enqueue, so every client
	// sees frames in the order they were read from the tracker
	snapMu sync.Mutex

	mu      sync.Mutex
	clients map[*liveClient]struct{}
}

// NewLiveHandler creates a websocket hub backed by source
func NewLiveHandler(source SnapshotSource, logger *logrus.Logger) *LiveHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LiveHandler{
		source: source,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*liveClient]struct{}),
	}
}

// Subscribe handles GET /api/public/live
func (h *LiveHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("ws upgrade failed")
		return
	}

	c := &liveClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, liveSendBuffer),
	}

	// Registered before the first snapshot is read, so no ingest can fall
	// between the snapshot and the first broadcast this client receives.
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)

	h.snapMu.Lock()
	defer h.snapMu.Unlock()

	data, err := h.snapshot(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("failed to build live snapshot")
		h.drop(c)
		return
	}

	h.mu.Lock()
	h.enqueueLocked(c, data)
	h.mu.Unlock()

	h.logger.WithField("client_id", c.id).Debug("live client connected")
}

// Notify broadcasts a fresh snapshot. It matches tracker.Listener and never
// waits on a client's socket.
func (h *LiveHandler) Notify(ctx context.Context, busID string) {
	if h.ClientCount() == 0 {
		return
	}

	h.snapMu.Lock()
	defer h.snapMu.Unlock()

	data, err := h.snapshot(ctx)
	if err != nil {
		h.logger.WithError(err).WithField("bus_id", busID).Error("failed to build live snapshot")
		return
	}

	h.mu.Lock()
	for c := range h.clients {
		h.enqueueLocked(c, data)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected subscribers
func (h *LiveHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber
func (h *LiveHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *LiveHandler) snapshot(ctx context.Context) ([]byte, error) {
	buses, err := h.source.Query(ctx, nil)
	if err != nil {
		return nil, err
	}
	return json.Marshal(LiveMessage{
		Type:   "snapshot",
		Buses:  buses,
		Count:  len(buses),
		SentAt: time.Now().UTC(),
	})
}

// enqueueLocked hands data to c's writer, dropping c if its buffer is full
func (h *LiveHandler) enqueueLocked(c *liveClient, data []byte) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		h.logger.WithField("client_id", c.id).Warn("live client too slow, disconnecting")
		h.removeLocked(c)
	}
}

// removeLocked unregisters c and closes its send channel exactly once
func (h *LiveHandler) removeLocked(c *liveClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.WithField("client_id", c.id).Debug("live client disconnected")
}

func (h *LiveHandler) drop(c *liveClient) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

// writePump owns all writes to the connection
func (h *LiveHandler) writePump(c *liveClient) {
	defer c.conn.Close()

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.WithError(err).WithField("client_id", c.id).Debug("live write failed")
			h.drop(c)
			return
		}
	}

	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(time.Second))
}

// readPump drains client frames until the connection drops
func (h *LiveHandler) readPump(c *liveClient) {
	defer h.drop(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
