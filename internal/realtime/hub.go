package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"adspace/internal/audit"
	"adspace/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
	sendBuffer = 64
)

const (
	MessageSnapshot = "snapshot"
	MessageTimeline = "timeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is what a booking stream subscriber receives.
type Message struct {
	Type      string               `json:"type"`
	BookingID uuid.UUID            `json:"booking_id"`
	Status    string               `json:"status,omitempty"`
	Event     *audit.TimelineEvent `json:"event,omitempty"`
}

type client struct {
	bookingID uuid.UUID
	conn      *websocket.Conn
	send      chan []byte
}

// Hub fans timeline events out to the websocket clients watching a booking.
// It implements audit.Sink so the dispatcher can feed it directly.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}
	logger  *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients: make(map[uuid.UUID]map[*client]struct{}),
		logger:  log,
	}
}

func (h *Hub) Name() string { return "websocket" }

// Deliver never fails; slow or absent clients simply miss events and can
// resync through the status endpoint.
func (h *Hub) Deliver(ctx context.Context, events []audit.TimelineEvent) error {
	for i := range events {
		h.Publish(events[i])
	}
	return nil
}

// Publish pushes one event to every client subscribed to its booking.
func (h *Hub) Publish(e audit.TimelineEvent) {
	event := e
	h.broadcast(&Message{
		Type:      MessageTimeline,
		BookingID: e.BookingID,
		Status:    e.ToStatus,
		Event:     &event,
	})
}

// Subscribers reports how many clients watch the booking.
func (h *Hub) Subscribers(bookingID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[bookingID])
}

func (h *Hub) broadcast(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Warn("failed to encode stream message", "booking_id", msg.BookingID)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[msg.BookingID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("stream client too slow, dropping message", "booking_id", msg.BookingID)
		}
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.bookingID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.bookingID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.bookingID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.bookingID)
	}
}

// Serve registers conn for bookingID, writes the initial snapshot and blocks
// until the client goes away.
func (h *Hub) Serve(conn *websocket.Conn, bookingID uuid.UUID, status string) {
	c := &client{
		bookingID: bookingID,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
	}

	if data, err := json.Marshal(&Message{Type: MessageSnapshot, BookingID: bookingID, Status: status}); err == nil {
		c.send <- data
	}

	h.register(c)
	go h.writePump(c)
	h.readPump(c)
}

// readPump only services control frames; clients never send data.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
