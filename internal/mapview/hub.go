package mapview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/UnknownOlympus/strider/internal/controller"
	"github.com/UnknownOlympus/strider/internal/input"
	"github.com/UnknownOlympus/strider/internal/metrics"
	"github.com/UnknownOlympus/strider/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
	broadcastQueue = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The map view is served from anywhere the operator opens it, including file:// pages.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Client is one connected map view or keypad.
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// enqueue queues msg for the write pump. It reports false when the client is gone or too slow.
func (c *Client) enqueue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// outbound is a queued frame. A nil client means every client.
type outbound struct {
	to  *Client
	msg []byte
}

// Hub keeps the connected clients, fans controller output out to them and feeds their
// messages to the controller.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	ctrl    Controller

	mu        sync.RWMutex
	clients   map[string]*Client
	stopped   bool
	broadcast chan outbound

	// notice is the last location alert. Clients that connect later get it replayed until a
	// position is known.
	noticeMu sync.Mutex
	notice   []byte
}

// NewHub creates a hub. SetController must be called before clients connect.
func NewHub(log *slog.Logger, metrics *metrics.Metrics) *Hub {
	return &Hub{
		log:       log,
		metrics:   metrics,
		clients:   make(map[string]*Client),
		broadcast: make(chan outbound, broadcastQueue),
	}
}

// SetController sets the target of inbound client messages.
func (h *Hub) SetController(ctrl Controller) {
	h.ctrl = ctrl
}

// Run maintains the client set and delivers broadcasts until the context is canceled.
func (h *Hub) Run(ctx context.Context) {
	h.log.InfoContext(ctx, "Map view hub started...")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.stopped = true
			for id, client := range h.clients {
				client.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.observe()
			h.log.InfoContext(ctx, "Map view hub stopped.")
			return

		case out := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for _, client := range h.clients {
				if out.to != nil && out.to != client {
					continue
				}
				if !client.enqueue(out.msg) {
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range slow {
				h.log.WarnContext(ctx, "Dropping slow client", "client", client.ID)
				h.drop(client)
			}
		}
	}
}

// add registers client. It reports false once the hub has stopped.
func (h *Hub) add(client *Client) bool {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return false
	}
	h.clients[client.ID] = client
	h.mu.Unlock()
	h.observe()

	return true
}

func (h *Hub) drop(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		client.close()
	}
	h.mu.Unlock()
	h.observe()
}

func (h *Hub) observe() {
	if h.metrics == nil {
		return
	}
	h.mu.RLock()
	h.metrics.ConnectedClients.Set(float64(len(h.clients)))
	h.mu.RUnlock()
}

// ServeWS upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.ErrorContext(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		conn: conn,
		hub:  h,
		send: make(chan []byte, sendBuffer),
	}
	if !h.add(client) {
		_ = conn.Close()
		return
	}

	// The request context ends when this handler returns; the connection outlives it.
	ctx := context.WithoutCancel(r.Context())
	h.log.DebugContext(ctx, "Client connected", "client", client.ID)

	go client.writePump()
	go client.readPump(ctx)

	// The client is registered before the snapshot is taken, and the snapshot travels the same
	// queue as broadcasts, so nothing older can follow it.
	if state, errState := h.ctrl.State(ctx); errState == nil {
		h.send(ctx, outbound{to: client, msg: encode(TypeState, state)})
	}
	if notice := h.lastNotice(); notice != nil {
		h.send(ctx, outbound{to: client, msg: notice})
	}
}

// PublishState broadcasts the walker state to every client. A known position retires the
// last location alert.
func (h *Hub) PublishState(ctx context.Context, state controller.State) {
	if state.Position != nil {
		h.setNotice(nil)
	}
	h.Broadcast(ctx, encode(TypeState, state))
}

// PublishDestination broadcasts a submitted destination so clients can clear their search field.
func (h *Hub) PublishDestination(ctx context.Context, destination models.Coordinates) {
	h.Broadcast(ctx, encode(TypeDestination, destinationMessage{
		Coordinates: destination,
		ClearSearch: true,
	}))
}

// Warning shows a location warning on every client, including clients that connect before a
// position is known.
func (h *Hub) Warning(ctx context.Context, message string) {
	h.notify(ctx, AlertWarning, message)
}

// Error shows a location error on every client, including clients that connect before a
// position is known.
func (h *Hub) Error(ctx context.Context, message string) {
	h.notify(ctx, AlertError, message)
}

func (h *Hub) notify(ctx context.Context, level, message string) {
	msg := encode(TypeAlert, AlertMessage{Level: level, Message: message})
	h.setNotice(msg)
	h.Broadcast(ctx, msg)
}

func (h *Hub) setNotice(msg []byte) {
	h.noticeMu.Lock()
	defer h.noticeMu.Unlock()
	h.notice = msg
}

func (h *Hub) lastNotice() []byte {
	h.noticeMu.Lock()
	defer h.noticeMu.Unlock()
	return h.notice
}

// Broadcast queues a raw message for every client. It never blocks; a full queue drops msg.
func (h *Hub) Broadcast(ctx context.Context, msg []byte) {
	h.send(ctx, outbound{msg: msg})
}

func (h *Hub) send(ctx context.Context, out outbound) {
	if out.msg == nil {
		return
	}
	select {
	case h.broadcast <- out:
	default:
		h.log.ErrorContext(ctx, "Broadcast queue is full, message dropped")
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.drop(c)
		_ = c.conn.Close()
		c.hub.log.DebugContext(ctx, "Client disconnected", "client", c.ID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WarnContext(ctx, "WebSocket read failed", "client", c.ID, "error", err)
			}
			return
		}

		var msg Message
		if err = json.Unmarshal(raw, &msg); err != nil {
			c.hub.log.WarnContext(ctx, "Malformed client message", "client", c.ID, "error", err)
			c.alert(AlertError, "malformed message")
			continue
		}

		if err = c.hub.handle(ctx, c, msg); err != nil {
			c.reportError(ctx, msg.Type, err)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) alert(level, message string) {
	c.enqueue(encode(TypeAlert, AlertMessage{Level: level, Message: message}))
}

// reportError tells the sender why its message had no effect. A move before the location is
// known is expected while the bootstrap runs and only logged.
func (c *Client) reportError(ctx context.Context, msgType string, err error) {
	if errors.Is(err, input.ErrLocationUnknown) {
		c.hub.log.DebugContext(ctx, "Client message ignored", "client", c.ID, "type", msgType, "error", err)
		return
	}

	c.hub.log.WarnContext(ctx, "Client message failed", "client", c.ID, "type", msgType, "error", err)
	c.alert(AlertError, err.Error())
}

func encode(msgType string, data any) []byte {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	msg, err := json.Marshal(Message{Type: msgType, Data: payload})
	if err != nil {
		return nil
	}
	return msg
}
