package game

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Dispatcher consumes inbound frames and connection drops. *Protocol
// implements it.
type Dispatcher interface {
	HandleMessage(ctx context.Context, connID string, raw []byte)
	Disconnect(ctx context.Context, connID string)
}

type inboundFrame struct {
	connID string
	data   []byte
}

// Hub tracks every live client and funnels all inbound traffic through its
// single run loop, so the dispatcher handles one message at a time: runtime
// state never races, interleaving across connections is arrival order.
//
// Hub implements ConnRegistry.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame

	mu     sync.RWMutex
	byConn map[string]*Client
	byUser map[int]*Client

	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, 256),
		byConn:     make(map[string]*Client),
		byUser:     make(map[int]*Client),
		logger:     logger,
	}
}

// Run processes registrations, drops and inbound frames until the context is
// cancelled. It is the only goroutine that calls the dispatcher.
func (h *Hub) Run(ctx context.Context, dispatcher Dispatcher) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			if prev, ok := h.byUser[client.userID]; ok && prev != client {
				// A reconnecting user replaces their old socket.
				delete(h.byConn, prev.connID)
				prev.close()
			}
			h.byConn[client.connID] = client
			h.byUser[client.userID] = client
			h.mu.Unlock()
			h.logger.Info("client registered",
				slog.String("connection_id", client.connID),
				slog.Int("user_id", client.userID),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			current, ok := h.byConn[client.connID]
			if ok && current == client {
				delete(h.byConn, client.connID)
				if u, userOk := h.byUser[client.userID]; userOk && u == client {
					delete(h.byUser, client.userID)
				}
			}
			h.mu.Unlock()
			client.close()
			if ok {
				h.logger.Info("client unregistered",
					slog.String("connection_id", client.connID),
					slog.Int("user_id", client.userID),
				)
				dispatcher.Disconnect(ctx, client.connID)
			}

		case frame := <-h.inbound:
			dispatcher.HandleMessage(ctx, frame.connID, frame.data)
		}
	}
}

// Register hands a freshly upgraded client to the run loop.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) GetConnectionByID(id string) Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.byConn[id]; ok {
		return client
	}
	return nil
}

func (h *Hub) GetConnectionByUserID(userID int) Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.byUser[userID]; ok {
		return client
	}
	return nil
}

// Client is one websocket connection with its write pump. It implements
// Conn.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	connID string
	userID int

	mu     sync.Mutex
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, connID string, userID int) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		connID: connID,
		userID: userID,
	}
}

func (c *Client) ConnectionID() string { return c.connID }

func (c *Client) UserID() int { return c.userID }

// Send queues a text frame for the write pump. It never blocks: a closed or
// saturated client fails fast and the caller decides whether that matters.
func (c *Client) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection is closed")
	}
	select {
	case c.send <- []byte(text):
		return nil
	default:
		return errors.New("send buffer full")
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

// ReadPump reads frames off the socket into the hub until the connection
// drops, then unregisters itself.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("unexpected close",
					slog.String("connection_id", c.connID),
					slog.Any("error", err),
				)
			}
			break
		}
		c.hub.inbound <- inboundFrame{connID: c.connID, data: message}
	}
}

// WritePump drains the send queue onto the socket and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Batch whatever else is already queued.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if queued, more := <-c.send; more {
					w.Write(queued)
				}
			}

			if err := w.Close(); err != nil {
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
