package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Message is the envelope pushed to dashboard sockets.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// ClientGauge receives the connected socket count.
type ClientGauge interface {
	SetClients(n int)
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans state updates out to every connected dashboard.
type Hub struct {
	log   *slog.Logger
	gauge ClientGauge

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte

	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

func NewHub(log *slog.Logger, gauge ClientGauge) *Hub {
	return &Hub{
		log:        log,
		gauge:      gauge,
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run is the hub loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			h.setGauge(0)
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			last := h.last
			n := len(h.clients)
			h.mu.Unlock()
			if last != nil {
				c.send <- last
			}
			h.setGauge(n)
			if h.log != nil {
				h.log.Debug("dashboard connected", "clients", n)
			}
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.setGauge(n)
		case msg := <-h.broadcast:
			h.mu.Lock()
			h.last = msg
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.setGauge(n)
		}
	}
}

// Publish queues a message for every client. A full queue drops the message.
func (h *Hub) Publish(typ string, payload any) {
	data, err := json.Marshal(Message{Type: typ, Payload: payload})
	if err != nil {
		if h.log != nil {
			h.log.Warn("encode hub message failed", "type", typ, "error", err)
		}
		return
	}
	select {
	case h.broadcast <- data:
	default:
		if h.log != nil {
			h.log.Warn("hub queue full, dropping message", "type", typ)
		}
	}
}

// Clients returns the number of connected sockets.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) setGauge(n int) {
	if h.gauge != nil {
		h.gauge.SetClients(n)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and attaches the socket to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warn("websocket upgrade failed", "error", err)
		}
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump only drains control frames; the dashboard sends commands over HTTP.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && c.hub.log != nil {
				c.hub.log.Debug("websocket closed", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
