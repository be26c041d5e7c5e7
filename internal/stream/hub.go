// Package stream pushes decisions to websocket subscribers.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	domrepo "FinPolicy/internal/domain/repository"
	applogger "FinPolicy/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans decisions out to connected clients. A client whose buffer is full
// is disconnected rather than slowing the others.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	l       *applogger.Logger
}

var _ domrepo.DecisionBroadcaster = (*Hub)(nil)

func NewHub(l *applogger.Logger) *Hub {
	if l == nil {
		l = applogger.Nop()
	}
	return &Hub{clients: make(map[*client]struct{}), l: l.Component("stream")}
}

// Clients returns the number of live subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast JSON encodes v once and queues it for every client.
func (h *Hub) Broadcast(v interface{}) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.l.Warn("broadcast encode failed", applogger.Error(err))
		return
	}
	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		h.l.Warn("dropping slow subscriber", applogger.String("remote", c.conn.RemoteAddr().String()))
		h.remove(c)
	}
}

// ServeHTTP upgrades the request and subscribes the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.l.Warn("websocket upgrade failed", applogger.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// readPump only watches for close frames and pongs.
func (h *Hub) readPump(c *client) {
	defer h.remove(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
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
				h.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}
