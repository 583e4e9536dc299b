package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	models "SignalFuse/internal/domain/models"
	xlogger "SignalFuse/pkg/logger"
	xutil "SignalFuse/pkg/util"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	symbol string // empty subscribes to every symbol
	send   chan []byte
}

// Hub fans finished analyses out to websocket subscribers. Slow clients
// are dropped rather than blocking the broadcaster.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	l       *xlogger.Logger
}

func NewHub(l *xlogger.Logger) *Hub {
	if l == nil {
		l = xlogger.NewNop()
	}
	return &Hub{clients: make(map[*client]struct{}), l: l}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/signals", h.Serve)
}

// Broadcast encodes a once and queues it to every matching subscriber.
func (h *Hub) Broadcast(a *models.Analysis) {
	b, err := json.Marshal(a)
	if err != nil {
		h.l.Error("ws encode failed", xlogger.String("id", a.ID), xlogger.Error(err))
		return
	}
	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		if c.symbol != "" && c.symbol != a.Symbol {
			continue
		}
		select {
		case c.send <- b:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range slow {
		h.l.Warn("ws client too slow, dropping", xlogger.String("symbol", c.symbol))
		h.remove(c)
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request. ?symbol= narrows the feed to one symbol.
func (h *Hub) Serve(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("ws upgrade failed", xlogger.Error(err))
		return nil
	}
	cl := &client{
		symbol: xutil.NormalizeSymbol(c.QueryParam("symbol")),
		send:   make(chan []byte, sendBuffer),
	}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	h.l.Info("ws client connected", xlogger.String("symbol", cl.symbol), xlogger.Int("clients", h.Len()))

	go h.writePump(conn, cl)
	h.readPump(conn, cl)
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump only services control frames; it returns when the peer goes away.
func (h *Hub) readPump(conn *websocket.Conn, c *client) {
	defer func() {
		h.remove(c)
		conn.Close()
	}()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
