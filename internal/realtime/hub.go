package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is one message exchanged with a dashboard over the websocket.
type Frame struct {
	Type      string          `json:"type"`
	Data      any             `json:"data,omitempty"`
	Raw       json.RawMessage `json:"-"`
	Timestamp int64           `json:"timestamp"`
}

// HubConfig tunes connection handling.
type HubConfig struct {
	SendBuffer     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func (c *HubConfig) defaults() {
	if c.SendBuffer <= 0 {
		c.SendBuffer = 32
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
}

// Hub tracks dashboard websocket connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
	cfg     HubConfig
	logger  *slog.Logger
}

func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[string]*Client), cfg: cfg, logger: logger}
}

// ErrHubClosed is returned by Attach after Close.
var ErrHubClosed = errors.New("websocket hub closed")

// Client is one dashboard connection.
type Client struct {
	ID   string
	conn *websocket.Conn
	hub  *Hub
	send chan Frame
	done chan struct{}
	once sync.Once
}

// Attach registers conn under id. The caller must call Run.
func (h *Hub) Attach(conn *websocket.Conn, id string) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}
	c := &Client{ID: id, conn: conn, hub: h, send: make(chan Frame, h.cfg.SendBuffer), done: make(chan struct{})}
	h.clients[id] = c
	return c, nil
}

// Count returns the number of attached clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if cur, ok := h.clients[c.ID]; ok && cur == c {
		delete(h.clients, c.ID)
	}
	h.mu.Unlock()
}

// Send queues f without blocking. A full buffer drops the frame; dashboards
// get a full snapshot on the next change so nothing is lost for long.
func (c *Client) Send(f Frame) bool {
	if f.Timestamp == 0 {
		f.Timestamp = time.Now().UnixMilli()
	}
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- f:
		return true
	case <-c.done:
		return false
	default:
		c.hub.logger.Warn("websocket send buffer full, frame dropped", "client", c.ID, "type", f.Type)
		return false
	}
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close terminates the connection. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Run pumps frames until the connection ends or ctx is cancelled. Incoming
// frames are handed to onFrame from the calling goroutine.
func (c *Client) Run(ctx context.Context, onFrame func(Frame)) {
	defer c.hub.remove(c)
	defer c.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()

	c.readPump(onFrame)
	c.Close()
	wg.Wait()
}

func (c *Client) readPump(onFrame func(Frame)) {
	cfg := c.hub.cfg
	pongWait := cfg.PingInterval * 2
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Info("websocket read ended", "client", c.ID, "err", err)
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			c.hub.logger.Warn("invalid websocket frame", "client", c.ID, "err", err)
			continue
		}
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(msg, &env); err == nil {
			f.Raw = env.Data
		}
		if onFrame != nil {
			onFrame(f)
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.writeClose()
			c.Close()
			return
		case <-c.done:
			return
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteJSON(f); err != nil {
				c.hub.logger.Info("websocket write failed", "client", c.ID, "err", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Client) writeClose() {
	deadline := time.Now().Add(c.hub.cfg.WriteTimeout)
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, deadline)
}
