package alerts

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxReadBytes = 4096
	sendBuffer   = 64
)

var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

// Subscription narrows what a socket receives. Empty fields match all.
type Subscription struct {
	Wallets []string    `json:"wallets"`
	Types   []AlertType `json:"types"`
}

func (s Subscription) matches(a Alert) bool {
	if len(s.Wallets) > 0 && !contains(s.Wallets, a.Wallet) {
		return false
	}
	if len(s.Types) > 0 && !contains(s.Types, a.Type) {
		return false
	}
	return true
}

func contains[T comparable](xs []T, x T) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Hub upgrades HTTP requests to WebSocket listeners on a Registry.
type Hub struct {
	registry   *Registry
	upgrader   websocket.Upgrader
	maxClients int
}

// NewHub creates a hub. allowedOrigins lists browser origins permitted to
// connect besides the serving host; non-browser clients are always allowed.
func NewHub(registry *Registry, maxClients int, allowedOrigins []string) *Hub {
	h := &Hub{registry: registry, maxClients: maxClients}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if origin == "http://"+r.Host || origin == "https://"+r.Host {
				return true
			}
			return contains(allowedOrigins, origin)
		},
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.maxClients > 0 && h.registry.Len() >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("alerts: websocket upgrade failed")
		return
	}

	c := &socket{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	h.registry.Add(c)

	go c.writePump()
	go c.readPump(h.registry)
}

// socket is a Listener backed by one WebSocket connection.
type socket struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu  sync.RWMutex
	sub Subscription

	closeOnce sync.Once
	done      chan struct{}
}

func (c *socket) ID() string { return c.id }

func (c *socket) Accepts(a Alert) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub.matches(a)
}

func (c *socket) Send(a Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.close()
		return ErrSlowListener
	}
}

// Close asks the write pump to send a close frame and exit.
func (c *socket) Close() { c.close() }

func (c *socket) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump applies subscription updates until the peer goes away.
func (c *socket) readPump(registry *Registry) {
	defer func() {
		registry.Remove(c.id)
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				log.Debug().Err(err).Str("listener", c.id).Msg("alerts: websocket read error")
			}
			return
		}
		var sub Subscription
		if err := json.Unmarshal(msg, &sub); err != nil {
			continue
		}
		c.mu.Lock()
		c.sub = sub
		c.mu.Unlock()
	}
}

func (c *socket) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("listener", c.id).Msg("alerts: websocket write error")
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
