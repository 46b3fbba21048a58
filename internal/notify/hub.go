// Package notify pushes agent events to websocket subscribers.
package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"trading-arena/internal/observability"
)

// ErrHubClosed is returned by Serve after Close.
var ErrHubClosed = errors.New("hub closed")

// HubConfig configures websocket behavior.
type HubConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a client may stay silent, pongs included.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SendBuffer is the per-client queue; events beyond it are dropped.
	SendBuffer int
}

// DefaultHubConfig returns default websocket configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   16,
	}
}

// Message is the frame written to subscribers.
type Message struct {
	Type    string    `json:"type"`
	AgentID string    `json:"agent_id"`
	Data    any       `json:"data,omitempty"`
	SentAt  time.Time `json:"sent_at"`
}

type client struct {
	agentID string
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans out messages to the subscribers of each agent.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu     sync.RWMutex
	subs   map[string]map[*client]struct{}
	total  int
	closed bool
}

// NewHub creates a hub. A nil config uses DefaultHubConfig.
func NewHub(config *HubConfig, logger *log.Logger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		subs:   make(map[string]map[*client]struct{}),
	}
}

// Serve upgrades the request and streams agentID's messages until the
// client disconnects or the hub closes. It blocks for the life of the
// connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, agentID string) error {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return ErrHubClosed
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	c := &client{
		agentID: agentID,
		conn:    conn,
		send:    make(chan []byte, h.config.SendBuffer),
		done:    make(chan struct{}),
	}
	if !h.register(c) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return ErrHubClosed
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(c)
	}()

	h.readLoop(c)
	c.stop()
	wg.Wait()
	h.unregister(c)
	conn.Close()
	return nil
}

// readLoop discards client frames and keeps the read deadline fresh.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}

// writeLoop is the only writer on the connection.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.conn.Close()
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.stop()
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				c.conn.Close()
				return
			}
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.subs[c.agentID]
	if !ok {
		set = make(map[*client]struct{})
		h.subs[c.agentID] = set
	}
	set[c] = struct{}{}
	h.total++
	observability.SetWSClients(h.total)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[c.agentID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.subs, c.agentID)
	}
	h.total--
	observability.SetWSClients(h.total)
}

// Publish queues a message for every subscriber of agentID. A subscriber
// whose queue is full misses the message.
func (h *Hub) Publish(agentID, msgType string, data any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.subs[agentID]
	if len(set) == 0 {
		return
	}

	payload, err := json.Marshal(Message{Type: msgType, AgentID: agentID, Data: data, SentAt: time.Now().UTC()})
	if err != nil {
		h.logger.Printf("encode %s for %s: %v", msgType, agentID, err)
		return
	}

	for c := range set {
		select {
		case c.send <- payload:
			observability.RecordWSEvent(true)
		default:
			observability.RecordWSEvent(false)
		}
	}
}

// Clients returns the number of subscribers of agentID.
func (h *Hub) Clients(agentID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[agentID])
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, set := range h.subs {
		for c := range set {
			c.stop()
		}
	}
}
