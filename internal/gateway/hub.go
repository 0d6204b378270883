package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub manages WebSocket clients and fans status events out to them.
// Implements http.Handler for the /ws endpoint.
type Hub struct {
	log zerolog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool
	ring    *Ring
	seq     int64

	now func() time.Time
}

// NewHub creates a hub whose replay ring holds replaySize events.
func NewHub(replaySize int, log zerolog.Logger) *Hub {
	return &Hub{
		log:     log.With().Str("component", "gateway").Logger(),
		clients: make(map[*Client]bool),
		ring:    NewRing(replaySize),
		now:     time.Now,
	}
}

// Broadcast envelopes payload and sends it to every connected client.
// Clients whose send buffer is full are dropped. The envelope also
// lands in the replay ring for late joiners.
func (h *Hub) Broadcast(t EventType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(t)).Msg("event payload marshal failed")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	env, err := json.Marshal(Event{Type: t, TS: h.now().UTC(), Seq: h.seq, Data: data})
	if err != nil {
		h.log.Error().Err(err).Msg("event envelope marshal failed")
		return
	}
	h.ring.Push(h.seq, env)

	var slow []*Client
	for c := range h.clients {
		select {
		case c.send <- env:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(h.clients, c)
		close(c.send)
		h.log.Warn().Msg("dropping slow ws client")
	}
}

// ServeHTTP upgrades the connection, replays recent events, and starts
// the client pumps.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	// Replay queued before registration so live broadcasts cannot
	// interleave ahead of older events.
	for _, env := range h.ring.Recent() {
		select {
		case client.send <- env:
		default:
		}
	}
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", count).Msg("ws client connected")

	go client.writePump()
	go client.readPump()
}

// removeClient unregisters a client. Safe to call more than once.
func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
