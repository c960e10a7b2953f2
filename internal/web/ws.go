package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSMessage is the envelope for every frame pushed to dashboard clients.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Sessions []SessionView `json:"sessions"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	// mu serializes sends against close: the broadcaster works from a
	// snapshot of the client map, so a send can race a disconnect.
	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// trySend queues msg without blocking. Reports false only when the client
// is alive but its buffer is full; a closed client is not a failure, just
// one that will be reaped from the map shortly.
func (c *client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Broadcaster pushes full session snapshots to connected WebSocket clients
/// on a fixed interval. Deltas are not worth the bookkeeping here: the whole
// list is rebuilt from disk each poll anyway.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	snapshot func(context.Context) ([]SessionView, error)
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewBroadcaster(snapshot func(context.Context) ([]SessionView, error), interval time.Duration) *Broadcaster {
	b := &Broadcaster{
		clients:  make(map[*client]bool),
		snapshot: snapshot,
		interval: interval,
		stop:     make(chan struct{}),
	}
	go b.snapshotLoop()
	return b
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	if data, ok := b.snapshotMessage(); ok {
		// Buffer full on connect just means the initial snapshot is dropped;
		// the next tick delivers one.
		c.trySend(data)
	}
	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
}

func (b *Broadcaster) snapshotLoop() {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
		}

		if b.ClientCount() == 0 {
			continue
		}
		if data, ok := b.snapshotMessage(); ok {
			b.broadcast(data)
		}
	}
}

func (b *Broadcaster) snapshotMessage() ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), b.interval)
	defer cancel()

	sessions, err := b.snapshot(ctx)
	if err != nil {
		// Typically the session store does not exist yet. Clients poll
		// /api/sessions too, so a missed push is harmless.
		log.Printf("ws snapshot error: %v", err)
		return nil, false
	}

	data, err := json.Marshal(WSMessage{
		Type:    "snapshot",
		Payload: SnapshotPayload{Sessions: sessions},
	})
	if err != nil {
		log.Printf("ws snapshot marshal error: %v", err)
		return nil, false
	}
	return data, true
}

func (b *Broadcaster) broadcast(data []byte) {
	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if !c.trySend(data) {
			// Client can't keep up, disconnect it
			log.Printf("ws client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket client connected: %s", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// checkOrigin accepts same-host and loopback origins. The server binds to
// loopback by default, so this only matters when exposed deliberately.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if host == r.Host {
		return true
	}
	for _, local := range []string{"localhost", "127.0.0.1", "[::1]"} {
		if host == local || strings.HasPrefix(host, local+":") {
			return true
		}
	}
	return false
}
