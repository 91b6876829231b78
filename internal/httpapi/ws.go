package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/transferlens/transferlens/internal/persistence"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	// Slow subscribers are dropped rather than backpressuring the hub.
	wsSendBuffer = 64
)

// Hub fans freshly written prediction snapshots out to websocket
// subscribers. In-process only; each API instance serves its own feed.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan persistence.PredictionSnapshot
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: map[*wsClient]struct{}{}}
}

// Publish delivers one snapshot to every connected subscriber.
func (h *Hub) Publish(snap persistence.PredictionSnapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- snap:
		default:
			// Buffer full; the write loop will notice on close.
		}
	}
}

// Subscribers reports the current connection count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The REST layer already handles CORS; the feed is public read-only.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleMarketFeed upgrades the connection and streams snapshots until the
// client goes away.
func (s *Server) handleMarketFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	client := &wsClient{conn: conn, send: make(chan persistence.PredictionSnapshot, wsSendBuffer)}
	s.hub.add(client)
	log.Debug().Int("subscribers", s.hub.Subscribers()).Msg("Websocket client connected")

	go client.writeLoop()
	client.readLoop(s.hub)
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case snap, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(snap); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains control frames; any read error ends the session.
func (c *wsClient) readLoop(hub *Hub) {
	defer hub.remove(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// PublishingPredictions decorates a predictions repo so every upsert also
// reaches websocket subscribers. Used when scoring runs inside the API
// process.
type PublishingPredictions struct {
	persistence.PredictionsRepo
	Hub *Hub
}

func (p *PublishingPredictions) Upsert(ctx context.Context, snap persistence.PredictionSnapshot) (persistence.PredictionSnapshot, error) {
	saved, err := p.PredictionsRepo.Upsert(ctx, snap)
	if err == nil {
		p.Hub.Publish(saved)
	}
	return saved, err
}
