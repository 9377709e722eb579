package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// PushChannel serves GET /ws/config over a websocket, broadcasting every
// config.ConfigChangeEvent (model catalog and settings mutations) to
// connected admin tooling. It never accepts messages from the client side —
// the socket is write-only from the server's perspective.
type PushChannel struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewPushChannel creates an empty push channel ready to accept connections
// and broadcast events.
func NewPushChannel(logger *zap.Logger) *PushChannel {
	return &PushChannel{
		logger:  logger.With(zap.String("component", "pushchannel")),
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket and keeps it registered
// for broadcasts until the client disconnects or the request context ends.
func (p *PushChannel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		p.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	p.mu.Lock()
	p.clients[conn] = struct{}{}
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.clients, conn)
		p.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "closing")
	}()

	ctx := r.Context()
	// Drain and discard any client frames; this channel is broadcast-only
	// but the read loop is required to notice the peer disconnecting.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Broadcast marshals event as JSON and writes it to every connected client,
// dropping (and logging) any connection a write fails on rather than
// blocking the caller on a slow reader.
func (p *PushChannel) Broadcast(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("push channel: failed to marshal event", zap.Error(err))
		return
	}

	p.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(p.clients))
	for c := range p.clients {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := c.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			p.logger.Warn("push channel: broadcast write failed", zap.Error(err))
		}
	}
}

// ClientCount reports the number of currently connected clients.
func (p *PushChannel) ClientCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}
