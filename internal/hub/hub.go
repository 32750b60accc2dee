package hub

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Hub tracks every live connection, joined or not, and tears them all down
// on shutdown. Room membership lives in the session registry.
type Hub struct {
	clients    map[string]*Client // clientID -> client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves register/unregister requests until ctx is cancelled, then
// closes every remaining client.
func (h *Hub) Run(ctx context.Context) {
	l := log.L()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			l.Info().Msg("hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID()] = client
			h.mu.Unlock()
			l.Debug().Str(log.FieldConnID, client.ID()).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID()]; ok {
				delete(h.clients, client.ID())
				client.Close()
			}
			h.mu.Unlock()
			l.Debug().Str(log.FieldConnID, client.ID()).Msg("client unregistered")
		}
	}
}

// Wait blocks until Run has returned.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.Close()
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		client.Close()
		delete(h.clients, id)
	}
}
