package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/decimalcoins/broom-chat/internal/metrics"
	"github.com/decimalcoins/broom-chat/internal/models"
)

type UserStore interface {
	UpsertUser(ctx context.Context, id, username string) (*models.User, error)
}

// PresenceTracker counts the users that have a room open.
type PresenceTracker interface {
	Join(ctx context.Context, roomID, userID string) error
	Leave(ctx context.Context, roomID, userID string) error
	Refresh(ctx context.Context, roomID string) error
	Online(ctx context.Context, roomID string) (int64, error)
}

// Services are the shared backends every connection's controller is built on.
type Services struct {
	Messages MessageStore
	Rooms    RoomStore
	Accounts AccountStore
	Users    UserStore
	Feed     Subscriber
	Presence PresenceTracker

	PaymentTimeout time.Duration
	RateLimit      rate.Limit
	RateBurst      int
}

// Hub is the registry of connected clients, one per user.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	svc Services
}

func NewHub(svc Services) *Hub {
	if svc.RateLimit == 0 {
		svc.RateLimit = rate.Limit(5)
	}
	if svc.RateBurst == 0 {
		svc.RateBurst = 10
	}
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		svc:        svc,
	}
}

// Run processes registrations until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if old, ok := h.clients[client.User.ID]; ok {
				old.closeSend()
			}
			h.clients[client.User.ID] = client
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ConnectedClients.Set(float64(n))
			slog.Info("client connected", "user_id", client.User.ID, "username", client.User.Username)

		case client := <-h.unregister:
			h.mu.Lock()
			if existing, ok := h.clients[client.User.ID]; ok && existing == client {
				delete(h.clients, client.User.ID)
			}
			n := len(h.clients)
			h.mu.Unlock()
			client.closeSend()
			metrics.ConnectedClients.Set(float64(n))
			slog.Info("client disconnected", "user_id", client.User.ID)

		case <-ctx.Done():
			h.Shutdown()
			return nil
		}
	}
}

func (h *Hub) add(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		c.closeSend()
	}
}

func (h *Hub) OnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.closeSend()
		delete(h.clients, id)
	}
	metrics.ConnectedClients.Set(0)
}
