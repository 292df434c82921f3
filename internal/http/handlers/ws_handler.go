package handlers

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/company-marketplace/backend/internal/auth"
	"github.com/company-marketplace/backend/internal/config"
	"github.com/company-marketplace/backend/internal/events"
	"github.com/company-marketplace/backend/internal/models"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// wsClient is one open socket. send is the socket's writer.
type wsClient struct {
	userID uuid.UUID
	admin  bool
	send   func(data []byte) error
}

// WSHub pushes moderation notifications to connected browsers: the admin
// queue sees submissions and apply failures, submitters see decisions on
// their own changes.
type WSHub struct {
	cfg        *config.Config
	subscriber events.Subscriber
	log        *zap.Logger
	mu         sync.RWMutex
	clients    map[uuid.UUID][]*wsClient
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:        cfg,
		subscriber: subscriber,
		log:        log,
		clients:    make(map[uuid.UUID][]*wsClient),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.StreamModeration, h.route)
}

// route delivers event to the clients its recipient names. Targets are
// collected under the lock and written to after it is released.
func (h *WSHub) route(event events.Event) {
	recipient, _ := event.Payload["recipient"].(string)
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("failed to encode ws event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	for _, c := range h.targets(recipient) {
		h.write(c, data)
	}
}

func (h *WSHub) targets(recipient string) []*wsClient {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*wsClient
	switch {
	case recipient == events.RecipientAdmins:
		for _, clients := range h.clients {
			for _, c := range clients {
				if c.admin {
					out = append(out, c)
				}
			}
		}
	case strings.HasPrefix(recipient, "user:"):
		id, err := uuid.Parse(strings.TrimPrefix(recipient, "user:"))
		if err != nil {
			return nil
		}
		out = append(out, h.clients[id]...)
	}
	return out
}

func (h *WSHub) write(c *wsClient, data []byte) {
	if err := c.send(data); err != nil {
		h.log.Debug("ws write failed", zap.String("user_id", c.userID.String()), zap.Error(err))
	}
}

func (h *WSHub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.userID] = append(h.clients[c.userID], c)
}

func (h *WSHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.clients[c.userID]
	for i, existing := range clients {
		if existing == c {
			h.clients[c.userID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.clients[c.userID]) == 0 {
		delete(h.clients, c.userID)
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	// Browsers cannot set headers on upgrade, so the token comes in the query.
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	var writeMu sync.Mutex
	client := &wsClient{
		userID: claims.UserID,
		admin:  claims.Role == models.RoleAdmin || h.cfg.IsAdmin(claims.UserID),
		send: func(data []byte) error {
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteMessage(websocket.TextMessage, data)
		},
	}
	h.register(client)
	defer func() {
		h.unregister(client)
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
