package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studymate-backend/internal/models"
	"studymate-backend/internal/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TokenVerifier turns a bearer token into a user id.
type TokenVerifier interface {
	ParseUserID(token string) (string, error)
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub holds every socket per user. With a Redis client it relays the
// user's pub/sub channel to its sockets; without one, Publish delivers
// directly to the sockets held by this process.
type Hub struct {
	mu          sync.RWMutex
	connections map[string][]*client
	cancelFuncs map[string]context.CancelFunc
	redisClient *redis.Client
	verifier    TokenVerifier
	log         *zap.Logger
}

func NewHub(redisClient *redis.Client, verifier TokenVerifier, log *zap.Logger) *Hub {
	return &Hub{
		connections: make(map[string][]*client),
		cancelFuncs: make(map[string]context.CancelFunc),
		redisClient: redisClient,
		verifier:    verifier,
		log:         log,
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	userID, err := h.verifier.ParseUserID(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn}
	h.registerConnection(userID, c)

	go func() {
		defer h.unregisterConnection(userID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[userID] = append(h.connections[userID], c)

	// First socket for this user opens the pub/sub subscription.
	if h.redisClient != nil && len(h.connections[userID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[userID] = cancel
		go h.subscribeToPubSub(ctx, userID)
	}

	h.log.Info("websocket connected", zap.String("user_id", userID), zap.Int("total", len(h.connections[userID])))
}

func (h *Hub) unregisterConnection(userID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[userID]
	for i, existing := range conns {
		if existing == c {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
			delete(h.cancelFuncs, userID)
		}
	}

	h.log.Info("websocket disconnected", zap.String("user_id", userID))
}

func (h *Hub) subscribeToPubSub(ctx context.Context, userID string) {
	pubsub := h.redisClient.Subscribe(ctx, services.UserChannel(userID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(userID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(userID string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.connections[userID] {
		if err := c.write(data); err != nil {
			h.log.Debug("websocket write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// Publish implements services.Publisher for single-process deployments.
func (h *Hub) Publish(_ context.Context, userID string, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast(userID, data)
}

// Connections returns the number of open sockets for userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

// Close drops every socket and subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, conns := range h.connections {
		for _, c := range conns {
			c.conn.Close()
		}
		if cancel, ok := h.cancelFuncs[userID]; ok {
			cancel()
		}
	}
	h.connections = make(map[string][]*client)
	h.cancelFuncs = make(map[string]context.CancelFunc)
}
