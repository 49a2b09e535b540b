package stream

import (
	"context"
	"strings"
	"sync"

	"backend-quranicare/internal/logging"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "sessions:"
	channelSuffix  = ":events"
	channelPattern = channelPrefix + "*" + channelSuffix
)

// Hub fans session events out to websocket clients of this process and, when
// redis is configured, to every other API instance.
type Hub struct {
	redis   *redis.Client
	log     *zap.Logger
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	SessionID string
	Send      chan []byte
}

func NewHub(redisClient *redis.Client, logger *zap.Logger) *Hub {
	h := newHub(redisClient, logger)
	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

// NewPublisher returns a hub for processes that only emit events, such as
// batch jobs. It never subscribes to redis, so it has no local clients to
// feed.
func NewPublisher(redisClient *redis.Client, logger *zap.Logger) *Hub {
	return newHub(redisClient, logger)
}

func newHub(redisClient *redis.Client, logger *zap.Logger) *Hub {
	return &Hub{
		redis:   redisClient,
		log:     logging.OrNop(logger),
		clients: map[string]map[*Client]struct{}{},
	}
}

func (h *Hub) Register(sessionID string) *Client {
	client := &Client{
		SessionID: sessionID,
		Send:      make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[sessionID] == nil {
		h.clients[sessionID] = map[*Client]struct{}{}
	}
	h.clients[sessionID][client] = struct{}{}
	return client
}

// Unregister removes client and closes its Send channel. Calling it twice is
// a no-op.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessionClients, ok := h.clients[client.SessionID]
	if !ok {
		return
	}
	if _, ok := sessionClients[client]; !ok {
		return
	}
	delete(sessionClients, client)
	if len(sessionClients) == 0 {
		delete(h.clients, client.SessionID)
	}
	close(client.Send)
}

func (h *Hub) subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Publish delivers payload to local subscribers of sessionID. With redis
// configured the local delivery happens through the pub/sub round trip so
// every instance, this one included, sees each event exactly once.
func (h *Hub) Publish(sessionID string, payload []byte) {
	if h.redis == nil {
		h.deliver(sessionID, payload)
		return
	}
	if err := h.redis.Publish(context.Background(), channelName(sessionID), payload).Err(); err != nil {
		h.log.Warn("redis publish failed, delivering locally", zap.String("session_id", sessionID), zap.Error(err))
		h.deliver(sessionID, payload)
	}
}

func (h *Hub) deliver(sessionID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, channelPattern)
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		sessionID := sessionIDFromChannel(msg.Channel)
		if sessionID == "" {
			continue
		}
		h.deliver(sessionID, []byte(msg.Payload))
	}
}

func channelName(sessionID string) string {
	return channelPrefix + sessionID + channelSuffix
}

func sessionIDFromChannel(ch string) string {
	if !strings.HasPrefix(ch, channelPrefix) || !strings.HasSuffix(ch, channelSuffix) {
		return ""
	}
	if len(ch) <= len(channelPrefix)+len(channelSuffix) {
		return ""
	}
	return ch[len(channelPrefix) : len(ch)-len(channelSuffix)]
}
