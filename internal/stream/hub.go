package stream

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans daily progress reports out to websocket subscribers, keyed by
// trek. Reports published on redis by the progress worker reach subscribers
// on every api instance.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	TrekID string
	Send   chan []byte
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(trekID string) *Client {
	client := &Client{
		TrekID: trekID,
		Send:   make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[trekID] == nil {
		h.clients[trekID] = map[*Client]struct{}{}
	}
	h.clients[trekID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if trekClients, ok := h.clients[client.TrekID]; ok {
		delete(trekClients, client)
		if len(trekClients) == 0 {
			delete(h.clients, client.TrekID)
		}
	}
	close(client.Send)
}

func (h *Hub) Broadcast(trekID string, payload []byte) {
	h.deliver(trekID, payload)

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), Channel(trekID), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

func (h *Hub) deliver(trekID string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[trekID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "trek:*:reports")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		h.deliver(trekIDFromChannel(msg.Channel), []byte(msg.Payload))
	}
}

// Channel is the redis channel reports for a trek are published on.
func Channel(trekID string) string {
	return "trek:" + trekID + ":reports"
}

func trekIDFromChannel(ch string) string {
	// trek:{id}:reports
	const prefix = "trek:"
	const suffix = ":reports"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
