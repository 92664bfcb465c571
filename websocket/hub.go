package websocket

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"tile-ops-server/services"
)

// redis channel per user group; every server process subscribes to the
// pattern and delivers to its own local sessions.
const userChannelPrefix = "notifications:user:"

// Hub maintains one broadcast group per user id. Any number of concurrent
// sessions for the same user join the same group. Cross-process fan-out
// goes through redis pub/sub; with no redis client the hub degrades to
// in-process delivery.
type Hub struct {
	store *services.NotificationStore
	rdb   *redis.Client // optional

	// Registered sessions, grouped by user id
	clients map[uint]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	mu sync.Mutex
}

// NewHub creates a hub. rdb may be nil for single-process deployments and
// tests.
func NewHub(store *services.NotificationStore, rdb *redis.Client) *Hub {
	return &Hub{
		store:      store,
		rdb:        rdb,
		clients:    make(map[uint]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run starts the hub's registration loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			if h.clients[client.UserID] == nil {
				h.clients[client.UserID] = make(map[*Client]bool)
			}
			h.clients[client.UserID][client] = true
			h.mu.Unlock()
			log.Printf("🔌 Session registered for user %d", client.UserID)

		case client := <-h.Unregister:
			h.mu.Lock()
			if sessions, ok := h.clients[client.UserID]; ok {
				if _, ok := sessions[client]; ok {
					delete(sessions, client)
					if len(sessions) == 0 {
						delete(h.clients, client.UserID)
					}
				}
			}
			h.mu.Unlock()
			client.closeSend()
			log.Printf("🔌 Session unregistered for user %d", client.UserID)
		}
	}
}

// RunSubscriber consumes the redis pattern subscription and delivers
// incoming frames to local sessions. No-op without a redis client.
func (h *Hub) RunSubscriber(ctx context.Context) {
	if h.rdb == nil {
		return
	}

	pubsub := h.rdb.PSubscribe(ctx, userChannelPrefix+"*")
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			userID, err := userIDFromChannel(msg.Channel)
			if err != nil {
				log.Printf("⚠️ Ignoring pub/sub message on unexpected channel %s", msg.Channel)
				continue
			}
			h.deliverLocal(userID, []byte(msg.Payload))
		}
	}
}

// NotifyUser pushes a new_notification event to every live session in the
// user's group. Fire-and-forget: with zero connected sessions the event is
// simply dropped. Returns whether any session received it.
func (h *Hub) NotifyUser(userID uint, snapshot map[string]interface{}) bool {
	frame, err := json.Marshal(map[string]interface{}{
		"type":         "new_notification",
		"notification": snapshot,
	})
	if err != nil {
		log.Printf("❌ Error marshaling notification event: %v", err)
		return false
	}
	return h.publish(userID, frame)
}

// UpdateUnreadCount pushes an unread_count_update event to the user's group.
func (h *Hub) UpdateUnreadCount(userID uint, count int64) {
	frame, err := json.Marshal(map[string]interface{}{
		"type":         "unread_count_update",
		"unread_count": count,
	})
	if err != nil {
		log.Printf("❌ Error marshaling unread count event: %v", err)
		return
	}
	h.publish(userID, frame)
}

// publish routes a frame to the user's group. With redis the frame goes
// through pub/sub and the subscriber loop on each process (this one
// included) hands it to local sessions; without redis, delivery is direct.
func (h *Hub) publish(userID uint, frame []byte) bool {
	if h.rdb != nil {
		receivers, err := h.rdb.Publish(context.Background(), userChannel(userID), frame).Result()
		if err != nil {
			log.Printf("❌ Failed to publish to group for user %d: %v", userID, err)
			// Redis down: fall back to whatever sessions this process holds.
			return h.deliverLocal(userID, frame) > 0
		}
		return h.liveDelivered(receivers, userID)
	}
	return h.deliverLocal(userID, frame) > 0
}

// liveDelivered decides whether a published frame counts as delivered.
// Receivers counts subscribed processes, not sessions, so only local group
// membership is trusted: the flag may undercount a session held by another
// process but never reports a delivery that did not happen.
func (h *Hub) liveDelivered(receivers int64, userID uint) bool {
	return receivers > 0 && h.IsUserConnected(userID)
}

// deliverLocal writes a frame to every local session in the user's group
// and returns how many sessions accepted it. Sessions with a full send
// buffer are dropped from the group and their channel closed via the same
// guarded path the Unregister loop uses, so a concurrent reply send can
// never hit a closed channel.
func (h *Hub) deliverLocal(userID uint, frame []byte) int {
	h.mu.Lock()
	delivered := 0
	var dropped []*Client
	for client := range h.clients[userID] {
		if client.trySend(frame) {
			delivered++
		} else {
			log.Printf("⚠️ Send buffer full for user %d, dropping session", userID)
			delete(h.clients[userID], client)
			dropped = append(dropped, client)
		}
	}
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
	h.mu.Unlock()

	for _, client := range dropped {
		client.closeSend()
	}
	return delivered
}

// IsUserConnected checks if a user has at least one session on this process.
func (h *Hub) IsUserConnected(userID uint) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID]) > 0
}

// ConnectedUsers returns user ids with at least one local session.
func (h *Hub) ConnectedUsers() []uint {
	h.mu.Lock()
	defer h.mu.Unlock()

	users := make([]uint, 0, len(h.clients))
	for userID := range h.clients {
		users = append(users, userID)
	}
	return users
}

// Store exposes the notification store for session command handling.
func (h *Hub) Store() *services.NotificationStore {
	return h.store
}

func userChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

func userIDFromChannel(channel string) (uint, error) {
	raw := strings.TrimPrefix(channel, userChannelPrefix)
	id, err := strconv.ParseUint(raw, 10, 32)
	return uint(id), err
}
