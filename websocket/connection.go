package websocket

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tile-ops-server/services"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// Client is a single live session. One user may hold several concurrently.
type Client struct {
	Hub    *Hub
	UserID uint
	Conn   *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

// trySend queues a frame for the write pump. Returns false when the session
// is already closed or its buffer is full, so a send can never race a close.
func (c *Client) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel exactly once. Only the hub calls this.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// clientCommand is the inbound frame shape. Unknown types are ignored.
type clientCommand struct {
	Type           string `json:"type"`
	NotificationID uint   `json:"notification_id"`
}

// ReadPump pumps commands from the session to the store.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("❌ WebSocket error for user %d: %v", c.UserID, err)
			}
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			log.Printf("⚠️ Malformed command from user %d: %v", c.UserID, err)
			continue
		}
		c.handleCommand(cmd)
	}
}

func (c *Client) handleCommand(cmd clientCommand) {
	store := c.Hub.Store()

	switch cmd.Type {
	case "mark_read":
		if err := store.MarkRead(c.UserID, cmd.NotificationID); err != nil && !errors.Is(err, services.ErrNotFound) {
			log.Printf("❌ Failed to mark notification %d read for user %d: %v", cmd.NotificationID, c.UserID, err)
			return
		}
		c.sendUnreadCount()

	case "mark_all_read":
		if _, err := store.MarkAllRead(c.UserID); err != nil {
			log.Printf("❌ Failed to mark all read for user %d: %v", c.UserID, err)
			return
		}
		c.sendUnreadCount()

	case "ping":
		c.sendJSON(map[string]interface{}{"type": "pong"})
	}
}

// sendUnreadCount fans the fresh count out to every session of this user,
// so a mark_read on one tab updates the badge on the others too.
func (c *Client) sendUnreadCount() {
	count, err := c.Hub.Store().UnreadCount(c.UserID)
	if err != nil {
		log.Printf("❌ Failed to count unread for user %d: %v", c.UserID, err)
		return
	}
	c.Hub.UpdateUnreadCount(c.UserID, count)
}

func (c *Client) sendJSON(payload map[string]interface{}) {
	frame, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.trySend(frame)
}

// WritePump pumps frames from the hub to the session.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
