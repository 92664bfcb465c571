package websocket

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS policy is enforced by the HTTP middleware
	},
}

// Close code sent to sessions that fail token authentication.
const closeUnauthorized = 4001

// UserResolver authenticates the upgrade request. A false result means the
// session is anonymous; resolution never surfaces an error to the client.
type UserResolver func(r *http.Request) (uint, bool)

// HandleNotifications upgrades the request into a live notification session.
// Anonymous sessions are accepted, then immediately closed with code 4001 so
// browser clients can distinguish auth failure from network failure.
func HandleNotifications(hub *Hub, resolve UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := resolve(c.Request)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("❌ WebSocket upgrade failed: %v", err)
			return
		}

		if !ok {
			log.Printf("⚠️ Rejecting anonymous notification session from %s", c.ClientIP())
			msg := websocket.FormatCloseMessage(closeUnauthorized, "authentication required")
			conn.WriteMessage(websocket.CloseMessage, msg)
			conn.Close()
			return
		}

		client := &Client{
			Hub:    hub,
			UserID: userID,
			Conn:   conn,
			Send:   make(chan []byte, 256),
		}
		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()

		sendWelcome(client)
	}
}

// sendWelcome confirms the session and seeds the unread badge.
func sendWelcome(client *Client) {
	count, err := client.Hub.Store().UnreadCount(client.UserID)
	if err != nil {
		log.Printf("❌ Failed to count unread for user %d: %v", client.UserID, err)
		count = 0
	}

	frame, err := json.Marshal(map[string]interface{}{
		"type":         "connection_established",
		"unread_count": count,
	})
	if err != nil {
		return
	}
	client.trySend(frame)
}
