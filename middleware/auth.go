package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tile-ops-server/database"
	"tile-ops-server/models"
	"tile-ops-server/services"
)

// AuthMiddleware validates the Bearer access token and loads the user.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			c.Abort()
			return
		}

		jwtService := services.NewJWTService()
		userID, err := jwtService.ValidateAccessToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		var user models.User
		if err := database.DB.First(&user, userID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not found"})
			c.Abort()
			return
		}
		if !user.IsActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is deactivated"})
			c.Abort()
			return
		}

		c.Set("user_id", user.ID)
		c.Set("user", user)
		c.Next()
	}
}

// AdminMiddleware restricts a route to admin users. Must run after
// AuthMiddleware.
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get("user")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		user, ok := value.(models.User)
		if !ok || !user.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ResolveWebSocketUser authenticates a websocket upgrade request from its
// ?token= query parameter, since browsers cannot set headers on websocket
// connects. Any failure yields an anonymous session, never an error: the
// socket handler owns the close handshake for unauthenticated clients.
func ResolveWebSocketUser(r *http.Request) (uint, bool) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		return 0, false
	}

	jwtService := services.NewJWTService()
	userID, err := jwtService.ValidateAccessToken(tokenString)
	if err != nil {
		log.Printf("⚠️ WebSocket token rejected: %v", err)
		return 0, false
	}

	var user models.User
	if err := database.DB.First(&user, userID).Error; err != nil {
		return 0, false
	}
	if !user.IsActive {
		return 0, false
	}
	return user.ID, true
}
