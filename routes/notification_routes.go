package routes

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tile-ops-server/config"
	"tile-ops-server/middleware"
	"tile-ops-server/services"
)

// StatsBackfiller queues a recompute of past daily stats.
type StatsBackfiller interface {
	EnqueueStatsBackfill(days int) error
}

var (
	notificationStore   *services.NotificationStore
	notificationService *services.NotificationService
	statsService        *services.StatsService
	statsBackfiller     StatsBackfiller
)

// Init wires the shared service instances used by all route handlers.
func Init(store *services.NotificationStore, svc *services.NotificationService, stats *services.StatsService, backfiller StatsBackfiller) {
	notificationStore = store
	notificationService = svc
	statsService = stats
	statsBackfiller = backfiller
}

// SetupNotificationRoutes registers the notification API. All routes require
// an authenticated user.
func SetupNotificationRoutes(router *gin.RouterGroup) {
	notifications := router.Group("/notifications")
	notifications.Use(middleware.AuthMiddleware())
	{
		notifications.GET("", listNotifications)
		notifications.GET("/unread-count", getUnreadCount)
		notifications.POST("/:id/mark-read", markNotificationRead)
		notifications.POST("/mark-all-read", markAllNotificationsRead)

		notifications.GET("/preferences", getPreferences)
		notifications.PUT("/preferences", updatePreferences)

		notifications.GET("/vapid-key", getVAPIDKey)
		notifications.GET("/push-subscriptions", listPushSubscriptions)
		notifications.POST("/push-subscriptions", subscribePush)
		notifications.DELETE("/push-subscriptions", unsubscribePush)
	}

	stats := router.Group("/stats")
	stats.Use(middleware.AuthMiddleware())
	{
		stats.GET("/daily", getDailyStats)
		stats.POST("/backfill", middleware.AdminMiddleware(), backfillStats)
	}
}

func currentUserID(c *gin.Context) uint {
	return c.GetUint("user_id")
}

// GET /api/v1/notifications?page=1&page_size=20
func listNotifications(c *gin.Context) {
	userID := currentUserID(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	notifications, total, err := notificationStore.List(userID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	unread, err := notificationStore.UnreadCount(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count unread notifications"})
		return
	}

	items := make([]map[string]interface{}, 0, len(notifications))
	for i := range notifications {
		items = append(items, notificationService.Snapshot(&notifications[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": items,
		"total":         total,
		"unread_count":  unread,
		"page":          page,
	})
}

// GET /api/v1/notifications/unread-count
func getUnreadCount(c *gin.Context) {
	count, err := notificationStore.UnreadCount(currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count unread notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// POST /api/v1/notifications/:id/mark-read
func markNotificationRead(c *gin.Context) {
	userID := currentUserID(c)

	notificationID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
		return
	}

	if err := notificationStore.MarkRead(userID, uint(notificationID)); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark notification read"})
		return
	}

	notificationService.SendUnreadCountUpdate(userID)

	count, _ := notificationStore.UnreadCount(userID)
	c.JSON(http.StatusOK, gin.H{"success": true, "unread_count": count})
}

// POST /api/v1/notifications/mark-all-read
func markAllNotificationsRead(c *gin.Context) {
	userID := currentUserID(c)

	count, err := notificationStore.MarkAllRead(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark notifications read"})
		return
	}

	notificationService.SendUnreadCountUpdate(userID)

	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

// GET /api/v1/notifications/preferences
func getPreferences(c *gin.Context) {
	prefs, err := notificationStore.GetOrCreatePreferences(currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

type preferencesRequest struct {
	NewLeadEnabled     *bool `json:"new_lead_enabled"`
	LeadStatusEnabled  *bool `json:"lead_status_enabled"`
	QuoteStatusEnabled *bool `json:"quote_status_enabled"`
	InvoicePaidEnabled *bool `json:"invoice_paid_enabled"`
	SystemEnabled      *bool `json:"system_enabled"`
	PushEnabled        *bool `json:"push_enabled"`
	SoundEnabled       *bool `json:"sound_enabled"`
}

// PUT /api/v1/notifications/preferences
func updatePreferences(c *gin.Context) {
	userID := currentUserID(c)

	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	prefs, err := notificationStore.GetOrCreatePreferences(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
		return
	}

	// Partial update: absent fields keep their current value.
	if req.NewLeadEnabled != nil {
		prefs.NewLeadEnabled = *req.NewLeadEnabled
	}
	if req.LeadStatusEnabled != nil {
		prefs.LeadStatusEnabled = *req.LeadStatusEnabled
	}
	if req.QuoteStatusEnabled != nil {
		prefs.QuoteStatusEnabled = *req.QuoteStatusEnabled
	}
	if req.InvoicePaidEnabled != nil {
		prefs.InvoicePaidEnabled = *req.InvoicePaidEnabled
	}
	if req.SystemEnabled != nil {
		prefs.SystemEnabled = *req.SystemEnabled
	}
	if req.PushEnabled != nil {
		prefs.PushEnabled = *req.PushEnabled
	}
	if req.SoundEnabled != nil {
		prefs.SoundEnabled = *req.SoundEnabled
	}

	if err := notificationStore.SavePreferences(prefs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preferences"})
		return
	}
	c.JSON(http.StatusOK, prefs)
}

// GET /api/v1/notifications/vapid-key
func getVAPIDKey(c *gin.Context) {
	if !config.AppConfig.PushConfigured() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Push notifications are not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": config.AppConfig.VAPID.PublicKey})
}

// GET /api/v1/notifications/push-subscriptions
func listPushSubscriptions(c *gin.Context) {
	subscriptions, err := notificationStore.Subscriptions(currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch subscriptions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": subscriptions})
}

type subscribeRequest struct {
	Endpoint   string `json:"endpoint" binding:"required"`
	P256dhKey  string `json:"p256dh_key" binding:"required"`
	AuthKey    string `json:"auth_key" binding:"required"`
	DeviceName string `json:"device_name"`
}

// POST /api/v1/notifications/push-subscriptions
func subscribePush(c *gin.Context) {
	userID := currentUserID(c)

	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Endpoint and keys are required"})
		return
	}

	subscription, err := notificationStore.UpsertSubscription(
		userID, req.Endpoint, req.P256dhKey, req.AuthKey, req.DeviceName, c.Request.UserAgent())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save subscription"})
		return
	}
	c.JSON(http.StatusCreated, subscription)
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DELETE /api/v1/notifications/push-subscriptions
func unsubscribePush(c *gin.Context) {
	userID := currentUserID(c)

	var req unsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Endpoint is required"})
		return
	}

	if err := notificationStore.DeleteSubscription(userID, req.Endpoint); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GET /api/v1/stats/daily?days=30
func getDailyStats(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid days parameter"})
		return
	}

	window, err := statsService.Window(days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, window)
}

type backfillRequest struct {
	Days int `json:"days"`
}

// POST /api/v1/stats/backfill — operator action, admin only. Queues the
// recompute instead of running it inline.
func backfillStats(c *gin.Context) {
	// An empty body means "use the default window".
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	days := req.Days
	if days < 1 {
		days = 30
	}
	if days > 365 {
		days = 365
	}

	if statsBackfiller == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Background worker is not configured"})
		return
	}
	if err := statsBackfiller.EnqueueStatsBackfill(days); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to queue backfill"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "days": days})
}
