package services

import (
	"fmt"
	"log"

	"tile-ops-server/models"
)

// LiveBroadcaster pushes events to a user's connected sessions. NotifyUser
// reports false when no session (local or remote) received the event.
type LiveBroadcaster interface {
	NotifyUser(userID uint, snapshot map[string]interface{}) bool
	UpdateUnreadCount(userID uint, count int64)
}

// TaskEnqueuer hands a push-delivery job to the background queue. The
// dispatcher's responsibility ends at a successful enqueue.
type TaskEnqueuer interface {
	EnqueuePushDelivery(notificationID uint) error
}

// RelatedRef identifies the domain entity a notification is about.
type RelatedRef struct {
	Kind models.EntityKind
	ID   uint
}

// NotificationService orchestrates notification creation: preference
// gating, persistence, best-effort live broadcast and async push enqueue.
type NotificationService struct {
	store *NotificationStore
	gate  *PreferenceGate
	live  LiveBroadcaster // optional
	tasks TaskEnqueuer    // optional
}

func NewNotificationService(store *NotificationStore, gate *PreferenceGate, live LiveBroadcaster, tasks TaskEnqueuer) *NotificationService {
	return &NotificationService{
		store: store,
		gate:  gate,
		live:  live,
		tasks: tasks,
	}
}

// Create builds, persists and dispatches one notification. Returns
// (nil, nil) when the user has the type disabled: a silent drop, not an
// error. Live delivery failures never fail the call; push delivery is
// handed to the background worker.
func (s *NotificationService) Create(
	userID uint,
	notificationType models.NotificationType,
	title, message string,
	priority models.NotificationPriority,
	related *RelatedRef,
	data map[string]interface{},
) (*models.Notification, error) {
	if !notificationType.IsValid() {
		return nil, fmt.Errorf("invalid notification type %q", notificationType)
	}
	if priority == "" {
		priority = models.PriorityNormal
	}
	if !priority.IsValid() {
		return nil, fmt.Errorf("invalid notification priority %q", priority)
	}

	if !s.gate.IsEnabled(userID, notificationType) {
		log.Printf("🔕 Notification type %s disabled for user %d, skipping", notificationType, userID)
		return nil, nil
	}

	notification := &models.Notification{
		UserID:   userID,
		Type:     notificationType,
		Title:    title,
		Message:  message,
		Priority: priority,
	}
	notification.SetData(data)
	if related != nil {
		kind := related.Kind
		id := related.ID
		notification.RelatedKind = &kind
		notification.RelatedID = &id
	}

	if err := s.store.Insert(notification); err != nil {
		return nil, err
	}

	// Live delivery is best-effort: a failure here must not fail creation.
	if s.live != nil {
		if delivered := s.live.NotifyUser(userID, s.Snapshot(notification)); delivered {
			if err := s.store.MarkDeliveredViaLive(notification.ID); err != nil {
				log.Printf("⚠️ Failed to record live delivery for notification %d: %v", notification.ID, err)
			} else {
				notification.DeliveredViaLive = true
			}
		}
	}

	// Fire-and-forget hand-off to the push worker.
	if s.tasks != nil {
		if err := s.tasks.EnqueuePushDelivery(notification.ID); err != nil {
			log.Printf("❌ Failed to enqueue push delivery for notification %d: %v", notification.ID, err)
		}
	}

	return notification, nil
}

// CreateForAllStaff fans the same logical notification out to every active
// staff/admin user. Each user's preference gate is evaluated independently;
// one opt-out never affects delivery to the others.
func (s *NotificationService) CreateForAllStaff(
	notificationType models.NotificationType,
	title, message string,
	priority models.NotificationPriority,
	related *RelatedRef,
	data map[string]interface{},
) ([]*models.Notification, error) {
	staff, err := s.store.StaffUsers()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve staff users: %w", err)
	}

	var notifications []*models.Notification
	for _, user := range staff {
		notification, err := s.Create(user.ID, notificationType, title, message, priority, related, data)
		if err != nil {
			log.Printf("❌ Failed to create notification for user %d: %v", user.ID, err)
			continue
		}
		if notification != nil {
			notifications = append(notifications, notification)
		}
	}
	return notifications, nil
}

// SendUnreadCountUpdate pushes the current unread count to the user's live
// sessions. Best-effort.
func (s *NotificationService) SendUnreadCountUpdate(userID uint) {
	if s.live == nil {
		return
	}
	count, err := s.store.UnreadCount(userID)
	if err != nil {
		log.Printf("⚠️ Failed to compute unread count for user %d: %v", userID, err)
		return
	}
	s.live.UpdateUnreadCount(userID, count)
}

// Snapshot serializes a notification for the live channel and API.
func (s *NotificationService) Snapshot(n *models.Notification) map[string]interface{} {
	var relatedKind interface{}
	var relatedID interface{}
	if n.RelatedKind != nil {
		relatedKind = string(*n.RelatedKind)
	}
	if n.RelatedID != nil {
		relatedID = *n.RelatedID
	}
	return map[string]interface{}{
		"id":                 n.ID,
		"type":               string(n.Type),
		"title":              n.Title,
		"message":            n.Message,
		"priority":           string(n.Priority),
		"related_kind":       relatedKind,
		"related_id":         relatedID,
		"data":               n.DataMap(),
		"is_read":            n.IsRead,
		"read_at":            n.ReadAt,
		"delivered_via_live": n.DeliveredViaLive,
		"delivered_via_push": n.DeliveredViaPush,
		"created_at":         n.CreatedAt,
	}
}
