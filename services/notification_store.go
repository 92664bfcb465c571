package services

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"tile-ops-server/models"
)

// ErrNotFound is returned for any user-scoped lookup miss. It deliberately
// does not distinguish "exists but not yours" from "doesn't exist".
var ErrNotFound = errors.New("record not found")

// NotificationStore owns all persistence for notifications, push
// subscriptions and preferences. Every operation is scoped by the owning
// user; all flag flips are single-row conditional updates so no in-process
// locking is needed.
type NotificationStore struct {
	db *gorm.DB
}

func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Insert persists a new notification and fills in its id.
func (s *NotificationStore) Insert(n *models.Notification) error {
	if err := s.db.Create(n).Error; err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// Get loads one notification scoped by owner.
func (s *NotificationStore) Get(userID, notificationID uint) (*models.Notification, error) {
	var n models.Notification
	err := s.db.Where("id = ? AND user_id = ?", notificationID, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetAny loads one notification by id regardless of owner. Used by the
// push worker, which derives the target user from the record itself.
func (s *NotificationStore) GetAny(notificationID uint) (*models.Notification, error) {
	var n models.Notification
	err := s.db.First(&n, notificationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// UnreadCount returns the number of unread notifications for a user.
func (s *NotificationStore) UnreadCount(userID uint) (int64, error) {
	var count int64
	err := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead flips one notification to read. Idempotent: marking an
// already-read notification succeeds without touching read_at. A miss on
// the user-scoped lookup returns ErrNotFound.
func (s *NotificationStore) MarkRead(userID, notificationID uint) error {
	var exists int64
	if err := s.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}

	// Conditional update keeps concurrent calls from rewriting read_at.
	return s.db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ? AND is_read = ?", notificationID, userID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": time.Now(),
		}).Error
}

// MarkAllRead flips every unread notification for a user and returns how
// many it flipped.
func (s *NotificationStore) MarkAllRead(userID uint) (int64, error) {
	result := s.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// List returns one page of a user's notifications, newest first, plus the
// total count.
func (s *NotificationStore) List(userID uint, page, pageSize int) ([]models.Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	} else if pageSize > 100 {
		pageSize = 100
	}

	var total int64
	if err := s.db.Model(&models.Notification{}).
		Where("user_id = ?", userID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var notifications []models.Notification
	err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&notifications).Error
	return notifications, total, err
}

// MarkDeliveredViaLive records a successful live-channel delivery. The flag
// only ever goes false -> true.
func (s *NotificationStore) MarkDeliveredViaLive(notificationID uint) error {
	return s.db.Model(&models.Notification{}).
		Where("id = ?", notificationID).
		Update("delivered_via_live", true).Error
}

// MarkDeliveredViaPush records at least one successful push delivery.
func (s *NotificationStore) MarkDeliveredViaPush(notificationID uint) error {
	return s.db.Model(&models.Notification{}).
		Where("id = ?", notificationID).
		Update("delivered_via_push", true).Error
}

// CleanupOld deletes read notifications older than the cutoff and returns
// the number deleted.
func (s *NotificationStore) CleanupOld(olderThan time.Time) (int64, error) {
	result := s.db.Where("created_at < ? AND is_read = ?", olderThan, true).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}

// UpsertSubscription creates or refreshes a push subscription keyed by its
// endpoint URL. Re-subscribing resets failure tracking and re-activates the
// device.
func (s *NotificationStore) UpsertSubscription(userID uint, endpoint, p256dh, auth, deviceName, userAgent string) (*models.PushSubscription, error) {
	var sub models.PushSubscription
	err := s.db.Where("endpoint = ?", endpoint).First(&sub).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		sub = models.PushSubscription{
			UserID:      userID,
			Endpoint:    endpoint,
			P256dhKey:   p256dh,
			AuthKey:     auth,
			DeviceName:  deviceName,
			UserAgent:   userAgent,
			IsActive:    true,
			FailedCount: 0,
		}
		if err := s.db.Create(&sub).Error; err != nil {
			return nil, fmt.Errorf("failed to create push subscription: %w", err)
		}
		return &sub, nil
	}
	if err != nil {
		return nil, err
	}

	sub.UserID = userID
	sub.P256dhKey = p256dh
	sub.AuthKey = auth
	sub.DeviceName = deviceName
	sub.UserAgent = userAgent
	sub.IsActive = true
	sub.FailedCount = 0
	if err := s.db.Save(&sub).Error; err != nil {
		return nil, fmt.Errorf("failed to update push subscription: %w", err)
	}
	return &sub, nil
}

// Subscriptions lists all of a user's subscriptions.
func (s *NotificationStore) Subscriptions(userID uint) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&subs).Error
	return subs, err
}

// ActiveSubscriptions lists a user's subscriptions still eligible for push.
func (s *NotificationStore) ActiveSubscriptions(userID uint) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.Where("user_id = ? AND is_active = ?", userID, true).Find(&subs).Error
	return subs, err
}

// RecordSubscriptionSuccess resets failure tracking after a delivery.
func (s *NotificationStore) RecordSubscriptionSuccess(subscriptionID uint) error {
	return s.db.Model(&models.PushSubscription{}).
		Where("id = ?", subscriptionID).
		Updates(map[string]interface{}{
			"failed_count": 0,
			"last_used_at": time.Now(),
		}).Error
}

// RecordSubscriptionFailure bumps the failure counter atomically and
// deactivates the subscription once it reaches maxFailures. Returns the
// post-increment count.
func (s *NotificationStore) RecordSubscriptionFailure(subscriptionID uint, maxFailures int) (int, error) {
	if err := s.db.Model(&models.PushSubscription{}).
		Where("id = ?", subscriptionID).
		Update("failed_count", gorm.Expr("failed_count + 1")).Error; err != nil {
		return 0, err
	}

	var sub models.PushSubscription
	if err := s.db.Select("id", "failed_count").First(&sub, subscriptionID).Error; err != nil {
		return 0, err
	}

	if sub.FailedCount >= maxFailures {
		if err := s.db.Model(&models.PushSubscription{}).
			Where("id = ?", subscriptionID).
			Update("is_active", false).Error; err != nil {
			return sub.FailedCount, err
		}
	}
	return sub.FailedCount, nil
}

// DeleteSubscription removes a subscription by endpoint, scoped to the
// owning user. Returns ErrNotFound when nothing matched.
func (s *NotificationStore) DeleteSubscription(userID uint, endpoint string) error {
	result := s.db.Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&models.PushSubscription{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOrCreatePreferences lazily creates the preference row with everything
// enabled on first access.
func (s *NotificationStore) GetOrCreatePreferences(userID uint) (*models.NotificationPreference, error) {
	var prefs models.NotificationPreference
	err := s.db.Where("user_id = ?", userID).First(&prefs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		prefs = models.NotificationPreference{
			UserID:             userID,
			NewLeadEnabled:     true,
			LeadStatusEnabled:  true,
			QuoteStatusEnabled: true,
			InvoicePaidEnabled: true,
			SystemEnabled:      true,
			PushEnabled:        true,
			SoundEnabled:       true,
		}
		if err := s.db.Create(&prefs).Error; err != nil {
			return nil, fmt.Errorf("failed to create preferences: %w", err)
		}
		return &prefs, nil
	}
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

// Preferences returns the preference row without creating it. A missing row
// surfaces as ErrNotFound so the caller can fail open.
func (s *NotificationStore) Preferences(userID uint) (*models.NotificationPreference, error) {
	var prefs models.NotificationPreference
	err := s.db.Where("user_id = ?", userID).First(&prefs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

// SavePreferences writes updated preference gates.
func (s *NotificationStore) SavePreferences(prefs *models.NotificationPreference) error {
	return s.db.Save(prefs).Error
}

// StaffUsers returns all active staff and admin users, the fan-out target
// set for business notifications.
func (s *NotificationStore) StaffUsers() ([]models.User, error) {
	var users []models.User
	err := s.db.Where("is_active = ? AND role IN ?", true, []models.UserRole{models.RoleStaff, models.RoleAdmin}).
		Find(&users).Error
	return users, err
}
