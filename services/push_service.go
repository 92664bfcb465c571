package services

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"tile-ops-server/config"
	"tile-ops-server/models"
)

// WebPushSender performs one encrypted push delivery. Swappable so tests
// never touch the network; the default is webpush.SendNotification.
type WebPushSender func(payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// PushService delivers one notification to all of the owning user's active
// device subscriptions, tracking per-subscription failures and disabling
// dead endpoints.
type PushService struct {
	store       *NotificationStore
	gate        *PreferenceGate
	vapid       config.VAPIDConfig
	maxFailures int
	timeout     time.Duration
	send        WebPushSender
}

func NewPushService(store *NotificationStore, gate *PreferenceGate, vapid config.VAPIDConfig, jobs config.JobsConfig) *PushService {
	return &PushService{
		store:       store,
		gate:        gate,
		vapid:       vapid,
		maxFailures: jobs.PushMaxRetry,
		timeout:     time.Duration(jobs.PushTimeoutSecs) * time.Second,
		send:        webpush.SendNotification,
	}
}

// SetSender replaces the delivery function. Test hook.
func (s *PushService) SetSender(send WebPushSender) {
	s.send = send
}

// DeliverForNotification sends the web-push payload for one notification to
// every active subscription of its owner and returns the number of
// successful deliveries.
//
// A missing notification is terminal (ErrNotFound): the record is gone and
// retrying cannot help. Push disabled or zero subscriptions is a successful
// no-op, not a failure. Per-subscription failures are local; only job-level
// faults (store unavailable) return an error for the queue to retry.
func (s *PushService) DeliverForNotification(notificationID uint) (int, error) {
	notification, err := s.store.GetAny(notificationID)
	if err != nil {
		return 0, err
	}

	if !s.gate.PushEnabled(notification.UserID) {
		log.Printf("🔕 Push disabled for user %d, skipping notification %d", notification.UserID, notificationID)
		return 0, nil
	}

	if s.vapid.PrivateKey == "" {
		log.Printf("⚠️ VAPID_PRIVATE_KEY not configured, skipping push notifications")
		return 0, nil
	}

	subscriptions, err := s.store.ActiveSubscriptions(notification.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to load subscriptions for user %d: %w", notification.UserID, err)
	}
	if len(subscriptions) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(s.buildPayload(notification))
	if err != nil {
		return 0, fmt.Errorf("failed to build push payload: %w", err)
	}

	options := &webpush.Options{
		Subscriber:      fmt.Sprintf("mailto:%s", s.vapid.ClaimsEmail),
		VAPIDPublicKey:  s.vapid.PublicKey,
		VAPIDPrivateKey: s.vapid.PrivateKey,
		TTL:             86400,
		HTTPClient:      &http.Client{Timeout: s.timeout},
	}

	successful := 0
	for _, subscription := range subscriptions {
		if s.deliverToSubscription(payload, &subscription, options) {
			successful++
		}
	}

	if successful > 0 {
		if err := s.store.MarkDeliveredViaPush(notification.ID); err != nil {
			log.Printf("⚠️ Failed to record push delivery for notification %d: %v", notification.ID, err)
		}
	}

	log.Printf("📊 Push delivery for notification %d: %d/%d subscriptions", notificationID, successful, len(subscriptions))
	return successful, nil
}

func (s *PushService) deliverToSubscription(payload []byte, subscription *models.PushSubscription, options *webpush.Options) bool {
	resp, err := s.send(payload, &webpush.Subscription{
		Endpoint: subscription.Endpoint,
		Keys: webpush.Keys{
			P256dh: subscription.P256dhKey,
			Auth:   subscription.AuthKey,
		},
	}, options)
	if resp != nil {
		resp.Body.Close()
	}

	if err == nil && resp != nil && resp.StatusCode < 400 {
		if err := s.store.RecordSubscriptionSuccess(subscription.ID); err != nil {
			log.Printf("⚠️ Failed to reset failure count for subscription %d: %v", subscription.ID, err)
		}
		return true
	}

	if err != nil {
		log.Printf("❌ Push delivery failed for %s: %v", deviceLabel(subscription), err)
	} else {
		log.Printf("❌ Push delivery rejected for %s: HTTP %d", deviceLabel(subscription), resp.StatusCode)
	}

	failedCount, recordErr := s.store.RecordSubscriptionFailure(subscription.ID, s.maxFailures)
	if recordErr != nil {
		log.Printf("⚠️ Failed to record failure for subscription %d: %v", subscription.ID, recordErr)
		return false
	}
	if failedCount >= s.maxFailures {
		log.Printf("⚠️ Disabling subscription %d after %d failures", subscription.ID, failedCount)
	}
	return false
}

// buildPayload assembles the browser push payload. The tag collapses
// repeated pushes for the same notification in the OS tray; high priority
// requires interaction and low priority suppresses vibration.
func (s *PushService) buildPayload(n *models.Notification) map[string]interface{} {
	var relatedType interface{}
	var relatedID interface{}
	if n.RelatedKind != nil {
		relatedType = string(*n.RelatedKind)
	}
	if n.RelatedID != nil {
		relatedID = *n.RelatedID
	}

	url := "/admin/notifications"
	if u, ok := n.DataMap()["url"].(string); ok && u != "" {
		url = u
	}

	var vibrate interface{}
	if n.Priority != models.PriorityLow {
		vibrate = []int{200, 100, 200}
	}

	return map[string]interface{}{
		"title": n.Title,
		"body":  n.Message,
		"icon":  "/images/logo.png",
		"badge": "/images/badge-72.png",
		"tag":   fmt.Sprintf("notification-%d", n.ID),
		"data": map[string]interface{}{
			"notification_id": n.ID,
			"type":            string(n.Type),
			"related_type":    relatedType,
			"related_id":      relatedID,
			"url":             url,
		},
		"requireInteraction": n.Priority == models.PriorityHigh,
		"vibrate":            vibrate,
	}
}

func deviceLabel(sub *models.PushSubscription) string {
	if sub.DeviceName != "" {
		return sub.DeviceName
	}
	return fmt.Sprintf("subscription %d", sub.ID)
}
