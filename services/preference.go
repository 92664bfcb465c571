package services

import (
	"errors"
	"log"

	"tile-ops-server/models"
)

// PreferenceGate decides whether a notification type is enabled for a user
// before anything is created. A missing preference row, or any store error,
// counts as enabled: delivery must not silently disappear because setup is
// incomplete.
type PreferenceGate struct {
	store *NotificationStore
}

func NewPreferenceGate(store *NotificationStore) *PreferenceGate {
	return &PreferenceGate{store: store}
}

// IsEnabled reports whether the given notification type is enabled for the
// user.
func (g *PreferenceGate) IsEnabled(userID uint, t models.NotificationType) bool {
	prefs, err := g.store.Preferences(userID)
	if errors.Is(err, ErrNotFound) {
		return true
	}
	if err != nil {
		log.Printf("⚠️ Preference lookup failed for user %d, defaulting to enabled: %v", userID, err)
		return true
	}
	return prefs.TypeEnabled(t)
}

// PushEnabled reports whether the push delivery channel is enabled for the
// user, with the same fail-open default.
func (g *PreferenceGate) PushEnabled(userID uint) bool {
	prefs, err := g.store.Preferences(userID)
	if errors.Is(err, ErrNotFound) {
		return true
	}
	if err != nil {
		log.Printf("⚠️ Preference lookup failed for user %d, defaulting to enabled: %v", userID, err)
		return true
	}
	return prefs.PushEnabled
}
