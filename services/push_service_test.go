package services

import (
	"io"
	"net/http"
	"strings"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tile-ops-server/config"
	"tile-ops-server/models"
)

func testVAPID() config.VAPIDConfig {
	return config.VAPIDConfig{
		PublicKey:   "test-public-key",
		PrivateKey:  "test-private-key",
		ClaimsEmail: "ops@tolatiles.com",
	}
}

func testJobs() config.JobsConfig {
	return config.JobsConfig{PushMaxRetry: 3, PushTimeoutSecs: 15, RetentionDays: 90, WorkerConcurrency: 5}
}

func pushResponse(status int) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(""))}
}

func TestDeliverForNotificationMarksDelivered(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	_, err := store.UpsertSubscription(user.ID, "https://push.example/a", "k", "a", "Chrome", "")
	require.NoError(t, err)
	_, err = store.UpsertSubscription(user.ID, "https://push.example/b", "k", "a", "Firefox", "")
	require.NoError(t, err)

	n := insertNotification(t, store, user.ID, "paid")

	svc := NewPushService(store, NewPreferenceGate(store), testVAPID(), testJobs())
	var endpoints []string
	svc.SetSender(func(payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		endpoints = append(endpoints, sub.Endpoint)
		assert.Contains(t, string(payload), "paid")
		assert.Equal(t, "mailto:ops@tolatiles.com", opts.Subscriber)
		return pushResponse(http.StatusCreated), nil
	})

	successful, err := svc.DeliverForNotification(n.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, successful)
	assert.Len(t, endpoints, 2)

	stored, err := store.Get(user.ID, n.ID)
	require.NoError(t, err)
	assert.True(t, stored.DeliveredViaPush)
}

func TestDeliverForNotificationPartialFailure(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	good, err := store.UpsertSubscription(user.ID, "https://push.example/good", "k", "a", "", "")
	require.NoError(t, err)
	bad, err := store.UpsertSubscription(user.ID, "https://push.example/bad", "k", "a", "", "")
	require.NoError(t, err)

	n := insertNotification(t, store, user.ID, "mixed")

	svc := NewPushService(store, NewPreferenceGate(store), testVAPID(), testJobs())
	svc.SetSender(func(payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		if sub.Endpoint == bad.Endpoint {
			return pushResponse(http.StatusGone), nil
		}
		return pushResponse(http.StatusCreated), nil
	})

	successful, err := svc.DeliverForNotification(n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, successful)

	stored, err := store.Get(user.ID, n.ID)
	require.NoError(t, err)
	assert.True(t, stored.DeliveredViaPush)

	var goodSub, badSub models.PushSubscription
	require.NoError(t, db.First(&goodSub, good.ID).Error)
	require.NoError(t, db.First(&badSub, bad.ID).Error)
	assert.Zero(t, goodSub.FailedCount)
	assert.Equal(t, 1, badSub.FailedCount)
	assert.True(t, badSub.IsActive)
}

func TestDeliverForNotificationDisablesDeadEndpoint(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	sub, err := store.UpsertSubscription(user.ID, "https://push.example/dead", "k", "a", "", "")
	require.NoError(t, err)

	svc := NewPushService(store, NewPreferenceGate(store), testVAPID(), testJobs())
	svc.SetSender(func(payload []byte, s *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		return pushResponse(http.StatusNotFound), nil
	})

	for i := 0; i < 3; i++ {
		n := insertNotification(t, store, user.ID, "doomed")
		successful, err := svc.DeliverForNotification(n.ID)
		require.NoError(t, err)
		assert.Zero(t, successful)
	}

	var reloaded models.PushSubscription
	require.NoError(t, db.First(&reloaded, sub.ID).Error)
	assert.Equal(t, 3, reloaded.FailedCount)
	assert.False(t, reloaded.IsActive)

	// Fourth delivery finds no active subscriptions: success with zero sends.
	n := insertNotification(t, store, user.ID, "after")
	successful, err := svc.DeliverForNotification(n.ID)
	require.NoError(t, err)
	assert.Zero(t, successful)

	stored, err := store.Get(user.ID, n.ID)
	require.NoError(t, err)
	assert.False(t, stored.DeliveredViaPush)
}

func TestDeliverForNotificationRespectsPushPreference(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	_, err := store.UpsertSubscription(user.ID, "https://push.example/a", "k", "a", "", "")
	require.NoError(t, err)

	prefs, err := store.GetOrCreatePreferences(user.ID)
	require.NoError(t, err)
	prefs.PushEnabled = false
	require.NoError(t, store.SavePreferences(prefs))

	n := insertNotification(t, store, user.ID, "quiet")

	svc := NewPushService(store, NewPreferenceGate(store), testVAPID(), testJobs())
	svc.SetSender(func(payload []byte, s *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		t.Fatal("sender must not be called when push is disabled")
		return nil, nil
	})

	successful, err := svc.DeliverForNotification(n.ID)
	require.NoError(t, err)
	assert.Zero(t, successful)
}

func TestDeliverForNotificationMissingRecord(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)

	svc := NewPushService(store, NewPreferenceGate(store), testVAPID(), testJobs())

	_, err := svc.DeliverForNotification(12345)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeliverForNotificationWithoutVAPIDKeys(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	_, err := store.UpsertSubscription(user.ID, "https://push.example/a", "k", "a", "", "")
	require.NoError(t, err)
	n := insertNotification(t, store, user.ID, "unconfigured")

	svc := NewPushService(store, NewPreferenceGate(store), config.VAPIDConfig{}, testJobs())
	svc.SetSender(func(payload []byte, s *webpush.Subscription, opts *webpush.Options) (*http.Response, error) {
		t.Fatal("sender must not be called without VAPID keys")
		return nil, nil
	})

	successful, err := svc.DeliverForNotification(n.ID)
	require.NoError(t, err)
	assert.Zero(t, successful)
}
