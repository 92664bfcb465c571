package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tile-ops-server/models"
)

func insertNotification(t *testing.T, store *NotificationStore, userID uint, title string) *models.Notification {
	t.Helper()

	n := &models.Notification{
		UserID:   userID,
		Type:     models.TypeNewLead,
		Title:    title,
		Message:  "body",
		Priority: models.PriorityNormal,
		Data:     "{}",
	}
	require.NoError(t, store.Insert(n))
	return n
}

func TestMarkReadIsIdempotent(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	n := insertNotification(t, store, user.ID, "first")

	require.NoError(t, store.MarkRead(user.ID, n.ID))

	got, err := store.Get(user.ID, n.ID)
	require.NoError(t, err)
	require.True(t, got.IsRead)
	require.NotNil(t, got.ReadAt)
	firstReadAt := *got.ReadAt

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, store.MarkRead(user.ID, n.ID))

	got, err = store.Get(user.ID, n.ID)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	assert.WithinDuration(t, firstReadAt, *got.ReadAt, time.Millisecond)
}

func TestMarkReadScopedToOwner(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	owner := createUser(t, db, "owner@tolatiles.com", models.RoleStaff)
	other := createUser(t, db, "other@tolatiles.com", models.RoleStaff)

	n := insertNotification(t, store, owner.ID, "private")

	err := store.MarkRead(other.ID, n.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.Get(owner.ID, n.ID)
	require.NoError(t, err)
	assert.False(t, got.IsRead)
}

func TestMarkReadMissingNotification(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	assert.ErrorIs(t, store.MarkRead(user.ID, 9999), ErrNotFound)
}

func TestMarkAllRead(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	for i := 0; i < 3; i++ {
		insertNotification(t, store, user.ID, "unread")
	}
	read := insertNotification(t, store, user.ID, "read")
	require.NoError(t, store.MarkRead(user.ID, read.ID))

	count, err := store.MarkAllRead(user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	unread, err := store.UnreadCount(user.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	// Second call finds nothing left to flip.
	count, err = store.MarkAllRead(user.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestListPaginates(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	for i := 0; i < 25; i++ {
		insertNotification(t, store, user.ID, "n")
	}

	page, total, err := store.List(user.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	assert.Len(t, page, 10)

	page, _, err = store.List(user.ID, 3, 10)
	require.NoError(t, err)
	assert.Len(t, page, 5)

	// Oversized page size clamps to the 100 cap rather than the default,
	// so all 25 rows come back in one page.
	page, _, err = store.List(user.ID, 1, 1000)
	require.NoError(t, err)
	assert.Len(t, page, 25)

	page, _, err = store.List(user.ID, 1, 0)
	require.NoError(t, err)
	assert.Len(t, page, 20)
}

func TestUpsertSubscriptionByEndpoint(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	endpoint := "https://fcm.googleapis.com/fcm/send/abc123"

	first, err := store.UpsertSubscription(user.ID, endpoint, "p256dh-1", "auth-1", "Chrome", "UA")
	require.NoError(t, err)

	// Simulate a dying endpoint, then a re-subscribe with fresh keys.
	_, err = store.RecordSubscriptionFailure(first.ID, 3)
	require.NoError(t, err)

	second, err := store.UpsertSubscription(user.ID, endpoint, "p256dh-2", "auth-2", "Chrome", "UA")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "p256dh-2", second.P256dhKey)
	assert.True(t, second.IsActive)
	assert.Zero(t, second.FailedCount)

	var count int64
	require.NoError(t, db.Model(&models.PushSubscription{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSubscriptionFailureDeactivation(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	sub, err := store.UpsertSubscription(user.ID, "https://push.example/ep", "k", "a", "", "")
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		count, err := store.RecordSubscriptionFailure(sub.ID, 3)
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	active, err := store.ActiveSubscriptions(user.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	count, err := store.RecordSubscriptionFailure(sub.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	active, err = store.ActiveSubscriptions(user.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	// A success after re-activation resets the counter.
	_, err = store.UpsertSubscription(user.ID, "https://push.example/ep", "k", "a", "", "")
	require.NoError(t, err)
	require.NoError(t, store.RecordSubscriptionSuccess(sub.ID))

	var reloaded models.PushSubscription
	require.NoError(t, db.First(&reloaded, sub.ID).Error)
	assert.Zero(t, reloaded.FailedCount)
	assert.NotNil(t, reloaded.LastUsedAt)
}

func TestDeleteSubscriptionScopedToOwner(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	owner := createUser(t, db, "owner@tolatiles.com", models.RoleStaff)
	other := createUser(t, db, "other@tolatiles.com", models.RoleStaff)

	endpoint := "https://push.example/owned"
	_, err := store.UpsertSubscription(owner.ID, endpoint, "k", "a", "", "")
	require.NoError(t, err)

	assert.ErrorIs(t, store.DeleteSubscription(other.ID, endpoint), ErrNotFound)
	assert.NoError(t, store.DeleteSubscription(owner.ID, endpoint))
	assert.ErrorIs(t, store.DeleteSubscription(owner.ID, endpoint), ErrNotFound)
}

func TestGetOrCreatePreferencesDefaultsEnabled(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	_, err := store.Preferences(user.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	prefs, err := store.GetOrCreatePreferences(user.ID)
	require.NoError(t, err)
	assert.True(t, prefs.NewLeadEnabled)
	assert.True(t, prefs.PushEnabled)

	// Second call returns the same row.
	again, err := store.GetOrCreatePreferences(user.ID)
	require.NoError(t, err)
	assert.Equal(t, prefs.ID, again.ID)
}

func TestCleanupOldKeepsUnread(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	old := insertNotification(t, store, user.ID, "old read")
	require.NoError(t, store.MarkRead(user.ID, old.ID))
	oldUnread := insertNotification(t, store, user.ID, "old unread")
	_ = oldUnread

	past := time.Now().AddDate(0, 0, -100)
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ?", user.ID).
		Update("created_at", past).Error)

	fresh := insertNotification(t, store, user.ID, "fresh read")
	require.NoError(t, store.MarkRead(user.ID, fresh.ID))

	deleted, err := store.CleanupOld(time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, total, err := store.List(user.ID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestStaffUsersExcludesInactive(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)

	createUser(t, db, "staff@tolatiles.com", models.RoleStaff)
	createUser(t, db, "admin@tolatiles.com", models.RoleAdmin)
	inactive := createUser(t, db, "gone@tolatiles.com", models.RoleStaff)
	require.NoError(t, db.Model(inactive).Update("is_active", false).Error)

	users, err := store.StaffUsers()
	require.NoError(t, err)
	assert.Len(t, users, 2)
}
