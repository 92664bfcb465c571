package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tile-ops-server/models"
)

// fakeBroadcaster records live deliveries and simulates session presence.
type fakeBroadcaster struct {
	connected    map[uint]bool
	notified     []uint
	unreadCounts map[uint]int64
}

func newFakeBroadcaster(connected ...uint) *fakeBroadcaster {
	fb := &fakeBroadcaster{
		connected:    make(map[uint]bool),
		unreadCounts: make(map[uint]int64),
	}
	for _, id := range connected {
		fb.connected[id] = true
	}
	return fb
}

func (f *fakeBroadcaster) NotifyUser(userID uint, snapshot map[string]interface{}) bool {
	f.notified = append(f.notified, userID)
	return f.connected[userID]
}

func (f *fakeBroadcaster) UpdateUnreadCount(userID uint, count int64) {
	f.unreadCounts[userID] = count
}

// fakeEnqueuer records push hand-offs.
type fakeEnqueuer struct {
	enqueued []uint
}

func (f *fakeEnqueuer) EnqueuePushDelivery(notificationID uint) error {
	f.enqueued = append(f.enqueued, notificationID)
	return nil
}

func TestCreatePersistsAndDispatches(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	live := newFakeBroadcaster(user.ID)
	tasks := &fakeEnqueuer{}
	svc := NewNotificationService(store, NewPreferenceGate(store), live, tasks)

	leadID := uint(42)
	n, err := svc.Create(user.ID, models.TypeNewLead, "New lead", "Jane submitted an inquiry",
		models.PriorityHigh, &RelatedRef{Kind: models.KindLead, ID: leadID},
		map[string]interface{}{"url": "/admin/leads"})
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.True(t, n.DeliveredViaLive)
	assert.Equal(t, []uint{user.ID}, live.notified)
	assert.Equal(t, []uint{n.ID}, tasks.enqueued)

	stored, err := store.Get(user.ID, n.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TypeNewLead, stored.Type)
	assert.True(t, stored.DeliveredViaLive)
	require.NotNil(t, stored.RelatedKind)
	assert.Equal(t, models.KindLead, *stored.RelatedKind)
	require.NotNil(t, stored.RelatedID)
	assert.Equal(t, leadID, *stored.RelatedID)
	assert.Equal(t, "/admin/leads", stored.DataMap()["url"])
}

func TestCreateWithoutLiveSession(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	live := newFakeBroadcaster() // nobody connected
	svc := NewNotificationService(store, NewPreferenceGate(store), live, &fakeEnqueuer{})

	n, err := svc.Create(user.ID, models.TypeSystem, "Maintenance", "tonight", models.PriorityLow, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.False(t, n.DeliveredViaLive)

	stored, err := store.Get(user.ID, n.ID)
	require.NoError(t, err)
	assert.False(t, stored.DeliveredViaLive)
}

func TestCreateRespectsTypePreference(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	prefs, err := store.GetOrCreatePreferences(user.ID)
	require.NoError(t, err)
	prefs.NewLeadEnabled = false
	require.NoError(t, store.SavePreferences(prefs))

	tasks := &fakeEnqueuer{}
	svc := NewNotificationService(store, NewPreferenceGate(store), newFakeBroadcaster(user.ID), tasks)

	n, err := svc.Create(user.ID, models.TypeNewLead, "New lead", "dropped", models.PriorityNormal, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, n)
	assert.Empty(t, tasks.enqueued)

	_, total, err := store.List(user.ID, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	// Other types stay unaffected.
	n, err = svc.Create(user.ID, models.TypeSystem, "Hello", "still on", models.PriorityNormal, nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, n)
}

func TestCreateRejectsInvalidType(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	svc := NewNotificationService(store, NewPreferenceGate(store), nil, nil)

	_, err := svc.Create(1, "bogus", "t", "m", models.PriorityNormal, nil, nil)
	assert.Error(t, err)

	_, err = svc.Create(1, models.TypeSystem, "t", "m", "urgent", nil, nil)
	assert.Error(t, err)
}

func TestCreateForAllStaffHonorsIndividualOptOuts(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)

	alice := createUser(t, db, "alice@tolatiles.com", models.RoleStaff)
	bob := createUser(t, db, "bob@tolatiles.com", models.RoleAdmin)
	carol := createUser(t, db, "carol@tolatiles.com", models.RoleStaff)

	// Carol opted out of lead notifications.
	prefs, err := store.GetOrCreatePreferences(carol.ID)
	require.NoError(t, err)
	prefs.NewLeadEnabled = false
	require.NoError(t, store.SavePreferences(prefs))

	svc := NewNotificationService(store, NewPreferenceGate(store), newFakeBroadcaster(), &fakeEnqueuer{})

	created, err := svc.CreateForAllStaff(models.TypeNewLead, "New lead", "from the website",
		models.PriorityHigh, nil, nil)
	require.NoError(t, err)
	assert.Len(t, created, 2)

	for _, userID := range []uint{alice.ID, bob.ID} {
		count, err := store.UnreadCount(userID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	}
	count, err := store.UnreadCount(carol.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSendUnreadCountUpdate(t *testing.T) {
	db := testDB(t)
	store := NewNotificationStore(db)
	user := createUser(t, db, "staff@tolatiles.com", models.RoleStaff)

	live := newFakeBroadcaster(user.ID)
	svc := NewNotificationService(store, NewPreferenceGate(store), live, nil)

	for i := 0; i < 4; i++ {
		insertNotification(t, store, user.ID, "n")
	}

	svc.SendUnreadCountUpdate(user.ID)
	assert.Equal(t, int64(4), live.unreadCounts[user.ID])
}
