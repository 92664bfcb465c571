package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tile-ops-server/services"
)

func newTestClient(hub *Hub, userID uint) *Client {
	return &Client{
		Hub:    hub,
		UserID: userID,
		Send:   make(chan []byte, 8),
	}
}

func registerAndWait(t *testing.T, hub *Hub, client *Client) {
	t.Helper()

	hub.Register <- client
	deadline := time.Now().Add(time.Second)
	for !hub.IsUserConnected(client.UserID) {
		if time.Now().After(deadline) {
			t.Fatalf("client for user %d never registered", client.UserID)
		}
		time.Sleep(time.Millisecond)
	}
}

func receiveFrame(t *testing.T, client *Client) map[string]interface{} {
	t.Helper()

	select {
	case frame := <-client.Send:
		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(frame, &decoded))
		return decoded
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func TestNotifyUserReachesEverySession(t *testing.T) {
	hub := NewHub(services.NewNotificationStore(nil), nil)
	go hub.Run()

	// Same user on two devices, a second user on one.
	first := newTestClient(hub, 1)
	second := newTestClient(hub, 1)
	other := newTestClient(hub, 2)
	registerAndWait(t, hub, first)
	registerAndWait(t, hub, second)
	registerAndWait(t, hub, other)

	delivered := hub.NotifyUser(1, map[string]interface{}{"id": 7, "title": "New lead"})
	assert.True(t, delivered)

	for _, client := range []*Client{first, second} {
		frame := receiveFrame(t, client)
		assert.Equal(t, "new_notification", frame["type"])
		notification, ok := frame["notification"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "New lead", notification["title"])

		// Exactly one frame per session.
		select {
		case extra := <-client.Send:
			t.Fatalf("unexpected second frame: %s", extra)
		default:
		}
	}

	select {
	case frame := <-other.Send:
		t.Fatalf("frame leaked to another user's session: %s", frame)
	default:
	}
}

func TestNotifyUserWithoutSessions(t *testing.T) {
	hub := NewHub(services.NewNotificationStore(nil), nil)
	go hub.Run()

	delivered := hub.NotifyUser(99, map[string]interface{}{"id": 1})
	assert.False(t, delivered)
}

func TestUnreadCountUpdateFrame(t *testing.T) {
	hub := NewHub(services.NewNotificationStore(nil), nil)
	go hub.Run()

	client := newTestClient(hub, 5)
	registerAndWait(t, hub, client)

	hub.UpdateUnreadCount(5, 3)

	frame := receiveFrame(t, client)
	assert.Equal(t, "unread_count_update", frame["type"])
	assert.Equal(t, float64(3), frame["unread_count"])
}

func TestUnregisterRemovesSession(t *testing.T) {
	hub := NewHub(services.NewNotificationStore(nil), nil)
	go hub.Run()

	first := newTestClient(hub, 1)
	second := newTestClient(hub, 1)
	registerAndWait(t, hub, first)
	registerAndWait(t, hub, second)

	hub.Unregister <- first
	select {
	case _, open := <-first.Send:
		require.False(t, open, "send channel should be closed on unregister")
	case <-time.After(time.Second):
		t.Fatal("send channel never closed on unregister")
	}

	// The remaining session still receives events.
	assert.True(t, hub.NotifyUser(1, map[string]interface{}{"id": 1}))
	receiveFrame(t, second)

	hub.Unregister <- second
	deadline := time.Now().Add(time.Second)
	for hub.IsUserConnected(1) {
		if time.Now().After(deadline) {
			t.Fatal("user still connected after last unregister")
		}
		time.Sleep(time.Millisecond)
	}
	assert.False(t, hub.NotifyUser(1, map[string]interface{}{"id": 2}))
}

func TestLiveDeliveredRequiresLocalSession(t *testing.T) {
	hub := NewHub(services.NewNotificationStore(nil), nil)
	go hub.Run()

	// Subscribed processes alone don't prove any session saw the frame.
	assert.False(t, hub.liveDelivered(2, 1))
	assert.False(t, hub.liveDelivered(0, 1))

	client := newTestClient(hub, 1)
	registerAndWait(t, hub, client)
	assert.True(t, hub.liveDelivered(1, 1))
	assert.False(t, hub.liveDelivered(2, 99))
}

func TestChannelNameRoundTrip(t *testing.T) {
	assert.Equal(t, "notifications:user:42", userChannel(42))

	id, err := userIDFromChannel("notifications:user:42")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	_, err = userIDFromChannel("notifications:user:bogus")
	assert.Error(t, err)
}
