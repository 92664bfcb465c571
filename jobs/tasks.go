package jobs

import (
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
)

// Task type names. Queued in redis via asynq.
const (
	TypePushDelivery   = "notification:push"
	TypeCleanup        = "notification:cleanup"
	TypeStatsAggregate = "stats:aggregate"
	TypeStatsBackfill  = "stats:backfill"
)

// PushDeliveryPayload identifies the notification to deliver via web push.
type PushDeliveryPayload struct {
	NotificationID uint `json:"notification_id"`
}

// StatsAggregatePayload names the day to aggregate, RFC 3339 date. Empty
// means yesterday.
type StatsAggregatePayload struct {
	Date string `json:"date,omitempty"`
}

// StatsBackfillPayload asks for the last N days to be recomputed.
type StatsBackfillPayload struct {
	Days int `json:"days"`
}

// Enqueuer hands tasks to the redis-backed queue. A nil client makes every
// enqueue a logged no-op, for deployments without background workers.
type Enqueuer struct {
	client   *asynq.Client
	maxRetry int
	timeout  time.Duration
}

func NewEnqueuer(client *asynq.Client, maxRetry int, timeout time.Duration) *Enqueuer {
	return &Enqueuer{client: client, maxRetry: maxRetry, timeout: timeout}
}

// EnqueuePushDelivery queues web push delivery for a stored notification.
func (e *Enqueuer) EnqueuePushDelivery(notificationID uint) error {
	if e.client == nil {
		log.Printf("⚠️ No task queue configured, skipping push delivery for notification %d", notificationID)
		return nil
	}

	payload, err := json.Marshal(PushDeliveryPayload{NotificationID: notificationID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TypePushDelivery, payload)
	_, err = e.client.Enqueue(task,
		asynq.MaxRetry(e.maxRetry),
		asynq.Timeout(e.timeout),
	)
	return err
}

// EnqueueStatsBackfill queues a recompute of the last days of daily stats.
func (e *Enqueuer) EnqueueStatsBackfill(days int) error {
	if e.client == nil {
		return nil
	}

	payload, err := json.Marshal(StatsBackfillPayload{Days: days})
	if err != nil {
		return err
	}
	_, err = e.client.Enqueue(asynq.NewTask(TypeStatsBackfill, payload), asynq.MaxRetry(1))
	return err
}
