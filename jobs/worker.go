package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"tile-ops-server/config"
	"tile-ops-server/services"
)

// Worker runs the background task server and the periodic scheduler.
type Worker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux

	store *services.NotificationStore
	push  *services.PushService
	stats *services.StatsService
	cfg   config.JobsConfig
}

// NewWorker builds the asynq server, mux and scheduler. Retries back off
// exponentially from one minute: 60s, 120s, 240s.
func NewWorker(redisOpt asynq.RedisClientOpt, store *services.NotificationStore, push *services.PushService, stats *services.StatsService, cfg config.JobsConfig) *Worker {
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
			return time.Duration(60*(1<<n)) * time.Second
		},
		Queues: map[string]int{
			"default": 1,
		},
	})

	w := &Worker{
		server:    server,
		scheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC}),
		mux:       asynq.NewServeMux(),
		store:     store,
		push:      push,
		stats:     stats,
		cfg:       cfg,
	}

	w.mux.HandleFunc(TypePushDelivery, w.handlePushDelivery)
	w.mux.HandleFunc(TypeStatsAggregate, w.handleStatsAggregate)
	w.mux.HandleFunc(TypeStatsBackfill, w.handleStatsBackfill)
	w.mux.HandleFunc(TypeCleanup, w.handleCleanup)

	return w
}

// Start launches the task server and registers the nightly schedule.
func (w *Worker) Start() error {
	// Nightly stats aggregation for the previous day, then retention
	// cleanup once the aggregate has had time to land.
	if _, err := w.scheduler.Register("0 2 * * *", asynq.NewTask(TypeStatsAggregate, nil)); err != nil {
		return fmt.Errorf("registering stats schedule: %w", err)
	}
	if _, err := w.scheduler.Register("30 3 * * *", asynq.NewTask(TypeCleanup, nil)); err != nil {
		return fmt.Errorf("registering cleanup schedule: %w", err)
	}

	if err := w.scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("starting task server: %w", err)
	}
	log.Printf("✅ Background worker started (concurrency=%d)", w.cfg.WorkerConcurrency)
	return nil
}

// Shutdown stops the scheduler and drains in-flight tasks.
func (w *Worker) Shutdown() {
	w.scheduler.Shutdown()
	w.server.Shutdown()
}

func (w *Worker) handlePushDelivery(ctx context.Context, t *asynq.Task) error {
	var payload PushDeliveryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid push payload: %w: %w", err, asynq.SkipRetry)
	}

	delivered, err := w.push.DeliverForNotification(payload.NotificationID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			// The notification was cleaned up; retrying cannot help.
			log.Printf("⚠️ Notification %d gone, dropping push task", payload.NotificationID)
			return fmt.Errorf("notification %d not found: %w", payload.NotificationID, asynq.SkipRetry)
		}
		return err
	}

	log.Printf("📱 Delivered notification %d to %d subscriptions", payload.NotificationID, delivered)
	return nil
}

func (w *Worker) handleStatsAggregate(ctx context.Context, t *asynq.Task) error {
	var payload StatsAggregatePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid stats payload: %w: %w", err, asynq.SkipRetry)
		}
	}

	// Default to yesterday so the nightly run always closes out a full day.
	day := time.Now().UTC().AddDate(0, 0, -1)
	if payload.Date != "" {
		parsed, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			return fmt.Errorf("invalid stats date %q: %w: %w", payload.Date, err, asynq.SkipRetry)
		}
		day = parsed
	}

	row, err := w.stats.AggregateDate(day)
	if err != nil {
		return err
	}
	log.Printf("📊 Aggregated stats for %s (%d new leads)", row.Date.Format("2006-01-02"), row.TotalNewLeads())
	return nil
}

func (w *Worker) handleStatsBackfill(ctx context.Context, t *asynq.Task) error {
	var payload StatsBackfillPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid backfill payload: %w: %w", err, asynq.SkipRetry)
	}

	count, err := w.stats.Backfill(payload.Days)
	if err != nil {
		return err
	}
	log.Printf("📊 Backfilled %d days of stats", count)
	return nil
}

func (w *Worker) handleCleanup(ctx context.Context, t *asynq.Task) error {
	cutoff := time.Now().AddDate(0, 0, -w.cfg.RetentionDays)
	deleted, err := w.store.CleanupOld(cutoff)
	if err != nil {
		return err
	}
	log.Printf("🧹 Cleaned up %d notifications older than %d days", deleted, w.cfg.RetentionDays)
	return nil
}
