// Package jobs contains the background work the engine schedules around
// the ledger: overdue sweeps, recurring bill materialization and
// idempotency key retention.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/homeledger/homeledger/internal/bill"
	jobmetrics "github.com/homeledger/homeledger/internal/jobs"
	"github.com/homeledger/homeledger/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBillOverdueSweep flips pending bills past their due date to
	// OVERDUE.
	TaskBillOverdueSweep = "bill:overdue_sweep"
	// TaskRecurringMaterialize creates the month's bills from active
	// recurring templates.
	TaskRecurringMaterialize = "bill:recurring_materialize"
	// TaskIdempotencyCleanup prunes operation keys past retention.
	TaskIdempotencyCleanup = "ops:idempotency_cleanup"
)

// MaterializePayload selects the month to materialize. A zero Month means
// the current month at processing time.
type MaterializePayload struct {
	Month time.Time `json:"month"`
}

// NewBillOverdueSweepTask constructs the sweep task.
func NewBillOverdueSweepTask() *asynq.Task {
	return asynq.NewTask(TaskBillOverdueSweep, nil)
}

// NewRecurringMaterializeTask constructs the materialize task.
func NewRecurringMaterializeTask(payload MaterializePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurringMaterialize, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// HandleBillOverdueSweep returns the handler for TaskBillOverdueSweep.
func HandleBillOverdueSweep(svc *bill.Service, logger *slog.Logger) asynq.HandlerFunc {
	metrics := jobmetrics.NewMetrics(nil)
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskBillOverdueSweep)
		n, err := svc.SweepOverdue(ctx)
		if err != nil {
			return tracker.End(err)
		}
		logger.InfoContext(ctx, "overdue sweep finished", slog.Int64("marked", n))
		return tracker.End(nil)
	}
}

// HandleRecurringMaterialize returns the handler for
// TaskRecurringMaterialize.
func HandleRecurringMaterialize(svc *bill.Service, logger *slog.Logger) asynq.HandlerFunc {
	metrics := jobmetrics.NewMetrics(nil)
	return func(ctx context.Context, t *asynq.Task) error {
		var payload MaterializePayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		month := payload.Month
		if month.IsZero() {
			month = time.Now()
		}
		tracker := metrics.Track(TaskRecurringMaterialize)
		n, err := svc.MaterializeMonth(ctx, month)
		if err != nil {
			return tracker.End(err)
		}
		logger.InfoContext(ctx, "recurring bills materialized",
			slog.String("month", month.Format("2006-01")), slog.Int64("created", n))
		return tracker.End(nil)
	}
}

// HandleIdempotencyCleanup returns the handler for TaskIdempotencyCleanup.
func HandleIdempotencyCleanup(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	metrics := jobmetrics.NewMetrics(nil)
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(TaskIdempotencyCleanup)
		n, err := store.Cleanup(ctx, retention)
		if err != nil {
			return tracker.End(err)
		}
		logger.InfoContext(ctx, "idempotency keys pruned", slog.Int64("removed", n))
		return tracker.End(nil)
	}
}
