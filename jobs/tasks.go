// Package jobs runs background work over Asynq: the periodic authorization
// cache sweep and cross-instance cache invalidation fanout.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/terojleinonen/cms-admin/internal/authz"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuthzSweep removes TTL-expired permission cache entries.
	TaskAuthzSweep = "authz:sweep"
	// TaskAuthzInvalidate applies a cache invalidation event on the
	// consuming instance.
	TaskAuthzInvalidate = "authz:invalidate"
)

// SweepCron is the schedule for the periodic cache sweep.
const SweepCron = "*/5 * * * *"

// InvalidatePayload describes a fanned-out invalidation event.
type InvalidatePayload struct {
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// NewSweepTask constructs the periodic sweep task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TaskAuthzSweep, nil)
}

// NewInvalidateTask constructs an invalidation fanout task.
func NewInvalidateTask(payload InvalidatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthzInvalidate, data), nil
}

// NewSweepHandler processes TaskAuthzSweep tasks.
func NewSweepHandler(inv *authz.Invalidator, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		removed := inv.CleanupExpiredEntries(ctx)
		logger.Info("authz cache sweep complete", slog.Int("removed", removed))
		return nil
	}
}

// NewInvalidateHandler processes TaskAuthzInvalidate tasks.
func NewInvalidateHandler(inv *authz.Invalidator, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload InvalidatePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Warn("authz invalidate task malformed", slog.Any("error", err))
			return asynq.SkipRetry
		}
		inv.Apply(ctx, payload.Kind, payload.Value)
		return nil
	}
}
