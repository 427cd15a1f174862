package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pulsefit/pulsefit-iam/internal/decisionlog"
)

// DefaultRetention keeps ninety days of decisions when the payload does not
// say otherwise.
const DefaultRetention = 90 * 24 * time.Hour

// DecisionRetention prunes decision log entries older than the retention
// window.
type DecisionRetention struct {
	Decisions *decisionlog.Service
	Logger    *slog.Logger
}

// Handle processes TaskDecisionRetention tasks.
func (j DecisionRetention) Handle(ctx context.Context, t *asynq.Task) error {
	var payload DecisionRetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	retention := payload.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	removed, err := j.Decisions.Prune(ctx, retention)
	if err != nil {
		if j.Logger != nil {
			j.Logger.Error("decision log retention", slog.Any("error", err))
		}
		return err
	}
	if j.Logger != nil {
		j.Logger.Info("decision log pruned",
			slog.Int64("removed", removed),
			slog.Duration("retention", retention))
	}
	return nil
}
