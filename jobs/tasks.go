package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDecisionRetention is the task type for pruning the decision log.
	TaskDecisionRetention = "decisionlog:retention"
)

// DecisionRetentionPayload configures one retention run.
type DecisionRetentionPayload struct {
	Retention time.Duration `json:"retention"`
}

// NewDecisionRetentionTask constructs an Asynq task.
func NewDecisionRetentionTask(payload DecisionRetentionPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDecisionRetention, data), nil
}
