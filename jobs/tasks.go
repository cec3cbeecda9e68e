package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntelligenceSweep evaluates pace and health for every customer of one
	// or all tenants and publishes the prioritized alerts.
	TaskIntelligenceSweep = "intelligence:sweep"
)

// SweepPayload selects the tenant to sweep. A zero TenantID sweeps every tenant.
type SweepPayload struct {
	TenantID    int64  `json:"tenant_id,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// NewSweepTask constructs an intelligence sweep task.
func NewSweepTask(payload SweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntelligenceSweep, data), nil
}

// sweepOptions deduplicates on-demand sweeps for the same tenant.
func sweepOptions() []asynq.Option {
	return []asynq.Option{
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Unique(5 * time.Minute),
	}
}
