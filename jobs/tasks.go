package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvalidateFanout recomputes and invalidates the cache entries of
	// every principal reachable through a mutated role or group edge.
	TaskInvalidateFanout = "authz:invalidate_fanout"
	// TaskAuditSweep removes audit records past the retention window.
	TaskAuditSweep = "audit:retention_sweep"
)

// Fan-out scopes: which edge was mutated.
const (
	ScopeRole  = "role"
	ScopeGroup = "group"
)

// InvalidateFanoutPayload names the mutated edge.
type InvalidateFanoutPayload struct {
	Scope string `json:"scope"`
	ID    int64  `json:"id"`
}

// NewInvalidateFanoutTask constructs an invalidation fan-out task.
func NewInvalidateFanoutTask(payload InvalidateFanoutPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvalidateFanout, data), nil
}

// NewAuditSweepTask constructs a retention sweep task.
func NewAuditSweepTask() *asynq.Task {
	return asynq.NewTask(TaskAuditSweep, nil)
}
