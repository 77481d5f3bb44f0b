package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity checks that a tenant's books and stock levels agree.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskInventoryRevaluation snapshots a tenant's inventory valuation.
	TaskInventoryRevaluation = "inventory:revaluation"
)

// TenantPayload scopes a task to one tenant. A zero AsOf means the time the
// task runs.
type TenantPayload struct {
	TenantID int64     `json:"tenant_id"`
	AsOf     time.Time `json:"as_of,omitempty"`
}

func newTenantTask(taskType string, tenantID int64, asOf time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(TenantPayload{TenantID: tenantID, AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

// NewLedgerIntegrityTask constructs an integrity check task for tenantID.
func NewLedgerIntegrityTask(tenantID int64, asOf time.Time) (*asynq.Task, error) {
	return newTenantTask(TaskLedgerIntegrity, tenantID, asOf)
}

// NewInventoryRevaluationTask constructs a revaluation task for tenantID.
func NewInventoryRevaluationTask(tenantID int64, asOf time.Time) (*asynq.Task, error) {
	return newTenantTask(TaskInventoryRevaluation, tenantID, asOf)
}

func decodeTenantPayload(t *asynq.Task) (TenantPayload, error) {
	var payload TenantPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, err
	}
	if payload.TenantID <= 0 {
		return payload, errInvalidTenant
	}
	return payload, nil
}
