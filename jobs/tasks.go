package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerVerify replays every budget ledger and reports drift.
	TaskLedgerVerify = "budget:ledger_verify"
)

// LedgerVerifyPayload selects the divisions to verify. An empty list means
// every configured division.
type LedgerVerifyPayload struct {
	Divisions []string `json:"divisions,omitempty"`
}

// NewLedgerVerifyTask constructs an Asynq task.
func NewLedgerVerifyTask(payload LedgerVerifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerVerify, data), nil
}
