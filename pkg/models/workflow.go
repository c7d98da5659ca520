package models

import "time"

// WorkflowRecord is the persisted row created at Workflow Scheduler entry,
// keyed by WorkflowID=ExecutionID.
type WorkflowRecord struct {
	WorkflowID  string     `json:"workflow_id" db:"workflow_id"`
	JobName     string     `json:"job_name,omitempty" db:"job_name"`
	Name        string     `json:"name" db:"name"`
	Status      RunStatus  `json:"status" db:"status"`
	TriggerType string     `json:"trigger_type" db:"trigger_type"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	RuntimeMs   int64      `json:"runtime_ms,omitempty" db:"runtime_ms"`
}
