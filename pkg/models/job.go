package models

import "time"

// JobRecord is the persisted row created at Job Driver entry, keyed by
// the composite (JobID, Name).
type JobRecord struct {
	JobID       string     `json:"job_id" db:"job_id"`
	Name        string     `json:"name" db:"name"`
	TriggerType string     `json:"trigger_type" db:"trigger_type"`
	Cron        *string    `json:"cron,omitempty" db:"cron"`
	Status      RunStatus  `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	RuntimeMs   int64      `json:"runtime_ms,omitempty" db:"runtime_ms"`
	CreatedBy   string     `json:"created_by,omitempty" db:"created_by"`
	InputParams string     `json:"input_params,omitempty" db:"input_params"`
}
