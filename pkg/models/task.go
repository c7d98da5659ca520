package models

import (
	"fmt"
	"time"
)

// TaskExecution is one step's persisted record, keyed by (ExecutionID, TaskID).
// TaskID is the step's name within its workflow/job, not the underlying task reference.
type TaskExecution struct {
	ExecutionID  string     `json:"execution_id" db:"execution_id"`
	TaskID       string     `json:"task_id" db:"task_id"`
	JobName      string     `json:"job_name" db:"job_name"`
	WorkflowName string     `json:"workflow_name,omitempty" db:"workflow_name"`
	TriggerType  string     `json:"trigger_type" db:"trigger_type"`
	InputData    string     `json:"input_data,omitempty" db:"input_data"`
	OutputData   string     `json:"output_data,omitempty" db:"output_data"`
	ExecutionLog string     `json:"execution_log,omitempty" db:"execution_log"`
	ErrorLog     string     `json:"error_log,omitempty" db:"error_log"`
	Status       TaskStatus `json:"status" db:"status"`
	State        string     `json:"state" db:"state"`
	StartedAt    *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	RuntimeMs    int64      `json:"runtime_ms,omitempty" db:"runtime_ms"`
	ExitCode     int        `json:"exit_code" db:"exit_code"`
	Attempt      int        `json:"attempt" db:"attempt"`
	MaxRetries   int        `json:"max_retries" db:"max_retries"`
}

// WaitingForState renders the live-progress label used while a step is blocked
// on unfinished dependencies.
func WaitingForState(blockers []string) string {
	if len(blockers) == 0 {
		return "Waiting"
	}
	s := "Waiting for: "
	for i, b := range blockers {
		if i > 0 {
			s += ", "
		}
		s += b
	}
	return s
}

// RetryingState renders the live-progress label for attempt k of maxAttempts.
func RetryingState(attempt, maxAttempts int) string {
	return fmt.Sprintf("Retrying (%d/%d)", attempt, maxAttempts)
}
