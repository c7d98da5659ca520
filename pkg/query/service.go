package query

import (
	"sort"
	"strings"
	"time"

	"github.com/flowcraft/orchestrator/pkg/storage"
)

// ExecutionRecord is the flattened shape returned by ListExecutions and
// GetExecution, covering Jobs, Workflows, and TaskExecutions rows alike.
type ExecutionRecord struct {
	Type        string      `json:"type"` // "job" | "workflow" | "task"
	ExecutionID string      `json:"execution_id"`
	Name        string      `json:"name"`
	Status      string      `json:"status"`
	TriggerType string      `json:"trigger_type,omitempty"`
	StartedAt   string      `json:"started_at,omitempty"`
	EndedAt     string      `json:"ended_at,omitempty"`
	RuntimeMs   int64       `json:"runtime_ms,omitempty"`
	Raw         storage.Row `json:"raw,omitempty"`
}

// Filter narrows ListExecutions. Zero-valued fields are not applied.
type Filter struct {
	Status    string
	Type      string
	Name      string
	Since     *time.Time
	Until     *time.Time
	SortBy    string // StartedAt|EndedAt|Status|RuntimeMs
	Ascending bool
	Top       int
}

// Service is the read-only surface over a Store used to reconstruct
// execution history.
type Service struct {
	store storage.Store
}

// NewService builds a Service over store.
func NewService(store storage.Store) *Service {
	return &Service{store: store}
}

// ListExecutions returns the union of Jobs, Workflows, and TaskExecutions
// rows matching filter, sorted and truncated to filter.Top.
func (s *Service) ListExecutions(filter Filter) ([]ExecutionRecord, error) {
	var all []ExecutionRecord

	if filter.Type == "" || filter.Type == "job" {
		jobs, err := s.store.Query(storage.JobsTable, storage.Where{}, nil)
		if err != nil {
			return nil, err
		}
		for _, row := range jobs {
			all = append(all, fromJobRow(row))
		}
	}
	if filter.Type == "" || filter.Type == "workflow" {
		workflows, err := s.store.Query(storage.WorkflowsTable, storage.Where{}, nil)
		if err != nil {
			return nil, err
		}
		for _, row := range workflows {
			all = append(all, fromWorkflowRow(row))
		}
	}
	if filter.Type == "" || filter.Type == "task" {
		tasks, err := s.store.Query(storage.TaskExecutionsTable, storage.Where{}, nil)
		if err != nil {
			return nil, err
		}
		for _, row := range tasks {
			all = append(all, fromTaskRow(row))
		}
	}

	filtered := make([]ExecutionRecord, 0, len(all))
	for _, rec := range all {
		if !matchesFilter(rec, filter) {
			continue
		}
		filtered = append(filtered, rec)
	}

	sortExecutions(filtered, filter.SortBy, filter.Ascending)

	if filter.Top > 0 && len(filtered) > filter.Top {
		filtered = filtered[:filter.Top]
	}
	return filtered, nil
}

// GetExecution reconstructs one execution tree: the Jobs row with this id,
// the Workflows row with this id, and every TaskExecutions row sharing it,
// chronological by StartedAt. If no Jobs row exists, the TaskExecutions
// rows alone are returned.
func (s *Service) GetExecution(executionID string) ([]ExecutionRecord, error) {
	var out []ExecutionRecord

	jobRows, err := s.store.Query(storage.JobsTable, storage.Where{"job_id": executionID}, nil)
	if err != nil {
		return nil, err
	}
	for _, row := range jobRows {
		out = append(out, fromJobRow(row))
	}

	if len(jobRows) > 0 {
		workflowRows, err := s.store.Query(storage.WorkflowsTable, storage.Where{"workflow_id": executionID}, nil)
		if err != nil {
			return nil, err
		}
		for _, row := range workflowRows {
			out = append(out, fromWorkflowRow(row))
		}
	}

	taskRows, err := s.store.Query(storage.TaskExecutionsTable, storage.Where{"execution_id": executionID}, nil)
	if err != nil {
		return nil, err
	}
	for _, row := range taskRows {
		out = append(out, fromTaskRow(row))
	}

	sortExecutions(out, "StartedAt", true)
	return out, nil
}

func matchesFilter(rec ExecutionRecord, filter Filter) bool {
	if filter.Status != "" && !strings.EqualFold(rec.Status, filter.Status) {
		return false
	}
	if filter.Name != "" && !strings.EqualFold(rec.Name, filter.Name) {
		return false
	}
	if filter.Since != nil || filter.Until != nil {
		started, ok := parseTime(rec.StartedAt)
		if !ok {
			return false
		}
		if filter.Since != nil && started.Before(*filter.Since) {
			return false
		}
		if filter.Until != nil && started.After(*filter.Until) {
			return false
		}
	}
	return true
}

func sortExecutions(records []ExecutionRecord, sortBy string, ascending bool) {
	less := func(i, j int) bool {
		a, b := records[i], records[j]
		var cmp bool
		switch sortBy {
		case "EndedAt":
			cmp = a.EndedAt < b.EndedAt
		case "Status":
			cmp = a.Status < b.Status
		case "RuntimeMs":
			cmp = a.RuntimeMs < b.RuntimeMs
		default: // StartedAt
			cmp = a.StartedAt < b.StartedAt
		}
		if ascending {
			return cmp
		}
		return !cmp
	}
	sort.SliceStable(records, less)
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func fromJobRow(row storage.Row) ExecutionRecord {
	return ExecutionRecord{
		Type:        "job",
		ExecutionID: stringField(row, "job_id"),
		Name:        stringField(row, "name"),
		Status:      stringField(row, "status"),
		TriggerType: stringField(row, "trigger_type"),
		StartedAt:   stringField(row, "started_at"),
		EndedAt:     stringField(row, "ended_at"),
		RuntimeMs:   int64Field(row, "runtime_ms"),
		Raw:         row,
	}
}

func fromWorkflowRow(row storage.Row) ExecutionRecord {
	return ExecutionRecord{
		Type:        "workflow",
		ExecutionID: stringField(row, "workflow_id"),
		Name:        stringField(row, "name"),
		Status:      stringField(row, "status"),
		TriggerType: stringField(row, "trigger_type"),
		StartedAt:   stringField(row, "started_at"),
		EndedAt:     stringField(row, "ended_at"),
		RuntimeMs:   int64Field(row, "runtime_ms"),
		Raw:         row,
	}
}

func fromTaskRow(row storage.Row) ExecutionRecord {
	return ExecutionRecord{
		Type:        "task",
		ExecutionID: stringField(row, "execution_id"),
		Name:        stringField(row, "task_id"),
		Status:      stringField(row, "status"),
		TriggerType: stringField(row, "trigger_type"),
		StartedAt:   stringField(row, "started_at"),
		EndedAt:     stringField(row, "ended_at"),
		RuntimeMs:   int64Field(row, "runtime_ms"),
		Raw:         row,
	}
}

func stringField(row storage.Row, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return ""
}

func int64Field(row storage.Row, key string) int64 {
	v, ok := row[key]
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
