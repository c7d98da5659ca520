package models

// Step is one entry inside a workflow or job definition.
type Step struct {
	Name       string         `json:"name"`
	Reference  string         `json:"reference"`
	DependsOn  []string       `json:"dependsOn,omitempty"`
	Params     map[string]any `json:"params,omitempty"`
	Retries    int            `json:"retries,omitempty"`
	RetryDelay *int           `json:"retry_delay,omitempty"` // seconds, default 5; nil means unset, distinct from an explicit 0
}

// EffectiveRetryDelay returns the step's configured retry delay, defaulting
// to 5s only when RetryDelay was never set; an explicit 0 means no delay.
func (s Step) EffectiveRetryDelay() int {
	if s.RetryDelay == nil {
		return 5
	}
	return *s.RetryDelay
}

// WorkflowDef is the on-disk shape of a <workflow>.json file.
type WorkflowDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tasks       []Step `json:"tasks,omitempty"`
	Workflows   []Step `json:"workflows,omitempty"`
}

// JobDef is the on-disk shape of a <job>.json file.
type JobDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tasks       []Step `json:"tasks,omitempty"`
	Workflows   []Step `json:"workflows,omitempty"`
	Jobs        []Step `json:"jobs,omitempty"`
	Cron        string `json:"cron,omitempty"`
	TriggerType string `json:"triggerType,omitempty"`
}
