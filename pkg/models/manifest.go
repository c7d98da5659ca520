package models

// Kind identifies which section of manifest.json an entry came from.
type Kind string

const (
	TaskKind        Kind = "task"
	WorkflowKind    Kind = "workflow"
	JobKind         Kind = "job"
	IntegrationKind Kind = "integration"
)

// TaskPointer locates a task's on-disk definition and the runtime that executes it.
type TaskPointer struct {
	File        string `json:"file"`
	Runtime     string `json:"runtime"`
	RuntimeEnv  string `json:"runtimeEnv,omitempty"`
	Description string `json:"description,omitempty"`
}

// DefPointer locates a workflow/job's on-disk definition file.
type DefPointer struct {
	File        string `json:"file"`
	Description string `json:"description,omitempty"`
}

// IntegrationPointer carries opaque configuration for a bundled integration;
// the engine loads and lists these but never dispatches them itself.
type IntegrationPointer struct {
	Kind    string         `json:"kind"`
	Enabled bool           `json:"enabled"`
	Config  map[string]any `json:"config,omitempty"`
}

// Manifest is the parsed, validated manifest.json: every name the registry
// knows about, resolved to where its definition lives.
type Manifest struct {
	Tasks        map[string]TaskPointer        `json:"tasks"`
	Workflows    map[string]DefPointer         `json:"workflows"`
	Jobs         map[string]DefPointer         `json:"jobs"`
	Integrations map[string]IntegrationPointer `json:"integrations"`
}
