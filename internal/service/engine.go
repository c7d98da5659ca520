package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/flowcraft/orchestrator/internal/log"
	"github.com/flowcraft/orchestrator/pkg/job"
	"github.com/flowcraft/orchestrator/pkg/manifest"
	"github.com/flowcraft/orchestrator/pkg/models"
	"github.com/flowcraft/orchestrator/pkg/query"
	"github.com/flowcraft/orchestrator/pkg/runtime"
	"github.com/flowcraft/orchestrator/pkg/storage"
)

// Engine glues the Job Driver and Query Service to whichever front end
// (CLI or HTTP) is driving it.
type Engine struct {
	driver   *job.Driver
	query    *query.Service
	manifest *manifest.Registry
}

// New builds an Engine over a loaded manifest/runtime registry and store.
func New(manifestRegistry *manifest.Registry, runtimeRegistry *runtime.Registry, store storage.Store, logger log.Logger) *Engine {
	driver := job.NewDriver(job.Deps{
		Manifest: manifestRegistry,
		Runtimes: runtimeRegistry,
		Store:    store,
		Logger:   logger,
	})
	return &Engine{
		driver:   driver,
		query:    query.NewService(store),
		manifest: manifestRegistry,
	}
}

// RunJob triggers a named job manually or as scheduled, depending on
// trigger. A fresh correlation id is allocated for every top-level call.
func (e *Engine) RunJob(ctx context.Context, name string, params map[string]any, trigger string) (string, map[string]any, error) {
	if trigger == "" {
		trigger = models.ManualTrigger
	}
	executionID := uuid.NewString()
	output, err := e.driver.RunJob(ctx, name, params, trigger, &executionID, false)
	return executionID, output, err
}

// ListExecutions delegates to the Query Service.
func (e *Engine) ListExecutions(filter query.Filter) ([]query.ExecutionRecord, error) {
	return e.query.ListExecutions(filter)
}

// GetExecution delegates to the Query Service.
func (e *Engine) GetExecution(executionID string) ([]query.ExecutionRecord, error) {
	return e.query.GetExecution(executionID)
}

// ListIntegrations delegates to the manifest registry.
func (e *Engine) ListIntegrations() map[string]models.IntegrationPointer {
	return e.manifest.ListIntegrations()
}
