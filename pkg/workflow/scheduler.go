package workflow

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/flowcraft/orchestrator/internal/log"
	"github.com/flowcraft/orchestrator/pkg/manifest"
	"github.com/flowcraft/orchestrator/pkg/models"
	"github.com/flowcraft/orchestrator/pkg/runtime"
	"github.com/flowcraft/orchestrator/pkg/storage"
	"github.com/flowcraft/orchestrator/pkg/task"
)

const maxIterations = 100

const timeLayout = time.RFC3339Nano

// Deps bundles the collaborators a Scheduler needs to resolve and
// dispatch steps; shared across the whole execution tree.
type Deps struct {
	Manifest *manifest.Registry
	Runtimes *runtime.Registry
	Store    storage.Store
	Logger   log.Logger
	Runner   *task.Runner
	Workers  int // bounded worker pool size for a runnable set; 0 = len(set)
}

// Scheduler runs one workflow definition to completion, dispatching its
// runnable step set concurrently through a bounded worker pool.
type Scheduler struct {
	deps Deps
}

// NewScheduler builds a Scheduler sharing deps across nested workflow
// invocations.
func NewScheduler(deps Deps) *Scheduler {
	if deps.Logger == nil {
		deps.Logger = log.NoopLogger{}
	}
	if deps.Runner == nil {
		deps.Runner = task.NewRunner()
	}
	return &Scheduler{deps: deps}
}

// RunWorkflow executes the named workflow's steps to completion and
// returns the accumulated context (every step's output, keyed by step
// name).
func (s *Scheduler) RunWorkflow(ctx context.Context, name string, inputParams map[string]any, executionID, jobName, triggerType string) (map[string]any, error) {
	def, err := s.deps.Manifest.GetWorkflowDef(name)
	if err != nil {
		return nil, errors.Wrapf(err, "run workflow %s", name)
	}

	childTrigger := childTriggerLabel(triggerType, name)
	startedAt := time.Now().UTC()

	if err := s.deps.Store.Insert(storage.WorkflowsTable, storage.Row{
		"workflow_id":  executionID,
		"job_name":     jobName,
		"name":         name,
		"status":       string(models.RunningRunStatus),
		"trigger_type": triggerType,
		"started_at":   startedAt.Format(timeLayout),
	}); err != nil {
		s.deps.Logger.Errorf("workflow %s: failed to register row: %v", name, err)
	}

	steps := append(append([]models.Step{}, def.Tasks...), def.Workflows...)
	for _, step := range def.Tasks {
		s.preRegister(executionID, step.Name, jobName, name, triggerType)
	}

	sharedCtx := map[string]any{}
	for k, v := range inputParams {
		sharedCtx[k] = v
	}
	var ctxMu sync.Mutex

	byName := map[string]models.Step{}
	isTaskKind := map[string]bool{}
	for _, step := range def.Tasks {
		byName[step.Name] = step
		isTaskKind[step.Name] = true
	}
	for _, step := range def.Workflows {
		byName[step.Name] = step
		isTaskKind[step.Name] = false
	}

	completed := map[string]bool{}
	failed := false
	var failErr error

	for iteration := 0; len(completed) < len(steps) && !failed; iteration++ {
		if iteration >= maxIterations {
			failErr = errors.Errorf("circular dependency detected in workflow %s", name)
			break
		}

		runnable := []models.Step{}
		var blocked []string
		for _, step := range steps {
			if completed[step.Name] {
				continue
			}
			blockers := unmetDependencies(step.DependsOn, completed)
			if len(blockers) == 0 {
				runnable = append(runnable, step)
			} else {
				blocked = append(blocked, step.Name)
				if isTaskKind[step.Name] {
					s.updateTaskState(executionID, step.Name, models.WaitingForState(blockers))
				}
			}
		}

		if len(runnable) == 0 {
			failErr = errors.Errorf("stuck waiting for dependencies. Remaining: %s", strings.Join(blocked, ", "))
			break
		}

		results := s.dispatchRunnable(ctx, runnable, isTaskKind, executionID, jobName, name, childTrigger, &sharedCtx, &ctxMu)
		for _, r := range results {
			if r.err != nil {
				failed = true
				failErr = r.err
				continue
			}
			completed[r.step] = true
		}
	}

	endedAt := time.Now().UTC()
	runtimeMs := endedAt.Sub(startedAt).Milliseconds()
	status := models.CompletedRunStatus
	if failed || failErr != nil {
		status = models.FailedRunStatus
	}
	if err := s.deps.Store.Update(storage.WorkflowsTable, storage.Where{"workflow_id": executionID}, storage.Set{
		"status":     string(status),
		"ended_at":   endedAt.Format(timeLayout),
		"runtime_ms": runtimeMs,
	}); err != nil {
		s.deps.Logger.Errorf("workflow %s: failed to finalize row: %v", name, err)
	}

	if failErr != nil {
		return sharedCtx, errors.Wrapf(failErr, "workflow %s", name)
	}
	return sharedCtx, nil
}

type stepResult struct {
	step string
	err  error
}

// dispatchRunnable fires every step in runnable concurrently, bounded by
// deps.Workers, and waits for all of them to finish before returning.
func (s *Scheduler) dispatchRunnable(ctx context.Context, runnable []models.Step, isTaskKind map[string]bool, executionID, jobName, workflowName, childTrigger string, sharedCtx *map[string]any, ctxMu *sync.Mutex) []stepResult {
	workers := s.deps.Workers
	if workers <= 0 || workers > len(runnable) {
		workers = len(runnable)
	}

	stepChan := make(chan models.Step, len(runnable))
	for _, step := range runnable {
		stepChan <- step
	}
	close(stepChan)

	resultsChan := make(chan stepResult, len(runnable))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for step := range stepChan {
				err := s.runStep(ctx, step, isTaskKind[step.Name], executionID, jobName, workflowName, childTrigger, sharedCtx, ctxMu)
				resultsChan <- stepResult{step: step.Name, err: err}
			}
		}()
	}
	wg.Wait()
	close(resultsChan)

	results := make([]stepResult, 0, len(runnable))
	for r := range resultsChan {
		results = append(results, r)
	}
	return results
}

func (s *Scheduler) runStep(ctx context.Context, step models.Step, isTask bool, executionID, jobName, workflowName, childTrigger string, sharedCtx *map[string]any, ctxMu *sync.Mutex) error {
	ctxMu.Lock()
	snapshot := map[string]any{}
	for k, v := range *sharedCtx {
		snapshot[k] = v
	}
	ctxMu.Unlock()

	if isTask {
		output, err := s.runTaskStep(ctx, step, snapshot, executionID, jobName, workflowName, childTrigger)
		if err != nil {
			return err
		}
		ctxMu.Lock()
		(*sharedCtx)[step.Name] = output
		ctxMu.Unlock()
		return nil
	}

	nested := NewScheduler(s.deps)
	merged := mergeParams(snapshot, step.Params)
	output, err := nested.RunWorkflow(ctx, step.Reference, merged, executionID, jobName, childTrigger)
	if err != nil {
		return err
	}
	ctxMu.Lock()
	(*sharedCtx)[step.Name] = output
	for k, v := range output {
		(*sharedCtx)[k] = v
	}
	ctxMu.Unlock()
	return nil
}

func (s *Scheduler) runTaskStep(ctx context.Context, step models.Step, contextData map[string]any, executionID, jobName, workflowName, triggerType string) (map[string]any, error) {
	ptr, err := s.deps.Manifest.GetTask(step.Reference)
	if err != nil {
		return nil, errors.Wrapf(err, "step %s", step.Name)
	}
	req := task.Request{
		TaskRef:      step.Reference,
		ScriptFile:   ptr.File,
		RuntimeName:  ptr.Runtime,
		RuntimeEnv:   ptr.RuntimeEnv,
		StepName:     step.Name,
		Params:       step.Params,
		Context:      contextData,
		ExecutionID:  executionID,
		JobName:      jobName,
		WorkflowName: workflowName,
		TriggerType:  triggerType,
		MaxRetries:   step.Retries,
		RetryDelay:   step.EffectiveRetryDelay(),
		Runtimes:     s.deps.Runtimes,
		Store:        s.deps.Store,
		Logger:       s.deps.Logger,
	}
	return s.deps.Runner.RunTask(ctx, req)
}

func (s *Scheduler) preRegister(executionID, stepName, jobName, workflowName, triggerType string) {
	where := storage.Where{"execution_id": executionID, "task_id": stepName}
	exists, err := s.deps.Store.Exists(storage.TaskExecutionsTable, where)
	if err != nil || exists {
		return
	}
	_ = s.deps.Store.Insert(storage.TaskExecutionsTable, storage.Row{
		"execution_id":  executionID,
		"task_id":       stepName,
		"job_name":      jobName,
		"workflow_name": workflowName,
		"trigger_type":  triggerType,
		"status":        string(models.WaitingTaskStatus),
		"state":         "Waiting",
		"attempt":       0,
	})
}

func (s *Scheduler) updateTaskState(executionID, stepName, state string) {
	_ = s.deps.Store.Update(storage.TaskExecutionsTable, storage.Where{"execution_id": executionID, "task_id": stepName}, storage.Set{"state": state})
}

func unmetDependencies(dependsOn []string, completed map[string]bool) []string {
	var blockers []string
	for _, dep := range dependsOn {
		if !completed[dep] {
			blockers = append(blockers, dep)
		}
	}
	return blockers
}

func mergeParams(context map[string]any, params map[string]any) map[string]any {
	merged := map[string]any{}
	for k, v := range context {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// childTriggerLabel computes the label a workflow's own steps should
// inherit: reuse an existing "Invoked by ..." label unchanged, otherwise
// derive a fresh one from this workflow's own name.
func childTriggerLabel(triggerType, workflowName string) string {
	if strings.HasPrefix(triggerType, "Invoked by ") {
		return triggerType
	}
	return models.InvokedByTrigger(workflowName)
}
