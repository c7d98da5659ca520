package job

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/flowcraft/orchestrator/internal/log"
	"github.com/flowcraft/orchestrator/pkg/manifest"
	"github.com/flowcraft/orchestrator/pkg/models"
	"github.com/flowcraft/orchestrator/pkg/runtime"
	"github.com/flowcraft/orchestrator/pkg/storage"
	"github.com/flowcraft/orchestrator/pkg/task"
	"github.com/flowcraft/orchestrator/pkg/workflow"
)

const timeLayout = time.RFC3339Nano

// Deps bundles the collaborators a Driver needs; shared with the
// Workflow Scheduler it drives.
type Deps struct {
	Manifest *manifest.Registry
	Runtimes *runtime.Registry
	Store    storage.Store
	Logger   log.Logger
	Runner   *task.Runner
	Workers  int
}

// Driver runs a top-level (or child) job definition to completion.
type Driver struct {
	deps Deps
}

// NewDriver builds a Driver.
func NewDriver(deps Deps) *Driver {
	if deps.Logger == nil {
		deps.Logger = log.NoopLogger{}
	}
	if deps.Runner == nil {
		deps.Runner = task.NewRunner()
	}
	return &Driver{deps: deps}
}

func (d *Driver) scheduler() *workflow.Scheduler {
	return workflow.NewScheduler(workflow.Deps{
		Manifest: d.deps.Manifest,
		Runtimes: d.deps.Runtimes,
		Store:    d.deps.Store,
		Logger:   d.deps.Logger,
		Runner:   d.deps.Runner,
		Workers:  d.deps.Workers,
	})
}

// RunJob drives a job's inline tasks, then workflows, then child jobs in
// declaration order, sharing one correlation id across the whole tree.
// When executionID is nil a fresh UUID is allocated; isChild callers pass
// the parent's id and triggerType through unchanged.
func (d *Driver) RunJob(ctx context.Context, name string, inputParams map[string]any, triggerType string, executionID *string, isChild bool) (map[string]any, error) {
	def, err := d.deps.Manifest.GetJobDef(name)
	if err != nil {
		return nil, errors.Wrapf(err, "run job %s", name)
	}

	execID := ""
	if executionID != nil && *executionID != "" {
		execID = *executionID
	} else {
		execID = uuid.NewString()
	}

	createdBy, _ := os.Hostname()
	inputJSON, _ := json.Marshal(inputParams)
	startedAt := time.Now().UTC()

	var cronPtr *string
	if def.Cron != "" {
		cron := def.Cron
		cronPtr = &cron
	}

	row := storage.Row{
		"job_id":       execID,
		"name":         name,
		"trigger_type": triggerType,
		"status":       string(models.RunningRunStatus),
		"created_at":   startedAt.Format(timeLayout),
		"started_at":   startedAt.Format(timeLayout),
		"created_by":   createdBy,
		"input_params": string(inputJSON),
	}
	if cronPtr != nil {
		row["cron"] = *cronPtr
	}
	if err := d.deps.Store.Insert(storage.JobsTable, row); err != nil {
		d.deps.Logger.Errorf("job %s: failed to register row: %v", name, err)
	}

	childTrigger := childTriggerLabel(triggerType, name)

	for _, step := range def.Tasks {
		d.preRegisterTask(execID, step.Name, name, triggerType)
	}

	sharedCtx := map[string]any{}
	for k, v := range inputParams {
		sharedCtx[k] = v
	}

	runErr := d.runSteps(ctx, def, execID, name, childTrigger, sharedCtx)

	endedAt := time.Now().UTC()
	runtimeMs := endedAt.Sub(startedAt).Milliseconds()
	status := models.CompletedRunStatus
	if runErr != nil {
		status = models.FailedRunStatus
	}
	if err := d.deps.Store.Update(storage.JobsTable, storage.Where{"job_id": execID, "name": name}, storage.Set{
		"status":     string(status),
		"ended_at":   endedAt.Format(timeLayout),
		"runtime_ms": runtimeMs,
	}); err != nil {
		d.deps.Logger.Errorf("job %s: failed to finalize row: %v", name, err)
	}

	if runErr != nil {
		return sharedCtx, errors.Wrapf(runErr, "job %s", name)
	}
	return sharedCtx, nil
}

func (d *Driver) runSteps(ctx context.Context, def *models.JobDef, execID, jobName, childTrigger string, sharedCtx map[string]any) error {
	completed := map[string]bool{}

	for _, step := range def.Tasks {
		ptr, err := d.deps.Manifest.GetTask(step.Reference)
		if err != nil {
			return errors.Wrapf(err, "step %s", step.Name)
		}
		req := task.Request{
			TaskRef:      step.Reference,
			ScriptFile:   ptr.File,
			RuntimeName:  ptr.Runtime,
			RuntimeEnv:   ptr.RuntimeEnv,
			StepName:     step.Name,
			Params:       step.Params,
			Context:      sharedCtx,
			ExecutionID:  execID,
			JobName:      jobName,
			TriggerType:  childTrigger,
			MaxRetries:   step.Retries,
			RetryDelay:   step.EffectiveRetryDelay(),
			Runtimes:     d.deps.Runtimes,
			Store:        d.deps.Store,
			Logger:       d.deps.Logger,
		}
		output, err := d.deps.Runner.RunTask(ctx, req)
		if err != nil {
			return err
		}
		sharedCtx[step.Name] = output
		completed[step.Name] = true
	}

	for _, step := range def.Workflows {
		if blockers := unmetDependencies(step.DependsOn, completed); len(blockers) > 0 {
			return errors.Errorf("step %s: unsatisfied dependencies: %s", step.Name, strings.Join(blockers, ", "))
		}
		merged := mergeParams(sharedCtx, step.Params)
		output, err := d.scheduler().RunWorkflow(ctx, step.Reference, merged, execID, jobName, childTrigger)
		if err != nil {
			return err
		}
		sharedCtx[step.Name] = output
		completed[step.Name] = true
	}

	for _, step := range def.Jobs {
		if blockers := unmetDependencies(step.DependsOn, completed); len(blockers) > 0 {
			return errors.Errorf("step %s: unsatisfied dependencies: %s", step.Name, strings.Join(blockers, ", "))
		}
		merged := mergeParams(sharedCtx, step.Params)
		childExecID := execID
		output, err := d.RunJob(ctx, step.Reference, merged, childTrigger, &childExecID, true)
		if err != nil {
			return err
		}
		sharedCtx[step.Name] = output
		completed[step.Name] = true
	}

	return nil
}

func (d *Driver) preRegisterTask(execID, stepName, jobName, triggerType string) {
	where := storage.Where{"execution_id": execID, "task_id": stepName}
	exists, err := d.deps.Store.Exists(storage.TaskExecutionsTable, where)
	if err != nil || exists {
		return
	}
	_ = d.deps.Store.Insert(storage.TaskExecutionsTable, storage.Row{
		"execution_id": execID,
		"task_id":      stepName,
		"job_name":     jobName,
		"trigger_type": triggerType,
		"status":       string(models.WaitingTaskStatus),
		"state":        "Waiting",
		"attempt":      0,
	})
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

// childTriggerLabel mirrors the Workflow Scheduler's rule: a job's own
// declared triggerType in its definition is ignored, it always inherits
// the caller's computed label.
func childTriggerLabel(triggerType, jobName string) string {
	if strings.HasPrefix(triggerType, "Invoked by ") {
		return triggerType
	}
	return models.InvokedByTrigger(jobName)
}
