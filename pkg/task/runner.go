package task

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/flowcraft/orchestrator/internal/log"
	"github.com/flowcraft/orchestrator/pkg/models"
	"github.com/flowcraft/orchestrator/pkg/runtime"
	"github.com/flowcraft/orchestrator/pkg/storage"
)

var stateLineRe = regexp.MustCompile(`^STATE:\s*(.+)$`)

const timeLayout = time.RFC3339Nano

var powershellRuntimes = map[string]bool{
	"pwsh":       true,
	"powershell": true,
}

// TaskFailureError is returned by RunTask when a task exhausts its
// retries without a zero exit code.
type TaskFailureError struct {
	StepName string
	Attempts int
	Err      error
}

func (e *TaskFailureError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.StepName, e.Attempts, e.Err)
}

func (e *TaskFailureError) Unwrap() error { return e.Err }

// Request describes one task-step invocation.
type Request struct {
	TaskRef      string
	ScriptFile   string
	RuntimeName  string
	RuntimeEnv   string
	StepName     string
	Params       map[string]any
	Context      map[string]any
	ExecutionID  string
	JobName      string
	WorkflowName string
	TriggerType  string
	MaxRetries   int
	RetryDelay   int
	Runtimes     *runtime.Registry
	Store        storage.Store
	Logger       log.Logger
}

// Runner executes task steps in isolated subprocesses, persisting their
// lifecycle to a Store.
type Runner struct{}

// NewRunner constructs a Runner. It is stateless; every call to RunTask is
// independent.
func NewRunner() *Runner { return &Runner{} }

// RunTask executes req.StepName once per attempt (up to MaxRetries+1
// attempts), persisting the TaskExecutions row through its lifecycle and
// returning the parsed task output on success.
func (r *Runner) RunTask(ctx context.Context, req Request) (map[string]any, error) {
	logger := req.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	input := mergeContexts(req.Context, req.Params)
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal input for step %s", req.StepName)
	}

	inPath := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s-in.json", req.ExecutionID, req.StepName))
	outPath := filepath.Join(os.TempDir(), fmt.Sprintf("%s-%s-out.json", req.ExecutionID, req.StepName))
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	if err := os.WriteFile(inPath, inputJSON, 0o644); err != nil {
		return nil, errors.Wrapf(err, "write input file for step %s", req.StepName)
	}

	startedAt := time.Now().UTC()
	if err := r.registerRunning(req, string(inputJSON), startedAt); err != nil {
		logger.Errorf("step %s: pre-dispatch persistence failed: %v", req.StepName, err)
	}

	runtimePath := req.RuntimeName
	if req.Runtimes != nil {
		runtimePath = req.Runtimes.Resolve(req.RuntimeName, req.RuntimeEnv)
	}

	maxAttempts := req.MaxRetries + 1
	var lastErr error
	var exitCode int
	var stdout, stderr string
	attempt := 1

	for {
		exitCode, stdout, stderr, lastErr = r.dispatch(ctx, req, runtimePath, inPath, outPath, attempt, logger)
		if lastErr == nil && exitCode == 0 {
			break
		}
		if attempt >= maxAttempts {
			break
		}
		state := models.RetryingState(attempt+1, maxAttempts)
		r.updateState(req, state, attempt+1)
		logger.Infof("step %s attempt %d/%d failed, retrying in %ds", req.StepName, attempt, maxAttempts, req.RetryDelay)
		select {
		case <-time.After(time.Duration(req.RetryDelay) * time.Second):
		case <-ctx.Done():
			lastErr = ctx.Err()
		}
		attempt++
		if ctx.Err() != nil {
			break
		}
	}

	endedAt := time.Now().UTC()
	runtimeMs := endedAt.Sub(startedAt).Milliseconds()

	if lastErr != nil || exitCode != 0 {
		failErr := lastErr
		if failErr == nil {
			failErr = errors.Errorf("exit code %d", exitCode)
		}
		r.persistFailure(req, failErr, exitCode, stderr, endedAt, runtimeMs)
		return nil, &TaskFailureError{StepName: req.StepName, Attempts: attempt, Err: failErr}
	}

	output := readOutput(outPath)
	r.persistSuccess(req, output, stdout, endedAt, runtimeMs)
	return output, nil
}

func mergeContexts(context, params map[string]any) map[string]any {
	merged := map[string]any{}
	for k, v := range context {
		merged[k] = v
	}
	for k, v := range params {
		merged[k] = v
	}
	return merged
}

// dispatch runs a single attempt and returns its exit code along with the
// captured stdout/stderr text.
func (r *Runner) dispatch(ctx context.Context, req Request, runtimePath, inPath, outPath string, attempt int, logger log.Logger) (int, string, string, error) {
	var cmd *exec.Cmd
	if powershellRuntimes[strings.ToLower(req.RuntimeName)] {
		cmd = exec.CommandContext(ctx, runtimePath, "-File", req.ScriptFile, "-InputFile", inPath, "-OutputFile", outPath)
	} else {
		cmd = exec.CommandContext(ctx, runtimePath, req.ScriptFile, "-InputFile", inPath, "-OutputFile", outPath)
	}
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }

	stdoutFile, err := os.CreateTemp("", fmt.Sprintf("%s-%s-stdout-*.log", req.ExecutionID, req.StepName))
	if err != nil {
		return -1, "", "", errors.Wrap(err, "create stdout capture file")
	}
	defer os.Remove(stdoutFile.Name())
	stderrFile, err := os.CreateTemp("", fmt.Sprintf("%s-%s-stderr-*.log", req.ExecutionID, req.StepName))
	if err != nil {
		stdoutFile.Close()
		return -1, "", "", errors.Wrap(err, "create stderr capture file")
	}
	defer os.Remove(stderrFile.Name())

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdoutFile.Close()
		stderrFile.Close()
		return -1, "", "", errors.Wrap(err, "open stdout pipe")
	}
	cmd.Stderr = stderrFile

	if err := cmd.Start(); err != nil {
		stdoutFile.Close()
		stderrFile.Close()
		return -1, "", "", errors.Wrapf(err, "spawn step %s", req.StepName)
	}

	scanner := bufio.NewScanner(stdoutPipe)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Println(line)
		stdoutFile.WriteString(line + "\n")
		if m := stateLineRe.FindStringSubmatch(line); m != nil {
			r.updateState(req, strings.TrimSpace(m[1]), attempt)
		}
	}

	waitErr := cmd.Wait()
	stdoutFile.Close()
	stderrFile.Close()

	stdoutBytes, _ := os.ReadFile(stdoutFile.Name())
	stderrBytes, _ := os.ReadFile(stderrFile.Name())
	stdout, stderr := string(stdoutBytes), string(stderrBytes)

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			logger.Errorf("step %s attempt %d: spawn/wait failure: %v", req.StepName, attempt, waitErr)
			return -1, stdout, stderr, waitErr
		}
	}
	return exitCode, stdout, stderr, nil
}

func readOutput(path string) map[string]any {
	raw, err := os.ReadFile(path)
	if err != nil || len(raw) == 0 {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

func (r *Runner) registerRunning(req Request, inputJSON string, startedAt time.Time) error {
	where := storage.Where{"execution_id": req.ExecutionID, "task_id": req.StepName}
	exists, err := req.Store.Exists(storage.TaskExecutionsTable, where)
	if err != nil {
		return err
	}
	set := storage.Set{
		"status":       string(models.RunningTaskStatus),
		"state":        "Running",
		"started_at":   startedAt.Format(timeLayout),
		"input_data":   inputJSON,
		"attempt":      1,
		"max_retries":  req.MaxRetries,
		"job_name":     req.JobName,
		"trigger_type": req.TriggerType,
	}
	if req.WorkflowName != "" {
		set["workflow_name"] = req.WorkflowName
	}
	if exists {
		return req.Store.Update(storage.TaskExecutionsTable, where, set)
	}
	row := storage.Row{
		"execution_id":  req.ExecutionID,
		"task_id":       req.StepName,
		"job_name":      req.JobName,
		"workflow_name": req.WorkflowName,
		"trigger_type":  req.TriggerType,
		"input_data":    inputJSON,
		"status":        string(models.RunningTaskStatus),
		"state":         "Running",
		"started_at":    startedAt.Format(timeLayout),
		"attempt":       1,
		"max_retries":   req.MaxRetries,
	}
	return req.Store.Insert(storage.TaskExecutionsTable, row)
}

// updateState is a best-effort live-progress update; errors are swallowed
// per the engine's error-handling policy for non-fatal state writes.
func (r *Runner) updateState(req Request, state string, attempt int) {
	where := storage.Where{"execution_id": req.ExecutionID, "task_id": req.StepName}
	set := storage.Set{"state": state, "attempt": attempt}
	_ = req.Store.Update(storage.TaskExecutionsTable, where, set)
}

func (r *Runner) persistSuccess(req Request, output map[string]any, stdout string, endedAt time.Time, runtimeMs int64) {
	state := "Completed"
	if s, ok := output["state"].(string); ok && s != "" {
		state = s
	}
	outputJSON, _ := json.Marshal(output)
	where := storage.Where{"execution_id": req.ExecutionID, "task_id": req.StepName}
	set := storage.Set{
		"status":        string(models.CompletedTaskStatus),
		"state":         state,
		"exit_code":     0,
		"ended_at":      endedAt.Format(timeLayout),
		"runtime_ms":    runtimeMs,
		"output_data":   string(outputJSON),
		"execution_log": stdout,
	}
	if err := req.Store.Update(storage.TaskExecutionsTable, where, set); err != nil {
		if req.Logger != nil {
			req.Logger.Errorf("step %s: failed to persist success: %v", req.StepName, err)
		}
	}
}

func (r *Runner) persistFailure(req Request, failErr error, exitCode int, stderr string, endedAt time.Time, runtimeMs int64) {
	errorLog := stderr
	if errorLog == "" {
		errorLog = failErr.Error()
	}
	where := storage.Where{"execution_id": req.ExecutionID, "task_id": req.StepName}
	set := storage.Set{
		"status":     string(models.FailedTaskStatus),
		"state":      "Failed",
		"exit_code":  exitCode,
		"ended_at":   endedAt.Format(timeLayout),
		"runtime_ms": runtimeMs,
		"error_log":  errorLog,
	}
	if err := req.Store.Update(storage.TaskExecutionsTable, where, set); err != nil {
		if req.Logger != nil {
			req.Logger.Errorf("step %s: failed to persist failure: %v", req.StepName, err)
		}
	}
}
