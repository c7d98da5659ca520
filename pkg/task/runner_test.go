package task_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/orchestrator/pkg/runtime"
	"github.com/flowcraft/orchestrator/pkg/storage"
	"github.com/flowcraft/orchestrator/pkg/task"
)

func newRuntimes(t *testing.T) *runtime.Registry {
	reg, err := runtime.Load("")
	require.NoError(t, err)
	return reg
}

func cleanupAttemptsCounter(t *testing.T, execID, stepName string) {
	t.Cleanup(func() {
		os.Remove(filepath.Join(os.TempDir(), execID+"-"+stepName+"-out.json.attempts"))
	})
}

func TestRunTask_Success(t *testing.T) {
	store, err := storage.NewFileStore("")
	require.NoError(t, err)
	runner := task.NewRunner()

	req := task.Request{
		TaskRef:     "echo",
		ScriptFile:  "../../fixtures/scripts/echo_task.sh",
		RuntimeName: "sh",
		StepName:    "stepA",
		Params:      map[string]any{"value": "a"},
		ExecutionID: "exec-success-1",
		JobName:     "job1",
		TriggerType: "Manual",
		MaxRetries:  0,
		RetryDelay:  1,
		Runtimes:    newRuntimes(t),
		Store:       store,
	}

	output, err := runner.RunTask(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "a", output["value"])

	rows, err := store.Query(storage.TaskExecutionsTable, storage.Where{"execution_id": "exec-success-1", "task_id": "stepA"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "COMPLETED", rows[0]["status"])
}

func TestRunTask_RetrySucceedsOnThirdAttempt(t *testing.T) {
	cleanupAttemptsCounter(t, "exec-retry-1", "unstable")
	store, err := storage.NewFileStore("")
	require.NoError(t, err)
	runner := task.NewRunner()

	req := task.Request{
		TaskRef:     "flaky",
		ScriptFile:  "../../fixtures/scripts/fail_then_succeed.sh",
		RuntimeName: "sh",
		StepName:    "unstable",
		ExecutionID: "exec-retry-1",
		JobName:     "job1",
		TriggerType: "Manual",
		MaxRetries:  3,
		RetryDelay:  0,
		Runtimes:    newRuntimes(t),
		Store:       store,
	}

	output, err := runner.RunTask(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 3, output["attempt"])

	rows, err := store.Query(storage.TaskExecutionsTable, storage.Where{"execution_id": "exec-retry-1", "task_id": "unstable"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 3, rows[0]["attempt"])
}

func TestRunTask_FailsAfterRetriesExhausted(t *testing.T) {
	store, err := storage.NewFileStore("")
	require.NoError(t, err)
	runner := task.NewRunner()

	req := task.Request{
		TaskRef:     "broken",
		ScriptFile:  "../../fixtures/scripts/fail_always.sh",
		RuntimeName: "sh",
		StepName:    "doomed",
		ExecutionID: "exec-fail-1",
		JobName:     "job1",
		TriggerType: "Manual",
		MaxRetries:  1,
		RetryDelay:  0,
		Runtimes:    newRuntimes(t),
		Store:       store,
	}

	_, err = runner.RunTask(context.Background(), req)
	require.Error(t, err)

	var failure *task.TaskFailureError
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 2, failure.Attempts)

	rows, err := store.Query(storage.TaskExecutionsTable, storage.Where{"execution_id": "exec-fail-1", "task_id": "doomed"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "FAILED", rows[0]["status"])
}
