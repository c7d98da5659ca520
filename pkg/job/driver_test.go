package job_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/orchestrator/internal/log"
	"github.com/flowcraft/orchestrator/pkg/job"
	"github.com/flowcraft/orchestrator/pkg/manifest"
	"github.com/flowcraft/orchestrator/pkg/runtime"
	"github.com/flowcraft/orchestrator/pkg/storage"
)

func newDriver(t *testing.T) (*job.Driver, storage.Store) {
	reg, err := manifest.Load("../../fixtures/manifest/manifest.json", log.NoopLogger{})
	require.NoError(t, err)
	runtimes, err := runtime.Load("")
	require.NoError(t, err)
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	return job.NewDriver(job.Deps{
		Manifest: reg,
		Runtimes: runtimes,
		Store:    store,
		Logger:   log.NoopLogger{},
	}), store
}

func TestRunJob_InlineTaskCompletes(t *testing.T) {
	driver, store := newDriver(t)
	execID := "exec-job-inline-1"

	_, err := driver.RunJob(context.Background(), "nightly_report", nil, "Manual", &execID, false)
	require.NoError(t, err)

	rows, err := store.Query(storage.JobsTable, storage.Where{"job_id": execID, "name": "nightly_report"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "COMPLETED", rows[0]["status"])
}

func TestRunJob_ChildJobSharesExecutionID(t *testing.T) {
	driver, store := newDriver(t)
	execID := "exec-job-parent-1"

	_, err := driver.RunJob(context.Background(), "parent", nil, "Manual", &execID, false)
	require.NoError(t, err)

	parentRows, err := store.Query(storage.JobsTable, storage.Where{"job_id": execID, "name": "parent"}, nil)
	require.NoError(t, err)
	require.Len(t, parentRows, 1)
	assert.Equal(t, "COMPLETED", parentRows[0]["status"])

	childRows, err := store.Query(storage.JobsTable, storage.Where{"job_id": execID, "name": "child"}, nil)
	require.NoError(t, err)
	require.Len(t, childRows, 1)
	assert.Equal(t, "COMPLETED", childRows[0]["status"])

	setupRows, err := store.Query(storage.TaskExecutionsTable, storage.Where{"execution_id": execID, "task_id": "setup"}, nil)
	require.NoError(t, err)
	require.Len(t, setupRows, 1)

	finishRows, err := store.Query(storage.TaskExecutionsTable, storage.Where{"execution_id": execID, "task_id": "finish"}, nil)
	require.NoError(t, err)
	require.Len(t, finishRows, 1)

	assert.Equal(t, "Invoked by parent", finishRows[0]["trigger_type"])
}

func TestRunJob_UnsatisfiedDependencyFailsJob(t *testing.T) {
	driver, store := newDriver(t)
	execID := "exec-job-baddep-1"

	_, err := driver.RunJob(context.Background(), "baddep", nil, "Manual", &execID, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsatisfied dependencies")

	rows, err := store.Query(storage.JobsTable, storage.Where{"job_id": execID, "name": "baddep"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "FAILED", rows[0]["status"])
}
