package storage_test

import (
	"testing"

	internalstorage "github.com/flowcraft/orchestrator/internal/storage"
	"github.com/flowcraft/orchestrator/internal/testutil"
	"github.com/flowcraft/orchestrator/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	testDB := testutil.SetupTestDB(t)
	defer testDB.Teardown(t)

	// newTxStore opens a fresh store and begins a transaction, rolled back
	// at the end of the subtest so fixtures never leak between runs.
	newTxStore := func(t *testing.T) *internalstorage.PostgresStore {
		store, err := internalstorage.NewPostgresStore(testDB.ConnStr)
		require.NoError(t, err)
		txStore, err := store.Begin()
		require.NoError(t, err)
		t.Cleanup(func() { txStore.Rollback() })
		return txStore
	}

	t.Run("Insert and Query a job row", func(t *testing.T) {
		store := newTxStore(t)
		require.NoError(t, store.Insert(storage.JobsTable, storage.Row{
			"job_id": "pg-e1", "name": "nightly_report", "status": "RUNNING", "trigger_type": "Manual",
		}))

		rows, err := store.Query(storage.JobsTable, storage.Where{"job_id": "pg-e1"}, nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "nightly_report", rows[0]["name"])
		assert.Equal(t, "RUNNING", rows[0]["status"])
	})

	t.Run("Update changes matching rows", func(t *testing.T) {
		store := newTxStore(t)
		require.NoError(t, store.Insert(storage.JobsTable, storage.Row{
			"job_id": "pg-e2", "name": "parent", "status": "RUNNING", "trigger_type": "Manual",
		}))

		require.NoError(t, store.Update(storage.JobsTable, storage.Where{"job_id": "pg-e2"}, storage.Set{"status": "COMPLETED"}))

		rows, err := store.Query(storage.JobsTable, storage.Where{"job_id": "pg-e2"}, nil)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "COMPLETED", rows[0]["status"])
	})

	t.Run("Update with no matching rows returns ErrNotFound", func(t *testing.T) {
		store := newTxStore(t)
		err := store.Update(storage.JobsTable, storage.Where{"job_id": "does-not-exist"}, storage.Set{"status": "FAILED"})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Exists reflects composite keys", func(t *testing.T) {
		store := newTxStore(t)
		require.NoError(t, store.Insert(storage.TaskExecutionsTable, storage.Row{
			"execution_id": "pg-e3", "task_id": "stepA", "status": "RUNNING",
			"job_name": "nightly_report", "trigger_type": "Invoked by nightly_report",
		}))

		ok, err := store.Exists(storage.TaskExecutionsTable, storage.Where{"execution_id": "pg-e3", "task_id": "stepA"})
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.Exists(storage.TaskExecutionsTable, storage.Where{"execution_id": "pg-e3", "task_id": "stepB"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Query projection narrows returned columns", func(t *testing.T) {
		store := newTxStore(t)
		require.NoError(t, store.Insert(storage.JobsTable, storage.Row{
			"job_id": "pg-e4", "name": "parent", "status": "RUNNING", "trigger_type": "Manual",
		}))

		rows, err := store.Query(storage.JobsTable, storage.Where{"job_id": "pg-e4"}, []string{"name"})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		_, hasStatus := rows[0]["status"]
		assert.False(t, hasStatus)
		assert.Equal(t, "parent", rows[0]["name"])
	})

	t.Run("Insert rejects unknown table", func(t *testing.T) {
		store := newTxStore(t)
		err := store.Insert("Bogus", storage.Row{"x": 1})
		assert.Error(t, err)
	})
}
