package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcraft/orchestrator/pkg/storage"
)

func TestFileStore_InsertAndQuery(t *testing.T) {
	store, err := storage.NewFileStore("")
	require.NoError(t, err)

	require.NoError(t, store.Insert(storage.JobsTable, storage.Row{"job_id": "e1", "name": "n1", "status": "RUNNING"}))
	require.NoError(t, store.Insert(storage.JobsTable, storage.Row{"job_id": "e2", "name": "n2", "status": "COMPLETED"}))

	rows, err := store.Query(storage.JobsTable, storage.Where{"job_id": "e1"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "n1", rows[0]["name"])
}

func TestFileStore_Update(t *testing.T) {
	store, err := storage.NewFileStore("")
	require.NoError(t, err)
	require.NoError(t, store.Insert(storage.JobsTable, storage.Row{"job_id": "e1", "name": "n1", "status": "RUNNING"}))

	require.NoError(t, store.Update(storage.JobsTable, storage.Where{"job_id": "e1"}, storage.Set{"status": "COMPLETED"}))

	rows, err := store.Query(storage.JobsTable, storage.Where{"job_id": "e1"}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "COMPLETED", rows[0]["status"])
}

func TestFileStore_UpdateNoMatchReturnsErrNotFound(t *testing.T) {
	store, err := storage.NewFileStore("")
	require.NoError(t, err)
	err = store.Update(storage.JobsTable, storage.Where{"job_id": "missing"}, storage.Set{"status": "FAILED"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestFileStore_Exists(t *testing.T) {
	store, err := storage.NewFileStore("")
	require.NoError(t, err)
	require.NoError(t, store.Insert(storage.TaskExecutionsTable, storage.Row{"execution_id": "e1", "task_id": "t1"}))

	ok, err := store.Exists(storage.TaskExecutionsTable, storage.Where{"execution_id": "e1", "task_id": "t1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(storage.TaskExecutionsTable, storage.Where{"execution_id": "e1", "task_id": "t2"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_UnknownTable(t *testing.T) {
	store, err := storage.NewFileStore("")
	require.NoError(t, err)
	err = store.Insert("Bogus", storage.Row{"x": 1})
	assert.Error(t, err)
}

func TestFileStore_PersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	store, err := storage.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Insert(storage.NodesTable, storage.Row{"node_id": "n1", "name": "worker-1"}))

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := storage.NewFileStore(path)
	require.NoError(t, err)
	rows, err := reloaded.Query(storage.NodesTable, storage.Where{}, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "worker-1", rows[0]["name"])
}

func TestFileStore_QueryProjection(t *testing.T) {
	store, err := storage.NewFileStore("")
	require.NoError(t, err)
	require.NoError(t, store.Insert(storage.JobsTable, storage.Row{"job_id": "e1", "name": "n1", "status": "RUNNING"}))

	rows, err := store.Query(storage.JobsTable, storage.Where{"job_id": "e1"}, []string{"name"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, storage.Row{"name": "n1"}, rows[0])
}
