package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// document is the whole schema serialized as one JSON object, the shape
// acceptable "for single-process use" per the storage contract.
type document struct {
	Nodes          []Row `json:"Nodes"`
	Jobs           []Row `json:"Jobs"`
	Workflows      []Row `json:"Workflows"`
	Tasks          []Row `json:"Tasks"`
	TaskExecutions []Row `json:"TaskExecutions"`
	Integrations   []Row `json:"Integrations"`
}

func (d *document) table(name string) *[]Row {
	switch name {
	case NodesTable:
		return &d.Nodes
	case JobsTable:
		return &d.Jobs
	case WorkflowsTable:
		return &d.Workflows
	case TasksTable:
		return &d.Tasks
	case TaskExecutionsTable:
		return &d.TaskExecutions
	case IntegrationsTable:
		return &d.Integrations
	default:
		return nil
	}
}

// FileStore is the single-process Store chosen automatically when no
// database is configured. Writes are serialized by mu and, when a path is
// set, flushed to disk with a load-modify-save discipline after every
// mutation; cross-process concurrent use is not supported.
type FileStore struct {
	mu   sync.Mutex
	path string
	doc  document
}

// NewFileStore builds a FileStore. If path is empty the store is purely
// in-memory (handy for tests); otherwise it loads any existing document at
// path and persists every mutation back to it.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, doc: document{}}
	if path == "" {
		return fs, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "read file store")
	}
	if len(data) == 0 {
		return fs, nil
	}
	if err := json.Unmarshal(data, &fs.doc); err != nil {
		return nil, errors.Wrap(err, "parse file store document")
	}
	return fs, nil
}

func (fs *FileStore) persist() error {
	if fs.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(fs.doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal file store document")
	}
	dir := filepath.Dir(fs.path)
	tmp, err := os.CreateTemp(dir, ".filestore-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file store")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temp file store")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file store")
	}
	return os.Rename(tmp.Name(), fs.path)
}

func matches(row Row, where Where) bool {
	for k, v := range where {
		if row[k] != v {
			return false
		}
	}
	return true
}

func (fs *FileStore) Insert(table string, row Row) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rows := fs.doc.table(table)
	if rows == nil {
		return errors.Errorf("unknown table %q", table)
	}
	copied := Row{}
	for k, v := range row {
		copied[k] = v
	}
	*rows = append(*rows, copied)
	return fs.persist()
}

func (fs *FileStore) Update(table string, where Where, set Set) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rows := fs.doc.table(table)
	if rows == nil {
		return errors.Errorf("unknown table %q", table)
	}
	updated := 0
	for i, row := range *rows {
		if !matches(row, where) {
			continue
		}
		for k, v := range set {
			(*rows)[i][k] = v
		}
		updated++
	}
	if updated == 0 {
		return ErrNotFound
	}
	return fs.persist()
}

func (fs *FileStore) Query(table string, where Where, projection []string) ([]Row, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	rows := fs.doc.table(table)
	if rows == nil {
		return nil, errors.Errorf("unknown table %q", table)
	}
	var out []Row
	for _, row := range *rows {
		if !matches(row, where) {
			continue
		}
		if len(projection) == 0 {
			out = append(out, cloneRow(row))
			continue
		}
		projected := Row{}
		for _, col := range projection {
			projected[col] = row[col]
		}
		out = append(out, projected)
	}
	return out, nil
}

func (fs *FileStore) Exists(table string, where Where) (bool, error) {
	rows, err := fs.Query(table, where, nil)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (fs *FileStore) Close() error {
	return nil
}

func cloneRow(row Row) Row {
	out := Row{}
	for k, v := range row {
		out[k] = v
	}
	return out
}
