package storage

import "github.com/pkg/errors"

// Table names required by the engine's persistence contract.
const (
	JobsTable           = "Jobs"
	WorkflowsTable      = "Workflows"
	TasksTable          = "Tasks" // reserved for task-definition bookkeeping; the engine never writes it
	TaskExecutionsTable = "TaskExecutions"
	NodesTable          = "Nodes"
	IntegrationsTable   = "Integrations"
)

// ErrNotFound is returned by Store implementations when an Update matches
// no row. Query returns an empty result, not ErrNotFound, when nothing
// matches.
var ErrNotFound = errors.New("not found")

// Where is a conjunction of column equalities.
type Where map[string]any

// Set is a column->value map applied by Update.
type Set map[string]any

// Row is a single persisted record, keyed by column name.
type Row map[string]any

// Store is the only interface the engine depends on for persistence. Any
// backend satisfying this contract — relational, embedded, or file-backed —
// is acceptable; behavior must not differ by backend.
type Store interface {
	Insert(table string, row Row) error
	Update(table string, where Where, set Set) error
	Query(table string, where Where, projection []string) ([]Row, error)
	Exists(table string, where Where) (bool, error)
	Close() error
}
