package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/flowcraft/orchestrator/pkg/storage"
)

// DBInterface is the sqlx surface PostgresStore needs; satisfied by both
// *sqlx.DB and *sqlx.Tx, so callers can swap in a transaction for tests.
type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	NamedExec(query string, arg interface{}) (sql.Result, error)
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore implements storage.Store against a relational schema. The
// engine's table names (Jobs, Workflows, ...) map to lowercase snake-case
// SQL tables; unknown tables are rejected at the call site.
type PostgresStore struct {
	db DBInterface
}

var sqlTableNames = map[string]string{
	storage.JobsTable:           "jobs",
	storage.WorkflowsTable:      "workflows",
	storage.TasksTable:          "tasks",
	storage.TaskExecutionsTable: "task_executions",
	storage.NodesTable:          "nodes",
	storage.IntegrationsTable:   "integrations",
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Begin() (*PostgresStore, error) {
	db, ok := s.db.(*sqlx.DB)
	if !ok {
		return nil, fmt.Errorf("cannot begin transaction on unknown type")
	}
	tx, err := db.Beginx()
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: tx}, nil
}

func (s *PostgresStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *PostgresStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *PostgresStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // no-op for *sqlx.Tx
}

func sqlTable(table string) (string, error) {
	name, ok := sqlTableNames[table]
	if !ok {
		return "", fmt.Errorf("unknown table %q", table)
	}
	return name, nil
}

// Insert builds a dynamic named INSERT from row's keys. Column order
// follows map iteration, which is fine since NamedExec binds by name.
func (s *PostgresStore) Insert(table string, row storage.Row) error {
	sqlTbl, err := sqlTable(table)
	if err != nil {
		return err
	}
	cols := make([]string, 0, len(row))
	placeholders := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
		placeholders = append(placeholders, ":"+k)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", sqlTbl, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	_, err = s.db.NamedExec(query, row)
	return err
}

// Update applies set to every row matching where (a conjunction of
// equalities, ANDed together).
func (s *PostgresStore) Update(table string, where storage.Where, set storage.Set) error {
	sqlTbl, err := sqlTable(table)
	if err != nil {
		return err
	}
	setClauses := make([]string, 0, len(set))
	args := Row{}
	for k, v := range set {
		param := "set_" + k
		setClauses = append(setClauses, fmt.Sprintf("%s = :%s", k, param))
		args[param] = v
	}
	whereClauses := make([]string, 0, len(where))
	for k, v := range where {
		param := "where_" + k
		whereClauses = append(whereClauses, fmt.Sprintf("%s = :%s", k, param))
		args[param] = v
	}
	query := fmt.Sprintf("UPDATE %s SET %s", sqlTbl, strings.Join(setClauses, ", "))
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	result, err := s.db.NamedExec(query, args)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Query returns every row matching where, optionally narrowed to
// projection. Column values come back as driver-native types (int64,
// string, time.Time, ...) via sqlx's MapScan.
func (s *PostgresStore) Query(table string, where storage.Where, projection []string) ([]storage.Row, error) {
	sqlTbl, err := sqlTable(table)
	if err != nil {
		return nil, err
	}
	cols := "*"
	if len(projection) > 0 {
		cols = strings.Join(projection, ", ")
	}
	whereClauses := make([]string, 0, len(where))
	args := Row{}
	for k, v := range where {
		param := "where_" + k
		whereClauses = append(whereClauses, fmt.Sprintf("%s = :%s", k, param))
		args[param] = v
	}
	query := fmt.Sprintf("SELECT %s FROM %s", cols, sqlTbl)
	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query, namedArgs, err := sqlx.Named(query, args)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)

	db, ok := s.db.(sqlx.Queryer)
	if !ok {
		return nil, fmt.Errorf("store does not support ad-hoc queries")
	}
	rows, err := db.Queryx(query, namedArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		raw := map[string]interface{}{}
		if err := rows.MapScan(raw); err != nil {
			return nil, err
		}
		out = append(out, storage.Row(raw))
	}
	return out, rows.Err()
}

func (s *PostgresStore) Exists(table string, where storage.Where) (bool, error) {
	rows, err := s.Query(table, where, []string{"1"})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Row is a local alias so NamedExec can bind storage.Set/Where maps
// directly without re-declaring the type.
type Row = storage.Row
