package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultHistoryLimit = 50

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB

	insertRunStmt *sql.Stmt
}

var sqliteOpen = sql.Open

// NewSQLiteStore opens or creates a SQLite store at the given path.
// ":memory:" is supported for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("store: empty sqlite path")
	}
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("store: create sqlite dir: %w", err)
			}
		}
	}

	db, err := sqliteOpen("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	if err := initSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	st := &SQLiteStore{db: db}
	if err := st.prepareStatements(); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func initSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL`,
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			artifact_path TEXT NOT NULL,
			model TEXT NOT NULL,
			provider TEXT NOT NULL,
			pass_rate REAL NOT NULL,
			quality_score REAL NOT NULL,
			total_cost REAL NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_kind ON pipeline_runs(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_model ON pipeline_runs(model)`,
		`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_created_at ON pipeline_runs(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}

	stmt, err := s.db.Prepare(`
		INSERT INTO pipeline_runs (
			id, kind, name, artifact_path, model, provider, pass_rate, quality_score, total_cost, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare insert run: %w", err)
	}
	s.insertRunStmt = stmt
	return nil
}

// RecordRun appends one history row. A missing ID or CreatedAt is filled
// in.
func (s *SQLiteStore) RecordRun(run *Run) error {
	if s == nil || s.db == nil {
		return errors.New("store: nil sqlite store")
	}
	if run == nil {
		return errors.New("store: nil run")
	}
	if strings.TrimSpace(run.Name) == "" {
		return errors.New("store: run has no name")
	}

	if strings.TrimSpace(run.ID) == "" {
		run.ID = newRunID()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := s.insertRunStmt.Exec(
		run.ID, string(run.Kind), run.Name, run.ArtifactPath,
		run.Model, run.Provider, run.PassRate, run.QualityScore,
		run.TotalCost, run.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	return nil
}

// ListRuns returns history rows newest first, narrowed by the filter.
func (s *SQLiteStore) ListRuns(filter Filter) ([]*Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store: nil sqlite store")
	}

	query := `
		SELECT id, kind, name, artifact_path, model, provider, pass_rate, quality_score, total_cost, created_at
		FROM pipeline_runs`
	var conds []string
	var args []any
	if filter.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if strings.TrimSpace(filter.Model) != "" {
		conds = append(conds, "model = ?")
		args = append(args, strings.TrimSpace(filter.Model))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var r Run
		var kind string
		var createdAt int64
		if err := rows.Scan(
			&r.ID, &kind, &r.Name, &r.ArtifactPath, &r.Model, &r.Provider,
			&r.PassRate, &r.QualityScore, &r.TotalCost, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.Kind = RunKind(kind)
		r.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate runs: %w", err)
	}
	return out, nil
}

// Close releases prepared statements and the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil {
		return nil
	}
	if s.insertRunStmt != nil {
		_ = s.insertRunStmt.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func newRunID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("run-%d", time.Now().UnixNano())
	}
	return "run-" + hex.EncodeToString(b)
}
