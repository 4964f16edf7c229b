package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps records in a SQLite database. Rows are partitioned by run
// id so several runs can share one database file.
type SQLiteStore struct {
	path  string
	runID string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path, runID string) *SQLiteStore {
	return &SQLiteStore{path: path, runID: runID}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	// Appends come from one goroutine at a time; a single connection keeps
	// the sequence numbers consistent.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, name string, records ...Record) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payloads := make([][]byte, len(records))
	for i, rec := range records {
		if payloads[i], err = Encode(rec); err != nil {
			return err
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM records WHERE run_id = ? AND name = ?`,
		s.runID, name).Scan(&next)
	if err != nil {
		return err
	}
	for i, payload := range payloads {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO records (run_id, name, seq, evaluation, payload)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(run_id, name, seq) DO UPDATE SET
				evaluation = excluded.evaluation,
				payload = excluded.payload
		`, s.runID, name, next+int64(i), evaluationOf(records[i]), payload)
		if err != nil {
			return fmt.Errorf("insert record into %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func evaluationOf(rec Record) any {
	if rec.Evaluation == nil {
		return nil
	}
	return *rec.Evaluation
}

func (s *SQLiteStore) Records(ctx context.Context, name string) ([]Record, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT payload FROM records WHERE run_id = ? AND name = ? ORDER BY seq`,
		s.runID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		records, err := DecodeRecords(payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s record %d: %w", name, len(out), err)
		}
		out = append(out, records...)
	}
	return out, rows.Err()
}

// RunIDs lists the runs that have records in the database.
func (s *SQLiteStore) RunIDs(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT run_id FROM records ORDER BY run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS records (
			run_id TEXT NOT NULL,
			name TEXT NOT NULL,
			seq INTEGER NOT NULL,
			evaluation INTEGER,
			payload BLOB NOT NULL,
			PRIMARY KEY (run_id, name, seq)
		);
	`)
	return err
}
