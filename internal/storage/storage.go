package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for runs and per-pair results.
type Store struct {
	DB *sql.DB // Export for direct database access
}

// New opens (or creates) the database at path and ensures schema.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            mode TEXT NOT NULL,
            status TEXT NOT NULL,
            input_dir TEXT,
            output_dir TEXT,
            success_count INTEGER DEFAULT 0,
            failed_count INTEGER DEFAULT 0,
            skipped_count INTEGER DEFAULT 0,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            completed_at TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS pair_results (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            run_id TEXT NOT NULL,
            base_path TEXT,
            diff_path TEXT,
            output_path TEXT,
            status TEXT NOT NULL,
            reason TEXT,
            detail TEXT,
            dx INTEGER,
            dy INTEGER,
            fit_percent REAL,
            elapsed_ms INTEGER,
            created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE INDEX IF NOT EXISTS idx_pair_results_run_id ON pair_results(run_id);`,
		`CREATE INDEX IF NOT EXISTS idx_pair_results_status ON pair_results(status);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// RunRecord captures a persisted run.
type RunRecord struct {
	ID           string
	Mode         string
	Status       string
	InputDir     string
	OutputDir    string
	SuccessCount int
	FailedCount  int
	SkippedCount int
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// PairRecord captures a persisted pair outcome.
type PairRecord struct {
	RunID      string
	BasePath   string
	DiffPath   string
	OutputPath string
	Status     string
	Reason     string
	Detail     string
	DX         int
	DY         int
	FitPercent float64
	ElapsedMS  int64
}

// RecordRunStart inserts a running run.
func (s *Store) RecordRunStart(rec RunRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT OR REPLACE INTO runs (id, mode, status, input_dir, output_dir) VALUES (?, ?, 'running', ?, ?);`,
		rec.ID, rec.Mode, rec.InputDir, rec.OutputDir)
	return err
}

// RecordRunFinish finalizes a run with its counts.
func (s *Store) RecordRunFinish(id string, success, failed, skipped int) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`UPDATE runs SET status='completed', success_count=?, failed_count=?, skipped_count=?, completed_at=CURRENT_TIMESTAMP WHERE id=?;`,
		success, failed, skipped, id)
	return err
}

// RecordPair persists a single pair outcome.
func (s *Store) RecordPair(rec PairRecord) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(`INSERT INTO pair_results (run_id, base_path, diff_path, output_path, status, reason, detail, dx, dy, fit_percent, elapsed_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		rec.RunID, rec.BasePath, rec.DiffPath, rec.OutputPath, rec.Status, rec.Reason, rec.Detail, rec.DX, rec.DY, rec.FitPercent, rec.ElapsedMS)
	return err
}

// RecentRuns returns the latest runs up to limit.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT id, mode, status, input_dir, output_dir, success_count, failed_count, skipped_count, created_at, completed_at FROM runs ORDER BY created_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var created time.Time
		var completed sql.NullTime
		if err := rows.Scan(&rec.ID, &rec.Mode, &rec.Status, &rec.InputDir, &rec.OutputDir, &rec.SuccessCount, &rec.FailedCount, &rec.SkippedCount, &created, &completed); err != nil {
			return nil, err
		}
		rec.CreatedAt = created
		if completed.Valid {
			rec.CompletedAt = &completed.Time
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// RunPairs returns the pair outcomes recorded for one run.
func (s *Store) RunPairs(runID string) ([]PairRecord, error) {
	if s == nil {
		return nil, errors.New("store not initialized")
	}
	rows, err := s.DB.Query(`SELECT run_id, base_path, diff_path, output_path, status, reason, detail, dx, dy, fit_percent, elapsed_ms FROM pair_results WHERE run_id=? ORDER BY id;`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []PairRecord
	for rows.Next() {
		var rec PairRecord
		var reason, detail sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.BasePath, &rec.DiffPath, &rec.OutputPath, &rec.Status, &reason, &detail, &rec.DX, &rec.DY, &rec.FitPercent, &rec.ElapsedMS); err != nil {
			return nil, err
		}
		rec.Reason = reason.String
		rec.Detail = detail.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
