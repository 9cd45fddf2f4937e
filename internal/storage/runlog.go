package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"secsync/internal/etl"
)

// RunLogStore persists sync run history.
type RunLogStore struct {
	db *DB
}

// NewRunLogStore creates a RunLogStore backed by db.
func NewRunLogStore(db *DB) *RunLogStore {
	return &RunLogStore{db: db}
}

// Create records one finished run.
func (s *RunLogStore) Create(log *etl.RunLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO sync_runs (id, job, started_at, finished_at, status, rows_read, rows_written, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Job, log.StartedAt, log.FinishedAt, log.Status,
		log.RowsRead, log.RowsWritten, log.Error,
	)
	if err != nil {
		return fmt.Errorf("create run log: %w", err)
	}
	return nil
}

// List returns the most recent runs for a job, newest first.
// An empty job name lists runs across all jobs.
func (s *RunLogStore) List(job string, limit int) ([]etl.RunLog, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, job, started_at, finished_at, status, rows_read, rows_written, error
		FROM sync_runs`
	args := []any{}
	if job != "" {
		query += ` WHERE job = ?`
		args = append(args, job)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var logs []etl.RunLog
	for rows.Next() {
		var l etl.RunLog
		var started, finished time.Time
		if err := rows.Scan(&l.ID, &l.Job, &started, &finished, &l.Status,
			&l.RowsRead, &l.RowsWritten, &l.Error); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		l.StartedAt = started
		l.FinishedAt = finished
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Prune deletes run logs older than the cutoff.
func (s *RunLogStore) Prune(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	res, err := s.db.conn.Exec(`DELETE FROM sync_runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune run logs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
