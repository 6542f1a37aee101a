package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lox/railscore/internal/models"
)

// StartJob records the start of an ingestion or compute run and returns its
// run id. Job arguments are typed values serialized to JSON only here, at the
// ledger boundary.
func (s *Store) StartJob(jobName string, args any) (string, error) {
	runID := uuid.NewString()

	meta, err := json.Marshal(map[string]any{"args": args})
	if err != nil {
		return "", fmt.Errorf("marshal job args: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO job_runs (run_id, job_name, status, started_at, meta)
		VALUES (?, ?, 'running', ?, ?)
	`, runID, jobName, time.Now().UTC(), string(meta))
	if err != nil {
		return "", fmt.Errorf("insert job run: %w", err)
	}
	return runID, nil
}

// FinishJobSuccess marks a run successful, attaching the typed result summary.
func (s *Store) FinishJobSuccess(runID string, result any) error {
	return s.finishJob(runID, "success", "result", result)
}

// FinishJobFail marks a run failed, recording the error description.
func (s *Store) FinishJobFail(runID string, jobErr error) error {
	return s.finishJob(runID, "fail", "error", jobErr.Error())
}

func (s *Store) finishJob(runID, status, key string, value any) error {
	var meta sql.NullString
	err := s.db.QueryRow(`SELECT meta FROM job_runs WHERE run_id = ?`, runID).Scan(&meta)
	if err != nil {
		return fmt.Errorf("load job run %s: %w", runID, err)
	}

	merged := map[string]json.RawMessage{}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &merged); err != nil {
			return fmt.Errorf("decode job meta: %w", err)
		}
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", key, err)
	}
	merged[key] = encoded

	updated, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal job meta: %w", err)
	}

	_, err = s.db.Exec(`
		UPDATE job_runs SET status = ?, ended_at = ?, meta = ? WHERE run_id = ?
	`, status, time.Now().UTC(), string(updated), runID)
	return err
}

// GetJobRun fetches one ledger record.
func (s *Store) GetJobRun(runID string) (*models.JobRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, job_name, status, started_at, ended_at, meta
		FROM job_runs WHERE run_id = ?
	`, runID)

	var jr models.JobRun
	var meta sql.NullString
	err := row.Scan(&jr.RunID, &jr.JobName, &jr.Status, &jr.StartedAt, &jr.EndedAt, &meta)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	jr.Meta = meta.String
	return &jr, nil
}
