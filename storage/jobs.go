package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jhacksman/FeedEater-sub001/wire"
)

// JobRunStatus enumerates job_runs.status values.
type JobRunStatus string

const (
	JobRunRunning JobRunStatus = "running"
	JobRunSuccess JobRunStatus = "success"
	JobRunError   JobRunStatus = "error"
)

// StartJobRun creates the running row for a job-run event, keyed by runID.
// If runID already has a row (a duplicate delivery), the existing row is
// left unchanged and started is false, so the dispatcher can skip
// re-invoking the handler.
func (s *Store) StartJobRun(ctx context.Context, runID string, ev wire.JobRunEvent, now time.Time) (started bool, err error) {
	var triggerJSON []byte
	triggerJSON, err = json.Marshal(ev.Trigger)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO job_runs (id, module, queue, job, status, trigger_type, trigger_json, started_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, runID, ev.Module, ev.Queue, ev.Job, string(JobRunRunning), string(ev.Trigger.Type), string(triggerJSON),
		formatTime(now), formatTime(now), formatTime(now))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FinishJobRun transitions a job_runs row from running to success or error
// exactly once. runErr is nil on success.
func (s *Store) FinishJobRun(ctx context.Context, runID string, runErr error, metrics map[string]interface{}, now time.Time) error {
	status := JobRunSuccess
	var errText sql.NullString
	if runErr != nil {
		status = JobRunError
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	var metricsJSON []byte
	if len(metrics) > 0 {
		var err error
		metricsJSON, err = json.Marshal(metrics)
		if err != nil {
			return err
		}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE job_runs
		SET status = ?, finished_at = ?, error = ?, metrics_json = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, string(status), formatTime(now), errText, nullableBytes(metricsJSON),
		formatTime(now), runID, string(JobRunRunning))
	return err
}

// UpdateJobState applies the monotonic per-(module,job) state update on
// finalize: last_run_at always advances, last_success_at/last_error_at/
// last_error advance only for their own
// outcome. A call with both runErr and metrics nil is the dispatcher's
// start touch: it advances last_run_at only.
func (s *Store) UpdateJobState(ctx context.Context, module, job string, runErr error, metrics map[string]interface{}, now time.Time) error {
	var metricsJSON []byte
	if len(metrics) > 0 {
		var err error
		metricsJSON, err = json.Marshal(metrics)
		if err != nil {
			return err
		}
	}
	ts := formatTime(now)

	if runErr == nil && metrics == nil {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO job_states (module, job, last_run_at)
			VALUES (?, ?, ?)
			ON CONFLICT(module, job) DO UPDATE SET last_run_at = excluded.last_run_at
		`, module, job, ts)
		return err
	}

	if runErr == nil {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO job_states (module, job, last_run_at, last_success_at, last_metrics_json)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(module, job) DO UPDATE SET
				last_run_at = excluded.last_run_at,
				last_success_at = excluded.last_success_at,
				last_metrics_json = excluded.last_metrics_json
		`, module, job, ts, ts, nullableBytes(metricsJSON))
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_states (module, job, last_run_at, last_error_at, last_error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(module, job) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_error_at = excluded.last_error_at,
			last_error = excluded.last_error
	`, module, job, ts, ts, runErr.Error())
	return err
}

// JobState is a row in job_states, used by operator tooling and tests.
type JobState struct {
	Module          string
	Job             string
	LastRunAt       *time.Time
	LastSuccessAt   *time.Time
	LastErrorAt     *time.Time
	LastError       string
	LastMetricsJSON string
}

// GetJobState fetches the current job_states row for (module, job).
func (s *Store) GetJobState(ctx context.Context, module, job string) (*JobState, error) {
	var lastRunAt, lastSuccessAt, lastErrorAt sql.NullString
	var lastError, lastMetricsJSON sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT last_run_at, last_success_at, last_error_at, last_error, last_metrics_json
		FROM job_states WHERE module = ? AND job = ?
	`, module, job).Scan(&lastRunAt, &lastSuccessAt, &lastErrorAt, &lastError, &lastMetricsJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	st := &JobState{Module: module, Job: job, LastError: lastError.String, LastMetricsJSON: lastMetricsJSON.String}
	st.LastRunAt, err = parseNullableTime(lastRunAt)
	if err != nil {
		return nil, err
	}
	st.LastSuccessAt, err = parseNullableTime(lastSuccessAt)
	if err != nil {
		return nil, err
	}
	st.LastErrorAt, err = parseNullableTime(lastErrorAt)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func parseNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
