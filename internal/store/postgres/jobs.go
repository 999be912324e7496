package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/processlens/engine/internal/apperr"
	"github.com/processlens/engine/internal/domain"
)

func (s *Store) CreateJob(ctx context.Context, j domain.AnalysisJob) (domain.AnalysisJob, error) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = domain.JobQueued
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now

	resultRaw, err := jsonMap(j.ResultRef)
	if err != nil {
		return domain.AnalysisJob{}, fmt.Errorf("marshal result ref: %w", err)
	}
	_, err = s.jobsTable.ExecContext(ctx, `
		INSERT INTO analysis_jobs (id, kind, status, progress, error, result_ref, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, j.ID, j.Kind, j.Status, j.Progress, j.Error, resultRaw, j.CreatedAt, j.UpdatedAt)
	if err != nil {
		return domain.AnalysisJob{}, fmt.Errorf("create job: %w", err)
	}
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (domain.AnalysisJob, error) {
	row := s.jobsTable.QueryRowContext(ctx, `
		SELECT id, kind, status, progress, error, result_ref, created_at, updated_at
		FROM analysis_jobs WHERE id = $1
	`, id)
	return scanJob(row)
}

func scanJob(row *sql.Row) (domain.AnalysisJob, error) {
	var (
		j          domain.AnalysisJob
		errText    sql.NullString
		resultRaw  []byte
	)
	if err := row.Scan(&j.ID, &j.Kind, &j.Status, &j.Progress, &errText, &resultRaw, &j.CreatedAt, &j.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AnalysisJob{}, apperr.New(apperr.CodeNotFound, "GetJob", "job not found")
		}
		return domain.AnalysisJob{}, fmt.Errorf("scan job: %w", err)
	}
	j.Error = errText.String
	if len(resultRaw) > 0 {
		_ = json.Unmarshal(resultRaw, &j.ResultRef)
	}
	return j, nil
}

func (s *Store) UpdateJob(ctx context.Context, j domain.AnalysisJob) (domain.AnalysisJob, error) {
	existing, err := s.GetJob(ctx, j.ID)
	if err != nil {
		return domain.AnalysisJob{}, err
	}
	j.Kind = existing.Kind
	j.CreatedAt = existing.CreatedAt
	j.UpdatedAt = time.Now().UTC()

	resultRaw, err := jsonMap(j.ResultRef)
	if err != nil {
		return domain.AnalysisJob{}, fmt.Errorf("marshal result ref: %w", err)
	}
	result, err := s.jobsTable.ExecContext(ctx, `
		UPDATE analysis_jobs SET status=$2, progress=$3, error=$4, result_ref=$5, updated_at=$6 WHERE id = $1
	`, j.ID, j.Status, j.Progress, j.Error, resultRaw, j.UpdatedAt)
	if err != nil {
		return domain.AnalysisJob{}, fmt.Errorf("update job: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.AnalysisJob{}, apperr.New(apperr.CodeNotFound, "UpdateJob", j.ID)
	}
	return j, nil
}

// PruneTerminalJobs deletes done/failed jobs older than the cutoff — the
// housekeeping ticker's other responsibility alongside the LLM cache sweep.
func (s *Store) PruneTerminalJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.jobsTable.ExecContext(ctx, `
		DELETE FROM analysis_jobs WHERE status IN ('done','failed') AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune terminal jobs: %w", err)
	}
	return result.RowsAffected()
}
