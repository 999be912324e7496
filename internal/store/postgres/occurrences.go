package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/processlens/engine/internal/apperr"
	"github.com/processlens/engine/internal/domain"
)

func (s *Store) CreateOccurrence(ctx context.Context, o domain.Occurrence) (domain.Occurrence, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = time.Now().UTC()

	var result domain.Occurrence
	err := s.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.occurrenceTable.ExecContext(ctx, `
			INSERT INTO occurrences (id, workflow_id, start_ts, end_ts, duration_seconds, created_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, o.ID, o.WorkflowID, o.StartTime, o.EndTime, o.DurationSeconds, o.CreatedAt); err != nil {
			return fmt.Errorf("insert occurrence: %w", err)
		}
		for _, si := range o.StepInstances {
			if _, err := s.occurrenceTable.ExecContext(ctx, `
				INSERT INTO occurrence_step_instances (occurrence_id, step_id, position) VALUES ($1,$2,$3)
			`, o.ID, si.StepID, si.Position); err != nil {
				return fmt.Errorf("link occurrence step: %w", err)
			}
		}
		for _, objID := range o.ObjectIDs {
			if _, err := s.occurrenceTable.ExecContext(ctx, `
				INSERT INTO occurrence_objects (occurrence_id, object_id) VALUES ($1,$2)
				ON CONFLICT (occurrence_id, object_id) DO NOTHING
			`, o.ID, objID); err != nil {
				return fmt.Errorf("link occurrence object: %w", err)
			}
		}
		result = o
		return nil
	})
	return result, err
}

func (s *Store) GetOccurrence(ctx context.Context, id string) (domain.Occurrence, error) {
	row := s.occurrenceTable.QueryRowContext(ctx, `
		SELECT id, workflow_id, start_ts, end_ts, duration_seconds, created_at
		FROM occurrences WHERE id = $1
	`, id)
	o, err := scanOccurrence(row)
	if err != nil {
		return domain.Occurrence{}, err
	}
	o.StepInstances, err = s.occurrenceStepInstances(ctx, id)
	if err != nil {
		return domain.Occurrence{}, err
	}
	o.ObjectIDs, err = s.occurrenceObjectIDs(ctx, id)
	return o, err
}

func scanOccurrence(row *sql.Row) (domain.Occurrence, error) {
	var o domain.Occurrence
	if err := row.Scan(&o.ID, &o.WorkflowID, &o.StartTime, &o.EndTime, &o.DurationSeconds, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Occurrence{}, apperr.New(apperr.CodeNotFound, "GetOccurrence", "occurrence not found")
		}
		return domain.Occurrence{}, fmt.Errorf("scan occurrence: %w", err)
	}
	return o, nil
}

func (s *Store) occurrenceStepInstances(ctx context.Context, occID string) ([]domain.StepInstance, error) {
	rows, err := s.occurrenceTable.QueryContext(ctx, `
		SELECT position, step_id FROM occurrence_step_instances WHERE occurrence_id = $1 ORDER BY position ASC
	`, occID)
	if err != nil {
		return nil, fmt.Errorf("list occurrence steps: %w", err)
	}
	defer rows.Close()
	var out []domain.StepInstance
	for rows.Next() {
		var si domain.StepInstance
		if err := rows.Scan(&si.Position, &si.StepID); err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}

func (s *Store) occurrenceObjectIDs(ctx context.Context, occID string) ([]string, error) {
	rows, err := s.occurrenceTable.QueryContext(ctx, `SELECT object_id FROM occurrence_objects WHERE occurrence_id = $1`, occID)
	if err != nil {
		return nil, fmt.Errorf("list occurrence objects: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) ListOccurrences(ctx context.Context, workflowID string) ([]domain.Occurrence, error) {
	rows, err := s.occurrenceTable.QueryContext(ctx, `
		SELECT id, workflow_id, start_ts, end_ts, duration_seconds, created_at
		FROM occurrences WHERE workflow_id = $1 ORDER BY start_ts ASC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	var out []domain.Occurrence
	for rows.Next() {
		var o domain.Occurrence
		if err := rows.Scan(&o.ID, &o.WorkflowID, &o.StartTime, &o.EndTime, &o.DurationSeconds, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan occurrence: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		si, err := s.occurrenceStepInstances(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].StepInstances = si
		objIDs, err := s.occurrenceObjectIDs(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].ObjectIDs = objIDs
	}
	return out, nil
}
