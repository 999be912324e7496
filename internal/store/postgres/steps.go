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

func (s *Store) CreateStep(ctx context.Context, st domain.Step) (domain.Step, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now

	var result domain.Step
	err := s.WithTx(ctx, func(ctx context.Context) error {
		dataRaw, err := jsonMap(st.Data)
		if err != nil {
			return fmt.Errorf("marshal step data: %w", err)
		}
		if _, err := s.stepsTable.ExecContext(ctx, `
			INSERT INTO steps (id, name, data, start_ts, end_ts, duration_seconds, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, st.ID, st.Name, dataRaw, st.StartTime, st.EndTime, st.DurationSeconds, st.CreatedAt, st.UpdatedAt); err != nil {
			return fmt.Errorf("insert step: %w", err)
		}
		for i, ek := range st.EventKeys {
			if _, err := s.stepsTable.ExecContext(ctx, `
				INSERT INTO step_events (step_id, bucket_id, event_id, position) VALUES ($1,$2,$3,$4)
			`, st.ID, ek.BucketID, ek.ID, i); err != nil {
				return fmt.Errorf("link step event: %w", err)
			}
		}
		for _, objID := range st.ObjectIDs {
			if err := s.AddStepObject(ctx, st.ID, objID); err != nil {
				return err
			}
		}
		result = st
		return nil
	})
	return result, err
}

func (s *Store) GetStep(ctx context.Context, id string) (domain.Step, error) {
	row := s.stepsTable.QueryRowContext(ctx, `
		SELECT id, name, data, start_ts, end_ts, duration_seconds, created_at, updated_at
		FROM steps WHERE id = $1
	`, id)
	st, err := scanStep(row)
	if err != nil {
		return domain.Step{}, err
	}
	st.EventKeys, err = s.stepEventKeys(ctx, id)
	if err != nil {
		return domain.Step{}, err
	}
	st.ObjectIDs, err = s.stepObjectIDs(ctx, id)
	return st, err
}

func scanStep(row *sql.Row) (domain.Step, error) {
	var (
		st      domain.Step
		dataRaw []byte
	)
	if err := row.Scan(&st.ID, &st.Name, &dataRaw, &st.StartTime, &st.EndTime, &st.DurationSeconds, &st.CreatedAt, &st.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Step{}, apperr.New(apperr.CodeNotFound, "GetStep", "step not found")
		}
		return domain.Step{}, fmt.Errorf("scan step: %w", err)
	}
	st.Data = unmarshalMap(dataRaw)
	return st, nil
}

func (s *Store) stepEventKeys(ctx context.Context, stepID string) ([]domain.EventKey, error) {
	rows, err := s.stepsTable.QueryContext(ctx, `
		SELECT bucket_id, event_id FROM step_events WHERE step_id = $1 ORDER BY position ASC
	`, stepID)
	if err != nil {
		return nil, fmt.Errorf("list step events: %w", err)
	}
	defer rows.Close()
	var out []domain.EventKey
	for rows.Next() {
		var k domain.EventKey
		if err := rows.Scan(&k.BucketID, &k.ID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) stepObjectIDs(ctx context.Context, stepID string) ([]string, error) {
	rows, err := s.stepsTable.QueryContext(ctx, `SELECT object_id FROM step_objects WHERE step_id = $1`, stepID)
	if err != nil {
		return nil, fmt.Errorf("list step objects: %w", err)
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

func (s *Store) UpdateStep(ctx context.Context, st domain.Step) (domain.Step, error) {
	existing, err := s.GetStep(ctx, st.ID)
	if err != nil {
		return domain.Step{}, err
	}
	st.CreatedAt = existing.CreatedAt
	st.UpdatedAt = time.Now().UTC()

	dataRaw, err := jsonMap(st.Data)
	if err != nil {
		return domain.Step{}, fmt.Errorf("marshal step data: %w", err)
	}
	result, err := s.stepsTable.ExecContext(ctx, `
		UPDATE steps SET name=$2, data=$3, start_ts=$4, end_ts=$5, duration_seconds=$6, updated_at=$7
		WHERE id = $1
	`, st.ID, st.Name, dataRaw, st.StartTime, st.EndTime, st.DurationSeconds, st.UpdatedAt)
	if err != nil {
		return domain.Step{}, fmt.Errorf("update step: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.Step{}, apperr.New(apperr.CodeNotFound, "UpdateStep", st.ID)
	}
	return st, nil
}

func (s *Store) DeleteStep(ctx context.Context, id string) error {
	if err := s.stepsTable.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.CodeNotFound, "DeleteStep", id)
		}
		return err
	}
	return nil
}

func (s *Store) ListSteps(ctx context.Context) ([]domain.Step, error) {
	rows, err := s.stepsTable.QueryContext(ctx, `
		SELECT id, name, data, start_ts, end_ts, duration_seconds, created_at, updated_at
		FROM steps ORDER BY start_ts ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var ids []string
	var out []domain.Step
	for rows.Next() {
		var (
			st      domain.Step
			dataRaw []byte
		)
		if err := rows.Scan(&st.ID, &st.Name, &dataRaw, &st.StartTime, &st.EndTime, &st.DurationSeconds, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		st.Data = unmarshalMap(dataRaw)
		out = append(out, st)
		ids = append(ids, st.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		keys, err := s.stepEventKeys(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].EventKeys = keys
		objIDs, err := s.stepObjectIDs(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].ObjectIDs = objIDs
	}
	return out, nil
}

func (s *Store) AddStepObject(ctx context.Context, stepID, objectID string) error {
	_, err := s.stepsTable.ExecContext(ctx, `
		INSERT INTO step_objects (step_id, object_id) VALUES ($1, $2)
		ON CONFLICT (step_id, object_id) DO NOTHING
	`, stepID, objectID)
	if err != nil {
		return fmt.Errorf("add step object: %w", err)
	}
	return nil
}

func (s *Store) RemoveStepObject(ctx context.Context, stepID, objectID string) error {
	_, err := s.stepsTable.ExecContext(ctx, `
		DELETE FROM step_objects WHERE step_id = $1 AND object_id = $2
	`, stepID, objectID)
	if err != nil {
		return fmt.Errorf("remove step object: %w", err)
	}
	return nil
}
