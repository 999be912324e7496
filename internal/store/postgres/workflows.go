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

func (s *Store) CreateWorkflow(ctx context.Context, w domain.Workflow) (domain.Workflow, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if len(w.Pattern) < 2 {
		return domain.Workflow{}, apperr.New(apperr.CodeInvalidArgument, "CreateWorkflow", "pattern length must be >= 2")
	}
	if w.State == "" {
		w.State = domain.WorkflowDraft
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now

	var result domain.Workflow
	err := s.WithTx(ctx, func(ctx context.Context) error {
		patternRaw, err := json.Marshal(w.Pattern)
		if err != nil {
			return fmt.Errorf("marshal pattern: %w", err)
		}
		if _, err := s.workflowsTable.ExecContext(ctx, `
			INSERT INTO workflows (id, name, description, pattern, state, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, w.ID, w.Name, w.Description, patternRaw, w.State, w.CreatedAt, w.UpdatedAt); err != nil {
			return fmt.Errorf("insert workflow: %w", err)
		}
		for i, stepID := range w.StepIDs {
			if _, err := s.workflowsTable.ExecContext(ctx, `
				INSERT INTO workflow_steps (workflow_id, step_id, position) VALUES ($1,$2,$3)
			`, w.ID, stepID, i); err != nil {
				return fmt.Errorf("link workflow step: %w", err)
			}
		}
		for _, objID := range w.ObjectIDs {
			if err := s.AddWorkflowObject(ctx, w.ID, objID); err != nil {
				return err
			}
		}
		result = w
		return nil
	})
	return result, err
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	row := s.workflowsTable.QueryRowContext(ctx, `
		SELECT id, name, description, pattern, state, created_at, updated_at
		FROM workflows WHERE id = $1
	`, id)
	w, err := scanWorkflow(row)
	if err != nil {
		return domain.Workflow{}, err
	}
	w.StepIDs, err = s.workflowStepIDs(ctx, id)
	if err != nil {
		return domain.Workflow{}, err
	}
	w.ObjectIDs, err = s.workflowObjectIDs(ctx, id)
	return w, err
}

func scanWorkflow(row *sql.Row) (domain.Workflow, error) {
	var (
		w          domain.Workflow
		patternRaw []byte
	)
	if err := row.Scan(&w.ID, &w.Name, &w.Description, &patternRaw, &w.State, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Workflow{}, apperr.New(apperr.CodeNotFound, "GetWorkflow", "workflow not found")
		}
		return domain.Workflow{}, fmt.Errorf("scan workflow: %w", err)
	}
	_ = json.Unmarshal(patternRaw, &w.Pattern)
	return w, nil
}

func (s *Store) workflowStepIDs(ctx context.Context, workflowID string) ([]string, error) {
	rows, err := s.workflowsTable.QueryContext(ctx, `
		SELECT step_id FROM workflow_steps WHERE workflow_id = $1 ORDER BY position ASC
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow steps: %w", err)
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

func (s *Store) workflowObjectIDs(ctx context.Context, workflowID string) ([]string, error) {
	rows, err := s.workflowsTable.QueryContext(ctx, `SELECT object_id FROM workflow_objects WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list workflow objects: %w", err)
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

// UpdateWorkflow enforces the lifecycle edges of domain.CanTransition when
// State changes; callers updating other fields without a state change are
// unaffected.
func (s *Store) UpdateWorkflow(ctx context.Context, w domain.Workflow) (domain.Workflow, error) {
	existing, err := s.GetWorkflow(ctx, w.ID)
	if err != nil {
		return domain.Workflow{}, err
	}
	if w.State != existing.State && !domain.CanTransition(existing.State, w.State) {
		return domain.Workflow{}, apperr.New(apperr.CodePreconditionFailed, "UpdateWorkflow",
			fmt.Sprintf("illegal transition %s -> %s", existing.State, w.State))
	}
	w.CreatedAt = existing.CreatedAt
	w.UpdatedAt = time.Now().UTC()

	patternRaw, err := json.Marshal(w.Pattern)
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("marshal pattern: %w", err)
	}
	result, err := s.workflowsTable.ExecContext(ctx, `
		UPDATE workflows SET name=$2, description=$3, pattern=$4, state=$5, updated_at=$6 WHERE id = $1
	`, w.ID, w.Name, w.Description, patternRaw, w.State, w.UpdatedAt)
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("update workflow: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.Workflow{}, apperr.New(apperr.CodeNotFound, "UpdateWorkflow", w.ID)
	}
	return w, nil
}

// DeleteWorkflow cascade-deletes its step and object links, its
// occurrences, and those occurrences' step instances and object links via
// the schema's ON DELETE CASCADE.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	if err := s.workflowsTable.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.CodeNotFound, "DeleteWorkflow", id)
		}
		return err
	}
	return nil
}

func (s *Store) ListWorkflows(ctx context.Context, includeArchived bool) ([]domain.Workflow, error) {
	query := `SELECT id, name, description, pattern, state, created_at, updated_at FROM workflows`
	if !includeArchived {
		query += ` WHERE state NOT IN ('archived', 'deleted')`
	} else {
		query += ` WHERE state != 'deleted'`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.workflowsTable.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []domain.Workflow
	for rows.Next() {
		var (
			w          domain.Workflow
			patternRaw []byte
		)
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &patternRaw, &w.State, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		_ = json.Unmarshal(patternRaw, &w.Pattern)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		stepIDs, err := s.workflowStepIDs(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].StepIDs = stepIDs
		objIDs, err := s.workflowObjectIDs(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].ObjectIDs = objIDs
	}
	return out, nil
}

func (s *Store) AddWorkflowObject(ctx context.Context, workflowID, objectID string) error {
	_, err := s.workflowsTable.ExecContext(ctx, `
		INSERT INTO workflow_objects (workflow_id, object_id) VALUES ($1, $2)
		ON CONFLICT (workflow_id, object_id) DO NOTHING
	`, workflowID, objectID)
	if err != nil {
		return fmt.Errorf("add workflow object: %w", err)
	}
	return nil
}

func (s *Store) RemoveWorkflowObject(ctx context.Context, workflowID, objectID string) error {
	_, err := s.workflowsTable.ExecContext(ctx, `
		DELETE FROM workflow_objects WHERE workflow_id = $1 AND object_id = $2
	`, workflowID, objectID)
	if err != nil {
		return fmt.Errorf("remove workflow object: %w", err)
	}
	return nil
}
