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
	pgbase "github.com/processlens/engine/pkg/storage/postgres"
)

func (s *Store) CreateRule(ctx context.Context, r domain.ExtractionRule) (domain.ExtractionRule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	fieldsRaw, err := json.Marshal(r.SourceFields)
	if err != nil {
		return domain.ExtractionRule{}, fmt.Errorf("marshal source fields: %w", err)
	}
	mappingRaw, err := json.Marshal(r.DataMapping)
	if err != nil {
		return domain.ExtractionRule{}, fmt.Errorf("marshal data mapping: %w", err)
	}

	_, err = s.rulesTable.ExecContext(ctx, `
		INSERT INTO extraction_rules
			(id, name, object_type, source_fields, pattern, name_template, data_mapping,
			 enabled, priority, provenance, match_count, confirm_count, reject_count,
			 confidence, last_matched_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, r.ID, r.Name, r.ObjectType, fieldsRaw, r.Pattern, r.NameTemplate, mappingRaw,
		r.Enabled, r.Priority, r.Provenance, r.MatchCount, r.ConfirmCount, r.RejectCount,
		r.Confidence, pgbase.PtrToNullTime(r.LastMatchedAt), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return domain.ExtractionRule{}, apperr.Wrap(apperr.CodeConflict, "CreateRule", err)
	}
	return r, nil
}

func (s *Store) GetRule(ctx context.Context, id string) (domain.ExtractionRule, error) {
	row := s.rulesTable.QueryRowContext(ctx, ruleSelectColumns()+` WHERE id = $1`, id)
	return scanRule(row)
}

func ruleSelectColumns() string {
	return `SELECT id, name, object_type, source_fields, pattern, name_template, data_mapping,
		enabled, priority, provenance, match_count, confirm_count, reject_count,
		confidence, last_matched_at, created_at, updated_at FROM extraction_rules`
}

func scanRule(row *sql.Row) (domain.ExtractionRule, error) {
	var (
		r             domain.ExtractionRule
		fieldsRaw     []byte
		mappingRaw    []byte
		lastMatchedAt sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Name, &r.ObjectType, &fieldsRaw, &r.Pattern, &r.NameTemplate, &mappingRaw,
		&r.Enabled, &r.Priority, &r.Provenance, &r.MatchCount, &r.ConfirmCount, &r.RejectCount,
		&r.Confidence, &lastMatchedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ExtractionRule{}, apperr.New(apperr.CodeNotFound, "GetRule", "rule not found")
		}
		return domain.ExtractionRule{}, fmt.Errorf("scan rule: %w", err)
	}
	_ = json.Unmarshal(fieldsRaw, &r.SourceFields)
	_ = json.Unmarshal(mappingRaw, &r.DataMapping)
	r.LastMatchedAt = pgbase.NullTimeToPtr(lastMatchedAt)
	return r, nil
}

func (s *Store) UpdateRule(ctx context.Context, r domain.ExtractionRule) (domain.ExtractionRule, error) {
	existing, err := s.GetRule(ctx, r.ID)
	if err != nil {
		return domain.ExtractionRule{}, err
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	fieldsRaw, err := json.Marshal(r.SourceFields)
	if err != nil {
		return domain.ExtractionRule{}, fmt.Errorf("marshal source fields: %w", err)
	}
	mappingRaw, err := json.Marshal(r.DataMapping)
	if err != nil {
		return domain.ExtractionRule{}, fmt.Errorf("marshal data mapping: %w", err)
	}

	result, err := s.rulesTable.ExecContext(ctx, `
		UPDATE extraction_rules SET
			name=$2, object_type=$3, source_fields=$4, pattern=$5, name_template=$6, data_mapping=$7,
			enabled=$8, priority=$9, provenance=$10, match_count=$11, confirm_count=$12, reject_count=$13,
			confidence=$14, last_matched_at=$15, updated_at=$16
		WHERE id = $1
	`, r.ID, r.Name, r.ObjectType, fieldsRaw, r.Pattern, r.NameTemplate, mappingRaw,
		r.Enabled, r.Priority, r.Provenance, r.MatchCount, r.ConfirmCount, r.RejectCount,
		r.Confidence, pgbase.PtrToNullTime(r.LastMatchedAt), r.UpdatedAt)
	if err != nil {
		return domain.ExtractionRule{}, fmt.Errorf("update rule: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ExtractionRule{}, apperr.New(apperr.CodeNotFound, "UpdateRule", r.ID)
	}
	return r, nil
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	if err := s.rulesTable.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.CodeNotFound, "DeleteRule", id)
		}
		return err
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context, enabledOnly bool) ([]domain.ExtractionRule, error) {
	query := ruleSelectColumns()
	if enabledOnly {
		query += " WHERE enabled = true"
	}
	query += " ORDER BY priority DESC, id ASC"

	rows, err := s.rulesTable.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []domain.ExtractionRule
	for rows.Next() {
		var (
			r             domain.ExtractionRule
			fieldsRaw     []byte
			mappingRaw    []byte
			lastMatchedAt sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.ObjectType, &fieldsRaw, &r.Pattern, &r.NameTemplate, &mappingRaw,
			&r.Enabled, &r.Priority, &r.Provenance, &r.MatchCount, &r.ConfirmCount, &r.RejectCount,
			&r.Confidence, &lastMatchedAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		_ = json.Unmarshal(fieldsRaw, &r.SourceFields)
		_ = json.Unmarshal(mappingRaw, &r.DataMapping)
		r.LastMatchedAt = pgbase.NullTimeToPtr(lastMatchedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) RecordRuleDemotion(ctx context.Context, d domain.RuleDemotion) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := s.rulesTable.ExecContext(ctx, `
		INSERT INTO rule_demotions (id, rule_id, reason, created_at) VALUES ($1, $2, $3, $4)
	`, d.ID, d.RuleID, d.Reason, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("record rule demotion: %w", err)
	}
	return nil
}
