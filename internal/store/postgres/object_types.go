package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/processlens/engine/internal/apperr"
	"github.com/processlens/engine/internal/domain"
)

func (s *Store) CreateObjectType(ctx context.Context, ot domain.ObjectType) (domain.ObjectType, error) {
	now := time.Now().UTC()
	ot.CreatedAt, ot.UpdatedAt = now, now

	schemaRaw, err := jsonMap(ot.Schema)
	if err != nil {
		return domain.ObjectType{}, fmt.Errorf("marshal schema: %w", err)
	}

	_, err = s.objectTypesTable.ExecContext(ctx, `
		INSERT INTO object_types (name, display_name, schema, icon, color, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ot.Name, ot.DisplayName, schemaRaw, ot.Icon, ot.Color, ot.CreatedAt, ot.UpdatedAt)
	if err != nil {
		return domain.ObjectType{}, apperr.Wrap(apperr.CodeConflict, "CreateObjectType", err)
	}
	return ot, nil
}

func (s *Store) GetObjectType(ctx context.Context, name string) (domain.ObjectType, error) {
	row := s.objectTypesTable.QueryRowContext(ctx, `
		SELECT name, display_name, schema, icon, color, created_at, updated_at
		FROM object_types WHERE name = $1
	`, name)

	var (
		ot         domain.ObjectType
		schemaRaw  []byte
	)
	if err := row.Scan(&ot.Name, &ot.DisplayName, &schemaRaw, &ot.Icon, &ot.Color, &ot.CreatedAt, &ot.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ObjectType{}, apperr.New(apperr.CodeNotFound, "GetObjectType", name)
		}
		return domain.ObjectType{}, fmt.Errorf("get object type: %w", err)
	}
	ot.Schema = unmarshalMap(schemaRaw)
	return ot, nil
}

func (s *Store) UpdateObjectType(ctx context.Context, ot domain.ObjectType) (domain.ObjectType, error) {
	existing, err := s.GetObjectType(ctx, ot.Name)
	if err != nil {
		return domain.ObjectType{}, err
	}
	ot.CreatedAt = existing.CreatedAt
	ot.UpdatedAt = time.Now().UTC()

	schemaRaw, err := jsonMap(ot.Schema)
	if err != nil {
		return domain.ObjectType{}, fmt.Errorf("marshal schema: %w", err)
	}

	_, err = s.objectTypesTable.ExecContext(ctx, `
		UPDATE object_types SET display_name = $2, schema = $3, icon = $4, color = $5, updated_at = $6
		WHERE name = $1
	`, ot.Name, ot.DisplayName, schemaRaw, ot.Icon, ot.Color, ot.UpdatedAt)
	if err != nil {
		return domain.ObjectType{}, fmt.Errorf("update object type: %w", err)
	}
	return ot, nil
}

// DeleteObjectType is forbidden while any Object of this type exists.
func (s *Store) DeleteObjectType(ctx context.Context, name string) error {
	var count int64
	err := s.objectTypesTable.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM objects WHERE type_name = $1`, name,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("count objects of type: %w", err)
	}
	if count > 0 {
		return apperr.New(apperr.CodePreconditionFailed, "DeleteObjectType", "object type has existing objects")
	}
	result, err := s.objectTypesTable.ExecContext(ctx, `DELETE FROM object_types WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete object type: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.New(apperr.CodeNotFound, "DeleteObjectType", name)
	}
	return nil
}

func (s *Store) ListObjectTypes(ctx context.Context) ([]domain.ObjectType, error) {
	rows, err := s.objectTypesTable.QueryContext(ctx, `
		SELECT name, display_name, schema, icon, color, created_at, updated_at
		FROM object_types ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list object types: %w", err)
	}
	defer rows.Close()

	var out []domain.ObjectType
	for rows.Next() {
		var (
			ot        domain.ObjectType
			schemaRaw []byte
		)
		if err := rows.Scan(&ot.Name, &ot.DisplayName, &schemaRaw, &ot.Icon, &ot.Color, &ot.CreatedAt, &ot.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan object type: %w", err)
		}
		ot.Schema = unmarshalMap(schemaRaw)
		out = append(out, ot)
	}
	return out, rows.Err()
}
