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
	"github.com/processlens/engine/internal/store"
	pgbase "github.com/processlens/engine/pkg/storage/postgres"
)

// UpsertObject enforces the (type, name) uniqueness invariant: if an object
// already exists it merges data (new keys win unless replace is set, in
// which case the caller's map fully replaces the stored one) and bumps
// updated_at; otherwise it inserts a fresh row.
func (s *Store) UpsertObject(ctx context.Context, objType, name string, data map[string]any, replace bool) (domain.Object, error) {
	var result domain.Object
	err := s.WithTx(ctx, func(ctx context.Context) error {
		existing, err := s.getObjectByTypeName(ctx, objType, name)
		now := time.Now().UTC()
		if err == nil {
			merged := existing.Data
			if replace {
				merged = data
			} else {
				for k, v := range data {
					merged[k] = v
				}
			}
			existing.Data = merged
			existing.UpdatedAt = now
			dataRaw, mErr := jsonMap(merged)
			if mErr != nil {
				return fmt.Errorf("marshal object data: %w", mErr)
			}
			if _, uErr := s.objectsTable.ExecContext(ctx, `
				UPDATE objects SET data = $2, updated_at = $3 WHERE id = $1
			`, existing.ID, dataRaw, now); uErr != nil {
				return fmt.Errorf("update object: %w", uErr)
			}
			result = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) && apperr.CodeOf(err) != apperr.CodeNotFound {
			return err
		}

		obj := domain.Object{
			ID:        uuid.NewString(),
			Type:      objType,
			Name:      name,
			Data:      data,
			CreatedAt: now,
			UpdatedAt: now,
		}
		dataRaw, mErr := jsonMap(obj.Data)
		if mErr != nil {
			return fmt.Errorf("marshal object data: %w", mErr)
		}
		if _, iErr := s.objectsTable.ExecContext(ctx, `
			INSERT INTO objects (id, type_name, name, data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (type_name, name) DO NOTHING
		`, obj.ID, obj.Type, obj.Name, dataRaw, obj.CreatedAt, obj.UpdatedAt); iErr != nil {
			return fmt.Errorf("insert object: %w", iErr)
		}

		final, gErr := s.getObjectByTypeName(ctx, objType, name)
		if gErr != nil {
			return gErr
		}
		result = final
		return nil
	})
	return result, err
}

func (s *Store) getObjectByTypeName(ctx context.Context, objType, name string) (domain.Object, error) {
	row := s.objectsTable.QueryRowContext(ctx, `
		SELECT id, type_name, name, data, created_at, updated_at
		FROM objects WHERE type_name = $1 AND name = $2
	`, objType, name)
	return scanObject(row)
}

func (s *Store) GetObject(ctx context.Context, id string) (domain.Object, error) {
	row := s.objectsTable.QueryRowContext(ctx, `
		SELECT id, type_name, name, data, created_at, updated_at
		FROM objects WHERE id = $1
	`, id)
	return scanObject(row)
}

func scanObject(row *sql.Row) (domain.Object, error) {
	var (
		o       domain.Object
		dataRaw []byte
	)
	if err := row.Scan(&o.ID, &o.Type, &o.Name, &dataRaw, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Object{}, apperr.New(apperr.CodeNotFound, "GetObject", "object not found")
		}
		return domain.Object{}, fmt.Errorf("scan object: %w", err)
	}
	o.Data = unmarshalMap(dataRaw)
	return o, nil
}

func (s *Store) CreateObject(ctx context.Context, o domain.Object) (domain.Object, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	dataRaw, err := jsonMap(o.Data)
	if err != nil {
		return domain.Object{}, fmt.Errorf("marshal object data: %w", err)
	}
	_, err = s.objectsTable.ExecContext(ctx, `
		INSERT INTO objects (id, type_name, name, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, o.ID, o.Type, o.Name, dataRaw, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return domain.Object{}, apperr.Wrap(apperr.CodeConflict, "CreateObject", err)
	}
	return o, nil
}

func (s *Store) UpdateObject(ctx context.Context, o domain.Object) (domain.Object, error) {
	existing, err := s.GetObject(ctx, o.ID)
	if err != nil {
		return domain.Object{}, err
	}
	o.Type = existing.Type
	o.CreatedAt = existing.CreatedAt
	o.UpdatedAt = time.Now().UTC()

	dataRaw, err := jsonMap(o.Data)
	if err != nil {
		return domain.Object{}, fmt.Errorf("marshal object data: %w", err)
	}
	result, err := s.objectsTable.ExecContext(ctx, `
		UPDATE objects SET name = $2, data = $3, updated_at = $4 WHERE id = $1
	`, o.ID, o.Name, dataRaw, o.UpdatedAt)
	if err != nil {
		return domain.Object{}, apperr.Wrap(apperr.CodeConflict, "UpdateObject", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.Object{}, apperr.New(apperr.CodeNotFound, "UpdateObject", o.ID)
	}
	return o, nil
}

func (s *Store) DeleteObject(ctx context.Context, id string) error {
	if err := s.objectsTable.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.CodeNotFound, "DeleteObject", id)
		}
		return err
	}
	return nil
}

func (s *Store) ListObjects(ctx context.Context, f store.ObjectFilter) ([]domain.Object, error) {
	b := pgbase.NewSelectBuilder("objects").
		Columns("id", "type_name", "name", "data", "created_at", "updated_at").
		OrderBy("updated_at", true)
	if f.Type != "" {
		b = b.WhereEq("type_name", f.Type)
	}
	if f.Query != "" {
		b = b.Where("name ILIKE ?", "%"+f.Query+"%")
	}
	if f.Range != nil {
		b = b.Where("updated_at >= ?", f.Range.Start).Where("updated_at < ?", f.Range.End)
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	query, args := b.Build()

	rows, err := s.objectsTable.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()

	var out []domain.Object
	for rows.Next() {
		var (
			o       domain.Object
			dataRaw []byte
		)
		if err := rows.Scan(&o.ID, &o.Type, &o.Name, &dataRaw, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		o.Data = unmarshalMap(dataRaw)
		out = append(out, o)
	}
	return out, rows.Err()
}
