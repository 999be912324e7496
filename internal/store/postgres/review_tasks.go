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
	pgbase "github.com/processlens/engine/pkg/storage/postgres"
)

func (s *Store) CreateReviewTask(ctx context.Context, t domain.ReviewTask) (domain.ReviewTask, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.ReviewStatusPending
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := s.reviewTable.ExecContext(ctx, `
		INSERT INTO review_tasks
			(id, bucket_id, event_id, object_type, identifier, identifier_key, confidence, status, reason, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, t.ID, t.BucketID, t.EventID, t.ObjectType, t.Identifier, t.IdentifierKey, t.Confidence, t.Status, t.Reason, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return domain.ReviewTask{}, fmt.Errorf("create review task: %w", err)
	}
	return t, nil
}

func (s *Store) GetReviewTask(ctx context.Context, id string) (domain.ReviewTask, error) {
	row := s.reviewTable.QueryRowContext(ctx, `
		SELECT id, bucket_id, event_id, object_type, identifier, identifier_key, confidence, status, reason, created_at, updated_at
		FROM review_tasks WHERE id = $1
	`, id)
	return scanReviewTask(row)
}

func scanReviewTask(row *sql.Row) (domain.ReviewTask, error) {
	var (
		t      domain.ReviewTask
		reason sql.NullString
	)
	if err := row.Scan(&t.ID, &t.BucketID, &t.EventID, &t.ObjectType, &t.Identifier, &t.IdentifierKey,
		&t.Confidence, &t.Status, &reason, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReviewTask{}, apperr.New(apperr.CodeNotFound, "GetReviewTask", "review task not found")
		}
		return domain.ReviewTask{}, fmt.Errorf("scan review task: %w", err)
	}
	t.Reason = reason.String
	return t, nil
}

func (s *Store) UpdateReviewTask(ctx context.Context, t domain.ReviewTask) (domain.ReviewTask, error) {
	existing, err := s.GetReviewTask(ctx, t.ID)
	if err != nil {
		return domain.ReviewTask{}, err
	}
	t.BucketID = existing.BucketID
	t.EventID = existing.EventID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()

	result, err := s.reviewTable.ExecContext(ctx, `
		UPDATE review_tasks SET object_type=$2, identifier=$3, identifier_key=$4, confidence=$5, status=$6, reason=$7, updated_at=$8
		WHERE id = $1
	`, t.ID, t.ObjectType, t.Identifier, t.IdentifierKey, t.Confidence, t.Status, t.Reason, t.UpdatedAt)
	if err != nil {
		return domain.ReviewTask{}, fmt.Errorf("update review task: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ReviewTask{}, apperr.New(apperr.CodeNotFound, "UpdateReviewTask", t.ID)
	}
	return t, nil
}

func (s *Store) ListPendingReviewTasks(ctx context.Context, limit int, bucketID string) ([]domain.ReviewTask, error) {
	if limit <= 0 {
		limit = 50
	}
	b := pgbase.NewSelectBuilder("review_tasks").
		Columns("id", "bucket_id", "event_id", "object_type", "identifier", "identifier_key", "confidence", "status", "reason", "created_at", "updated_at").
		WhereEq("status", domain.ReviewStatusPending).
		OrderBy("created_at", false).
		Limit(limit)
	if bucketID != "" {
		b = b.WhereEq("bucket_id", bucketID)
	}
	query, args := b.Build()

	rows, err := s.reviewTable.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending review tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.ReviewTask
	for rows.Next() {
		var (
			t      domain.ReviewTask
			reason sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.BucketID, &t.EventID, &t.ObjectType, &t.Identifier, &t.IdentifierKey,
			&t.Confidence, &t.Status, &reason, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan review task: %w", err)
		}
		t.Reason = reason.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteReviewTask removes a resolved review task, scoped to the bucket it
// was raised against so a stale or forged id can't reach across buckets.
func (s *Store) DeleteReviewTask(ctx context.Context, bucketID, id string) error {
	if err := s.reviewTable.DeleteByBucketID(ctx, id, bucketID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.New(apperr.CodeNotFound, "DeleteReviewTask", id)
		}
		return err
	}
	return nil
}

// CountReviewTasks reports how many tasks (any status) a bucket has raised,
// surfaced to clients as an X-Total-Count header on the pending listing.
func (s *Store) CountReviewTasks(ctx context.Context, bucketID string) (int64, error) {
	return s.reviewTable.CountByBucketID(ctx, bucketID)
}
