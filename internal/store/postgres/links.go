package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/store"
)

// LinkEventToObject is idempotent on (bucket, event, object): re-linking an
// already-linked pair just refreshes provenance/confidence rather than
// erroring, matching the extractor's "upsert is idempotent" requirement.
func (s *Store) LinkEventToObject(ctx context.Context, link domain.EventObjectLink) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	_, err := s.linksTable.ExecContext(ctx, `
		INSERT INTO event_objects (bucket_id, event_id, object_id, provenance, confidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (bucket_id, event_id, object_id)
		DO UPDATE SET provenance = EXCLUDED.provenance, confidence = EXCLUDED.confidence
	`, link.BucketID, link.EventID, link.ObjectID, link.Provenance, link.Confidence, link.CreatedAt)
	if err != nil {
		return fmt.Errorf("link event to object: %w", err)
	}
	return nil
}

func (s *Store) UnlinkEventFromObject(ctx context.Context, bucket string, eventID int64, objectID string) error {
	_, err := s.linksTable.ExecContext(ctx, `
		DELETE FROM event_objects WHERE bucket_id = $1 AND event_id = $2 AND object_id = $3
	`, bucket, eventID, objectID)
	if err != nil {
		return fmt.Errorf("unlink event from object: %w", err)
	}
	return nil
}

func (s *Store) ObjectsForEvent(ctx context.Context, bucket string, eventID int64) ([]domain.Object, error) {
	rows, err := s.linksTable.QueryContext(ctx, `
		SELECT o.id, o.type_name, o.name, o.data, o.created_at, o.updated_at
		FROM objects o
		JOIN event_objects eo ON eo.object_id = o.id
		WHERE eo.bucket_id = $1 AND eo.event_id = $2
		ORDER BY eo.created_at ASC
	`, bucket, eventID)
	if err != nil {
		return nil, fmt.Errorf("objects for event: %w", err)
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

func (s *Store) EventsForObject(ctx context.Context, objectID string, r *store.TimeRange) ([]domain.Event, error) {
	query := `
		SELECT e.bucket_id, e.id, e.ts, e.duration_seconds, e.data
		FROM events e
		JOIN event_objects eo ON eo.bucket_id = e.bucket_id AND eo.event_id = e.id
		WHERE eo.object_id = $1
	`
	args := []any{objectID}
	if r != nil {
		query += ` AND e.ts >= $2 AND e.ts < $3`
		args = append(args, r.Start, r.End)
	}
	query += ` ORDER BY e.ts ASC, e.id ASC`

	rows, err := s.linksTable.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("events for object: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e       domain.Event
			dataRaw []byte
		)
		if err := rows.Scan(&e.BucketID, &e.ID, &e.Timestamp, &e.DurationSeconds, &dataRaw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Data = unmarshalMap(dataRaw)
		out = append(out, e)
	}
	return out, rows.Err()
}
