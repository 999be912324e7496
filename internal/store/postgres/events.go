package postgres

import (
	"context"
	"fmt"

	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/store"
)

// ReadEvents returns events for one bucket ordered by timestamp ascending
// with a stable (bucket, id) tie-break, as spec.md §5's ordering guarantee
// requires.
func (s *Store) ReadEvents(ctx context.Context, bucket string, r store.TimeRange) ([]domain.Event, error) {
	rows, err := s.eventsTable.QueryContext(ctx, `
		SELECT bucket_id, id, ts, duration_seconds, data
		FROM events
		WHERE bucket_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC, id ASC
	`, bucket, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
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

// AppendEvents writes watcher-supplied events. The core treats events as
// append-only and never edits them after insert; ON CONFLICT DO NOTHING
// tolerates the watcher redelivering the same (bucket, id) after a crash.
func (s *Store) AppendEvents(ctx context.Context, events []domain.Event) error {
	for _, e := range events {
		dataRaw, err := jsonMap(e.Data)
		if err != nil {
			return fmt.Errorf("marshal event data: %w", err)
		}
		if _, err := s.eventsTable.ExecContext(ctx, `
			INSERT INTO events (bucket_id, id, ts, duration_seconds, data)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (bucket_id, id) DO NOTHING
		`, e.BucketID, e.ID, e.Timestamp, e.DurationSeconds, dataRaw); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
	}
	return nil
}
