package domain

import "time"

// Event is a single watcher-emitted activity record. Events are external and
// read-only to the core: watchers and bucket storage own the write path, the
// engine only ever reads a range and attaches links alongside it.
type Event struct {
	BucketID        string
	ID              int64
	Timestamp       time.Time
	DurationSeconds float64
	Data            map[string]any
}

// Field returns the named field from Data as a string, or "" if absent or
// not a string. Extraction rules scan a fixed set of these.
func (e Event) Field(name string) string {
	if e.Data == nil {
		return ""
	}
	v, ok := e.Data[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// EventKey is the composite identity used for stable ordering and map keys.
type EventKey struct {
	BucketID string
	ID       int64
}

func (e Event) Key() EventKey {
	return EventKey{BucketID: e.BucketID, ID: e.ID}
}

func (e Event) End() time.Time {
	return e.Timestamp.Add(time.Duration(e.DurationSeconds * float64(time.Second)))
}
