package domain

import "time"

// Step is a labelled grouping of consecutive same-activity events. Steps are
// (re)created by the case builder on every analysis run, or promoted
// manually through the API.
type Step struct {
	ID              string
	Name            string
	Data            map[string]any
	EventKeys       []EventKey
	ObjectIDs       []string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s Step) GetID() string           { return s.ID }
func (s Step) GetBucketID() string     { return "" }
func (s *Step) SetCreatedAt(t time.Time) { s.CreatedAt = t }
func (s *Step) SetUpdatedAt(t time.Time) { s.UpdatedAt = t }
