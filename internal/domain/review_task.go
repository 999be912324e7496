package domain

import "time"

// ReviewTask is a low-confidence LLM-derived candidate object awaiting human
// confirmation through the training queue endpoints.
type ReviewTask struct {
	ID            string
	BucketID      string
	EventID       int64
	ObjectType    string
	Identifier    string
	IdentifierKey string
	Confidence    float64
	Status        string
	Reason        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const (
	ReviewStatusPending   = "pending"
	ReviewStatusConfirmed = "confirmed"
	ReviewStatusRejected  = "rejected"
)

func (t ReviewTask) GetID() string           { return t.ID }
func (t ReviewTask) GetBucketID() string     { return t.BucketID }
func (t *ReviewTask) SetCreatedAt(ts time.Time) { t.CreatedAt = ts }
func (t *ReviewTask) SetUpdatedAt(ts time.Time) { t.UpdatedAt = ts }
