package domain

import "time"

// Rule provenance taxonomy: rules start as "seed" or "user" authored, or are
// proposed by the learning loop as "learned" candidates awaiting confirmation.
const (
	RuleProvenanceSeed    = "seed"
	RuleProvenanceUser    = "user"
	RuleProvenanceLearned = "learned"
)

// ExtractionRule binds an object type to a text pattern. The regex's named
// capture groups feed both NameTemplate (rendered to produce the object's
// display name) and DataMapping (object data key -> group name).
type ExtractionRule struct {
	ID            string
	Name          string
	ObjectType    string
	SourceFields  []string
	Pattern       string
	NameTemplate  string
	DataMapping   map[string]string
	Enabled       bool
	Priority      int
	Provenance    string
	MatchCount    int64
	ConfirmCount  int64
	RejectCount   int64
	Confidence    float64
	LastMatchedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r ExtractionRule) GetID() string           { return r.ID }
func (r ExtractionRule) GetBucketID() string     { return "" }
func (r *ExtractionRule) SetCreatedAt(t time.Time) { r.CreatedAt = t }
func (r *ExtractionRule) SetUpdatedAt(t time.Time) { r.UpdatedAt = t }

// RuleDemotion is an audit row written whenever a rule is disabled by the
// confidence-floor rule or a runtime regex failure.
type RuleDemotion struct {
	ID        string
	RuleID    string
	Reason    string
	CreatedAt time.Time
}

const (
	DemotionReasonLowConfidence = "match_rate_floor"
	DemotionReasonTimeout       = "timeout"
)
