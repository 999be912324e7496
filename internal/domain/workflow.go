package domain

import "time"

// Workflow lifecycle states. Transitions are restricted to draft->active,
// active/draft->archived, and any state -> deleted (terminal).
const (
	WorkflowDraft    = "draft"
	WorkflowActive   = "active"
	WorkflowArchived = "archived"
	WorkflowDeleted  = "deleted"
)

var workflowTransitions = map[string]map[string]bool{
	WorkflowDraft:    {WorkflowActive: true, WorkflowArchived: true, WorkflowDeleted: true},
	WorkflowActive:   {WorkflowArchived: true, WorkflowDeleted: true},
	WorkflowArchived: {WorkflowDeleted: true},
	WorkflowDeleted:  {},
}

// CanTransition reports whether moving a workflow from `from` to `to` is one
// of the allowed edges in the lifecycle described in spec §4.5.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	edges, ok := workflowTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

// PatternStep is one abstract position in a workflow's pattern definition.
type PatternStep struct {
	Label    string
	Optional bool
	MaxGap   int
}

// Workflow (a.k.a. process) is a named, saved pattern template.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Pattern     []PatternStep
	StepIDs     []string
	ObjectIDs   []string
	State       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (w Workflow) GetID() string           { return w.ID }
func (w Workflow) GetBucketID() string     { return "" }
func (w *Workflow) SetCreatedAt(t time.Time) { w.CreatedAt = t }
func (w *Workflow) SetUpdatedAt(t time.Time) { w.UpdatedAt = t }

// Labels returns the bare activity-label sequence of the pattern, discarding
// the optional/gap annotations — the shape the miner and matcher compare
// against case label sequences.
func (w Workflow) Labels() []string {
	labels := make([]string, len(w.Pattern))
	for i, p := range w.Pattern {
		labels[i] = p.Label
	}
	return labels
}

// StepInstance is one position within an Occurrence, referencing the
// concrete Step that filled it.
type StepInstance struct {
	Position int
	StepID   string
}

// Occurrence is a concrete match of a Workflow pattern against a case.
type Occurrence struct {
	ID              string
	WorkflowID      string
	StepInstances   []StepInstance
	ObjectIDs       []string
	StartTime       time.Time
	EndTime         time.Time
	DurationSeconds float64
	CreatedAt       time.Time
}

func (o Occurrence) GetID() string           { return o.ID }
func (o Occurrence) GetBucketID() string     { return "" }
func (o *Occurrence) SetCreatedAt(t time.Time) { o.CreatedAt = t }
func (o *Occurrence) SetUpdatedAt(time.Time)   {}

// Variant is a derived, usually-unpersisted entity: an exact label sequence
// observed across multiple cases.
type Variant struct {
	Labels          []string
	CaseIDs         []string
	Support         float64
	AvgDuration     float64
}
