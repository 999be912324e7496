// Package store defines the persistence contract for every entity the
// engine owns. Event storage itself is an external collaborator (the
// "bucket" the watchers write into); Store only specifies the read
// contract it requires (ReadEvents) plus full ownership of the derived
// entities: object types, objects, extraction rules, links, steps,
// workflows, occurrences, review tasks, and analysis jobs.
package store

import (
	"context"
	"time"

	"github.com/processlens/engine/internal/domain"
)

// TimeRange bounds a read by inclusive start, exclusive end.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// ObjectFilter narrows Objects listings.
type ObjectFilter struct {
	Type  string
	Query string
	Range *TimeRange
	Limit int
}

// Store is the full persistence contract. The in-memory implementation
// serialises mutating calls behind one lock; the postgres implementation
// takes no writer lock, so its mutating calls are not serialised by the
// process, and only the methods that run inside WithTx are transactional.
// Reads are concurrent (see internal/store/postgres for the transaction
// boundary).
type Store interface {
	// Events — external bucket-storage contract; ReadEvents is the only
	// method the core requires of whatever owns the raw stream.
	ReadEvents(ctx context.Context, bucket string, r TimeRange) ([]domain.Event, error)
	AppendEvents(ctx context.Context, events []domain.Event) error

	// Object types
	CreateObjectType(ctx context.Context, ot domain.ObjectType) (domain.ObjectType, error)
	GetObjectType(ctx context.Context, name string) (domain.ObjectType, error)
	UpdateObjectType(ctx context.Context, ot domain.ObjectType) (domain.ObjectType, error)
	DeleteObjectType(ctx context.Context, name string) error
	ListObjectTypes(ctx context.Context) ([]domain.ObjectType, error)

	// Objects
	UpsertObject(ctx context.Context, objType, name string, data map[string]any, replace bool) (domain.Object, error)
	GetObject(ctx context.Context, id string) (domain.Object, error)
	CreateObject(ctx context.Context, o domain.Object) (domain.Object, error)
	UpdateObject(ctx context.Context, o domain.Object) (domain.Object, error)
	DeleteObject(ctx context.Context, id string) error
	ListObjects(ctx context.Context, f ObjectFilter) ([]domain.Object, error)

	// Extraction rules
	CreateRule(ctx context.Context, r domain.ExtractionRule) (domain.ExtractionRule, error)
	GetRule(ctx context.Context, id string) (domain.ExtractionRule, error)
	UpdateRule(ctx context.Context, r domain.ExtractionRule) (domain.ExtractionRule, error)
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context, enabledOnly bool) ([]domain.ExtractionRule, error)
	RecordRuleDemotion(ctx context.Context, d domain.RuleDemotion) error

	// Event <-> object links
	LinkEventToObject(ctx context.Context, link domain.EventObjectLink) error
	UnlinkEventFromObject(ctx context.Context, bucket string, eventID int64, objectID string) error
	ObjectsForEvent(ctx context.Context, bucket string, eventID int64) ([]domain.Object, error)
	EventsForObject(ctx context.Context, objectID string, r *TimeRange) ([]domain.Event, error)

	// Steps
	CreateStep(ctx context.Context, s domain.Step) (domain.Step, error)
	GetStep(ctx context.Context, id string) (domain.Step, error)
	UpdateStep(ctx context.Context, s domain.Step) (domain.Step, error)
	DeleteStep(ctx context.Context, id string) error
	ListSteps(ctx context.Context) ([]domain.Step, error)
	AddStepObject(ctx context.Context, stepID, objectID string) error
	RemoveStepObject(ctx context.Context, stepID, objectID string) error

	// Workflows
	CreateWorkflow(ctx context.Context, w domain.Workflow) (domain.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	UpdateWorkflow(ctx context.Context, w domain.Workflow) (domain.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
	ListWorkflows(ctx context.Context, includeArchived bool) ([]domain.Workflow, error)
	AddWorkflowObject(ctx context.Context, workflowID, objectID string) error
	RemoveWorkflowObject(ctx context.Context, workflowID, objectID string) error

	// Occurrences
	CreateOccurrence(ctx context.Context, o domain.Occurrence) (domain.Occurrence, error)
	GetOccurrence(ctx context.Context, id string) (domain.Occurrence, error)
	ListOccurrences(ctx context.Context, workflowID string) ([]domain.Occurrence, error)

	// Review tasks (training queue)
	CreateReviewTask(ctx context.Context, t domain.ReviewTask) (domain.ReviewTask, error)
	GetReviewTask(ctx context.Context, id string) (domain.ReviewTask, error)
	UpdateReviewTask(ctx context.Context, t domain.ReviewTask) (domain.ReviewTask, error)
	// ListPendingReviewTasks lists pending tasks, optionally scoped to one
	// bucket (bucketID == "" means every bucket).
	ListPendingReviewTasks(ctx context.Context, limit int, bucketID string) ([]domain.ReviewTask, error)
	// DeleteReviewTask removes a resolved task, scoped to the bucket it was
	// raised against.
	DeleteReviewTask(ctx context.Context, bucketID, id string) error
	// CountReviewTasks counts every task (any status) raised against bucketID.
	CountReviewTasks(ctx context.Context, bucketID string) (int64, error)

	// Analysis jobs
	CreateJob(ctx context.Context, j domain.AnalysisJob) (domain.AnalysisJob, error)
	GetJob(ctx context.Context, id string) (domain.AnalysisJob, error)
	UpdateJob(ctx context.Context, j domain.AnalysisJob) (domain.AnalysisJob, error)
	PruneTerminalJobs(ctx context.Context, olderThan time.Duration) (int64, error)

	// WithTx runs fn inside a single transaction; all mutating store calls
	// inside fn observe each other's writes immediately.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
