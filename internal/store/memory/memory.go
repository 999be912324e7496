// Package memory is an in-memory Store implementation safe for concurrent
// use, primarily intended for tests and local development — mirroring the
// teacher's pkg/storage/memory store built the same way against the same
// interface its Postgres sibling implements.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/processlens/engine/internal/apperr"
	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	events      map[string]map[int64]domain.Event // bucketID -> eventID -> event
	objectTypes map[string]domain.ObjectType
	objects     map[string]domain.Object
	objectIndex map[string]string // type|name -> object id
	rules       map[string]domain.ExtractionRule
	demotions   []domain.RuleDemotion
	links       map[string]domain.EventObjectLink // bucket|event|object -> link
	steps       map[string]domain.Step
	workflows   map[string]domain.Workflow
	occurrences map[string]domain.Occurrence
	reviews     map[string]domain.ReviewTask
	jobs        map[string]domain.AnalysisJob
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		events:      make(map[string]map[int64]domain.Event),
		objectTypes: make(map[string]domain.ObjectType),
		objects:     make(map[string]domain.Object),
		objectIndex: make(map[string]string),
		rules:       make(map[string]domain.ExtractionRule),
		links:       make(map[string]domain.EventObjectLink),
		steps:       make(map[string]domain.Step),
		workflows:   make(map[string]domain.Workflow),
		occurrences: make(map[string]domain.Occurrence),
		reviews:     make(map[string]domain.ReviewTask),
		jobs:        make(map[string]domain.AnalysisJob),
	}
}

func cloneAnyMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func objectKey(objType, name string) string {
	return objType + "|" + name
}

func linkKey(bucket string, eventID int64, objectID string) string {
	return bucket + "|" + itoa(eventID) + "|" + objectID
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Events ----------------------------------------------------------------

func (s *Store) ReadEvents(_ context.Context, bucket string, r store.TimeRange) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucketEvents := s.events[bucket]
	out := make([]domain.Event, 0, len(bucketEvents))
	for _, e := range bucketEvents {
		if !e.Timestamp.Before(r.Start) && e.Timestamp.Before(r.End) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AppendEvents(_ context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		bucketEvents := s.events[e.BucketID]
		if bucketEvents == nil {
			bucketEvents = make(map[int64]domain.Event)
			s.events[e.BucketID] = bucketEvents
		}
		if _, exists := bucketEvents[e.ID]; exists {
			continue
		}
		e.Data = cloneAnyMap(e.Data)
		bucketEvents[e.ID] = e
	}
	return nil
}

// Object types ------------------------------------------------------------

func (s *Store) CreateObjectType(_ context.Context, ot domain.ObjectType) (domain.ObjectType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objectTypes[ot.Name]; exists {
		return domain.ObjectType{}, apperr.New(apperr.CodeConflict, "CreateObjectType", "object type already exists")
	}
	now := time.Now().UTC()
	ot.CreatedAt, ot.UpdatedAt = now, now
	ot.Schema = cloneAnyMap(ot.Schema)
	s.objectTypes[ot.Name] = ot
	return ot, nil
}

func (s *Store) GetObjectType(_ context.Context, name string) (domain.ObjectType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ot, ok := s.objectTypes[name]
	if !ok {
		return domain.ObjectType{}, apperr.New(apperr.CodeNotFound, "GetObjectType", name)
	}
	return ot, nil
}

func (s *Store) UpdateObjectType(_ context.Context, ot domain.ObjectType) (domain.ObjectType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.objectTypes[ot.Name]
	if !ok {
		return domain.ObjectType{}, apperr.New(apperr.CodeNotFound, "UpdateObjectType", ot.Name)
	}
	ot.CreatedAt = existing.CreatedAt
	ot.UpdatedAt = time.Now().UTC()
	ot.Schema = cloneAnyMap(ot.Schema)
	s.objectTypes[ot.Name] = ot
	return ot, nil
}

func (s *Store) DeleteObjectType(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objectTypes[name]; !ok {
		return apperr.New(apperr.CodeNotFound, "DeleteObjectType", name)
	}
	for _, o := range s.objects {
		if o.Type == name {
			return apperr.New(apperr.CodePreconditionFailed, "DeleteObjectType", "objects of this type still exist")
		}
	}
	delete(s.objectTypes, name)
	return nil
}

func (s *Store) ListObjectTypes(_ context.Context) ([]domain.ObjectType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ObjectType, 0, len(s.objectTypes))
	for _, ot := range s.objectTypes {
		out = append(out, ot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Objects -------------------------------------------------------------------

func (s *Store) UpsertObject(_ context.Context, objType, name string, data map[string]any, replace bool) (domain.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := objectKey(objType, name)
	now := time.Now().UTC()
	if id, exists := s.objectIndex[key]; exists {
		o := s.objects[id]
		if replace {
			o.Data = cloneAnyMap(data)
		} else {
			merged := cloneAnyMap(o.Data)
			for k, v := range data {
				merged[k] = v
			}
			o.Data = merged
		}
		o.UpdatedAt = now
		s.objects[id] = o
		return o, nil
	}

	o := domain.Object{
		ID:        uuid.NewString(),
		Type:      objType,
		Name:      name,
		Data:      cloneAnyMap(data),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.objects[o.ID] = o
	s.objectIndex[key] = o.ID
	return o, nil
}

func (s *Store) GetObject(_ context.Context, id string) (domain.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.objects[id]
	if !ok {
		return domain.Object{}, apperr.New(apperr.CodeNotFound, "GetObject", id)
	}
	return o, nil
}

func (s *Store) CreateObject(_ context.Context, o domain.Object) (domain.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := objectKey(o.Type, o.Name)
	if _, exists := s.objectIndex[key]; exists {
		return domain.Object{}, apperr.New(apperr.CodeConflict, "CreateObject", "object already exists")
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	o.Data = cloneAnyMap(o.Data)
	s.objects[o.ID] = o
	s.objectIndex[key] = o.ID
	return o, nil
}

func (s *Store) UpdateObject(_ context.Context, o domain.Object) (domain.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.objects[o.ID]
	if !ok {
		return domain.Object{}, apperr.New(apperr.CodeNotFound, "UpdateObject", o.ID)
	}
	o.Type = existing.Type
	o.Name = existing.Name
	o.CreatedAt = existing.CreatedAt
	o.UpdatedAt = time.Now().UTC()
	o.Data = cloneAnyMap(o.Data)
	s.objects[o.ID] = o
	return o, nil
}

func (s *Store) DeleteObject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[id]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "DeleteObject", id)
	}
	delete(s.objects, id)
	delete(s.objectIndex, objectKey(o.Type, o.Name))
	for k, l := range s.links {
		if l.ObjectID == id {
			delete(s.links, k)
		}
	}
	return nil
}

func (s *Store) ListObjects(_ context.Context, f store.ObjectFilter) ([]domain.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Object, 0)
	for _, o := range s.objects {
		if f.Type != "" && o.Type != f.Type {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(o.Name), strings.ToLower(f.Query)) {
			continue
		}
		if f.Range != nil && (o.UpdatedAt.Before(f.Range.Start) || !o.UpdatedAt.Before(f.Range.End)) {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Extraction rules ------------------------------------------------------------

func (s *Store) CreateRule(_ context.Context, r domain.ExtractionRule) (domain.ExtractionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	r.DataMapping = cloneStringMap(r.DataMapping)
	r.SourceFields = append([]string(nil), r.SourceFields...)
	s.rules[r.ID] = r
	return r, nil
}

func cloneStringMap(src map[string]string) map[string]string {
	if src == nil {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (s *Store) GetRule(_ context.Context, id string) (domain.ExtractionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return domain.ExtractionRule{}, apperr.New(apperr.CodeNotFound, "GetRule", id)
	}
	return r, nil
}

func (s *Store) UpdateRule(_ context.Context, r domain.ExtractionRule) (domain.ExtractionRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.rules[r.ID]
	if !ok {
		return domain.ExtractionRule{}, apperr.New(apperr.CodeNotFound, "UpdateRule", r.ID)
	}
	r.CreatedAt = existing.CreatedAt
	r.UpdatedAt = time.Now().UTC()
	r.DataMapping = cloneStringMap(r.DataMapping)
	r.SourceFields = append([]string(nil), r.SourceFields...)
	s.rules[r.ID] = r
	return r, nil
}

func (s *Store) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return apperr.New(apperr.CodeNotFound, "DeleteRule", id)
	}
	delete(s.rules, id)
	return nil
}

func (s *Store) ListRules(_ context.Context, enabledOnly bool) ([]domain.ExtractionRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ExtractionRule, 0, len(s.rules))
	for _, r := range s.rules {
		if enabledOnly && !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) RecordRuleDemotion(_ context.Context, d domain.RuleDemotion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = time.Now().UTC()
	s.demotions = append(s.demotions, d)
	return nil
}

// Event <-> object links ------------------------------------------------------

func (s *Store) LinkEventToObject(_ context.Context, link domain.EventObjectLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link.CreatedAt = time.Now().UTC()
	s.links[linkKey(link.BucketID, link.EventID, link.ObjectID)] = link
	return nil
}

func (s *Store) UnlinkEventFromObject(_ context.Context, bucket string, eventID int64, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.links, linkKey(bucket, eventID, objectID))
	return nil
}

func (s *Store) ObjectsForEvent(_ context.Context, bucket string, eventID int64) ([]domain.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Object, 0)
	for _, l := range s.links {
		if l.BucketID == bucket && l.EventID == eventID {
			if o, ok := s.objects[l.ObjectID]; ok {
				out = append(out, o)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) EventsForObject(_ context.Context, objectID string, r *store.TimeRange) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Event, 0)
	for _, l := range s.links {
		if l.ObjectID != objectID {
			continue
		}
		bucketEvents, ok := s.events[l.BucketID]
		if !ok {
			continue
		}
		e, ok := bucketEvents[l.EventID]
		if !ok {
			continue
		}
		if r != nil && (e.Timestamp.Before(r.Start) || !e.Timestamp.Before(r.End)) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Steps -----------------------------------------------------------------------

func (s *Store) CreateStep(_ context.Context, st domain.Step) (domain.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now
	st.Data = cloneAnyMap(st.Data)
	st.EventKeys = append([]domain.EventKey(nil), st.EventKeys...)
	st.ObjectIDs = append([]string(nil), st.ObjectIDs...)
	s.steps[st.ID] = st
	return st, nil
}

func (s *Store) GetStep(_ context.Context, id string) (domain.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.steps[id]
	if !ok {
		return domain.Step{}, apperr.New(apperr.CodeNotFound, "GetStep", id)
	}
	return st, nil
}

func (s *Store) UpdateStep(_ context.Context, st domain.Step) (domain.Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.steps[st.ID]
	if !ok {
		return domain.Step{}, apperr.New(apperr.CodeNotFound, "UpdateStep", st.ID)
	}
	st.CreatedAt = existing.CreatedAt
	st.UpdatedAt = time.Now().UTC()
	st.Data = cloneAnyMap(st.Data)
	if st.EventKeys == nil {
		st.EventKeys = existing.EventKeys
	}
	if st.ObjectIDs == nil {
		st.ObjectIDs = existing.ObjectIDs
	}
	s.steps[st.ID] = st
	return st, nil
}

func (s *Store) DeleteStep(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.steps[id]; !ok {
		return apperr.New(apperr.CodeNotFound, "DeleteStep", id)
	}
	delete(s.steps, id)
	return nil
}

func (s *Store) ListSteps(_ context.Context) ([]domain.Step, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Step, 0, len(s.steps))
	for _, st := range s.steps {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (s *Store) AddStepObject(_ context.Context, stepID, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.steps[stepID]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "AddStepObject", stepID)
	}
	for _, id := range st.ObjectIDs {
		if id == objectID {
			return nil
		}
	}
	st.ObjectIDs = append(st.ObjectIDs, objectID)
	s.steps[stepID] = st
	return nil
}

func (s *Store) RemoveStepObject(_ context.Context, stepID, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.steps[stepID]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "RemoveStepObject", stepID)
	}
	filtered := st.ObjectIDs[:0]
	for _, id := range st.ObjectIDs {
		if id != objectID {
			filtered = append(filtered, id)
		}
	}
	st.ObjectIDs = filtered
	s.steps[stepID] = st
	return nil
}

// Workflows ---------------------------------------------------------------

func (s *Store) CreateWorkflow(_ context.Context, w domain.Workflow) (domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(w.Pattern) < 2 {
		return domain.Workflow{}, apperr.New(apperr.CodeInvalidArgument, "CreateWorkflow", "pattern length must be >= 2")
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.State == "" {
		w.State = domain.WorkflowDraft
	}
	now := time.Now().UTC()
	w.CreatedAt, w.UpdatedAt = now, now
	w.Pattern = append([]domain.PatternStep(nil), w.Pattern...)
	w.StepIDs = append([]string(nil), w.StepIDs...)
	w.ObjectIDs = append([]string(nil), w.ObjectIDs...)
	s.workflows[w.ID] = w
	return w, nil
}

func (s *Store) GetWorkflow(_ context.Context, id string) (domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workflows[id]
	if !ok {
		return domain.Workflow{}, apperr.New(apperr.CodeNotFound, "GetWorkflow", id)
	}
	return w, nil
}

func (s *Store) UpdateWorkflow(_ context.Context, w domain.Workflow) (domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.workflows[w.ID]
	if !ok {
		return domain.Workflow{}, apperr.New(apperr.CodeNotFound, "UpdateWorkflow", w.ID)
	}
	if w.State != existing.State && !domain.CanTransition(existing.State, w.State) {
		return domain.Workflow{}, apperr.New(apperr.CodePreconditionFailed, "UpdateWorkflow", "illegal transition")
	}
	w.CreatedAt = existing.CreatedAt
	w.UpdatedAt = time.Now().UTC()
	s.workflows[w.ID] = w
	return w, nil
}

func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return apperr.New(apperr.CodeNotFound, "DeleteWorkflow", id)
	}
	delete(s.workflows, id)
	for k, o := range s.occurrences {
		if o.WorkflowID == id {
			delete(s.occurrences, k)
		}
	}
	return nil
}

func (s *Store) ListWorkflows(_ context.Context, includeArchived bool) ([]domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		if w.State == domain.WorkflowDeleted {
			continue
		}
		if !includeArchived && w.State == domain.WorkflowArchived {
			continue
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AddWorkflowObject(_ context.Context, workflowID, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workflows[workflowID]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "AddWorkflowObject", workflowID)
	}
	for _, id := range w.ObjectIDs {
		if id == objectID {
			return nil
		}
	}
	w.ObjectIDs = append(w.ObjectIDs, objectID)
	s.workflows[workflowID] = w
	return nil
}

func (s *Store) RemoveWorkflowObject(_ context.Context, workflowID, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workflows[workflowID]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "RemoveWorkflowObject", workflowID)
	}
	filtered := w.ObjectIDs[:0]
	for _, id := range w.ObjectIDs {
		if id != objectID {
			filtered = append(filtered, id)
		}
	}
	w.ObjectIDs = filtered
	s.workflows[workflowID] = w
	return nil
}

// Occurrences ---------------------------------------------------------------

func (s *Store) CreateOccurrence(_ context.Context, o domain.Occurrence) (domain.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.CreatedAt = time.Now().UTC()
	o.StepInstances = append([]domain.StepInstance(nil), o.StepInstances...)
	o.ObjectIDs = append([]string(nil), o.ObjectIDs...)
	s.occurrences[o.ID] = o
	return o, nil
}

func (s *Store) GetOccurrence(_ context.Context, id string) (domain.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.occurrences[id]
	if !ok {
		return domain.Occurrence{}, apperr.New(apperr.CodeNotFound, "GetOccurrence", id)
	}
	return o, nil
}

func (s *Store) ListOccurrences(_ context.Context, workflowID string) ([]domain.Occurrence, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Occurrence, 0)
	for _, o := range s.occurrences {
		if o.WorkflowID == workflowID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

// Review tasks ----------------------------------------------------------------

func (s *Store) CreateReviewTask(_ context.Context, t domain.ReviewTask) (domain.ReviewTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.ReviewStatusPending
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	s.reviews[t.ID] = t
	return t, nil
}

func (s *Store) GetReviewTask(_ context.Context, id string) (domain.ReviewTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.reviews[id]
	if !ok {
		return domain.ReviewTask{}, apperr.New(apperr.CodeNotFound, "GetReviewTask", id)
	}
	return t, nil
}

func (s *Store) UpdateReviewTask(_ context.Context, t domain.ReviewTask) (domain.ReviewTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.reviews[t.ID]
	if !ok {
		return domain.ReviewTask{}, apperr.New(apperr.CodeNotFound, "UpdateReviewTask", t.ID)
	}
	t.BucketID = existing.BucketID
	t.EventID = existing.EventID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.reviews[t.ID] = t
	return t, nil
}

func (s *Store) ListPendingReviewTasks(_ context.Context, limit int, bucketID string) ([]domain.ReviewTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	out := make([]domain.ReviewTask, 0)
	for _, t := range s.reviews {
		if t.Status != domain.ReviewStatusPending {
			continue
		}
		if bucketID != "" && t.BucketID != bucketID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// DeleteReviewTask removes a resolved task, scoped to the bucket it was
// raised against so a stale or forged id can't reach across buckets.
func (s *Store) DeleteReviewTask(_ context.Context, bucketID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.reviews[id]
	if !ok || (bucketID != "" && t.BucketID != bucketID) {
		return apperr.New(apperr.CodeNotFound, "DeleteReviewTask", id)
	}
	delete(s.reviews, id)
	return nil
}

// CountReviewTasks counts every task (any status) raised against bucketID.
func (s *Store) CountReviewTasks(_ context.Context, bucketID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, t := range s.reviews {
		if t.BucketID == bucketID {
			n++
		}
	}
	return n, nil
}

// Analysis jobs -----------------------------------------------------------

func (s *Store) CreateJob(_ context.Context, j domain.AnalysisJob) (domain.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = domain.JobQueued
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now
	j.ResultRef = cloneAnyMap(j.ResultRef)
	s.jobs[j.ID] = j
	return j, nil
}

func (s *Store) GetJob(_ context.Context, id string) (domain.AnalysisJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return domain.AnalysisJob{}, apperr.New(apperr.CodeNotFound, "GetJob", id)
	}
	return j, nil
}

func (s *Store) UpdateJob(_ context.Context, j domain.AnalysisJob) (domain.AnalysisJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.jobs[j.ID]
	if !ok {
		return domain.AnalysisJob{}, apperr.New(apperr.CodeNotFound, "UpdateJob", j.ID)
	}
	j.Kind = existing.Kind
	j.CreatedAt = existing.CreatedAt
	j.UpdatedAt = time.Now().UTC()
	j.ResultRef = cloneAnyMap(j.ResultRef)
	s.jobs[j.ID] = j
	return j, nil
}

func (s *Store) PruneTerminalJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var pruned int64
	for id, j := range s.jobs {
		if j.IsTerminal() && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			pruned++
		}
	}
	return pruned, nil
}

// WithTx runs fn directly against the store's own mutex-guarded methods: the
// in-memory store has no separate transaction log, so the "transaction" is
// simply the caller's sequence of calls with no partial-rollback semantics.
// Tests that need rollback behavior should exercise the postgres store.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
