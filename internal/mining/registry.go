package mining

import (
	"context"
	"fmt"

	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/store"
)

// DiscoveryResult summarizes one workflow-discovery pass over a batch of
// cases: the patterns mined, the workflows proposed from clustering them,
// and the ones actually persisted as new drafts.
type DiscoveryResult struct {
	Patterns  []Pattern
	Proposed  []WorkflowCandidate
	Created   []domain.Workflow
}

// Registry wires the pattern miner and workflow clustering into a Store,
// turning mined patterns into saved draft workflows and matching existing
// active workflows against new cases to record occurrences.
type Registry struct {
	st store.Store
}

// New returns a Registry backed by st.
func New(st store.Store) *Registry {
	return &Registry{st: st}
}

// DiscoverWorkflows mines frequent patterns from sequences, clusters them
// into candidate workflows, and creates a draft Workflow for every candidate
// whose canonical pattern has at least two labels and isn't already
// covered by an existing non-deleted workflow with the same label sequence.
func (r *Registry) DiscoverWorkflows(ctx context.Context, sequences []CaseSequence, mineOpts Options, simThreshold float64) (DiscoveryResult, error) {
	patterns := Mine(sequences, mineOpts)
	variants := Variants(patterns, 3)
	candidates := ClusterWorkflows(variants, simThreshold)

	existing, err := r.st.ListWorkflows(ctx, true)
	if err != nil {
		return DiscoveryResult{}, fmt.Errorf("list workflows: %w", err)
	}
	knownPatterns := make(map[string]bool)
	for _, w := range existing {
		if w.State == domain.WorkflowDeleted {
			continue
		}
		knownPatterns[labelKey(w.Labels())] = true
	}

	result := DiscoveryResult{Patterns: patterns, Proposed: candidates}
	for _, cand := range candidates {
		if len(cand.Pattern) < 2 {
			continue
		}
		if knownPatterns[labelKey(cand.Pattern)] {
			continue
		}
		w := domain.Workflow{
			Name:    cand.Name,
			Pattern: toPatternSteps(cand.Pattern),
			State:   domain.WorkflowDraft,
		}
		created, err := r.st.CreateWorkflow(ctx, w)
		if err != nil {
			return result, fmt.Errorf("create workflow %s: %w", cand.Name, err)
		}
		result.Created = append(result.Created, created)
		knownPatterns[labelKey(cand.Pattern)] = true
	}
	return result, nil
}

// MatchActiveWorkflows matches every active workflow against every case
// sequence and persists the resulting occurrences.
func (r *Registry) MatchActiveWorkflows(ctx context.Context, sequences []CaseSequence, opts MatchOptions) (int, error) {
	workflows, err := r.st.ListWorkflows(ctx, false)
	if err != nil {
		return 0, fmt.Errorf("list workflows: %w", err)
	}

	count := 0
	for _, w := range workflows {
		if w.State != domain.WorkflowActive {
			continue
		}
		for _, seq := range sequences {
			for _, occ := range Match(seq, w, opts) {
				if _, err := r.st.CreateOccurrence(ctx, occ); err != nil {
					return count, fmt.Errorf("create occurrence for workflow %s: %w", w.ID, err)
				}
				count++
			}
		}
	}
	return count, nil
}

// Promote transitions a workflow to a new lifecycle state, enforcing the
// same edges domain.CanTransition allows everywhere else in the registry.
func (r *Registry) Promote(ctx context.Context, workflowID, newState string) (domain.Workflow, error) {
	w, err := r.st.GetWorkflow(ctx, workflowID)
	if err != nil {
		return domain.Workflow{}, err
	}
	if !domain.CanTransition(w.State, newState) {
		return domain.Workflow{}, fmt.Errorf("cannot transition workflow from %s to %s", w.State, newState)
	}
	w.State = newState
	return r.st.UpdateWorkflow(ctx, w)
}

func labelKey(labels []string) string {
	key := ""
	for _, l := range labels {
		key += l + "\x1f"
	}
	return key
}

func toPatternSteps(labels []string) []domain.PatternStep {
	steps := make([]domain.PatternStep, len(labels))
	for i, l := range labels {
		steps[i] = domain.PatternStep{Label: l, MaxGap: DefaultMaxGapInsideWorkflow}
	}
	return steps
}
