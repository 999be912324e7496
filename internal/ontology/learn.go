package ontology

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/processlens/engine/internal/apperr"
	"github.com/processlens/engine/internal/domain"
)

const (
	confirmAlpha        = 0.1
	rejectBeta          = 0.2
	demotionMinSamples  = 10
	demotionRateFloor   = 0.25
	correctionThreshold = 3
	learnedConfidence   = 0.5
)

// Confirm records a positive confirmation against rule ruleID, raising its
// confidence toward 1 (capped at 0.99). It touches only the rule; links and
// review tasks are left as they are.
func (e *Extractor) Confirm(ctx context.Context, ruleID string) (domain.ExtractionRule, error) {
	r, err := e.st.GetRule(ctx, ruleID)
	if err != nil {
		return domain.ExtractionRule{}, err
	}
	r.ConfirmCount++
	r.Confidence = minFloat(0.99, r.Confidence+confirmAlpha*(1-r.Confidence))
	updated, err := e.st.UpdateRule(ctx, r)
	if err != nil {
		return domain.ExtractionRule{}, err
	}
	e.Invalidate()
	return updated, nil
}

// Reject records a negative confirmation, decaying confidence and demoting
// the rule once its confirm ratio falls to or below the floor.
func (e *Extractor) Reject(ctx context.Context, ruleID string) (domain.ExtractionRule, error) {
	r, err := e.st.GetRule(ctx, ruleID)
	if err != nil {
		return domain.ExtractionRule{}, err
	}
	r.RejectCount++
	r.Confidence = maxFloat(0.0, r.Confidence-rejectBeta*r.Confidence)

	total := r.ConfirmCount + r.RejectCount
	shouldDemote := total >= demotionMinSamples &&
		float64(r.ConfirmCount)/float64(total) <= demotionRateFloor

	if shouldDemote {
		r.Enabled = false
	}
	updated, err := e.st.UpdateRule(ctx, r)
	if err != nil {
		return domain.ExtractionRule{}, err
	}
	if shouldDemote {
		_ = e.st.RecordRuleDemotion(ctx, domain.RuleDemotion{RuleID: r.ID, Reason: domain.DemotionReasonLowConfidence})
		if e.onDemotion != nil {
			e.onDemotion(r.ID, domain.DemotionReasonLowConfidence)
		}
	}
	e.Invalidate()
	return updated, nil
}

// Correction describes a user-supplied fix for a mis-extracted object.
type Correction struct {
	BucketID      string
	EventID       int64
	OriginalLink  domain.EventObjectLink
	CorrectedType string
	CorrectedName string
	SourceText    string
}

// correctionTracker counts corrections per (original rule, corrected type)
// pair in memory. This is a single-process approximation: a multi-instance
// deployment would need the counter persisted in its own table.
type correctionTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

var globalCorrectionTracker = &correctionTracker{counts: make(map[string]int)}

func (t *correctionTracker) bump(ruleID, correctedType string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := ruleID + "|" + correctedType
	t.counts[key]++
	return t.counts[key]
}

// Correct deletes the original link, creates (or reuses) the corrected
// object, links it manually, and — once three or more corrections share the
// same (original rule, corrected type) — proposes a new learned candidate
// rule generalised from the source text.
func (e *Extractor) Correct(ctx context.Context, c Correction) (domain.Object, error) {
	if err := e.st.UnlinkEventFromObject(ctx, c.BucketID, c.EventID, c.OriginalLink.ObjectID); err != nil {
		return domain.Object{}, fmt.Errorf("unlink original: %w", err)
	}

	obj, err := e.st.UpsertObject(ctx, c.CorrectedType, c.CorrectedName, nil, false)
	if err != nil {
		return domain.Object{}, fmt.Errorf("upsert corrected object: %w", err)
	}

	if err := e.st.LinkEventToObject(ctx, domain.EventObjectLink{
		BucketID:   c.BucketID,
		EventID:    c.EventID,
		ObjectID:   obj.ID,
		Provenance: domain.ProvenanceManual,
		Confidence: 1.0,
	}); err != nil {
		return domain.Object{}, fmt.Errorf("link corrected object: %w", err)
	}

	originalRuleID := strings.TrimPrefix(c.OriginalLink.Provenance, "rule:")
	if originalRuleID == c.OriginalLink.Provenance {
		// Provenance wasn't "rule:<id>" (llm or manual) — nothing to learn from.
		return obj, nil
	}

	if n := globalCorrectionTracker.bump(originalRuleID, c.CorrectedType); n >= correctionThreshold {
		if err := e.proposeLearnedRule(ctx, c.CorrectedType, c.SourceText); err != nil {
			return obj, fmt.Errorf("propose learned rule: %w", err)
		}
	}
	return obj, nil
}

func (e *Extractor) proposeLearnedRule(ctx context.Context, objectType, sourceText string) error {
	pattern := generalizePattern(sourceText)
	_, err := e.st.CreateRule(ctx, domain.ExtractionRule{
		ID:           uuid.NewString(),
		Name:         fmt.Sprintf("learned-%s", objectType),
		ObjectType:   objectType,
		SourceFields: []string{"title"},
		Pattern:      pattern,
		NameTemplate: "{match}",
		DataMapping:  map[string]string{},
		Enabled:      false,
		Priority:     0,
		Provenance:   domain.RuleProvenanceLearned,
		Confidence:   learnedConfidence,
	})
	if err != nil {
		return err
	}
	e.Invalidate()
	return nil
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ValidateRule enforces the invariants spec.md §3 states for ExtractionRule:
// the regex must compile and every template placeholder must be satisfiable
// by a named group or a data-mapping key.
func ValidateRule(r domain.ExtractionRule) error {
	re, err := compileForValidation(r.Pattern)
	if err != nil {
		return apperr.New(apperr.CodeInvalidArgument, "ValidateRule", "pattern does not compile: "+err.Error())
	}
	_ = re

	for _, m := range templatePlaceholder.FindAllStringSubmatch(r.NameTemplate, -1) {
		name := m[1]
		if name == "match" {
			continue
		}
		if _, mapped := r.DataMapping[name]; mapped {
			continue
		}
		if !strings.Contains(r.Pattern, "?<"+name+">") && !strings.Contains(r.Pattern, "?P<"+name+">") {
			return apperr.New(apperr.CodeInvalidArgument, "ValidateRule",
				fmt.Sprintf("template placeholder %q has no matching named group or data mapping", name))
		}
	}
	return nil
}
