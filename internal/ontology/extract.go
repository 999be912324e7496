package ontology

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/processlens/engine/internal/domain"
)

var templatePlaceholder = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// ExtractEvent scans ev against every enabled rule (priority DESC, id ASC)
// and persists the resulting object links. It returns the links created,
// including duplicates across rules matching the same (type, name) pair —
// each still increments its own rule's counters per spec.
func (e *Extractor) ExtractEvent(ctx context.Context, ev domain.Event) ([]domain.EventObjectLink, error) {
	snap, err := e.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	var links []domain.EventObjectLink
	for _, cr := range snap.rules {
		text := scanText(ev.Data, cr.rule.SourceFields)
		if text == "" {
			continue
		}
		matches, timedOut := findAllMatches(cr.re, text)
		if timedOut {
			e.demote(ctx, cr.rule, domain.DemotionReasonTimeout)
			continue
		}
		if len(matches) == 0 {
			continue
		}

		for _, m := range matches {
			name, ok := renderTemplate(cr.rule.NameTemplate, m)
			if !ok {
				continue
			}
			data := buildDataMapping(cr.rule.DataMapping, m)

			obj, err := e.st.UpsertObject(ctx, cr.rule.ObjectType, name, data, false)
			if err != nil {
				return nil, fmt.Errorf("upsert object from rule %s: %w", cr.rule.ID, err)
			}

			link := domain.EventObjectLink{
				BucketID:   ev.BucketID,
				EventID:    ev.ID,
				ObjectID:   obj.ID,
				Provenance: domain.RuleProvenance(cr.rule.ID),
				Confidence: cr.rule.Confidence,
			}
			if err := e.st.LinkEventToObject(ctx, link); err != nil {
				return nil, fmt.Errorf("link event to object: %w", err)
			}
			links = append(links, link)

			if err := e.bumpMatchCount(ctx, cr.rule.ID); err != nil {
				return nil, err
			}
		}
	}
	return links, nil
}

func (e *Extractor) bumpMatchCount(ctx context.Context, ruleID string) error {
	r, err := e.st.GetRule(ctx, ruleID)
	if err != nil {
		return err
	}
	r.MatchCount++
	now := time.Now().UTC()
	r.LastMatchedAt = &now
	_, err = e.st.UpdateRule(ctx, r)
	return err
}

// findAllMatches collects every non-overlapping match of re in text. A
// regexp2 timeout or internal panic during matching is reported via the
// timedOut return and the rule should be quarantined by the caller.
func findAllMatches(re *regexp2.Regexp, text string) (matches []map[string]string, timedOut bool) {
	defer func() {
		if recover() != nil {
			timedOut = true
		}
	}()

	m, err := re.FindStringMatch(text)
	for m != nil {
		if err != nil {
			return matches, true
		}
		groups := make(map[string]string)
		for _, g := range m.Groups() {
			if g.Name != "" && g.Name != "0" {
				groups[g.Name] = g.String()
			}
		}
		matches = append(matches, groups)
		m, err = re.FindNextMatch(m)
	}
	if err != nil {
		return matches, true
	}
	return matches, false
}

// renderTemplate substitutes {group_name} placeholders in tmpl with the
// match's named groups. A referenced group absent from the match fails the
// whole substitution (ok=false) rather than emitting a malformed name.
func renderTemplate(tmpl string, groups map[string]string) (string, bool) {
	missing := false
	out := templatePlaceholder.ReplaceAllStringFunc(tmpl, func(ph string) string {
		name := ph[1 : len(ph)-1]
		v, ok := groups[name]
		if !ok {
			missing = true
			return ph
		}
		return v
	})
	if missing {
		return "", false
	}
	return out, true
}

// buildDataMapping renders each mapped data key from the matched groups;
// groups that failed to match contribute no key.
func buildDataMapping(mapping map[string]string, groups map[string]string) map[string]any {
	data := make(map[string]any, len(mapping))
	for dataKey, groupName := range mapping {
		if v, ok := groups[groupName]; ok && strings.TrimSpace(v) != "" {
			data[dataKey] = v
		}
	}
	return data
}
