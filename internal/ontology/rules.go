// Package ontology applies the prioritised extraction-rule set to events and
// learns from user feedback, adapting the teacher's versioned-pointer cache
// (infrastructure/cache/cache.go) to a lazily-reloaded rule snapshot.
package ontology

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/store"
)

// DefaultMatchTimeout bounds a single rule's regex evaluation; a rule that
// times out is treated the same as a catastrophic-backtracking abort.
const DefaultMatchTimeout = 250 * time.Millisecond

type compiledRule struct {
	rule domain.ExtractionRule
	re   *regexp2.Regexp
}

type ruleSnapshot struct {
	version int64
	rules   []compiledRule
}

// Extractor scans events against the enabled rule set and maintains the
// ontology from user feedback. It is safe for concurrent use.
type Extractor struct {
	st           store.Store
	matchTimeout time.Duration

	version  atomic.Int64
	snapshot atomic.Pointer[ruleSnapshot]
	loadMu   sync.Mutex

	onDemotion func(ruleID, reason string)
}

// New builds an Extractor. onDemotion, if non-nil, is invoked whenever a rule
// is disabled by the confidence floor or a runtime timeout — the orchestrator
// wires this to metrics.RecordRuleDemotion.
func New(st store.Store, onDemotion func(ruleID, reason string)) *Extractor {
	e := &Extractor{st: st, matchTimeout: DefaultMatchTimeout, onDemotion: onDemotion}
	e.version.Store(1)
	return e
}

// Invalidate bumps the rule-cache version; the next extraction call reloads
// the enabled rule set from the store. Call this after any rule mutation.
func (e *Extractor) Invalidate() {
	e.version.Add(1)
}

func (e *Extractor) currentSnapshot(ctx context.Context) (*ruleSnapshot, error) {
	wantVersion := e.version.Load()
	if snap := e.snapshot.Load(); snap != nil && snap.version == wantVersion {
		return snap, nil
	}

	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	wantVersion = e.version.Load()
	if snap := e.snapshot.Load(); snap != nil && snap.version == wantVersion {
		return snap, nil
	}

	rules, err := e.st.ListRules(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp2.Compile(r.Pattern, regexp2.None)
		if err != nil {
			// An uncompilable rule is quarantined the same as a runtime
			// timeout rather than failing the whole snapshot load.
			e.demote(ctx, r, domain.DemotionReasonTimeout)
			continue
		}
		re.MatchTimeout = e.matchTimeout
		compiled = append(compiled, compiledRule{rule: r, re: re})
	}

	snap := &ruleSnapshot{version: wantVersion, rules: compiled}
	e.snapshot.Store(snap)
	return snap, nil
}

func (e *Extractor) demote(ctx context.Context, r domain.ExtractionRule, reason string) {
	r.Enabled = false
	if _, err := e.st.UpdateRule(ctx, r); err != nil {
		return
	}
	_ = e.st.RecordRuleDemotion(ctx, domain.RuleDemotion{RuleID: r.ID, Reason: reason})
	if e.onDemotion != nil {
		e.onDemotion(r.ID, reason)
	}
	e.Invalidate()
}
