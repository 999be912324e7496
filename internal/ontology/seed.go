package ontology

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/processlens/engine/internal/domain"
	"github.com/processlens/engine/internal/store"
)

// seedRule is a starter extraction rule shipped with a fresh store, covering
// the identifier shapes spec's example scenarios rely on.
type seedRule struct {
	name         string
	objectType   string
	sourceFields []string
	pattern      string
	nameTemplate string
	dataMapping  map[string]string
	priority     int
}

var defaultSeedRules = []seedRule{
	{
		name:         "purchase-order-number",
		objectType:   "purchase_order",
		sourceFields: []string{"title", "url"},
		pattern:      `PO[-\s]?(?<po_number>\d{4,8})`,
		nameTemplate: "PO-{po_number}",
		dataMapping:  map[string]string{"number": "po_number"},
		priority:     100,
	},
	{
		name:         "invoice-number",
		objectType:   "invoice",
		sourceFields: []string{"title", "url"},
		pattern:      `INV[-\s]?(?<invoice_number>\d{4,8})`,
		nameTemplate: "INV-{invoice_number}",
		dataMapping:  map[string]string{"number": "invoice_number"},
		priority:     100,
	},
	{
		name:         "order-number",
		objectType:   "order",
		sourceFields: []string{"title", "url"},
		pattern:      `(?:Order|ORD)[-\s#]?(?<order_number>\d{4,10})`,
		nameTemplate: "ORD-{order_number}",
		dataMapping:  map[string]string{"number": "order_number"},
		priority:     90,
	},
}

// Bootstrap seeds the default object types and starter extraction rules into
// st if it currently has none — called once at startup, idempotent.
func Bootstrap(ctx context.Context, st store.Store) error {
	existing, err := st.ListObjectTypes(ctx)
	if err != nil {
		return fmt.Errorf("list object types: %w", err)
	}
	if len(existing) == 0 {
		for _, ot := range domain.SeedObjectTypes() {
			if _, err := st.CreateObjectType(ctx, ot); err != nil {
				return fmt.Errorf("seed object type %s: %w", ot.Name, err)
			}
		}
	}

	existingRules, err := st.ListRules(ctx, false)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	if len(existingRules) > 0 {
		return nil
	}
	for _, sr := range defaultSeedRules {
		r := domain.ExtractionRule{
			ID:           uuid.NewString(),
			Name:         sr.name,
			ObjectType:   sr.objectType,
			SourceFields: sr.sourceFields,
			Pattern:      sr.pattern,
			NameTemplate: sr.nameTemplate,
			DataMapping:  sr.dataMapping,
			Enabled:      true,
			Priority:     sr.priority,
			Provenance:   domain.RuleProvenanceSeed,
			Confidence:   0.9,
		}
		if err := ValidateRule(r); err != nil {
			return fmt.Errorf("seed rule %s: %w", sr.name, err)
		}
		if _, err := st.CreateRule(ctx, r); err != nil {
			return fmt.Errorf("create seed rule %s: %w", sr.name, err)
		}
	}
	return nil
}
