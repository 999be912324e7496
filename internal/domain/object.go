package domain

import "time"

// ObjectType is a user-defined (or seeded) class of business object, e.g.
// "purchase_order". Deleting a type is forbidden while any Object of that
// type exists.
type ObjectType struct {
	Name        string
	DisplayName string
	Schema      map[string]any
	Icon        string
	Color       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SeedObjectTypes is the default set every fresh store is bootstrapped with.
func SeedObjectTypes() []ObjectType {
	now := time.Time{}
	seed := func(name, display string) ObjectType {
		return ObjectType{Name: name, DisplayName: display, CreatedAt: now, UpdatedAt: now}
	}
	return []ObjectType{
		seed("purchase_order", "Purchase Order"),
		seed("order", "Order"),
		seed("invoice", "Invoice"),
		seed("shipment", "Shipment"),
		seed("product", "Product"),
		seed("customer", "Customer"),
		seed("supplier", "Supplier"),
		seed("task", "Task"),
		seed("ledger_entry", "Ledger Entry"),
	}
}

// Object is a concrete business object instance. (Type, Name) is unique; the
// extractor deduplicates on that pair via Store.UpsertObject.
type Object struct {
	ID        string
	Type      string
	Name      string
	Data      map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o Object) GetID() string       { return o.ID }
func (o Object) GetBucketID() string { return "" }
func (o *Object) SetCreatedAt(t time.Time) { o.CreatedAt = t }
func (o *Object) SetUpdatedAt(t time.Time) { o.UpdatedAt = t }

// EventObjectLink ties one event to one object. Unique on the full triple;
// cascade-deletes with its object.
type EventObjectLink struct {
	BucketID   string
	EventID    int64
	ObjectID   string
	Provenance string // "rule:<rule-id>" | "llm" | "manual"
	Confidence float64
	CreatedAt  time.Time
}

const (
	ProvenanceLLM    = "llm"
	ProvenanceManual = "manual"
)

// RuleProvenance formats the provenance string recorded by rule-driven links.
func RuleProvenance(ruleID string) string {
	return "rule:" + ruleID
}
