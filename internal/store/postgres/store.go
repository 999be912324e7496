// Package postgres is the Store implementation backing onto PostgreSQL,
// built on the shared pkg/storage/postgres.BaseStore helpers the way the
// teacher's per-domain stores embed it.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"

	pgbase "github.com/processlens/engine/pkg/storage/postgres"
)

// Store implements store.Store. Every table gets its own BaseStore so each
// area can reuse Exists/DeleteByID/CountAll without a shared "god" table
// name.
type Store struct {
	db  *sql.DB
	sdb *sqlx.DB

	eventsTable      *pgbase.BaseStore
	objectTypesTable *pgbase.BaseStore
	objectsTable     *pgbase.BaseStore
	rulesTable       *pgbase.BaseStore
	linksTable       *pgbase.BaseStore
	stepsTable       *pgbase.BaseStore
	workflowsTable   *pgbase.BaseStore
	occurrenceTable  *pgbase.BaseStore
	reviewTable      *pgbase.BaseStore
	jobsTable        *pgbase.BaseStore
}

// New wraps an already-open, already-migrated *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{
		db:               db,
		sdb:              sqlx.NewDb(db, "postgres"),
		eventsTable:      pgbase.NewBaseStore(db, "events"),
		objectTypesTable: pgbase.NewBaseStore(db, "object_types"),
		objectsTable:     pgbase.NewBaseStore(db, "objects"),
		rulesTable:       pgbase.NewBaseStore(db, "extraction_rules"),
		linksTable:       pgbase.NewBaseStore(db, "event_objects"),
		stepsTable:       pgbase.NewBaseStore(db, "steps"),
		workflowsTable:   pgbase.NewBaseStore(db, "workflows"),
		occurrenceTable:  pgbase.NewBaseStore(db, "occurrences"),
		reviewTable:      pgbase.NewBaseStore(db, "review_tasks"),
		jobsTable:        pgbase.NewBaseStore(db, "analysis_jobs"),
	}
}

// WithTx runs fn with a transaction attached to the context; any of the
// table-scoped BaseStores used within fn will pick it up automatically via
// TxFromContext, giving the whole call tree one atomic commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.eventsTable.WithTx(ctx, fn)
}

func jsonMap(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

func unmarshalMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	if m == nil {
		m = map[string]any{}
	}
	return m
}
