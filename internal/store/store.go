// Package store persists the audit state: the unified entity catalog,
// per-(RFC, entity) labor records and auditor resolutions. Two backends are
// provided: Postgres (pgx) for the shared deployment and SQLite for local
// single-auditor use.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/ofs-tlaxcala/scil/internal/model"
)

// ErrUnknownEntity is returned when a labor record references an entity clave
// the catalog does not contain. Callers resolve claves before upserting, so
// hitting this means the catalog changed underneath the batch.
var ErrUnknownEntity = eris.New("store: unknown entity clave")

// ErrNotFound is returned for lookups of absent rows.
var ErrNotFound = eris.New("store: not found")

// Store is the persistence interface for the audit engine.
//
// Upserts rely on the engine's atomic INSERT-or-UPDATE primitive keyed on the
// composite identity, never a read-then-write round trip, so concurrent
// uploads of overlapping entity sets cannot lose updates.
type Store interface {
	// Entities (catalog administration writes, core reads)
	UpsertEntities(ctx context.Context, entities []model.Entity) (int64, error)
	ListEntities(ctx context.Context) ([]model.Entity, error)
	GetEntity(ctx context.Context, clave string) (*model.Entity, error)

	// Labor records. Upsert replaces every mutable field for the
	// (rfc, entity_clave) key; records are never auto-deleted.
	// UpsertLaborRecords is the bulk path; it is all-or-nothing, so callers
	// needing record-scoped FK error handling fall back to single upserts.
	UpsertLaborRecord(ctx context.Context, rec model.LaborRecord) error
	UpsertLaborRecords(ctx context.Context, recs []model.LaborRecord) (int64, error)
	RecordsForRFC(ctx context.Context, rfc string) ([]model.LaborRecord, error)
	ListRFCs(ctx context.Context) ([]string, error)

	// Resolutions, keyed (rfc, entity_clave), independent per entity.
	UpsertResolution(ctx context.Context, res model.Resolution) error
	ResolutionsForRFC(ctx context.Context, rfc string) (map[string]model.Resolution, error)

	// Import batches (audit trail; insert-only)
	CreateImportBatch(ctx context.Context, batch model.ImportBatch) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
