// Package resolution tracks auditor dispositions (solventaciones) for
// conflict findings, keyed by (RFC, entity) so the same employee can be
// cleared at one entity and still pending at another.
package resolution

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ofs-tlaxcala/scil/internal/model"
	"github.com/ofs-tlaxcala/scil/internal/store"
)

// ErrInvalidStatus is returned before any write when the requested disposition
// is not one of the enumerated states.
var ErrInvalidStatus = eris.New("resolution: invalid status")

// Tracker reads and writes resolutions through the store.
type Tracker struct {
	store store.Store
}

// New creates a Tracker.
func New(st store.Store) *Tracker {
	return &Tracker{store: st}
}

// SetStatus records an auditor's disposition for one (rfc, clave) pair,
// overwriting any earlier one. UpdatedAt is stamped here, not by the caller,
// so every write moves the timestamp even when the status value repeats.
func (t *Tracker) SetStatus(ctx context.Context, rfc, clave string, status model.Status, comentario string) (*model.Resolution, error) {
	if !status.Valid() {
		return nil, eris.Wrapf(ErrInvalidStatus, "%q", status)
	}

	res := model.Resolution{
		RFC:         rfc,
		EntityClave: clave,
		Estado:      status,
		Comentario:  comentario,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := t.store.UpsertResolution(ctx, res); err != nil {
		return nil, eris.Wrapf(err, "resolution: set %s/%s", rfc, clave)
	}

	zap.L().Info("resolution: status recorded",
		zap.String("rfc", rfc),
		zap.String("clave", clave),
		zap.String("estado", string(status)),
	)
	return &res, nil
}

// StatusesFor returns the recorded resolutions for an RFC keyed by entity
// clave. Pairs no auditor has acted on are absent; use Lookup for the display
// default.
func (t *Tracker) StatusesFor(ctx context.Context, rfc string) (map[string]model.Resolution, error) {
	resolutions, err := t.store.ResolutionsForRFC(ctx, rfc)
	if err != nil {
		return nil, eris.Wrapf(err, "resolution: statuses for %s", rfc)
	}
	return resolutions, nil
}

// Lookup resolves one pair's disposition, falling back to the unpersisted
// "sin valoración" default when nothing has been recorded.
func Lookup(resolutions map[string]model.Resolution, rfc, clave string) model.Resolution {
	if res, ok := resolutions[clave]; ok {
		return res
	}
	return model.DefaultResolution(rfc, clave)
}
