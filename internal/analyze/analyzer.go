// Package analyze derives cross-entity incompatibility findings from the
// persisted labor records: for each RFC, which entities paid it during the
// same quincenas of the fiscal year.
package analyze

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ofs-tlaxcala/scil/internal/model"
	"github.com/ofs-tlaxcala/scil/internal/store"
)

// maxScanConcurrency bounds parallel per-RFC lookups during a full scan.
const maxScanConcurrency = 8

// ErrNoRecords is returned by FindConflicts when the RFC has no labor records
// at all, as opposed to having records with no overlap.
var ErrNoRecords = eris.New("analyze: no labor records for rfc")

// Analyzer computes conflict groups from stored labor records. Findings are
// always derived at read time, never persisted: a re-upload changes the
// answer on the next call with no invalidation step.
type Analyzer struct {
	store store.Store
}

// New creates an Analyzer over the given store.
func New(st store.Store) *Analyzer {
	return &Analyzer{store: st}
}

// FindConflicts evaluates one RFC. It returns (nil, nil) when the RFC's
// records exist but no two entities overlap, and ErrNoRecords when the RFC is
// entirely absent; callers surfacing results to auditors need to tell those
// apart.
func (a *Analyzer) FindConflicts(ctx context.Context, rfc string) (*model.ConflictGroup, error) {
	records, err := a.store.RecordsForRFC(ctx, rfc)
	if err != nil {
		return nil, eris.Wrapf(err, "analyze: records for %s", rfc)
	}
	if len(records) == 0 {
		return nil, eris.Wrapf(ErrNoRecords, "rfc %s", rfc)
	}
	return buildGroup(rfc, records), nil
}

// buildGroup runs the pairwise overlap test over one RFC's records.
//
// Overlap is decided per entity pair: two entities conflict only if their
// period sets intersect. An entity joins the group with the union of its
// non-empty pairwise intersections, so a "bridge" entity overlapping two
// otherwise-disjoint entities is implicated in both quincena ranges while the
// outer entities keep only their own.
func buildGroup(rfc string, records []model.LaborRecord) *model.ConflictGroup {
	if len(records) < 2 {
		return nil
	}

	implicated := make([]model.PeriodSet, len(records))
	for i := 0; i < len(records); i++ {
		for j := i + 1; j < len(records); j++ {
			overlap := records[i].ActivePeriods.Intersect(records[j].ActivePeriods)
			if overlap.IsEmpty() {
				continue
			}
			implicated[i] = implicated[i].Union(overlap)
			implicated[j] = implicated[j].Union(overlap)
		}
	}

	group := &model.ConflictGroup{RFC: rfc}
	for i, rec := range records {
		if implicated[i].IsEmpty() {
			continue
		}
		if group.Nombre == "" {
			group.Nombre = rec.Nombre
		}
		group.Entities = append(group.Entities, model.EntityOverlap{
			EntityClave: rec.EntityClave,
			Record:      rec,
			Implicated:  implicated[i],
		})
		group.Implicated = group.Implicated.Union(implicated[i])
	}
	if len(group.Entities) == 0 {
		return nil
	}
	return group
}

// FindAllConflicts scans every known RFC and returns the conflict groups in
// RFC order. RFCs without conflicts are simply absent from the result.
func (a *Analyzer) FindAllConflicts(ctx context.Context) ([]model.ConflictGroup, error) {
	rfcs, err := a.store.ListRFCs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: list rfcs")
	}

	groups := make([]*model.ConflictGroup, len(rfcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxScanConcurrency)
	for i, rfc := range rfcs {
		g.Go(func() error {
			records, err := a.store.RecordsForRFC(gctx, rfc)
			if err != nil {
				return eris.Wrapf(err, "analyze: records for %s", rfc)
			}
			groups[i] = buildGroup(rfc, records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// ListRFCs is ordered, so compacting the indexed slice keeps RFC order.
	out := make([]model.ConflictGroup, 0, len(groups))
	for _, group := range groups {
		if group != nil {
			out = append(out, *group)
		}
	}

	zap.L().Info("analyze: full scan complete",
		zap.Int("rfcs", len(rfcs)),
		zap.Int("conflicts", len(out)),
	)
	return out, nil
}
