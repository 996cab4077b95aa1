package ingest

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ofs-tlaxcala/scil/internal/model"
	"github.com/ofs-tlaxcala/scil/internal/store"
)

// maxSheetConcurrency bounds parallel sheet normalization within one batch.
const maxSheetConcurrency = 4

// BatchResult summarizes one ingest run. Accepted counts upserted records;
// Alerts lists every skipped sheet, row or record — nothing is dropped
// without an entry here.
type BatchResult struct {
	BatchID  string        `json:"batch_id"`
	Sheets   int           `json:"sheets"`
	Accepted int           `json:"accepted"`
	Alerts   []model.Alert `json:"alerts"`
}

// Runner ingests workbooks: normalize sheets, upsert records, record the
// batch for the audit trail.
type Runner struct {
	store      store.Store
	normalizer *Normalizer
}

// NewRunner creates a Runner.
func NewRunner(st store.Store, normalizer *Normalizer) *Runner {
	return &Runner{store: st, normalizer: normalizer}
}

// RunFiles ingests one or more workbook files as a single batch.
func (r *Runner) RunFiles(ctx context.Context, paths []string) (*BatchResult, error) {
	var sheets []Sheet
	var names []string
	for _, path := range paths {
		fileSheets, err := ReadWorkbook(path)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, fileSheets...)
		names = append(names, filepath.Base(path))
	}
	return r.Run(ctx, strings.Join(names, ","), sheets)
}

// Run normalizes and upserts a batch of sheets.
//
// Sheets are normalized in parallel (rows within a sheet are independent of
// other sheets) but results are re-assembled in input order, and upserts are
// applied sequentially in that order: when the same (rfc, entity) key appears
// in two sheets of one batch, the later sheet wins.
func (r *Runner) Run(ctx context.Context, source string, sheets []Sheet) (*BatchResult, error) {
	type sheetOutput struct {
		records []model.LaborRecord
		alerts  []model.Alert
	}
	outputs := make([]sheetOutput, len(sheets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxSheetConcurrency)
	for i, sheet := range sheets {
		g.Go(func() error {
			records, alerts := r.normalizer.NormalizeSheet(gctx, sheet)
			outputs[i] = sheetOutput{records: records, alerts: alerts}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "ingest: normalize batch")
	}

	result := &BatchResult{
		BatchID: uuid.New().String(),
		Sheets:  len(sheets),
	}
	for _, out := range outputs {
		result.Alerts = append(result.Alerts, out.alerts...)
		accepted, alerts, err := r.upsertSheet(ctx, out.records)
		if err != nil {
			return nil, err
		}
		result.Accepted += accepted
		result.Alerts = append(result.Alerts, alerts...)
	}

	batch := model.ImportBatch{
		ID:        result.BatchID,
		Source:    source,
		Sheets:    result.Sheets,
		Accepted:  result.Accepted,
		Alerts:    result.Alerts,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.CreateImportBatch(ctx, batch); err != nil {
		return nil, eris.Wrap(err, "ingest: record batch")
	}

	zap.L().Info("ingest: batch complete",
		zap.String("batch_id", result.BatchID),
		zap.String("source", source),
		zap.Int("sheets", result.Sheets),
		zap.Int("accepted", result.Accepted),
		zap.Int("alerts", len(result.Alerts)),
	)
	return result, nil
}

// upsertSheet persists one sheet's records. It takes the bulk path first;
// when the bulk statement trips the entity FK it retries record by record so
// only the offending records become alerts. Duplicate keys within the sheet
// collapse to the last occurrence before the bulk write, matching the
// last-write-wins rule across sheets.
func (r *Runner) upsertSheet(ctx context.Context, records []model.LaborRecord) (int, []model.Alert, error) {
	records = dedupeByKey(records)
	if len(records) == 0 {
		return 0, nil, nil
	}

	n, err := r.store.UpsertLaborRecords(ctx, records)
	if err == nil {
		return int(n), nil, nil
	}
	if !eris.Is(err, store.ErrUnknownEntity) {
		return 0, nil, eris.Wrap(err, "ingest: bulk upsert sheet")
	}

	// Catalog changed underneath the batch; keep the good records and alert
	// on the rest.
	var accepted int
	var alerts []model.Alert
	for _, rec := range records {
		if err := r.store.UpsertLaborRecord(ctx, rec); err != nil {
			if eris.Is(err, store.ErrUnknownEntity) {
				alerts = append(alerts, model.NewUnknownEntityAlert(rec.EntityClave))
				continue
			}
			return 0, nil, eris.Wrapf(err, "ingest: upsert %s/%s", rec.RFC, rec.EntityClave)
		}
		accepted++
	}
	return accepted, alerts, nil
}

// dedupeByKey keeps the last record for each (rfc, entity_clave) key,
// preserving first-occurrence order.
func dedupeByKey(records []model.LaborRecord) []model.LaborRecord {
	index := make(map[string]int, len(records))
	var out []model.LaborRecord
	for _, rec := range records {
		key := rec.RFC + "\x00" + rec.EntityClave
		if i, ok := index[key]; ok {
			out[i] = rec
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out
}
