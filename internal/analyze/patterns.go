package analyze

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ofs-tlaxcala/scil/internal/model"
)

// Date-range audit rule identifiers. These complement the quincena engine:
// the QNA flags say which periods an entity reported activity for, the
// ingreso/egreso dates say what the formal relation claims, and the two views
// are audited separately.
const (
	PatternEgresoAntesIngreso = "EGRESO_ANTES_INGRESO"
	PatternSolapeEntreEntes   = "SOLAPE_ENTRE_ENTES"
	PatternSinEgreso          = "RELACION_ACTIVA_SIN_EGRESO"
)

// Severity levels: 5 is a critical inconsistency, 3 a verification task.
const (
	severityCritical = 5
	severityVerify   = 3
)

const patternDateFormat = "02/01/2006"

// DateFinding is one date-range anomaly for an RFC.
type DateFinding struct {
	RFC         string   `json:"rfc"`
	Tipo        string   `json:"tipo"`
	Severidad   int      `json:"severidad"`
	Claves      []string `json:"claves"`
	Rango       string   `json:"rango,omitempty"`
	Descripcion string   `json:"descripcion"`
}

// FindDateAnomalies audits one RFC's ingreso/egreso ranges. An empty slice
// means the records are coherent; ErrNoRecords means the RFC is absent.
func (a *Analyzer) FindDateAnomalies(ctx context.Context, rfc string) ([]DateFinding, error) {
	records, err := a.store.RecordsForRFC(ctx, rfc)
	if err != nil {
		return nil, eris.Wrapf(err, "analyze: records for %s", rfc)
	}
	if len(records) == 0 {
		return nil, eris.Wrapf(ErrNoRecords, "rfc %s", rfc)
	}
	return buildDateFindings(rfc, records), nil
}

// dateRange is one relation's claimed span. A nil end is an open relation,
// still active at the time of audit.
type dateRange struct {
	clave string
	start time.Time
	end   *time.Time
}

func rangesOverlap(a, b dateRange) bool {
	if a.end != nil && a.end.Before(b.start) {
		return false
	}
	if b.end != nil && b.end.Before(a.start) {
		return false
	}
	return true
}

// buildDateFindings applies the three audit rules over one RFC's records:
// egreso before ingreso per record, range overlap across entities, and open
// relations without an egreso date. Findings come back ordered by severity,
// most entities first within a severity.
func buildDateFindings(rfc string, records []model.LaborRecord) []DateFinding {
	var findings []DateFinding

	var ranges []dateRange
	var openClaves []string
	for _, rec := range records {
		fi, fe := rec.FechaIngreso, rec.FechaEgreso

		if fi != nil && fe != nil && fe.Before(*fi) {
			findings = append(findings, DateFinding{
				RFC:         rfc,
				Tipo:        PatternEgresoAntesIngreso,
				Severidad:   severityCritical,
				Claves:      []string{rec.EntityClave},
				Rango:       formatRange(*fi, fe),
				Descripcion: "Fecha de egreso anterior a la de ingreso",
			})
		}

		if fe == nil {
			openClaves = append(openClaves, rec.EntityClave)
		}

		if fi == nil && fe == nil {
			continue
		}
		start := fi
		if start == nil {
			start = fe
		}
		ranges = append(ranges, dateRange{clave: rec.EntityClave, start: *start, end: fe})
	}

	if overlap := crossEntityOverlap(rfc, ranges); overlap != nil {
		findings = append(findings, *overlap)
	}

	if len(openClaves) > 0 {
		sort.Strings(openClaves)
		findings = append(findings, DateFinding{
			RFC:         rfc,
			Tipo:        PatternSinEgreso,
			Severidad:   severityVerify,
			Claves:      openClaves,
			Descripcion: "Relaciones activas sin fecha de egreso (verificar vigencia)",
		})
	}

	sortFindings(findings)
	return findings
}

// crossEntityOverlap tests every pair of relation ranges and reports one
// finding covering the earliest through latest overlapping span. Stored
// records are unique per (rfc, entity), so every pair crosses entities.
func crossEntityOverlap(rfc string, ranges []dateRange) *DateFinding {
	claves := make(map[string]bool)
	var spanStart *time.Time
	var spanEnd *time.Time
	spanOpen := false

	for i := 0; i < len(ranges); i++ {
		for j := i + 1; j < len(ranges); j++ {
			a, b := ranges[i], ranges[j]
			if !rangesOverlap(a, b) {
				continue
			}
			claves[a.clave] = true
			claves[b.clave] = true

			interStart := a.start
			if b.start.After(interStart) {
				interStart = b.start
			}
			if spanStart == nil || interStart.Before(*spanStart) {
				spanStart = &interStart
			}

			interEnd := earlierEnd(a.end, b.end)
			if interEnd == nil {
				spanOpen = true
			} else if spanEnd == nil || interEnd.After(*spanEnd) {
				spanEnd = interEnd
			}
		}
	}

	if len(claves) == 0 {
		return nil
	}

	sorted := make([]string, 0, len(claves))
	for clave := range claves {
		sorted = append(sorted, clave)
	}
	sort.Strings(sorted)

	if spanOpen {
		spanEnd = nil
	}
	return &DateFinding{
		RFC:         rfc,
		Tipo:        PatternSolapeEntreEntes,
		Severidad:   severityCritical,
		Claves:      sorted,
		Rango:       formatRange(*spanStart, spanEnd),
		Descripcion: "Relaciones simultáneas en diferentes entes",
	}
}

func earlierEnd(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Before(*b) {
		return a
	}
	return b
}

func formatRange(start time.Time, end *time.Time) string {
	if end == nil {
		return start.Format(patternDateFormat) + "→VIGENTE"
	}
	return start.Format(patternDateFormat) + "→" + end.Format(patternDateFormat)
}

func sortFindings(findings []DateFinding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severidad != findings[j].Severidad {
			return findings[i].Severidad > findings[j].Severidad
		}
		return len(findings[i].Claves) > len(findings[j].Claves)
	})
}

// FindAllDateAnomalies audits every known RFC, ordered by severity and then
// by RFC within a severity.
func (a *Analyzer) FindAllDateAnomalies(ctx context.Context) ([]DateFinding, error) {
	rfcs, err := a.store.ListRFCs(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "analyze: list rfcs")
	}

	perRFC := make([][]DateFinding, len(rfcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxScanConcurrency)
	for i, rfc := range rfcs {
		g.Go(func() error {
			records, err := a.store.RecordsForRFC(gctx, rfc)
			if err != nil {
				return eris.Wrapf(err, "analyze: records for %s", rfc)
			}
			perRFC[i] = buildDateFindings(rfc, records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []DateFinding
	for _, findings := range perRFC {
		out = append(out, findings...)
	}
	// Appending in ListRFCs order keeps the RFC tiebreak after the stable
	// severity sort.
	sortFindings(out)

	zap.L().Info("analyze: date audit complete",
		zap.Int("rfcs", len(rfcs)),
		zap.Int("findings", len(out)),
	)
	return out, nil
}
