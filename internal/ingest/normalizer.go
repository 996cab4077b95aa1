package ingest

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ofs-tlaxcala/scil/internal/model"
)

// Column aliases: entities deliver the hire/leave dates under either name.
const (
	colRFC          = "RFC"
	colNombre       = "NOMBRE"
	colPuesto       = "PUESTO"
	colFechaIngreso = "FECHA_INGRESO"
	colFechaAlta    = "FECHA_ALTA"
	colFechaEgreso  = "FECHA_EGRESO"
	colFechaBaja    = "FECHA_BAJA"
	colTotPerc      = "TOT_PERC"
)

// inactiveTokens are the cell values that mark a quincena as not worked. Any
// other non-empty value counts as active; source spreadsheets are not uniform
// enough for a stricter rule.
var inactiveTokens = map[string]bool{
	"":     true,
	"0":    true,
	"0.0":  true,
	"NO":   true,
	"N/A":  true,
	"NA":   true,
	"NONE": true,
}

// IsActive applies the permissive activity rule to a quincena cell.
func IsActive(cell string) bool {
	return !inactiveTokens[strings.ToUpper(strings.TrimSpace(cell))]
}

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]`)

// CleanRFC uppercases, strips separators and validates length (10-13
// alphanumeric characters). Returns the cleaned RFC and whether it is usable
// as an identity key.
func CleanRFC(raw string) (string, bool) {
	cleaned := nonAlnum.ReplaceAllString(strings.ToUpper(strings.TrimSpace(raw)), "")
	if len(cleaned) < 10 || len(cleaned) > 13 {
		return "", false
	}
	return cleaned, true
}

// dateLayouts are tried in order; day-first forms come before ISO because
// that is how the source spreadsheets render dates.
var dateLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	"02/01/06",
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
}

// ParseDate converts a cell to a date. Unparseable or empty cells return nil;
// for FECHA_EGRESO that means "still active at time of report".
func ParseDate(cell string) *time.Time {
	s := strings.TrimSpace(cell)
	if s == "" {
		return nil
	}
	switch strings.ToUpper(s) {
	case "NAN", "NAT", "NONE", "NULL", "N/A", "NA":
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ParseMonto converts a currency cell ("$12,500.50") to a float. Returns nil
// when empty or non-numeric.
func ParseMonto(cell string) *float64 {
	s := strings.TrimSpace(cell)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Resolver maps a sheet name to a canonical entity clave.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

// Normalizer validates and transforms raw workbook sheets into canonical
// labor records, resolving sheet names through the entity catalog.
type Normalizer struct {
	resolver Resolver
}

// NewNormalizer creates a Normalizer over the given catalog.
func NewNormalizer(resolver Resolver) *Normalizer {
	return &Normalizer{resolver: resolver}
}

// NormalizeSheet processes one resolved-or-not sheet. Identity and schema
// problems are alert-scoped: an unresolvable sheet name or missing required
// columns skip the whole sheet, an invalid RFC skips only its row.
func (n *Normalizer) NormalizeSheet(ctx context.Context, sheet Sheet) ([]model.LaborRecord, []model.Alert) {
	clave, err := n.resolver.Resolve(ctx, sheet.Name)
	if err != nil {
		zap.L().Warn("ingest: sheet name not in catalog", zap.String("sheet", sheet.Name))
		return nil, []model.Alert{model.NewEntityNotFoundAlert(sheet.Name)}
	}

	if missing := missingColumns(sheet); len(missing) > 0 {
		zap.L().Warn("ingest: sheet missing required columns",
			zap.String("sheet", sheet.Name),
			zap.Strings("columns", missing),
		)
		return nil, []model.Alert{model.NewMissingColumnsAlert(sheet.Name, missing)}
	}

	periodColumns := make(map[string]int)
	for _, c := range sheet.Columns {
		if num, ok := model.ParsePeriodColumn(c); ok {
			periodColumns[c] = num
		}
	}

	var accepted []model.LaborRecord
	var alerts []model.Alert

	for i, row := range sheet.Rows {
		rfc, ok := CleanRFC(row[colRFC])
		if !ok {
			alerts = append(alerts, model.NewInvalidRFCAlert(sheet.Name, sheet.RowNumber(i)))
			continue
		}

		var periods model.PeriodSet
		for col, num := range periodColumns {
			if IsActive(row[col]) {
				periods = periods.With(num)
			}
		}

		accepted = append(accepted, model.LaborRecord{
			RFC:           rfc,
			EntityClave:   clave,
			Nombre:        strings.TrimSpace(row[colNombre]),
			Puesto:        strings.TrimSpace(row[colPuesto]),
			FechaIngreso:  ParseDate(firstNonEmpty(row[colFechaIngreso], row[colFechaAlta])),
			FechaEgreso:   ParseDate(firstNonEmpty(row[colFechaEgreso], row[colFechaBaja])),
			Monto:         ParseMonto(row[colTotPerc]),
			ActivePeriods: periods,
		})
	}

	zap.L().Info("ingest: sheet processed",
		zap.String("sheet", sheet.Name),
		zap.String("clave", clave),
		zap.Int("accepted", len(accepted)),
		zap.Int("alerts", len(alerts)),
	)
	return accepted, alerts
}

// missingColumns returns the required columns absent from the sheet header.
// The date columns accept either alias.
func missingColumns(sheet Sheet) []string {
	var missing []string
	for _, required := range []string{colRFC, colNombre, colPuesto} {
		if !sheet.HasColumn(required) {
			missing = append(missing, required)
		}
	}
	if !sheet.HasColumn(colFechaIngreso) && !sheet.HasColumn(colFechaAlta) {
		missing = append(missing, colFechaIngreso)
	}
	return missing
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
