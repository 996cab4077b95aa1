// Package report renders conflict findings as the spreadsheet auditors hand
// to the implicated entities: one row per (RFC, entity) pair in a conflict
// group, with its quincenas and current disposition.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/ofs-tlaxcala/scil/internal/model"
)

// dateFormat matches the day-first convention of the source workbooks.
const dateFormat = "02/01/2006"

// Displayer labels entity claves for presentation and orders them by the
// catalog hierarchy.
type Displayer interface {
	Display(ctx context.Context, clave string) string
	HierarchyKey(ctx context.Context, clave string) []int
}

// ResolutionReader returns the recorded dispositions for an RFC keyed by
// entity clave.
type ResolutionReader interface {
	StatusesFor(ctx context.Context, rfc string) (map[string]model.Resolution, error)
}

// Row is one line of the incompatibility report.
type Row struct {
	RFC                   string
	Nombre                string
	Puesto                string
	FechaAlta             string
	FechaBaja             string
	TotalPercepciones     string
	EnteOrigen            string
	EntesIncompatibilidad string
	Quincenas             string
	Estatus               string
	Observaciones         string
}

var headers = []string{
	"RFC", "NOMBRE", "PUESTO", "FECHA ALTA", "FECHA BAJA", "TOT PERCEPCIONES",
	"ENTE", "ENTES CON INCOMPATIBILIDAD", "QUINCENAS", "ESTATUS", "OBSERVACIONES",
}

// Exporter flattens conflict groups into report rows.
type Exporter struct {
	display     Displayer
	resolutions ResolutionReader
}

// NewExporter creates an Exporter.
func NewExporter(display Displayer, resolutions ResolutionReader) *Exporter {
	return &Exporter{display: display, resolutions: resolutions}
}

// BuildRows expands each conflict group into one row per implicated entity,
// entities ordered by the catalog hierarchy. The quincenas column shows the
// entity's own implicated set, the full-cycle label collapsing all 24; the
// counterpart column lists the other implicated entities of the group.
func (e *Exporter) BuildRows(ctx context.Context, groups []model.ConflictGroup) ([]Row, error) {
	var rows []Row
	for _, group := range groups {
		statuses, err := e.resolutions.StatusesFor(ctx, group.RFC)
		if err != nil {
			return nil, eris.Wrapf(err, "report: resolutions for %s", group.RFC)
		}

		entities := make([]model.EntityOverlap, len(group.Entities))
		copy(entities, group.Entities)
		sort.SliceStable(entities, func(i, j int) bool {
			cmp := model.CompareHierarchy(
				e.display.HierarchyKey(ctx, entities[i].EntityClave),
				e.display.HierarchyKey(ctx, entities[j].EntityClave),
			)
			if cmp != 0 {
				return cmp < 0
			}
			return entities[i].EntityClave < entities[j].EntityClave
		})

		for _, entity := range entities {
			res, ok := statuses[entity.EntityClave]
			if !ok {
				res = model.DefaultResolution(group.RFC, entity.EntityClave)
			}

			others := make([]string, 0, len(entities)-1)
			for _, other := range entities {
				if other.EntityClave != entity.EntityClave {
					others = append(others, e.display.Display(ctx, other.EntityClave))
				}
			}

			rows = append(rows, Row{
				RFC:                   group.RFC,
				Nombre:                group.Nombre,
				Puesto:                entity.Record.Puesto,
				FechaAlta:             formatDate(entity.Record.FechaIngreso),
				FechaBaja:             formatDate(entity.Record.FechaEgreso),
				TotalPercepciones:     formatMonto(entity.Record.Monto),
				EnteOrigen:            e.display.Display(ctx, entity.EntityClave),
				EntesIncompatibilidad: strings.Join(others, "; "),
				Quincenas:             entity.Implicated.String(),
				Estatus:               res.Estado.Display(),
				Observaciones:         res.Comentario,
			})
		}
	}
	return rows, nil
}

// WriteXLSX writes the report workbook. One sheet, frozen header row.
func WriteXLSX(rows []Row, w io.Writer) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("INCOMPATIBILIDADES")
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range headers {
		header.AddCell().SetString(h)
	}

	for _, row := range rows {
		r := sheet.AddRow()
		for _, cell := range []string{
			row.RFC, row.Nombre, row.Puesto, row.FechaAlta, row.FechaBaja,
			row.TotalPercepciones, row.EnteOrigen, row.EntesIncompatibilidad,
			row.Quincenas, row.Estatus, row.Observaciones,
		} {
			r.AddCell().SetString(cell)
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write workbook")
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateFormat)
}

func formatMonto(m *float64) string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *m)
}
