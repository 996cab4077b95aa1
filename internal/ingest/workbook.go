// Package ingest turns uploaded payroll workbooks into canonical labor
// records: one sheet per entity, one row per employee, QNA1..QNA24 activity
// columns.
package ingest

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/ofs-tlaxcala/scil/internal/catalog"
)

// Sheet is one worksheet with its header normalized and each data row keyed
// by normalized column name. Column matching is case-, whitespace- and
// diacritics-tolerant; spaces become underscores so "FECHA ALTA" and
// "FECHA_ALTA" are the same column.
type Sheet struct {
	Name    string
	Columns []string
	Rows    []map[string]string
	// SourceRows holds the 1-based spreadsheet row of each entry in Rows
	// (the header is row 1). Blank rows are dropped during reading, so this
	// is what alert messages must cite for the auditor to find the row.
	SourceRows []int
}

// RowNumber returns the spreadsheet row for the i-th data row. Sheets built
// without SourceRows fall back to the data-row position.
func (s Sheet) RowNumber(i int) int {
	if i < len(s.SourceRows) {
		return s.SourceRows[i]
	}
	return i + 1
}

// HasColumn reports whether the sheet's header contains the normalized name.
func (s Sheet) HasColumn(name string) bool {
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// NormalizeColumn canonicalizes a header cell for matching.
func NormalizeColumn(name string) string {
	return strings.ReplaceAll(catalog.NormalizeKey(name), " ", "_")
}

// ReadWorkbook reads every sheet of an XLSX file.
func ReadWorkbook(path string) ([]Sheet, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open workbook %s", path)
	}
	return readSheets(f), nil
}

// ReadWorkbookBytes reads every sheet of an in-memory XLSX file (uploads).
func ReadWorkbookBytes(data []byte) ([]Sheet, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open workbook bytes")
	}
	return readSheets(f), nil
}

func readSheets(f *xlsx.File) []Sheet {
	sheets := make([]Sheet, 0, len(f.Sheets))
	for _, src := range f.Sheets {
		sheets = append(sheets, readSheet(src))
	}
	return sheets
}

func readSheet(src *xlsx.Sheet) Sheet {
	sheet := Sheet{Name: src.Name}
	if len(src.Rows) == 0 {
		return sheet
	}

	for _, cell := range src.Rows[0].Cells {
		sheet.Columns = append(sheet.Columns, NormalizeColumn(cell.String()))
	}

	for i, row := range src.Rows[1:] {
		record := make(map[string]string, len(sheet.Columns))
		empty := true
		for j, cell := range row.Cells {
			if j >= len(sheet.Columns) {
				break
			}
			value := strings.TrimSpace(cell.String())
			record[sheet.Columns[j]] = value
			if value != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		sheet.Rows = append(sheet.Rows, record)
		sheet.SourceRows = append(sheet.SourceRows, i+2)
	}
	return sheet
}
