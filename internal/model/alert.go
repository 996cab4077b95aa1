package model

import (
	"fmt"
	"strings"
)

// AlertType classifies non-fatal ingest problems. Every skipped sheet or row
// surfaces exactly one alert; nothing is dropped silently.
type AlertType string

const (
	AlertEntityNotFound AlertType = "entity_not_found"
	AlertMissingColumns AlertType = "missing_columns"
	AlertInvalidRFC     AlertType = "invalid_rfc"
	AlertUnknownEntity  AlertType = "unknown_entity"
)

// Alert describes one unit of input that could not be ingested. Row is
// 1-based within the sheet's data rows and zero when the alert covers the
// whole sheet.
type Alert struct {
	Type    AlertType `json:"tipo"`
	Sheet   string    `json:"hoja,omitempty"`
	Row     int       `json:"fila,omitempty"`
	Columns []string  `json:"columnas,omitempty"`
	Clave   string    `json:"clave,omitempty"`
	Message string    `json:"mensaje"`
}

// NewEntityNotFoundAlert flags a sheet whose name resolved to no catalog entry.
func NewEntityNotFoundAlert(sheet string) Alert {
	return Alert{
		Type:    AlertEntityNotFound,
		Sheet:   sheet,
		Message: fmt.Sprintf("hoja %q no encontrada en el catálogo de entes", sheet),
	}
}

// NewMissingColumnsAlert flags a sheet missing required columns.
func NewMissingColumnsAlert(sheet string, columns []string) Alert {
	return Alert{
		Type:    AlertMissingColumns,
		Sheet:   sheet,
		Columns: columns,
		Message: fmt.Sprintf("hoja %q omitida: faltan columnas requeridas (%s)", sheet, strings.Join(columns, ", ")),
	}
}

// NewInvalidRFCAlert flags a single rejected row; the rest of the sheet
// continues.
func NewInvalidRFCAlert(sheet string, row int) Alert {
	return Alert{
		Type:    AlertInvalidRFC,
		Sheet:   sheet,
		Row:     row,
		Message: fmt.Sprintf("hoja %q fila %d: RFC inválido", sheet, row),
	}
}

// NewUnknownEntityAlert flags a record whose entity clave was rejected by the
// store.
func NewUnknownEntityAlert(clave string) Alert {
	return Alert{
		Type:    AlertUnknownEntity,
		Clave:   clave,
		Message: fmt.Sprintf("clave de ente desconocida: %q", clave),
	}
}
