package model

import "time"

// Status is the audit disposition for one (RFC, entity) pair.
type Status string

const (
	StatusSolventado    Status = "solventado"
	StatusNoSolventado  Status = "no_solventado"
	StatusSinValoracion Status = "sin_valoracion"
)

// Valid reports whether s is one of the enumerated dispositions.
func (s Status) Valid() bool {
	switch s {
	case StatusSolventado, StatusNoSolventado, StatusSinValoracion:
		return true
	}
	return false
}

// Display returns the human-readable form used in reports.
func (s Status) Display() string {
	switch s {
	case StatusSolventado:
		return "Solventado"
	case StatusNoSolventado:
		return "No Solventado"
	default:
		return "Sin Valoración"
	}
}

// Resolution is an auditor's disposition for one (RFC, entity) pair. It has a
// lifecycle independent from LaborRecord: absent until the first explicit
// write, upserted thereafter, never cascaded from record changes. The same RFC
// may carry different dispositions at different entities simultaneously.
type Resolution struct {
	RFC         string    `json:"rfc"`
	EntityClave string    `json:"ente"`
	Estado      Status    `json:"estado"`
	Comentario  string    `json:"comentario,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultResolution is the display default for pairs no auditor has acted on.
// It is not persisted.
func DefaultResolution(rfc, clave string) Resolution {
	return Resolution{RFC: rfc, EntityClave: clave, Estado: StatusSinValoracion}
}
