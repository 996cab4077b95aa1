package model

import "time"

// LaborRecord is one employee's engagement with one entity, keyed by
// (RFC, EntityClave). A re-ingest of the same key replaces every mutable
// field: each upload is the entity's authoritative current statement for that
// employee, not an increment over prior history.
type LaborRecord struct {
	RFC           string     `json:"rfc"`
	EntityClave   string     `json:"ente"`
	Nombre        string     `json:"nombre"`
	Puesto        string     `json:"puesto"`
	FechaIngreso  *time.Time `json:"fecha_ingreso,omitempty"`
	FechaEgreso   *time.Time `json:"fecha_egreso,omitempty"` // nil = still active
	Monto         *float64   `json:"monto,omitempty"`
	ActivePeriods PeriodSet  `json:"quincenas"`
}

// ImportBatch records one ingest run for the audit trail. Batches are never
// deleted; accepted counts and alerts stay queryable after the upload.
type ImportBatch struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Sheets    int       `json:"sheets"`
	Accepted  int       `json:"accepted"`
	Alerts    []Alert   `json:"alerts"`
	CreatedAt time.Time `json:"created_at"`
}
