package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ofs-tlaxcala/scil/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS entities (
	clave          TEXT PRIMARY KEY,
	siglas         TEXT NOT NULL DEFAULT '',
	nombre         TEXT NOT NULL,
	hierarchy_code TEXT NOT NULL DEFAULT '',
	domain         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS labor_records (
	rfc            TEXT NOT NULL,
	entity_clave   TEXT NOT NULL REFERENCES entities(clave),
	nombre         TEXT NOT NULL DEFAULT '',
	puesto         TEXT NOT NULL DEFAULT '',
	fecha_ingreso  TEXT,
	fecha_egreso   TEXT,
	monto          REAL,
	active_periods INTEGER NOT NULL DEFAULT 0,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (rfc, entity_clave)
);

CREATE TABLE IF NOT EXISTS resolutions (
	rfc          TEXT NOT NULL,
	entity_clave TEXT NOT NULL,
	estado       TEXT NOT NULL,
	comentario   TEXT NOT NULL DEFAULT '',
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (rfc, entity_clave)
);

CREATE TABLE IF NOT EXISTS import_batches (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	sheets     INTEGER NOT NULL,
	accepted   INTEGER NOT NULL,
	alerts     TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_labor_records_rfc ON labor_records(rfc);
CREATE INDEX IF NOT EXISTS idx_resolutions_rfc ON resolutions(rfc);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteDateLayout = "2006-01-02"

func dateToText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(sqliteDateLayout)
}

func textToDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(sqliteDateLayout, s.String)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse date %q", s.String)
	}
	return &t, nil
}

func (s *SQLiteStore) UpsertEntities(ctx context.Context, entities []model.Entity) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert entities")
	}
	defer tx.Rollback()

	var count int64
	for _, e := range entities {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO entities (clave, siglas, nombre, hierarchy_code, domain)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (clave) DO UPDATE SET
			   siglas = excluded.siglas,
			   nombre = excluded.nombre,
			   hierarchy_code = excluded.hierarchy_code,
			   domain = excluded.domain`,
			e.Clave, e.Siglas, e.Nombre, e.HierarchyCode, string(e.Domain),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert entity %s", e.Clave)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert entities")
	}
	return count, nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT clave, siglas, nombre, hierarchy_code, domain FROM entities`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var e model.Entity
		var domain string
		if err := rows.Scan(&e.Clave, &e.Siglas, &e.Nombre, &e.HierarchyCode, &domain); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		e.Domain = model.EntityDomain(domain)
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

func (s *SQLiteStore) GetEntity(ctx context.Context, clave string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT clave, siglas, nombre, hierarchy_code, domain FROM entities WHERE clave = ?`,
		clave,
	)

	var e model.Entity
	var domain string
	err := row.Scan(&e.Clave, &e.Siglas, &e.Nombre, &e.HierarchyCode, &domain)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "entity %s", clave)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get entity %s", clave)
	}
	e.Domain = model.EntityDomain(domain)
	return &e, nil
}

func (s *SQLiteStore) UpsertLaborRecord(ctx context.Context, rec model.LaborRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO labor_records
		   (rfc, entity_clave, nombre, puesto, fecha_ingreso, fecha_egreso, monto, active_periods, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		 ON CONFLICT (rfc, entity_clave) DO UPDATE SET
		   nombre = excluded.nombre,
		   puesto = excluded.puesto,
		   fecha_ingreso = excluded.fecha_ingreso,
		   fecha_egreso = excluded.fecha_egreso,
		   monto = excluded.monto,
		   active_periods = excluded.active_periods,
		   updated_at = datetime('now')`,
		rec.RFC, rec.EntityClave, rec.Nombre, rec.Puesto,
		dateToText(rec.FechaIngreso), dateToText(rec.FechaEgreso), rec.Monto, int64(rec.ActivePeriods),
	)
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY") {
			return eris.Wrapf(ErrUnknownEntity, "clave %s", rec.EntityClave)
		}
		return eris.Wrapf(err, "sqlite: upsert record %s/%s", rec.RFC, rec.EntityClave)
	}
	return nil
}

func (s *SQLiteStore) UpsertLaborRecords(ctx context.Context, recs []model.LaborRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: bulk upsert begin tx")
	}
	defer tx.Rollback()

	var n int64
	for _, rec := range recs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO labor_records
			   (rfc, entity_clave, nombre, puesto, fecha_ingreso, fecha_egreso, monto, active_periods, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
			 ON CONFLICT (rfc, entity_clave) DO UPDATE SET
			   nombre = excluded.nombre,
			   puesto = excluded.puesto,
			   fecha_ingreso = excluded.fecha_ingreso,
			   fecha_egreso = excluded.fecha_egreso,
			   monto = excluded.monto,
			   active_periods = excluded.active_periods,
			   updated_at = datetime('now')`,
			rec.RFC, rec.EntityClave, rec.Nombre, rec.Puesto,
			dateToText(rec.FechaIngreso), dateToText(rec.FechaEgreso), rec.Monto, int64(rec.ActivePeriods),
		)
		if err != nil {
			if strings.Contains(err.Error(), "FOREIGN KEY") {
				return 0, eris.Wrap(ErrUnknownEntity, "bulk upsert")
			}
			return 0, eris.Wrapf(err, "sqlite: bulk upsert record %s/%s", rec.RFC, rec.EntityClave)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: bulk upsert commit")
	}
	return n, nil
}

func (s *SQLiteStore) RecordsForRFC(ctx context.Context, rfc string) ([]model.LaborRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rfc, entity_clave, nombre, puesto, fecha_ingreso, fecha_egreso, monto, active_periods
		 FROM labor_records WHERE rfc = ? ORDER BY entity_clave`,
		rfc,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: records for %s", rfc)
	}
	defer rows.Close()

	var records []model.LaborRecord
	for rows.Next() {
		var rec model.LaborRecord
		var ingreso, egreso sql.NullString
		var monto sql.NullFloat64
		var periods int64
		if err := rows.Scan(&rec.RFC, &rec.EntityClave, &rec.Nombre, &rec.Puesto,
			&ingreso, &egreso, &monto, &periods); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		if rec.FechaIngreso, err = textToDate(ingreso); err != nil {
			return nil, err
		}
		if rec.FechaEgreso, err = textToDate(egreso); err != nil {
			return nil, err
		}
		if monto.Valid {
			v := monto.Float64
			rec.Monto = &v
		}
		rec.ActivePeriods = model.PeriodSet(periods)
		records = append(records, rec)
	}
	return records, eris.Wrapf(rows.Err(), "sqlite: records for %s iterate", rfc)
}

func (s *SQLiteStore) ListRFCs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT rfc FROM labor_records ORDER BY rfc`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rfcs")
	}
	defer rows.Close()

	var rfcs []string
	for rows.Next() {
		var rfc string
		if err := rows.Scan(&rfc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rfc")
		}
		rfcs = append(rfcs, rfc)
	}
	return rfcs, eris.Wrap(rows.Err(), "sqlite: list rfcs iterate")
}

func (s *SQLiteStore) UpsertResolution(ctx context.Context, res model.Resolution) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resolutions (rfc, entity_clave, estado, comentario, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (rfc, entity_clave) DO UPDATE SET
		   estado = excluded.estado,
		   comentario = excluded.comentario,
		   updated_at = excluded.updated_at`,
		res.RFC, res.EntityClave, string(res.Estado), res.Comentario, res.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return eris.Wrapf(err, "sqlite: upsert resolution %s/%s", res.RFC, res.EntityClave)
}

func (s *SQLiteStore) ResolutionsForRFC(ctx context.Context, rfc string) (map[string]model.Resolution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rfc, entity_clave, estado, comentario, updated_at FROM resolutions WHERE rfc = ?`,
		rfc,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: resolutions for %s", rfc)
	}
	defer rows.Close()

	out := make(map[string]model.Resolution)
	for rows.Next() {
		var res model.Resolution
		var estado, updated string
		if err := rows.Scan(&res.RFC, &res.EntityClave, &estado, &res.Comentario, &updated); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan resolution")
		}
		res.Estado = model.Status(estado)
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			res.UpdatedAt = ts
		}
		out[res.EntityClave] = res
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: resolutions for %s iterate", rfc)
}

func (s *SQLiteStore) CreateImportBatch(ctx context.Context, batch model.ImportBatch) error {
	alertsJSON, err := json.Marshal(batch.Alerts)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal alerts")
	}
	if batch.Alerts == nil {
		alertsJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO import_batches (id, source, sheets, accepted, alerts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.Source, batch.Sheets, batch.Accepted, string(alertsJSON),
		batch.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return eris.Wrapf(err, "sqlite: insert import batch %s", batch.ID)
}
