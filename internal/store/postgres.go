package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ofs-tlaxcala/scil/internal/db"
	"github.com/ofs-tlaxcala/scil/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
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
	fecha_ingreso  DATE,
	fecha_egreso   DATE,
	monto          DOUBLE PRECISION,
	active_periods INTEGER NOT NULL DEFAULT 0,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (rfc, entity_clave)
);

CREATE TABLE IF NOT EXISTS resolutions (
	rfc          TEXT NOT NULL,
	entity_clave TEXT NOT NULL,
	estado       TEXT NOT NULL,
	comentario   TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (rfc, entity_clave)
);

CREATE TABLE IF NOT EXISTS import_batches (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	sheets     INTEGER NOT NULL,
	accepted   INTEGER NOT NULL,
	alerts     JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_labor_records_rfc ON labor_records(rfc);
CREATE INDEX IF NOT EXISTS idx_resolutions_rfc ON resolutions(rfc);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Pool exposes the underlying pool for subsystems needing direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) UpsertEntities(ctx context.Context, entities []model.Entity) (int64, error) {
	rows := make([][]any, len(entities))
	for i, e := range entities {
		rows[i] = []any{e.Clave, e.Siglas, e.Nombre, e.HierarchyCode, string(e.Domain)}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "entities",
		Columns:      []string{"clave", "siglas", "nombre", "hierarchy_code", "domain"},
		ConflictKeys: []string{"clave"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert entities")
	}
	return n, nil
}

func (s *PostgresStore) ListEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT clave, siglas, nombre, hierarchy_code, domain FROM entities`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var entities []model.Entity
	for rows.Next() {
		var e model.Entity
		var domain string
		if err := rows.Scan(&e.Clave, &e.Siglas, &e.Nombre, &e.HierarchyCode, &domain); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		e.Domain = model.EntityDomain(domain)
		entities = append(entities, e)
	}
	return entities, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

func (s *PostgresStore) GetEntity(ctx context.Context, clave string) (*model.Entity, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT clave, siglas, nombre, hierarchy_code, domain FROM entities WHERE clave = $1`,
		clave,
	)

	var e model.Entity
	var domain string
	err := row.Scan(&e.Clave, &e.Siglas, &e.Nombre, &e.HierarchyCode, &domain)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "entity %s", clave)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get entity %s", clave)
	}
	e.Domain = model.EntityDomain(domain)
	return &e, nil
}

func (s *PostgresStore) UpsertLaborRecord(ctx context.Context, rec model.LaborRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO labor_records
		   (rfc, entity_clave, nombre, puesto, fecha_ingreso, fecha_egreso, monto, active_periods, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (rfc, entity_clave) DO UPDATE SET
		   nombre = EXCLUDED.nombre,
		   puesto = EXCLUDED.puesto,
		   fecha_ingreso = EXCLUDED.fecha_ingreso,
		   fecha_egreso = EXCLUDED.fecha_egreso,
		   monto = EXCLUDED.monto,
		   active_periods = EXCLUDED.active_periods,
		   updated_at = now()`,
		rec.RFC, rec.EntityClave, rec.Nombre, rec.Puesto,
		rec.FechaIngreso, rec.FechaEgreso, rec.Monto, int32(rec.ActivePeriods),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return eris.Wrapf(ErrUnknownEntity, "clave %s", rec.EntityClave)
		}
		return eris.Wrapf(err, "postgres: upsert record %s/%s", rec.RFC, rec.EntityClave)
	}
	return nil
}

func (s *PostgresStore) UpsertLaborRecords(ctx context.Context, recs []model.LaborRecord) (int64, error) {
	rows := make([][]any, len(recs))
	for i, rec := range recs {
		rows[i] = []any{rec.RFC, rec.EntityClave, rec.Nombre, rec.Puesto,
			rec.FechaIngreso, rec.FechaEgreso, rec.Monto, int32(rec.ActivePeriods)}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "labor_records",
		Columns:      []string{"rfc", "entity_clave", "nombre", "puesto", "fecha_ingreso", "fecha_egreso", "monto", "active_periods"},
		ConflictKeys: []string{"rfc", "entity_clave"},
	}, rows)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, eris.Wrap(ErrUnknownEntity, "bulk upsert")
		}
		return 0, eris.Wrap(err, "postgres: bulk upsert records")
	}
	return n, nil
}

func (s *PostgresStore) RecordsForRFC(ctx context.Context, rfc string) ([]model.LaborRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT rfc, entity_clave, nombre, puesto, fecha_ingreso, fecha_egreso, monto, active_periods
		 FROM labor_records WHERE rfc = $1 ORDER BY entity_clave`,
		rfc,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: records for %s", rfc)
	}
	defer rows.Close()

	var records []model.LaborRecord
	for rows.Next() {
		var rec model.LaborRecord
		var periods int32
		if err := rows.Scan(&rec.RFC, &rec.EntityClave, &rec.Nombre, &rec.Puesto,
			&rec.FechaIngreso, &rec.FechaEgreso, &rec.Monto, &periods); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		rec.ActivePeriods = model.PeriodSet(periods)
		records = append(records, rec)
	}
	return records, eris.Wrapf(rows.Err(), "postgres: records for %s iterate", rfc)
}

func (s *PostgresStore) ListRFCs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT rfc FROM labor_records ORDER BY rfc`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rfcs")
	}
	defer rows.Close()

	var rfcs []string
	for rows.Next() {
		var rfc string
		if err := rows.Scan(&rfc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rfc")
		}
		rfcs = append(rfcs, rfc)
	}
	return rfcs, eris.Wrap(rows.Err(), "postgres: list rfcs iterate")
}

func (s *PostgresStore) UpsertResolution(ctx context.Context, res model.Resolution) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO resolutions (rfc, entity_clave, estado, comentario, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (rfc, entity_clave) DO UPDATE SET
		   estado = EXCLUDED.estado,
		   comentario = EXCLUDED.comentario,
		   updated_at = EXCLUDED.updated_at`,
		res.RFC, res.EntityClave, string(res.Estado), res.Comentario, res.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert resolution %s/%s", res.RFC, res.EntityClave)
}

func (s *PostgresStore) ResolutionsForRFC(ctx context.Context, rfc string) (map[string]model.Resolution, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT rfc, entity_clave, estado, comentario, updated_at FROM resolutions WHERE rfc = $1`,
		rfc,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: resolutions for %s", rfc)
	}
	defer rows.Close()

	out := make(map[string]model.Resolution)
	for rows.Next() {
		var res model.Resolution
		var estado string
		if err := rows.Scan(&res.RFC, &res.EntityClave, &estado, &res.Comentario, &res.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan resolution")
		}
		res.Estado = model.Status(estado)
		out[res.EntityClave] = res
	}
	return out, eris.Wrapf(rows.Err(), "postgres: resolutions for %s iterate", rfc)
}

func (s *PostgresStore) CreateImportBatch(ctx context.Context, batch model.ImportBatch) error {
	alertsJSON, err := json.Marshal(batch.Alerts)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal alerts")
	}
	if batch.Alerts == nil {
		alertsJSON = []byte("[]")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO import_batches (id, source, sheets, accepted, alerts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		batch.ID, batch.Source, batch.Sheets, batch.Accepted, string(alertsJSON), batch.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert import batch %s", batch.ID)
}
