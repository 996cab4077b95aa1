package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofs-tlaxcala/scil/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresUpsertLaborRecord_OnConflict(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO labor_records.*ON CONFLICT \(rfc, entity_clave\) DO UPDATE SET`).
		WithArgs("PEGJ800101AAA", "ENTE_00001", "JUAN PEREZ", "ANALISTA",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), int32(7)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertLaborRecord(context.Background(), model.LaborRecord{
		RFC:           "PEGJ800101AAA",
		EntityClave:   "ENTE_00001",
		Nombre:        "JUAN PEREZ",
		Puesto:        "ANALISTA",
		ActivePeriods: model.PeriodSet(7),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetEntity_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT clave, siglas, nombre, hierarchy_code, domain FROM entities WHERE clave = \$1`).
		WithArgs("NO_EXISTE").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetEntity(context.Background(), "NO_EXISTE")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordsForRFC(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{
		"rfc", "entity_clave", "nombre", "puesto", "fecha_ingreso", "fecha_egreso", "monto", "active_periods",
	}).
		AddRow("PEGJ800101AAA", "ENTE_00001", "JUAN PEREZ", "ANALISTA", nil, nil, nil, int32(3)).
		AddRow("PEGJ800101AAA", "ENTE_00002", "JUAN PEREZ", "ASESOR", nil, nil, nil, int32(6))

	mock.ExpectQuery(`SELECT rfc, entity_clave, .* FROM labor_records WHERE rfc = \$1 ORDER BY entity_clave`).
		WithArgs("PEGJ800101AAA").
		WillReturnRows(rows)

	records, err := s.RecordsForRFC(context.Background(), "PEGJ800101AAA")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ENTE_00001", records[0].EntityClave)
	assert.Equal(t, []int{1, 2}, records[0].ActivePeriods.Periods())
	assert.Equal(t, []int{2, 3}, records[1].ActivePeriods.Periods())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListRFCs(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT rfc FROM labor_records ORDER BY rfc`).
		WillReturnRows(pgxmock.NewRows([]string{"rfc"}).
			AddRow("AAAA800101AAA").
			AddRow("BBBB900202BBB"))

	rfcs, err := s.ListRFCs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAA800101AAA", "BBBB900202BBB"}, rfcs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertResolution(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectExec(`INSERT INTO resolutions .*ON CONFLICT \(rfc, entity_clave\) DO UPDATE SET`).
		WithArgs("PEGJ800101AAA", "ENTE_00001", "solventado", "aclarado con oficio 123", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertResolution(context.Background(), model.Resolution{
		RFC:         "PEGJ800101AAA",
		EntityClave: "ENTE_00001",
		Estado:      model.StatusSolventado,
		Comentario:  "aclarado con oficio 123",
		UpdatedAt:   now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateImportBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO import_batches`).
		WithArgs("batch-1", "nomina.xlsx", 2, 40, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.CreateImportBatch(context.Background(), model.ImportBatch{
		ID: "batch-1", Source: "nomina.xlsx", Sheets: 2, Accepted: 40,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
