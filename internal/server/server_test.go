package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/ofs-tlaxcala/scil/internal/analyze"
	"github.com/ofs-tlaxcala/scil/internal/catalog"
	"github.com/ofs-tlaxcala/scil/internal/ingest"
	"github.com/ofs-tlaxcala/scil/internal/model"
	"github.com/ofs-tlaxcala/scil/internal/report"
	"github.com/ofs-tlaxcala/scil/internal/resolution"
	"github.com/ofs-tlaxcala/scil/internal/store"
)

// memStore is an in-memory Store for handler tests.
type memStore struct {
	entities    map[string]model.Entity
	records     map[string]model.LaborRecord
	resolutions map[string]model.Resolution
	batches     []model.ImportBatch
}

func newMemStore(entities ...model.Entity) *memStore {
	st := &memStore{
		entities:    make(map[string]model.Entity),
		records:     make(map[string]model.LaborRecord),
		resolutions: make(map[string]model.Resolution),
	}
	for _, e := range entities {
		st.entities[e.Clave] = e
	}
	return st
}

func (m *memStore) UpsertEntities(_ context.Context, entities []model.Entity) (int64, error) {
	for _, e := range entities {
		m.entities[e.Clave] = e
	}
	return int64(len(entities)), nil
}

func (m *memStore) ListEntities(_ context.Context) ([]model.Entity, error) {
	out := make([]model.Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Clave < out[j].Clave })
	return out, nil
}

func (m *memStore) GetEntity(_ context.Context, clave string) (*model.Entity, error) {
	e, ok := m.entities[clave]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &e, nil
}

func (m *memStore) UpsertLaborRecord(_ context.Context, rec model.LaborRecord) error {
	m.records[rec.RFC+"|"+rec.EntityClave] = rec
	return nil
}

func (m *memStore) UpsertLaborRecords(ctx context.Context, recs []model.LaborRecord) (int64, error) {
	for _, rec := range recs {
		if err := m.UpsertLaborRecord(ctx, rec); err != nil {
			return 0, err
		}
	}
	return int64(len(recs)), nil
}

func (m *memStore) RecordsForRFC(_ context.Context, rfc string) ([]model.LaborRecord, error) {
	var out []model.LaborRecord
	for _, rec := range m.records {
		if rec.RFC == rfc {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityClave < out[j].EntityClave })
	return out, nil
}

func (m *memStore) ListRFCs(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, rec := range m.records {
		seen[rec.RFC] = true
	}
	out := make([]string, 0, len(seen))
	for rfc := range seen {
		out = append(out, rfc)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) UpsertResolution(_ context.Context, res model.Resolution) error {
	m.resolutions[res.RFC+"|"+res.EntityClave] = res
	return nil
}

func (m *memStore) ResolutionsForRFC(_ context.Context, rfc string) (map[string]model.Resolution, error) {
	out := make(map[string]model.Resolution)
	for _, res := range m.resolutions {
		if res.RFC == rfc {
			out[res.EntityClave] = res
		}
	}
	return out, nil
}

func (m *memStore) CreateImportBatch(_ context.Context, batch model.ImportBatch) error {
	m.batches = append(m.batches, batch)
	return nil
}

func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }

func testServer(st *memStore, requireUser bool) *Server {
	cat := catalog.New(st)
	runner := ingest.NewRunner(st, ingest.NewNormalizer(cat))
	analyzer := analyze.New(st)
	tracker := resolution.New(st)
	exporter := report.NewExporter(cat, tracker)
	return New(Options{RequireUser: requireUser}, cat, runner, analyzer, tracker, exporter)
}

func seedEntities() []model.Entity {
	return []model.Entity{
		{Clave: "ENTE_00001", Siglas: "SEGOB", Nombre: "SECRETARIA DE GOBIERNO", HierarchyCode: "1.1", Domain: model.DomainState},
		{Clave: "ENTE_00002", Siglas: "SEFIN", Nombre: "SECRETARIA DE FINANZAS", HierarchyCode: "1.2", Domain: model.DomainState},
	}
}

func seedConflict(st *memStore) {
	overlap := model.PeriodSet(0).With(1).With(2)
	st.records["PEGJ800101AAA|ENTE_00001"] = model.LaborRecord{
		RFC: "PEGJ800101AAA", EntityClave: "ENTE_00001", Nombre: "JUAN PEREZ", ActivePeriods: overlap,
	}
	st.records["PEGJ800101AAA|ENTE_00002"] = model.LaborRecord{
		RFC: "PEGJ800101AAA", EntityClave: "ENTE_00002", Nombre: "JUAN PEREZ", ActivePeriods: overlap.With(3),
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(testServer(newMemStore(), false).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListEntities(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(testServer(newMemStore(seedEntities()...), false).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/entities")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entities []model.Entity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entities))
	require.Len(t, entities, 2)
	assert.Equal(t, "SEGOB", entities[0].Siglas)
}

func TestGetConflicts(t *testing.T) {
	t.Parallel()

	st := newMemStore(seedEntities()...)
	seedConflict(st)
	srv := httptest.NewServer(testServer(st, false).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/conflicts/PEGJ800101AAA")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var group model.ConflictGroup
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&group))
	assert.Equal(t, []string{"ENTE_00001", "ENTE_00002"}, group.Claves())
	assert.Equal(t, []int{1, 2}, group.Implicated.Periods())
}

func TestGetConflictsUnknownRFC(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(testServer(newMemStore(seedEntities()...), false).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/conflicts/XXXX800101XXX")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetConflictsNoOverlap(t *testing.T) {
	t.Parallel()

	st := newMemStore(seedEntities()...)
	st.records["PEGJ800101AAA|ENTE_00001"] = model.LaborRecord{
		RFC: "PEGJ800101AAA", EntityClave: "ENTE_00001", ActivePeriods: model.PeriodSet(0).With(1),
	}
	srv := httptest.NewServer(testServer(st, false).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/conflicts/PEGJ800101AAA")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, false, body["conflicto"])
}

func TestGetConflictsCanViewFilter(t *testing.T) {
	t.Parallel()

	st := newMemStore(seedEntities()...)
	seedConflict(st)

	srv := testServer(st, false)
	srv.opts.CanView = func(principal, clave string) bool {
		return principal == "auditor1" && clave == "ENTE_00001"
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/conflicts/PEGJ800101AAA", nil)
	require.NoError(t, err)
	req.Header.Set("X-Scil-User", "auditor1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var group model.ConflictGroup
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&group))
	assert.Equal(t, []string{"ENTE_00001"}, group.Claves(), "hidden entity rows are stripped")

	// A principal with no visible entities gets 403, not an empty group.
	req.Header.Set("X-Scil-User", "otro")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
}

func TestGetAnomalies(t *testing.T) {
	t.Parallel()

	st := newMemStore(seedEntities()...)
	ingreso1 := timeDate(2025, 1, 1)
	egreso1 := timeDate(2025, 6, 30)
	ingreso2 := timeDate(2025, 3, 1)
	st.records["PEGJ800101AAA|ENTE_00001"] = model.LaborRecord{
		RFC: "PEGJ800101AAA", EntityClave: "ENTE_00001",
		FechaIngreso: &ingreso1, FechaEgreso: &egreso1,
	}
	st.records["PEGJ800101AAA|ENTE_00002"] = model.LaborRecord{
		RFC: "PEGJ800101AAA", EntityClave: "ENTE_00002",
		FechaIngreso: &ingreso2,
	}
	srv := httptest.NewServer(testServer(st, false).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/anomalies/PEGJ800101AAA")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var findings []analyze.DateFinding
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&findings))
	require.Len(t, findings, 2)
	assert.Equal(t, analyze.PatternSolapeEntreEntes, findings[0].Tipo)
	assert.Equal(t, analyze.PatternSinEgreso, findings[1].Tipo)
	assert.Equal(t, []string{"ENTE_00002"}, findings[1].Claves)
}

func TestGetAnomaliesUnknownRFC(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(testServer(newMemStore(seedEntities()...), false).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/anomalies/XXXX800101XXX")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListAnomaliesEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(testServer(newMemStore(seedEntities()...), false).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/anomalies")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var findings []analyze.DateFinding
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&findings))
	assert.Empty(t, findings)
}

func timeDate(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestPutResolution(t *testing.T) {
	t.Parallel()

	st := newMemStore(seedEntities()...)
	srv := httptest.NewServer(testServer(st, true).Handler())
	defer srv.Close()

	body := strings.NewReader(`{"estado":"solventado","comentario":"oficio 99"}`)
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/resolutions/PEGJ800101AAA/ENTE_00001", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Scil-User", "auditor1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stored := st.resolutions["PEGJ800101AAA|ENTE_00001"]
	assert.Equal(t, model.StatusSolventado, stored.Estado)
	assert.Equal(t, "oficio 99", stored.Comentario)
}

func TestPutResolutionRequiresUser(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(testServer(newMemStore(), true).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/resolutions/PEGJ800101AAA/ENTE_00001",
		strings.NewReader(`{"estado":"solventado"}`))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPutResolutionInvalidStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(testServer(newMemStore(), false).Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/resolutions/PEGJ800101AAA/ENTE_00001",
		strings.NewReader(`{"estado":"pendiente"}`))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func buildUpload(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("SEGOB")
	require.NoError(t, err)
	for _, row := range [][]string{
		{"RFC", "NOMBRE", "PUESTO", "FECHA ALTA", "QNA1"},
		{"PEGJ800101AAA", "JUAN PEREZ", "ANALISTA", "15/01/2025", "1"},
	} {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().SetString(cell)
		}
	}

	var workbook bytes.Buffer
	require.NoError(t, f.Write(&workbook))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("workbook", "nomina.xlsx")
	require.NoError(t, err)
	_, err = part.Write(workbook.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func TestImportUpload(t *testing.T) {
	t.Parallel()

	st := newMemStore(seedEntities()...)
	srv := httptest.NewServer(testServer(st, false).Handler())
	defer srv.Close()

	body, contentType := buildUpload(t)
	resp, err := http.Post(srv.URL+"/api/v1/imports", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result ingest.BatchResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.Accepted)
	assert.Contains(t, st.records, "PEGJ800101AAA|ENTE_00001")
	require.Len(t, st.batches, 1)
	assert.Equal(t, "nomina.xlsx", st.batches[0].Source)
}

func TestReportDownload(t *testing.T) {
	t.Parallel()

	st := newMemStore(seedEntities()...)
	seedConflict(st)
	srv := httptest.NewServer(testServer(st, false).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "incompatibilidades.xlsx")

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	assert.Len(t, f.Sheets[0].Rows, 3, "header plus one row per implicated entity")
}
