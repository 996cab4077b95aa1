package catalog

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofs-tlaxcala/scil/internal/model"
)

type fakeEntityReader struct {
	entities []model.Entity
	calls    int
}

func (f *fakeEntityReader) ListEntities(_ context.Context) ([]model.Entity, error) {
	f.calls++
	return f.entities, nil
}

func testEntities() []model.Entity {
	return []model.Entity{
		{Clave: "ENTE_00002", Siglas: "SEFIN", Nombre: "Secretaría de Finanzas", HierarchyCode: "1.10", Domain: model.DomainState},
		{Clave: "ENTE_00001", Siglas: "SEGOB", Nombre: "Secretaría de Gobierno", HierarchyCode: "1.2", Domain: model.DomainState},
		{Clave: "MUN_00033", Siglas: "TLAX", Nombre: "Municipio de Tlaxcala", HierarchyCode: "1.3", Domain: model.DomainMunicipal},
	}
}

func TestCatalogResolvePrecedence(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat := New(&fakeEntityReader{entities: testEntities()})

	tests := []struct {
		identifier string
		want       string
	}{
		{"ENTE_00001", "ENTE_00001"},
		{"ente_00001", "ENTE_00001"},
		{"SEGOB", "ENTE_00001"},
		{"segob", "ENTE_00001"},
		{"Secretaría de Gobierno", "ENTE_00001"},
		{"SECRETARIA DE GOBIERNO", "ENTE_00001"},
		{"  secretaria   de   gobierno  ", "ENTE_00001"},
		{"TLAX", "MUN_00033"},
	}

	for _, tt := range tests {
		t.Run(tt.identifier, func(t *testing.T) {
			clave, err := cat.Resolve(ctx, tt.identifier)
			require.NoError(t, err)
			assert.Equal(t, tt.want, clave)
		})
	}
}

func TestCatalogResolveNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat := New(&fakeEntityReader{entities: testEntities()})

	_, err := cat.Resolve(ctx, "NO_EXISTE")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEntityNotFound))

	_, err = cat.Resolve(ctx, "   ")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEntityNotFound))

	// Partial matches are never guessed.
	_, err = cat.Resolve(ctx, "SECRETARIA")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrEntityNotFound))
}

func TestCatalogListHierarchicalOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat := New(&fakeEntityReader{entities: testEntities()})

	entities, err := cat.List(ctx)
	require.NoError(t, err)

	claves := make([]string, len(entities))
	for i, e := range entities {
		claves[i] = e.Clave
	}
	// 1.2 < 1.3 < 1.10 numerically; lexicographic order would put 1.10 first.
	assert.Equal(t, []string{"ENTE_00001", "MUN_00033", "ENTE_00002"}, claves)
}

func TestCatalogDisplayFallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cat := New(&fakeEntityReader{entities: []model.Entity{
		{Clave: "A", Siglas: "SIG", Nombre: "Nombre A"},
		{Clave: "B", Nombre: "Nombre B"},
		{Clave: "C"},
	}})

	assert.Equal(t, "SIG", cat.Display(ctx, "A"))
	assert.Equal(t, "Nombre B", cat.Display(ctx, "B"))
	assert.Equal(t, "C", cat.Display(ctx, "C"))
	assert.Equal(t, "ZZZ", cat.Display(ctx, "ZZZ"))
}

func TestCatalogCacheAndInvalidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	reader := &fakeEntityReader{entities: testEntities()}
	cat := New(reader)

	_, err := cat.Resolve(ctx, "SEGOB")
	require.NoError(t, err)
	_, err = cat.Resolve(ctx, "SEFIN")
	require.NoError(t, err)
	assert.Equal(t, 1, reader.calls, "lookups after the first must hit the cache")

	reader.entities = append(reader.entities, model.Entity{
		Clave: "ENTE_00099", Siglas: "NUEVO", HierarchyCode: "2.1", Domain: model.DomainState,
	})

	// Not visible until invalidated.
	_, err = cat.Resolve(ctx, "NUEVO")
	require.Error(t, err)

	cat.Invalidate()
	clave, err := cat.Resolve(ctx, "NUEVO")
	require.NoError(t, err)
	assert.Equal(t, "ENTE_00099", clave)
	assert.Equal(t, 2, reader.calls)
}

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Secretaría de Educación Pública", "SECRETARIA DE EDUCACION PUBLICA"},
		{"  doble   espacio ", "DOBLE ESPACIO"},
		{"segob", "SEGOB"},
		{"", ""},
		{"ÁÉÍÓÚÑ", "AEIOUN"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.in))
		})
	}
}
