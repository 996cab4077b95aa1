// Package catalog resolves heterogeneous entity identifiers (clave, siglas or
// nombre) to the canonical clave shared by the state and municipal catalogs.
package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/ofs-tlaxcala/scil/internal/model"
)

// ErrEntityNotFound is returned when no catalog entry matches an identifier.
var ErrEntityNotFound = eris.New("catalog: entity not found")

// EntityReader is the slice of the store the catalog reads from.
type EntityReader interface {
	ListEntities(ctx context.Context) ([]model.Entity, error)
}

// Catalog is a read-through cache over the entity tables. Lookups are
// memoized for the process lifetime; Invalidate must be called whenever the
// catalog is administratively modified.
type Catalog struct {
	store EntityReader

	mu       sync.RWMutex
	loaded   bool
	entities []model.Entity
	byClave  map[string]string
	bySiglas map[string]string
	byNombre map[string]string
}

// New creates a Catalog over the given store. The cache fills lazily on first
// lookup.
func New(store EntityReader) *Catalog {
	return &Catalog{store: store}
}

// Invalidate drops the cached maps. The next lookup reloads from the store.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.entities = nil
	c.byClave = nil
	c.bySiglas = nil
	c.byNombre = nil
}

func (c *Catalog) ensure(ctx context.Context) error {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	entities, err := c.store.ListEntities(ctx)
	if err != nil {
		return eris.Wrap(err, "catalog: load entities")
	}

	sort.SliceStable(entities, func(i, j int) bool {
		cmp := model.CompareHierarchy(
			model.HierarchyKey(entities[i].HierarchyCode),
			model.HierarchyKey(entities[j].HierarchyCode),
		)
		if cmp != 0 {
			return cmp < 0
		}
		return entities[i].Clave < entities[j].Clave
	})

	byClave := make(map[string]string, len(entities))
	bySiglas := make(map[string]string, len(entities))
	byNombre := make(map[string]string, len(entities))
	for _, e := range entities {
		byClave[NormalizeKey(e.Clave)] = e.Clave
		// Siglas are not guaranteed unique across the two catalogs; first
		// entry in hierarchical order wins, and clave matches take
		// precedence over siglas anyway.
		if e.Siglas != "" {
			key := NormalizeKey(e.Siglas)
			if _, dup := bySiglas[key]; !dup {
				bySiglas[key] = e.Clave
			}
		}
		if e.Nombre != "" {
			key := NormalizeKey(e.Nombre)
			if _, dup := byNombre[key]; !dup {
				byNombre[key] = e.Clave
			}
		}
	}

	c.entities = entities
	c.byClave = byClave
	c.bySiglas = bySiglas
	c.byNombre = byNombre
	c.loaded = true
	return nil
}

// Resolve maps any of clave, siglas or nombre (case-, diacritics- and
// whitespace-insensitive) to the canonical clave. Matching precedence is
// exact clave, then exact siglas, then exact nombre; partial matches are
// never guessed.
func (c *Catalog) Resolve(ctx context.Context, identifier string) (string, error) {
	key := NormalizeKey(identifier)
	if key == "" {
		return "", eris.Wrap(ErrEntityNotFound, "empty identifier")
	}

	if err := c.ensure(ctx); err != nil {
		return "", err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if clave, ok := c.byClave[key]; ok {
		return clave, nil
	}
	if clave, ok := c.bySiglas[key]; ok {
		return clave, nil
	}
	if clave, ok := c.byNombre[key]; ok {
		return clave, nil
	}
	return "", eris.Wrapf(ErrEntityNotFound, "identifier %q", identifier)
}

// Display returns the presentation label for a clave: siglas, falling back to
// nombre, then to the clave itself when the entity is unknown or unlabeled.
func (c *Catalog) Display(ctx context.Context, clave string) string {
	if err := c.ensure(ctx); err != nil {
		return clave
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entities {
		if e.Clave == clave {
			if e.Siglas != "" {
				return e.Siglas
			}
			if e.Nombre != "" {
				return e.Nombre
			}
			return e.Clave
		}
	}
	return clave
}

// HierarchyKey returns the numeric sort key for a clave's hierarchy code.
// Unknown claves return nil and sort after every cataloged entity.
func (c *Catalog) HierarchyKey(ctx context.Context, clave string) []int {
	e, err := c.Get(ctx, clave)
	if err != nil {
		return nil
	}
	return model.HierarchyKey(e.HierarchyCode)
}

// Get returns the full entity for a clave.
func (c *Catalog) Get(ctx context.Context, clave string) (model.Entity, error) {
	if err := c.ensure(ctx); err != nil {
		return model.Entity{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entities {
		if e.Clave == clave {
			return e, nil
		}
	}
	return model.Entity{}, eris.Wrapf(ErrEntityNotFound, "clave %q", clave)
}

// List returns all entities in hierarchical order: dotted hierarchy codes are
// compared segment by segment as integers, so "1.2" precedes "1.10".
func (c *Catalog) List(ctx context.Context) ([]model.Entity, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Entity, len(c.entities))
	copy(out, c.entities)
	return out, nil
}
