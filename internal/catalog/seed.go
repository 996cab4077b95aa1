package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ofs-tlaxcala/scil/internal/model"
)

// Seed is the YAML layout for catalog administration files. Both sections
// share one identity space: claves must be unique across the union.
type Seed struct {
	Entes      []model.Entity `yaml:"entes"`
	Municipios []model.Entity `yaml:"municipios"`
}

// LoadSeedFile parses a catalog seed file and returns the combined entity
// list with domains defaulted per section.
func LoadSeedFile(path string) ([]model.Entity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read seed %s", path)
	}

	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, eris.Wrapf(err, "catalog: parse seed %s", path)
	}

	seen := make(map[string]bool, len(seed.Entes)+len(seed.Municipios))
	var out []model.Entity

	appendAll := func(entities []model.Entity, domain model.EntityDomain) error {
		for _, e := range entities {
			if e.Clave == "" {
				return eris.Errorf("catalog: seed entry %q missing clave", e.Nombre)
			}
			if seen[e.Clave] {
				return eris.Errorf("catalog: duplicate clave %q in seed", e.Clave)
			}
			seen[e.Clave] = true
			if e.Domain == "" {
				e.Domain = domain
			}
			out = append(out, e)
		}
		return nil
	}

	if err := appendAll(seed.Entes, model.DomainState); err != nil {
		return nil, err
	}
	if err := appendAll(seed.Municipios, model.DomainMunicipal); err != nil {
		return nil, err
	}

	return out, nil
}
