package model

// EntityOverlap is one entity's share of a conflict group. Implicated is the
// union of every non-empty pairwise overlap this entity participates in, so an
// entity overlapping two other entities in different quincenas reports both.
type EntityOverlap struct {
	EntityClave string      `json:"ente"`
	Record      LaborRecord `json:"registro"`
	Implicated  PeriodSet   `json:"quincenas"`
}

// ConflictGroup is the derived finding for one RFC: the entities whose active
// periods genuinely overlap, and which quincenas are implicated. Multi-entity
// presence with disjoint periods never produces a group.
type ConflictGroup struct {
	RFC        string          `json:"rfc"`
	Nombre     string          `json:"nombre"`
	Entities   []EntityOverlap `json:"entes"`
	Implicated PeriodSet       `json:"quincenas"`
}

// Claves returns the implicated entity claves in group order.
func (g *ConflictGroup) Claves() []string {
	out := make([]string, len(g.Entities))
	for i, e := range g.Entities {
		out[i] = e.EntityClave
	}
	return out
}
