package model

import (
	"strconv"
	"strings"
)

// EntityDomain distinguishes the two catalogs sharing one identity space.
type EntityDomain string

const (
	DomainState     EntityDomain = "estatal"
	DomainMunicipal EntityDomain = "municipal"
)

// Entity is a government body from either the state or municipal catalog.
// Clave is the canonical key, unique across the union of both catalogs and
// immutable once assigned.
type Entity struct {
	Clave         string       `json:"clave" yaml:"clave"`
	Siglas        string       `json:"siglas" yaml:"siglas"`
	Nombre        string       `json:"nombre" yaml:"nombre"`
	HierarchyCode string       `json:"jerarquia" yaml:"jerarquia"`
	Domain        EntityDomain `json:"ambito" yaml:"ambito"`
}

// HierarchyKey parses a dotted hierarchy code ("1.2.3") into its numeric
// segments for ordering. "1.2" must sort before "1.10", which a lexicographic
// comparison of the raw strings would invert. Codes with non-numeric or empty
// segments return nil and sort after every valid code.
func HierarchyKey(code string) []int {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	parts := strings.Split(code, ".")
	key := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil
		}
		key[i] = n
	}
	return key
}

// CompareHierarchy orders two hierarchy keys segment by segment. A nil key
// sorts after any valid key; two nil keys compare equal.
func CompareHierarchy(a, b []int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
