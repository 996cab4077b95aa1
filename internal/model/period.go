package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PeriodCount is the number of biweekly pay periods (quincenas) in a fiscal year.
const PeriodCount = 24

// FullCycleLabel replaces the period list when an employee is implicated in
// every quincena of the year.
const FullCycleLabel = "ACTIVO TODO EL EJERCICIO"

// PeriodSet is a set of active quincenas encoded as a bitmask.
// Bit i-1 corresponds to QNA<i>, for i in 1..24.
type PeriodSet uint32

const fullCycleMask = PeriodSet(1<<PeriodCount - 1)

var qnaColumn = regexp.MustCompile(`^QNA([1-9]|1[0-9]|2[0-4])$`)

// ParsePeriodColumn reports whether a normalized column name is a quincena
// column (QNA1..QNA24) and, if so, which period it refers to.
func ParsePeriodColumn(name string) (int, bool) {
	m := qnaColumn.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// With returns a copy of the set with period n (1..24) marked active.
// Out-of-range periods are ignored.
func (p PeriodSet) With(n int) PeriodSet {
	if n < 1 || n > PeriodCount {
		return p
	}
	return p | 1<<(n-1)
}

// Has reports whether period n is active.
func (p PeriodSet) Has(n int) bool {
	if n < 1 || n > PeriodCount {
		return false
	}
	return p&(1<<(n-1)) != 0
}

// Intersect returns the periods active in both sets.
func (p PeriodSet) Intersect(other PeriodSet) PeriodSet { return p & other }

// Union returns the periods active in either set.
func (p PeriodSet) Union(other PeriodSet) PeriodSet { return p | other }

// IsEmpty reports whether no period is active.
func (p PeriodSet) IsEmpty() bool { return p&fullCycleMask == 0 }

// IsFullCycle reports whether all 24 periods are active.
func (p PeriodSet) IsFullCycle() bool { return p&fullCycleMask == fullCycleMask }

// Count returns the number of active periods.
func (p PeriodSet) Count() int {
	n := 0
	for i := 1; i <= PeriodCount; i++ {
		if p.Has(i) {
			n++
		}
	}
	return n
}

// Periods returns the active period numbers in ascending order.
func (p PeriodSet) Periods() []int {
	var out []int
	for i := 1; i <= PeriodCount; i++ {
		if p.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

// Labels returns the active periods as QNA labels in ascending order.
func (p PeriodSet) Labels() []string {
	periods := p.Periods()
	out := make([]string, len(periods))
	for i, n := range periods {
		out[i] = fmt.Sprintf("QNA%d", n)
	}
	return out
}

// String renders the set for reports: a comma-separated QNA list, or the
// full-cycle label when every period of the year is active.
func (p PeriodSet) String() string {
	if p.IsFullCycle() {
		return FullCycleLabel
	}
	return strings.Join(p.Labels(), ", ")
}
