// Package dataset loads hive-scale weight observations into an
// immutable in-memory table.
//
// A Table is read once from a delimited file at startup and shared
// read-only by every downstream fitting and plotting step. The two
// grouping columns (scale and site) are interned to categorical level
// sets, and each scale is required to belong to exactly one site.
package dataset

import (
	"sort"
	"time"
)

// Observation is a single hive-scale weight reading.
type Observation struct {
	Time   time.Time // rounded calendar timestamp
	Unix   float64   // seconds since epoch, the regression covariate
	Scale  string    // sensor identifier, categorical
	Site   string    // apiary location, categorical
	Weight float64   // normalized colony weight
}

// Table holds the loaded observations in column form plus the interned
// categorical levels. Tables are never mutated after Load returns.
type Table struct {
	Times   []time.Time
	Unix    []float64
	Weight  []float64
	ScaleID []int // index into Scales
	SiteID  []int // index into Sites

	Scales []string // sorted level set
	Sites  []string // sorted level set

	// SiteOfScale maps a scale level index to its (unique) site level
	// index, established by the nesting check during load.
	SiteOfScale []int
}

func (t *Table) Len() int { return len(t.Unix) }

// Row reconstructs the i-th observation.
func (t *Table) Row(i int) Observation {
	return Observation{
		Time:   t.Times[i],
		Unix:   t.Unix[i],
		Scale:  t.Scales[t.ScaleID[i]],
		Site:   t.Sites[t.SiteID[i]],
		Weight: t.Weight[i],
	}
}

// UnixRange returns the covariate span.
func (t *Table) UnixRange() (min, max float64) {
	if t.Len() == 0 {
		return 0, 0
	}
	min, max = t.Unix[0], t.Unix[0]
	for _, v := range t.Unix {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// levelSet interns values into a sorted level slice and returns the
// per-row level indices. Sorting keeps the coding stable across loads
// of the same file.
func levelSet(values []string) (levels []string, idx []int) {
	seen := make(map[string]struct{}, 16)
	for _, v := range values {
		seen[v] = struct{}{}
	}
	levels = make([]string, 0, len(seen))
	for v := range seen {
		levels = append(levels, v)
	}
	sort.Strings(levels)

	pos := make(map[string]int, len(levels))
	for i, v := range levels {
		pos[v] = i
	}
	idx = make([]int, len(values))
	for i, v := range values {
		idx[i] = pos[v]
	}
	return levels, idx
}
