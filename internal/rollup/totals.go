package rollup

import (
	"strconv"

	"hutracker/internal/domain"
)

// Totals are the hour sums of every story sharing an initiative name.
type Totals struct {
	Initiative string  `json:"initiative"`
	Stories    int     `json:"stories"`
	Original   float64 `json:"original"`
	Completed  float64 `json:"completed"`
	Remaining  float64 `json:"remaining"`
}

// GroupTotals groups items by initiative name in first-seen order. Items
// without a name fall under the default initiative.
func GroupTotals(items []domain.WorkItem) []Totals {
	idx := map[string]int{}
	out := []Totals{}
	for _, it := range items {
		name := it.Initiative
		if name == "" {
			name = domain.DefaultInitiative
		}
		i, ok := idx[name]
		if !ok {
			i = len(out)
			idx[name] = i
			out = append(out, Totals{Initiative: name})
		}
		out[i].Stories++
		out[i].Original += it.OriginalEstimate
		out[i].Completed += it.CompletedWork
		out[i].Remaining += it.RemainingWork
	}
	return out
}

// AvailableSprints lists the sprint choices for an initiative: the
// unassigned bucket, every sprint already used by an item, then the planned
// sprint numbers.
func AvailableSprints(items []domain.WorkItem, totalSprints int) []string {
	seen := map[string]bool{domain.DefaultInitiative: true}
	out := []string{domain.DefaultInitiative}
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, it := range items {
		add(it.Sprint)
	}
	for n := 1; n <= totalSprints; n++ {
		add(strconv.Itoa(n))
	}
	return out
}
