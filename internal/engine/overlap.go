package engine

import (
	"slices"
	"time"

	"github.com/rdleal/intervalst/interval"

	"officehours/internal/model"
)

// findOverlaps returns the owner's existing occurrences (in store order)
// whose [Start, End) intersects any of the added ones.
func findOverlaps(existing, added []model.Occurrence, owner model.Owner) []model.Occurrence {
	tree := interval.NewSearchTree[int](func(x, y time.Time) int { return x.Compare(y) })

	indexed := 0
	for i, occ := range existing {
		if !occ.OwnedBy(owner) {
			continue
		}
		start, end := closedSpan(occ)
		if err := tree.Insert(start, end, i); err != nil {
			continue
		}
		indexed++
	}
	if indexed == 0 {
		return nil
	}

	seen := make(map[int]bool)
	var hits []int
	for _, occ := range added {
		start, end := closedSpan(occ)
		idx, ok := tree.AllIntersections(start, end)
		if !ok {
			continue
		}
		for _, i := range idx {
			if !seen[i] {
				seen[i] = true
				hits = append(hits, i)
			}
		}
	}
	slices.Sort(hits)

	out := make([]model.Occurrence, 0, len(hits))
	for _, i := range hits {
		out = append(out, existing[i])
	}
	return out
}

// closedSpan turns [Start, End) into the closed interval the search tree
// works with, so back-to-back blocks do not count as overlapping.
func closedSpan(occ model.Occurrence) (time.Time, time.Time) {
	end := occ.End.Add(-time.Nanosecond)
	if end.Before(occ.Start) {
		end = occ.Start
	}
	return occ.Start, end
}
