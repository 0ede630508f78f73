package schedule

import (
	"sort"

	"gameweek/internal/model"
)

// DefaultMaxRows is the number of event rows a week view shows.
const DefaultMaxRows = 3

// Placement is an occurrence laid out on a week grid. Columns are day
// offsets 0..6 within the week, inclusive.
type Placement struct {
	Event           model.Event `json:"event"`
	Span            Span        `json:"span"`
	FirstCol        int         `json:"first_col"`
	LastCol         int         `json:"last_col"`
	ContinuesBefore bool        `json:"continues_before"`
	ContinuesAfter  bool        `json:"continues_after"`
}

// Width is the number of grid columns covered.
func (p Placement) Width() int {
	return p.LastCol - p.FirstCol + 1
}

// Collides reports whether two placements share a column.
func (p Placement) Collides(o Placement) bool {
	return p.FirstCol <= o.LastCol && o.FirstCol <= p.LastCol
}

// Pack lays placements out into non-overlapping rows with a greedy
// first-fit pass. Items are taken by first column, wider first on ties,
// then by name. Each item goes into the first row whose last item ends
// before it begins; a new row is opened while fewer than maxRows exist.
// Anything that still does not fit is returned as overflow.
func Pack(items []Placement, maxRows int) (rows [][]Placement, overflow []Placement) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	sorted := make([]Placement, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.FirstCol != b.FirstCol {
			return a.FirstCol < b.FirstCol
		}
		if a.Width() != b.Width() {
			return a.Width() > b.Width()
		}
		if a.Event.Name != b.Event.Name {
			return a.Event.Name < b.Event.Name
		}
		return a.Event.ID < b.Event.ID
	})

	rowEnd := make([]int, 0, maxRows)
	for _, it := range sorted {
		placed := false
		for r := range rows {
			if rowEnd[r] < it.FirstCol {
				rows[r] = append(rows[r], it)
				rowEnd[r] = it.LastCol
				placed = true
				break
			}
		}
		if placed {
			continue
		}
		if len(rows) < maxRows {
			rows = append(rows, []Placement{it})
			rowEnd = append(rowEnd, it.LastCol)
			continue
		}
		overflow = append(overflow, it)
	}
	return rows, overflow
}
