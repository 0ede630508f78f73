package schedule

import (
	"testing"

	"gameweek/internal/model"
)

func place(name string, first, last int) Placement {
	return Placement{Event: model.Event{ID: name, Name: name}, FirstCol: first, LastCol: last}
}

func TestPack(t *testing.T) {
	tests := []struct {
		name         string
		items        []Placement
		maxRows      int
		wantRows     [][]string
		wantOverflow []string
	}{
		{
			name:     "empty",
			items:    nil,
			maxRows:  3,
			wantRows: nil,
		},
		{
			name:     "disjoint events share one row",
			items:    []Placement{place("C", 4, 6), place("A", 0, 1), place("B", 2, 3)},
			maxRows:  3,
			wantRows: [][]string{{"A", "B", "C"}},
		},
		{
			name:     "touching columns overlap",
			items:    []Placement{place("A", 0, 2), place("B", 2, 4)},
			maxRows:  3,
			wantRows: [][]string{{"A"}, {"B"}},
		},
		{
			name: "wider first and overflow past cap",
			items: []Placement{
				place("A", 0, 2),
				place("B", 1, 3),
				place("C", 3, 4),
				place("D", 0, 6),
				place("E", 2, 2),
			},
			maxRows:      3,
			wantRows:     [][]string{{"D"}, {"A", "C"}, {"B"}},
			wantOverflow: []string{"E"},
		},
		{
			name:         "zero cap defaults to three rows",
			items:        []Placement{place("A", 0, 6), place("B", 0, 6), place("C", 0, 6), place("D", 0, 6)},
			maxRows:      0,
			wantRows:     [][]string{{"A"}, {"B"}, {"C"}},
			wantOverflow: []string{"D"},
		},
		{
			name:         "single row cap",
			items:        []Placement{place("A", 0, 3), place("B", 2, 5), place("C", 5, 6)},
			maxRows:      1,
			wantRows:     [][]string{{"A", "C"}},
			wantOverflow: []string{"B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, overflow := Pack(tt.items, tt.maxRows)
			if len(rows) != len(tt.wantRows) {
				t.Fatalf("rows = %d, want %d", len(rows), len(tt.wantRows))
			}
			for i := range rows {
				if !equalStrings(names(rows[i]), tt.wantRows[i]) {
					t.Errorf("row %d = %v, want %v", i, names(rows[i]), tt.wantRows[i])
				}
			}
			if !equalStrings(names(overflow), tt.wantOverflow) {
				t.Errorf("overflow = %v, want %v", names(overflow), tt.wantOverflow)
			}
		})
	}
}

func TestPackRowsNeverCollide(t *testing.T) {
	items := []Placement{
		place("A", 0, 2), place("B", 1, 1), place("C", 2, 5),
		place("D", 3, 3), place("E", 4, 6), place("F", 6, 6),
		place("G", 0, 0), place("H", 5, 6),
	}
	rows, overflow := Pack(items, 3)

	total := len(overflow)
	for _, row := range rows {
		total += len(row)
		for i := range row {
			for j := i + 1; j < len(row); j++ {
				if row[i].Collides(row[j]) {
					t.Errorf("%s and %s collide in one row", row[i].Event.Name, row[j].Event.Name)
				}
			}
		}
	}
	if total != len(items) {
		t.Errorf("placed %d items, want %d", total, len(items))
	}
	if len(rows) > 3 {
		t.Errorf("rows = %d, want at most 3", len(rows))
	}
}

func TestPackDoesNotReorderInput(t *testing.T) {
	items := []Placement{place("B", 3, 4), place("A", 0, 1)}
	Pack(items, 3)
	if items[0].Event.Name != "B" {
		t.Error("Pack must not sort the caller's slice")
	}
}
