package model

import "sort"

// SortColumn selects the bouquet-details column an explicit sort acts on.
type SortColumn int

const (
	SortByName SortColumn = iota
	SortByPackage
	SortByType
	SortByPosition
)

// sortKey returns the comparable value for a column and whether it is
// present. Absent values sort last in ascending order.
func sortKey(s Service, col SortColumn) (string, bool) {
	switch col {
	case SortByPackage:
		return s.Package, s.Package != ""
	case SortByType:
		return string(s.Type), s.Type != ""
	case SortByPosition:
		return s.Pos, s.Pos != ""
	default:
		return s.Name, s.Name != ""
	}
}

// SortBouquet sorts a bouquet's rows on an explicit user action. When
// indices is non-empty only those rows are reordered among themselves,
// preserving every surrounding position.
func (st *Store) SortBouquet(bouquetID string, col SortColumn, ascending bool, indices []int) error {
	b, ok := st.Bouquet(bouquetID)
	if !ok {
		return ErrUnknownBouquet
	}
	sel := indices
	if len(sel) == 0 {
		sel = make([]int, len(b.Services))
		for i := range sel {
			sel[i] = i
		}
	}
	sort.Ints(sel)

	picked := make([]string, 0, len(sel))
	for _, i := range sel {
		if i < 0 || i >= len(b.Services) {
			return ErrUnknownService
		}
		picked = append(picked, b.Services[i])
	}
	less := func(a, c string) bool {
		ka, oka := sortKey(st.services[a], col)
		kc, okc := sortKey(st.services[c], col)
		if oka != okc {
			return oka // present before absent, regardless of direction
		}
		if ascending {
			return ka < kc
		}
		return ka > kc
	}
	sort.SliceStable(picked, func(i, j int) bool { return less(picked[i], picked[j]) })
	for n, i := range sel {
		b.Services[i] = picked[n]
	}
	return nil
}
