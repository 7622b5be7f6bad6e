package model

import (
	"sort"
	"strconv"
	"strings"
)

// AutoBouquetBy selects the grouping key for generated bouquets.
type AutoBouquetBy int

const (
	ByPosition AutoBouquetBy = iota
	ByPackage
	ByServiceType
)

// PositionSortKey maps an orbital position string to a sortable float.
// Terrestrial and cable sort after every satellite in descending order.
func PositionSortKey(pos string) float64 {
	switch pos {
	case "T":
		return -181.0
	case "C":
		return -182.0
	}
	west := strings.HasSuffix(pos, "W")
	v, err := strconv.ParseFloat(strings.TrimRight(pos, "EW"), 64)
	if err != nil {
		return -183.0
	}
	if west {
		return -v
	}
	return v
}

// GenerateBouquets groups services into new bouquets by the given key.
// For Enigma2 each generated group is split into TV and Radio bouquets;
// Data services are included only when includeData is set, which the
// front-end gates behind an explicit confirmation.
func (st *Store) GenerateBouquets(by AutoBouquetBy, includeData bool) ([]*Bouquet, error) {
	type bucket struct {
		key  string
		tv   []string
		rad  []string
	}
	buckets := make(map[string]*bucket)
	var keys []string
	for _, id := range st.order {
		s := st.services[id]
		switch s.Type {
		case TypeMarker, TypeSpace, TypeAlt:
			continue
		case TypeData:
			if !includeData {
				continue
			}
		}
		var key string
		switch by {
		case ByPosition:
			key = s.Pos
		case ByPackage:
			key = s.Package
		case ByServiceType:
			key = string(s.Type)
		}
		if key == "" {
			continue
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{key: key}
			buckets[key] = b
			keys = append(keys, key)
		}
		if s.Type == TypeRadio {
			b.rad = append(b.rad, id)
		} else {
			b.tv = append(b.tv, id)
		}
	}
	if by == ByPosition {
		sort.Slice(keys, func(i, j int) bool {
			return PositionSortKey(keys[i]) > PositionSortKey(keys[j])
		})
	} else {
		sort.Strings(keys)
	}

	var out []*Bouquet
	for _, key := range keys {
		b := buckets[key]
		if len(b.tv) > 0 {
			nb := &Bouquet{Name: key, Type: BouquetTV, Services: b.tv}
			if err := st.AddBouquet(nb); err != nil {
				return out, err
			}
			out = append(out, nb)
		}
		if len(b.rad) > 0 {
			nb := &Bouquet{Name: key, Type: BouquetRadio, Services: b.rad}
			if err := st.AddBouquet(nb); err != nil {
				return out, err
			}
			out = append(out, nb)
		}
	}
	return out, nil
}
