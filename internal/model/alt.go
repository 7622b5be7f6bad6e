package model

import (
	"fmt"
	"strings"
)

// altStem returns the two-digit file stem ("de01".."de99") carried in an
// Alt fav_id, or "" for non-Alt entries.
func altStem(favID string) string {
	if v, ok := strings.CutPrefix(favID, "alt:de"); ok && len(v) >= 2 {
		return "de" + v[:2]
	}
	return ""
}

// nextAltIndex picks the next free deNN index within the profile.
func (st *Store) nextAltIndex() (int, error) {
	used := make(map[string]struct{})
	for id, s := range st.services {
		if s.Type == TypeAlt {
			if stem := altStem(id); stem != "" {
				used[stem] = struct{}{}
			}
		}
	}
	for i := 1; i <= 99; i++ {
		stem := fmt.Sprintf("de%02d", i)
		if _, taken := used[stem]; !taken {
			return i, nil
		}
	}
	return 0, &ConflictError{Kind: "alternative", Existing: "de99", Incoming: "de100"}
}

// AddAlternatives wraps a real service into a new Alt pseudo-service and
// replaces the bouquet entry with the Alt id. The original service stays
// in the main list and becomes the Alt's first fallback.
func (st *Store) AddAlternatives(bouquetID, favID string) (Service, error) {
	target, ok := st.services[favID]
	if !ok {
		return Service{}, fmt.Errorf("%w: %s", ErrUnknownService, favID)
	}
	if target.Type == TypeAlt {
		return Service{}, &ConflictError{Kind: "alternative", Existing: favID, Incoming: favID}
	}
	b, ok := st.Bouquet(bouquetID)
	if !ok {
		return Service{}, fmt.Errorf("%w: %s", ErrUnknownBouquet, bouquetID)
	}
	idx, err := st.nextAltIndex()
	if err != nil {
		return Service{}, err
	}
	alt := Service{
		FavID:   fmt.Sprintf("alt:de%02d:%s", idx, favID),
		Name:    target.Name,
		Type:    TypeAlt,
		Pos:     target.Pos,
		AltRefs: []string{favID},
	}
	if err := st.AddService(alt); err != nil {
		return Service{}, err
	}
	replaced := false
	for i, id := range b.Services {
		if id == favID {
			b.Services[i] = alt.FavID
			replaced = true
			break
		}
	}
	if !replaced {
		// Service not in this bouquet yet; append the Alt instead.
		b.Services = append(b.Services, alt.FavID)
	}
	return alt, nil
}

// AppendAlternative adds another fallback to an existing Alt. Nesting
// Alts is forbidden.
func (st *Store) AppendAlternative(altID, favID string) error {
	alt, ok := st.services[altID]
	if !ok || alt.Type != TypeAlt {
		return fmt.Errorf("%w: %s", ErrUnknownService, altID)
	}
	child, ok := st.services[favID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, favID)
	}
	if child.Type == TypeAlt {
		return &ConflictError{Kind: "alternative", Existing: altID, Incoming: favID}
	}
	if containsID(alt.AltRefs, favID) {
		return nil
	}
	alt.AltRefs = append(alt.AltRefs, favID)
	st.services[altID] = alt
	return nil
}

// ValidateAlternatives checks the Alt graph invariants: every referenced
// child exists and no Alt references another Alt.
func (st *Store) ValidateAlternatives() error {
	for id, s := range st.services {
		if s.Type != TypeAlt {
			continue
		}
		for _, ref := range s.AltRefs {
			child, ok := st.services[ref]
			if !ok {
				return fmt.Errorf("alternative %s: %w: %s", id, ErrUnknownService, ref)
			}
			if child.Type == TypeAlt {
				return &ConflictError{Kind: "alternative", Existing: id, Incoming: ref}
			}
		}
	}
	return nil
}
