package model

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
)

type extraKey struct {
	Bouquet string
	FavID   string
}

// Store owns the editable state of one profile session. All mutations
// must happen on one logical thread; workers publish results as events
// and the controller applies them here.
type Store struct {
	services  map[string]Service
	order     []string // fav_ids in load order, preserved for round-trips
	groups    []*BouquetGroup
	blacklist map[string]struct{} // RefIDs of locked services
	extras    map[extraKey]string // per-bouquet display-name overrides

	savedHash uint64
}

func NewStore() *Store {
	return &Store{
		services:  make(map[string]Service),
		blacklist: make(map[string]struct{}),
		extras:    make(map[extraKey]string),
	}
}

// Load atomically replaces the whole state. Locked attributes are derived
// from blacklist membership; the file is not consulted again until save.
func (st *Store) Load(services []Service, groups []*BouquetGroup, blacklist []string) error {
	m := make(map[string]Service, len(services))
	order := make([]string, 0, len(services))
	bl := make(map[string]struct{}, len(blacklist))
	for _, id := range blacklist {
		bl[id] = struct{}{}
	}
	for _, s := range services {
		if _, dup := m[s.FavID]; dup {
			return &ConflictError{Kind: "service", Existing: s.FavID, Incoming: s.FavID}
		}
		_, s.Locked = bl[s.RefID]
		m[s.FavID] = s
		order = append(order, s.FavID)
	}
	st.services = m
	st.order = order
	st.groups = groups
	st.blacklist = bl
	st.extras = make(map[extraKey]string)
	st.savedHash = st.CurrentHash()
	return nil
}

// Service returns the entry for a fav_id.
func (st *Store) Service(favID string) (Service, bool) {
	s, ok := st.services[favID]
	return s, ok
}

// Services returns every service in load order.
func (st *Store) Services() []Service {
	out := make([]Service, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.services[id])
	}
	return out
}

// Len reports the number of services.
func (st *Store) Len() int { return len(st.services) }

// Groups returns the bouquet containers in display order.
func (st *Store) Groups() []*BouquetGroup { return st.groups }

// Blacklist returns the RefIDs of every locked service, sorted.
func (st *Store) Blacklist() []string {
	out := make([]string, 0, len(st.blacklist))
	for id := range st.blacklist {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AddService inserts a new entry; duplicate fav_ids are a conflict.
func (st *Store) AddService(s Service) error {
	if _, exists := st.services[s.FavID]; exists {
		return &ConflictError{Kind: "service", Existing: s.FavID, Incoming: s.FavID}
	}
	st.services[s.FavID] = s
	st.order = append(st.order, s.FavID)
	if s.Locked {
		st.blacklist[s.RefID] = struct{}{}
	}
	return nil
}

// UpdateService replaces the entry under favID. Bouquet and Alt
// references are keyed by fav_id, so a same-key replacement needs no
// reference rewrite; a key change rewrites every reference.
func (st *Store) UpdateService(favID string, s Service) error {
	old, ok := st.services[favID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, favID)
	}
	if s.FavID != favID {
		if _, exists := st.services[s.FavID]; exists {
			return &ConflictError{Kind: "service", Existing: s.FavID, Incoming: favID}
		}
		delete(st.services, favID)
		for i, id := range st.order {
			if id == favID {
				st.order[i] = s.FavID
			}
		}
		st.rewriteRefs(favID, s.FavID)
	}
	delete(st.blacklist, old.RefID)
	if s.Locked {
		st.blacklist[s.RefID] = struct{}{}
	}
	st.services[s.FavID] = s
	return nil
}

// RemoveService deletes the entry and cascades the deletion into every
// bouquet and every Alt payload. No dangling references survive.
func (st *Store) RemoveService(favID string) error {
	s, ok := st.services[favID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, favID)
	}
	delete(st.services, favID)
	delete(st.blacklist, s.RefID)
	st.order = removeAll(st.order, favID)
	for _, g := range st.groups {
		for _, b := range g.Bouquets {
			if containsID(b.Services, favID) {
				b.Services = removeAll(b.Services, favID)
				delete(st.extras, extraKey{Bouquet: b.ID(), FavID: favID})
			}
		}
	}
	for id, alt := range st.services {
		if alt.Type != TypeAlt || !containsID(alt.AltRefs, favID) {
			continue
		}
		alt.AltRefs = removeAll(alt.AltRefs, favID)
		st.services[id] = alt
	}
	return nil
}

func (st *Store) rewriteRefs(oldID, newID string) {
	for _, g := range st.groups {
		for _, b := range g.Bouquets {
			for i, id := range b.Services {
				if id == oldID {
					b.Services[i] = newID
				}
			}
			key := extraKey{Bouquet: b.ID(), FavID: oldID}
			if name, ok := st.extras[key]; ok {
				delete(st.extras, key)
				st.extras[extraKey{Bouquet: b.ID(), FavID: newID}] = name
			}
		}
	}
	for id, alt := range st.services {
		if alt.Type != TypeAlt {
			continue
		}
		changed := false
		for i, ref := range alt.AltRefs {
			if ref == oldID {
				alt.AltRefs[i] = newID
				changed = true
			}
		}
		if changed {
			st.services[id] = alt
		}
	}
}

// Bouquet finds a bouquet by its id.
func (st *Store) Bouquet(id string) (*Bouquet, bool) {
	for _, g := range st.groups {
		for _, b := range g.Bouquets {
			if b.ID() == id {
				return b, true
			}
		}
	}
	return nil, false
}

// AddBouquet appends a bouquet to the group of its type.
func (st *Store) AddBouquet(b *Bouquet) error {
	if _, exists := st.Bouquet(b.ID()); exists {
		return &ConflictError{Kind: "bouquet", Existing: b.Name, Incoming: b.Name}
	}
	for _, g := range st.groups {
		if g.Type == b.Type {
			g.Bouquets = append(g.Bouquets, b)
			return nil
		}
	}
	st.groups = append(st.groups, &BouquetGroup{
		Name:     groupName(b.Type),
		Type:     b.Type,
		Bouquets: []*Bouquet{b},
	})
	return nil
}

func groupName(t BouquetType) string {
	switch t {
	case BouquetRadio:
		return "Bouquets (Radio)"
	case BouquetWebTV:
		return "Bouquets (WebTV)"
	default:
		return "Bouquets (TV)"
	}
}

// RenameBouquet renames in place and migrates extra-name overrides to the
// new bouquet id. Renaming onto an existing name is a conflict.
func (st *Store) RenameBouquet(id, newName string) error {
	b, ok := st.Bouquet(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBouquet, id)
	}
	next := &Bouquet{Name: newName, Type: b.Type}
	if _, exists := st.Bouquet(next.ID()); exists && next.ID() != id {
		return &ConflictError{Kind: "bouquet", Existing: newName, Incoming: b.Name}
	}
	oldID := b.ID()
	b.Name = newName
	for key, name := range st.extras {
		if key.Bouquet == oldID {
			delete(st.extras, key)
			st.extras[extraKey{Bouquet: b.ID(), FavID: key.FavID}] = name
		}
	}
	return nil
}

// RemoveBouquet drops the bouquet and its extra-name overrides. The
// referenced services stay in the main list.
func (st *Store) RemoveBouquet(id string) error {
	for _, g := range st.groups {
		for i, b := range g.Bouquets {
			if b.ID() != id {
				continue
			}
			g.Bouquets = append(g.Bouquets[:i], g.Bouquets[i+1:]...)
			for key := range st.extras {
				if key.Bouquet == id {
					delete(st.extras, key)
				}
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownBouquet, id)
}

// MoveWithinBouquet moves one entry from src to dst index.
func (st *Store) MoveWithinBouquet(id string, src, dst int) error {
	b, ok := st.Bouquet(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBouquet, id)
	}
	if src < 0 || src >= len(b.Services) || dst < 0 || dst >= len(b.Services) {
		return fmt.Errorf("move %s: index out of range (src %d, dst %d, len %d)", id, src, dst, len(b.Services))
	}
	fav := b.Services[src]
	b.Services = append(b.Services[:src], b.Services[src+1:]...)
	b.Services = append(b.Services[:dst], append([]string{fav}, b.Services[dst:]...)...)
	return nil
}

// AssignPicon records the picon filename for a service.
func (st *Store) AssignPicon(favID, piconID string) error {
	s, ok := st.services[favID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, favID)
	}
	s.PiconID = piconID
	st.services[favID] = s
	return nil
}

// RemovePicon clears the picon assignment, returning the row to its
// pre-assignment state.
func (st *Store) RemovePicon(favID string) error {
	return st.AssignPicon(favID, "")
}

// CopyReference returns the full service reference string.
func (st *Store) CopyReference(favID string) (string, error) {
	s, ok := st.services[favID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownService, favID)
	}
	return s.RefID, nil
}

// ToggleLock flips the lock flag and keeps the blacklist in sync. The
// model is authoritative; the on-disk file is re-derived at save time.
func (st *Store) ToggleLock(favID string) error {
	s, ok := st.services[favID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, favID)
	}
	s.Locked = !s.Locked
	s.FlagsCas = SetFlag(s.FlagsCas, FlagLocked, s.Locked)
	if s.Locked {
		st.blacklist[s.RefID] = struct{}{}
	} else {
		delete(st.blacklist, s.RefID)
	}
	st.services[favID] = s
	return nil
}

// ToggleHide flips the hidden flag bit.
func (st *Store) ToggleHide(favID string) error {
	s, ok := st.services[favID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownService, favID)
	}
	s.Hidden = !s.Hidden
	s.FlagsCas = SetFlag(s.FlagsCas, FlagHidden, s.Hidden)
	st.services[favID] = s
	return nil
}

// SetExtraName stores a per-bouquet display-name override. An empty name
// or one equal to the canonical service name clears the override.
func (st *Store) SetExtraName(bouquetID, favID, name string) {
	key := extraKey{Bouquet: bouquetID, FavID: favID}
	if name == "" {
		delete(st.extras, key)
		return
	}
	if s, ok := st.services[favID]; ok && s.Name == name {
		delete(st.extras, key)
		return
	}
	st.extras[key] = name
}

// ExtraName returns the override for (bouquet, fav) if one is set. Its
// presence also drives the "extra" background annotation.
func (st *Store) ExtraName(bouquetID, favID string) (string, bool) {
	name, ok := st.extras[extraKey{Bouquet: bouquetID, FavID: favID}]
	return name, ok
}

// CurrentHash computes the stable content hash used for dirty detection.
// It covers the services map, bouquet names and bouquet sequences.
func (st *Store) CurrentHash() uint64 {
	h := fnv.New64a()
	ids := make([]string, 0, len(st.services))
	for id := range st.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := st.services[id]
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%v\x00%v\x00%s\x00%s\n",
			s.FavID, s.Name, string(s.Type), s.Package, s.FlagsCas, s.PiconID,
			s.Transponder, s.Locked, s.Hidden, s.DataID, strings.Join(s.AltRefs, "|"))
	}
	for _, g := range st.groups {
		for _, b := range g.Bouquets {
			fmt.Fprintf(h, "%s\x00%s\n", b.ID(), strings.Join(b.Services, "|"))
		}
	}
	return h.Sum64()
}

// CommitHash records the current hash after a successful load or save.
func (st *Store) CommitHash() { st.savedHash = st.CurrentHash() }

// Dirty reports whether the model differs from the last committed state.
func (st *Store) Dirty() bool { return st.savedHash != st.CurrentHash() }

func removeAll(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
