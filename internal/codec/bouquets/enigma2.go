// Package bouquets reads and writes bouquet files for both receiver
// families: one file per bouquet plus a master list for Enigma2, single
// XML documents for Neutrino.
package bouquets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/demon-editor/core/internal/codec"
	"github.com/demon-editor/core/internal/model"
)

// Enigma2 bouquet line service types.
const (
	e2TypeMarker = "64"
	e2TypeSpace  = "832"
	e2TypeAlt    = "134"
	e2TypeIPTV   = "4097"
)

var fromBouquetRe = regexp.MustCompile(`FROM BOUQUET "([^"]+)"`)

// ReadGroup reads the master bouquets file of one type and every
// userbouquet it references. Synthesized services (markers, spaces,
// IPTV entries, alternatives) are returned alongside so the model can
// resolve every fav_id. Recoverable problems (a dangling alternatives
// file) come back as warnings.
func ReadGroup(dir string, t model.BouquetType) (*model.BouquetGroup, []model.Service, []codec.ItemError, error) {
	master := filepath.Join(dir, "bouquets."+string(t))
	f, err := os.Open(master)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, &codec.MissingDataError{Path: master}
		}
		return nil, nil, nil, err
	}
	defer f.Close()

	group := &model.BouquetGroup{Name: groupName(t), Type: t}
	var synthesized []model.Service
	var warns []codec.ItemError

	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#NAME") {
			continue
		}
		if !strings.HasPrefix(line, "#SERVICE") {
			continue
		}
		m := fromBouquetRe.FindStringSubmatch(line)
		if m == nil {
			return nil, nil, nil, &codec.FormatError{Path: master, Line: lineNo, Msg: "master entry without FROM BOUQUET"}
		}
		bq, svcs, w, err := readUserBouquet(filepath.Join(dir, m[1]), t)
		if err != nil {
			return nil, nil, nil, err
		}
		group.Bouquets = append(group.Bouquets, bq)
		synthesized = append(synthesized, svcs...)
		warns = append(warns, w...)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, nil, err
	}
	return group, synthesized, warns, nil
}

func groupName(t model.BouquetType) string {
	if t == model.BouquetRadio {
		return "Bouquets (Radio)"
	}
	return "Bouquets (TV)"
}

func readUserBouquet(path string, t model.BouquetType) (*model.Bouquet, []model.Service, []codec.ItemError, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil, &codec.MissingDataError{Path: path}
		}
		return nil, nil, nil, err
	}
	defer f.Close()

	stem := fileStem(filepath.Base(path))
	bq := &model.Bouquet{Type: t, File: stem}
	var synthesized []model.Service
	var warns []codec.ItemError

	sc := bufio.NewScanner(f)
	var pending *model.Service // marker/IPTV waiting for #DESCRIPTION
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \t\r")
		switch {
		case strings.HasPrefix(line, "#NAME "):
			bq.Name = line[len("#NAME "):]
		case strings.HasPrefix(line, "#DESCRIPTION"):
			desc := strings.TrimPrefix(strings.TrimPrefix(line, "#DESCRIPTION"), " ")
			if pending != nil {
				pending.Name = desc
				synthesized = append(synthesized, *pending)
				pending = nil
			}
		case strings.HasPrefix(line, "#SERVICE "):
			if pending != nil {
				synthesized = append(synthesized, *pending)
				pending = nil
			}
			payload := line[len("#SERVICE "):]
			favID, svc, warn, err := parseEntry(payload, path, lineNo)
			if err != nil {
				return nil, nil, nil, err
			}
			if warn != nil {
				warns = append(warns, *warn)
			}
			bq.Services = append(bq.Services, favID)
			if svc != nil {
				if svc.Name == "" {
					pending = svc
				} else {
					synthesized = append(synthesized, *svc)
				}
			}
		}
	}
	if pending != nil {
		synthesized = append(synthesized, *pending)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, nil, err
	}
	return bq, synthesized, warns, nil
}

// ReadUserBouquet parses a single userbouquet file outside its group,
// for imports.
func ReadUserBouquet(path string, t model.BouquetType) (*model.Bouquet, []model.Service, []codec.ItemError, error) {
	return readUserBouquet(path, t)
}

// parseEntry maps one #SERVICE payload to a fav_id and, for entries that
// exist only inside bouquet files, a synthesized service.
func parseEntry(payload, path string, lineNo int) (string, *model.Service, *codec.ItemError, error) {
	fields := strings.SplitN(payload, ":", 11)
	if len(fields) < 10 {
		return "", nil, nil, &codec.FormatError{Path: path, Line: lineNo, Msg: fmt.Sprintf("short service reference %q", payload)}
	}
	// IPTV entries carry 4097 in the reference-type field; markers,
	// spaces and alternatives carry their marker value in the flags field.
	if fields[0] == e2TypeIPTV {
		svc := &model.Service{FavID: payload, RefID: payload, Type: model.TypeIPTV}
		if len(fields) == 11 {
			if i := strings.LastIndex(fields[10], ":"); i >= 0 {
				svc.Name = fields[10][i+1:]
			}
		}
		return payload, svc, nil, nil
	}
	switch fields[1] {
	case e2TypeMarker:
		return payload, &model.Service{FavID: payload, RefID: payload, Type: model.TypeMarker}, nil, nil
	case e2TypeSpace:
		return payload, &model.Service{FavID: payload, RefID: payload, Type: model.TypeSpace, Name: " "}, nil, nil
	case e2TypeAlt:
		return parseAltEntry(payload, path)
	}
	favID, err := model.FavIDFromReference(payload)
	if err != nil {
		return "", nil, nil, &codec.FormatError{Path: path, Line: lineNo, Msg: err.Error()}
	}
	return favID, nil, nil, nil
}

// parseAltEntry resolves an alternatives file. A missing file downgrades
// the Alt to an empty group and is reported as a warning.
func parseAltEntry(payload, path string) (string, *model.Service, *codec.ItemError, error) {
	m := fromBouquetRe.FindStringSubmatch(payload)
	if m == nil {
		return "", nil, nil, &codec.FormatError{Path: path, Msg: "alternatives entry without FROM BOUQUET"}
	}
	stem := fileStem(m[1])
	favID := "alt:" + stem
	altPath := filepath.Join(filepath.Dir(path), m[1])
	name, refs, err := readAlternatives(altPath)
	svc := &model.Service{FavID: favID, RefID: payload, Type: model.TypeAlt, Name: name, AltRefs: refs}
	if err != nil {
		warn := codec.ItemError{Item: altPath, Err: err}
		svc.AltRefs = nil
		if svc.Name == "" {
			svc.Name = stem
		}
		return favID, svc, &warn, nil
	}
	return favID, svc, nil, nil
}

func readAlternatives(path string) (string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, &codec.MissingDataError{Path: path, Optional: true}
		}
		return "", nil, err
	}
	defer f.Close()
	var name string
	var refs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		switch {
		case strings.HasPrefix(line, "#NAME "):
			name = line[len("#NAME "):]
		case strings.HasPrefix(line, "#SERVICE "):
			favID, err := model.FavIDFromReference(line[len("#SERVICE "):])
			if err != nil {
				continue // tolerate foreign entries inside alternatives
			}
			refs = append(refs, favID)
		}
	}
	return name, refs, sc.Err()
}

// fileStem extracts the middle stem of "userbouquet.<stem>.tv" or
// "alternatives.<stem>.tv".
func fileStem(name string) string {
	parts := strings.Split(name, ".")
	if len(parts) < 3 {
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return strings.Join(parts[1:len(parts)-1], ".")
}

var slugRe = regexp.MustCompile(`[^a-z0-9_]+`)

// Slug derives a stable file stem from a bouquet name.
func Slug(name string) string {
	s := slugRe.ReplaceAllString(strings.ToLower(name), "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "bouquet"
	}
	return s
}

// WriteGroup writes the master file, every userbouquet file and every
// alternatives file for one group. lookup resolves fav_ids to services;
// entries that do not resolve are skipped silently (the model guarantees
// they cannot exist after a cascade delete).
func WriteGroup(dir string, group *model.BouquetGroup, lookup func(string) (model.Service, bool)) error {
	ext := string(group.Type)
	var master strings.Builder
	fmt.Fprintf(&master, "#NAME %s\n", group.Name)
	for _, bq := range group.Bouquets {
		stem := bq.File
		if stem == "" {
			stem = Slug(bq.Name)
		}
		file := fmt.Sprintf("userbouquet.%s.%s", stem, ext)
		fmt.Fprintf(&master, "#SERVICE 1:7:1:0:0:0:0:0:0:0:FROM BOUQUET %q ORDER BY bouquet\n", file)
		if err := writeUserBouquet(filepath.Join(dir, file), bq, ext, lookup); err != nil {
			return err
		}
	}
	return atomicWrite(filepath.Join(dir, "bouquets."+ext), master.String())
}

func writeUserBouquet(path string, bq *model.Bouquet, ext string, lookup func(string) (model.Service, bool)) error {
	var b strings.Builder
	fmt.Fprintf(&b, "#NAME %s\n", bq.Name)
	for _, favID := range bq.Services {
		svc, ok := lookup(favID)
		if !ok {
			continue
		}
		switch svc.Type {
		case model.TypeMarker:
			fmt.Fprintf(&b, "#SERVICE %s\n#DESCRIPTION %s\n", svc.RefID, svc.Name)
		case model.TypeSpace:
			fmt.Fprintf(&b, "#SERVICE %s\n", svc.RefID)
		case model.TypeAlt:
			stem := altFileStem(svc)
			file := fmt.Sprintf("alternatives.%s.%s", stem, ext)
			fmt.Fprintf(&b, "#SERVICE 1:134:1:0:0:0:0:0:0:0:FROM BOUQUET %q ORDER BY bouquet\n", file)
			if err := writeAlternatives(filepath.Join(filepath.Dir(path), file), svc, lookup); err != nil {
				return err
			}
		case model.TypeIPTV:
			fmt.Fprintf(&b, "#SERVICE %s\n#DESCRIPTION %s\n", svc.RefID, svc.Name)
		default:
			fmt.Fprintf(&b, "#SERVICE %s\n", svc.RefID)
		}
	}
	return atomicWrite(path, b.String())
}

func altFileStem(svc model.Service) string {
	parts := strings.SplitN(svc.FavID, ":", 3)
	if len(parts) >= 2 && parts[0] == "alt" {
		return parts[1]
	}
	return Slug(svc.Name)
}

func writeAlternatives(path string, alt model.Service, lookup func(string) (model.Service, bool)) error {
	var b strings.Builder
	fmt.Fprintf(&b, "#NAME %s\n", alt.Name)
	for _, ref := range alt.AltRefs {
		if child, ok := lookup(ref); ok {
			fmt.Fprintf(&b, "#SERVICE %s\n", child.RefID)
		}
	}
	return atomicWrite(path, b.String())
}

func atomicWrite(path, content string) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup() //nolint:errcheck
	if _, err := io.WriteString(t, content); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}
