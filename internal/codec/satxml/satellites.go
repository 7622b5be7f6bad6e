// Package satxml reads and writes satellites.xml and webtv.xml, and the
// Neutrino services.xml database that shares their nesting.
package satxml

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"

	"github.com/google/renameio/v2"

	"github.com/demon-editor/core/internal/codec"
	"github.com/demon-editor/core/internal/model"
)

type satellitesDoc struct {
	XMLName xml.Name `xml:"satellites"`
	Sats    []satEl  `xml:"sat"`
}

type satEl struct {
	Name         string  `xml:"name,attr"`
	Flags        string  `xml:"flags,attr"`
	Position     string  `xml:"position,attr"`
	Transponders []tpEl  `xml:"transponder"`
}

type tpEl struct {
	Frequency    string `xml:"frequency,attr"`
	SymbolRate   string `xml:"symbol_rate,attr"`
	Polarization string `xml:"polarization,attr"`
	FecInner     string `xml:"fec_inner,attr"`
	System       string `xml:"system,attr"`
	Modulation   string `xml:"modulation,attr"`
	PlsMode      string `xml:"pls_mode,attr,omitempty"`
	PlsCode      string `xml:"pls_code,attr,omitempty"`
	IsID         string `xml:"is_id,attr,omitempty"`
	T2miPlpID    string `xml:"t2mi_plp_id,attr,omitempty"`
}

// ReadSatellites parses a satellites.xml (or webtv.xml) document.
// Position is a signed tenths-of-a-degree ASCII integer.
func ReadSatellites(path string) ([]model.Satellite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &codec.MissingDataError{Path: path}
		}
		return nil, err
	}
	var doc satellitesDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &codec.FormatError{Path: path, Msg: err.Error()}
	}
	out := make([]model.Satellite, 0, len(doc.Sats))
	for _, s := range doc.Sats {
		pos, err := strconv.Atoi(s.Position)
		if err != nil {
			return nil, &codec.FormatError{Path: path, Msg: fmt.Sprintf("sat %q: bad position %q", s.Name, s.Position)}
		}
		sat := model.Satellite{Name: s.Name, Flags: s.Flags, Position: pos}
		for _, t := range s.Transponders {
			sat.Transponders = append(sat.Transponders, model.Transponder{
				Freq:         t.Frequency,
				SymbolRate:   t.SymbolRate,
				Polarization: t.Polarization,
				FecInner:     t.FecInner,
				System:       t.System,
				Modulation:   t.Modulation,
				PlsMode:      t.PlsMode,
				PlsCode:      t.PlsCode,
				IsID:         t.IsID,
				T2miPlpID:    t.T2miPlpID,
			})
		}
		out = append(out, sat)
	}
	return out, nil
}

// WriteSatellites writes the document atomically.
func WriteSatellites(path string, sats []model.Satellite) error {
	doc := satellitesDoc{}
	for _, s := range sats {
		el := satEl{Name: s.Name, Flags: s.Flags, Position: strconv.Itoa(s.Position)}
		for _, t := range s.Transponders {
			el.Transponders = append(el.Transponders, tpEl{
				Frequency:    t.Freq,
				SymbolRate:   t.SymbolRate,
				Polarization: t.Polarization,
				FecInner:     t.FecInner,
				System:       t.System,
				Modulation:   t.Modulation,
				PlsMode:      t.PlsMode,
				PlsCode:      t.PlsCode,
				IsID:         t.IsID,
				T2miPlpID:    t.T2miPlpID,
			})
		}
		doc.Sats = append(doc.Sats, el)
	}
	body, err := xml.MarshalIndent(doc, "", "\t")
	if err != nil {
		return err
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup() //nolint:errcheck
	if _, err := t.Write([]byte(xml.Header + string(body) + "\n")); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}
