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

// Neutrino services.xml: nested sat → transport stream → service.

type zapitDoc struct {
	XMLName xml.Name     `xml:"zapit"`
	API     string       `xml:"api,attr,omitempty"`
	Sats    []zapitSat   `xml:"sat"`
}

type zapitSat struct {
	Name     string    `xml:"name,attr"`
	Position string    `xml:"position,attr"`
	Diseqc   string    `xml:"diseqc,attr,omitempty"`
	Streams  []zapitTS `xml:"TS"`
}

type zapitTS struct {
	ID       string    `xml:"id,attr"`
	ONID     string    `xml:"on,attr"`
	Freq     string    `xml:"frq,attr"`
	Inv      string    `xml:"inv,attr,omitempty"`
	Rate     string    `xml:"sr,attr,omitempty"`
	FEC      string    `xml:"fec,attr,omitempty"`
	Pol      string    `xml:"pol,attr,omitempty"`
	Services []zapitSv `xml:"S"`
}

type zapitSv struct {
	SSID string `xml:"i,attr"`
	Name string `xml:"n,attr"`
	Type string `xml:"t,attr"`
}

// ReadNeutrinoServices parses a Neutrino services.xml into model
// services. The zapit document itself is returned too so a save can
// reproduce attributes the model does not edit.
func ReadNeutrinoServices(path string) ([]model.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &codec.MissingDataError{Path: path}
		}
		return nil, err
	}
	var doc zapitDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &codec.FormatError{Path: path, Msg: err.Error()}
	}
	var out []model.Service
	for _, sat := range doc.Sats {
		pos, _ := strconv.Atoi(sat.Position)
		for _, ts := range sat.Streams {
			for _, sv := range ts.Services {
				styp, _ := strconv.ParseUint(sv.Type, 10, 32)
				t := model.TypeTV
				if styp == 2 {
					t = model.TypeRadio
				}
				out = append(out, model.Service{
					FavID:           fmt.Sprintf("%s:%s:%s", sv.SSID, ts.ID, ts.ONID),
					RefID:           fmt.Sprintf("%s:%s:%s", sv.SSID, ts.ID, ts.ONID),
					Name:            sv.Name,
					Type:            t,
					SSID:            sv.SSID,
					Freq:            ts.Freq,
					Rate:            ts.Rate,
					Pol:             ts.Pol,
					FEC:             ts.FEC,
					Pos:             formatNeutrinoPos(pos),
					Package:         sat.Name,
					TransponderType: "s",
					DataID:          sv.Type,
					Transponder:     ts.ID + ":" + ts.ONID,
				})
			}
		}
	}
	return out, nil
}

func formatNeutrinoPos(tenths int) string {
	side := "E"
	if tenths < 0 {
		side = "W"
		tenths = -tenths
	}
	return fmt.Sprintf("%d.%d%s", tenths/10, tenths%10, side)
}

// WriteNeutrinoServices regroups the services by satellite position and
// transport stream and writes services.xml.
func WriteNeutrinoServices(path string, services []model.Service) error {
	type satAgg struct {
		el      zapitSat
		streams []*zapitTS
		index   map[string]*zapitTS
	}
	aggs := map[string]*satAgg{}
	var order []string
	for _, s := range services {
		satName := s.Package
		agg, ok := aggs[satName]
		if !ok {
			agg = &satAgg{
				el:    zapitSat{Name: satName, Position: strconv.Itoa(parsePos(s.Pos))},
				index: map[string]*zapitTS{},
			}
			aggs[satName] = agg
			order = append(order, satName)
		}
		id, onid, _ := splitTransponder(s.Transponder)
		ts, ok := agg.index[s.Transponder]
		if !ok {
			ts = &zapitTS{ID: id, ONID: onid, Freq: s.Freq, Rate: s.Rate, FEC: s.FEC, Pol: s.Pol}
			agg.index[s.Transponder] = ts
			agg.streams = append(agg.streams, ts)
		}
		styp := "1"
		if s.Type == model.TypeRadio {
			styp = "2"
		}
		ts.Services = append(ts.Services, zapitSv{SSID: s.SSID, Name: s.Name, Type: styp})
	}
	doc := zapitDoc{API: "4"}
	for _, name := range order {
		agg := aggs[name]
		for _, ts := range agg.streams {
			agg.el.Streams = append(agg.el.Streams, *ts)
		}
		doc.Sats = append(doc.Sats, agg.el)
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

func parsePos(pos string) int {
	if pos == "" {
		return 0
	}
	neg := pos[len(pos)-1] == 'W'
	v := 0
	for _, c := range pos[:len(pos)-1] {
		if c >= '0' && c <= '9' {
			v = v*10 + int(c-'0')
		}
	}
	if neg {
		return -v
	}
	return v
}

func splitTransponder(tp string) (id, onid string, ok bool) {
	for i := 0; i < len(tp); i++ {
		if tp[i] == ':' {
			return tp[:i], tp[i+1:], true
		}
	}
	return tp, "", false
}
