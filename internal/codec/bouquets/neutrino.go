package bouquets

import (
	"encoding/xml"
	"os"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/demon-editor/core/internal/codec"
	"github.com/demon-editor/core/internal/model"
)

// Neutrino keeps one XML document per bouquet family: bouquets.xml for
// the provider lists, ubouquets.xml for user bouquets, webtv.xml for
// web streams. Bouquet order inside the document is significant.

type neutrinoDoc struct {
	XMLName  xml.Name     `xml:"zapit"`
	Bouquets []neutrinoBq `xml:"Bouquet"`
}

type neutrinoBq struct {
	Name     string       `xml:"name,attr"`
	Hidden   string       `xml:"hidden,attr,omitempty"`
	Locked   string       `xml:"locked,attr,omitempty"`
	Services []neutrinoSv `xml:"S"`
}

type neutrinoSv struct {
	SSID string `xml:"i,attr"`
	Name string `xml:"n,attr"`
	TSID string `xml:"t,attr"`
	ONID string `xml:"on,attr"`
	URL  string `xml:"u,attr,omitempty"`
}

// ReadNeutrinoGroup parses one Neutrino bouquet document.
func ReadNeutrinoGroup(path string, t model.BouquetType) (*model.BouquetGroup, []model.Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &codec.MissingDataError{Path: path}
		}
		return nil, nil, err
	}
	var doc neutrinoDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, nil, &codec.FormatError{Path: path, Msg: err.Error()}
	}
	group := &model.BouquetGroup{Name: groupName(t), Type: t}
	var synthesized []model.Service
	for _, nb := range doc.Bouquets {
		bq := &model.Bouquet{
			Name:   nb.Name,
			Type:   t,
			Hidden: nb.Hidden == "1",
			Locked: nb.Locked == "1",
		}
		for _, sv := range nb.Services {
			if sv.URL != "" {
				favID := sv.URL
				synthesized = append(synthesized, model.Service{
					FavID: favID, RefID: sv.URL, Name: sv.Name, Type: model.TypeIPTV,
				})
				bq.Services = append(bq.Services, favID)
				continue
			}
			favID := strings.ToLower(sv.SSID + ":" + sv.TSID + ":" + sv.ONID)
			bq.Services = append(bq.Services, favID)
		}
		group.Bouquets = append(group.Bouquets, bq)
	}
	return group, synthesized, nil
}

// WriteNeutrinoGroup writes one Neutrino bouquet document, preserving
// bouquet order.
func WriteNeutrinoGroup(path string, group *model.BouquetGroup, lookup func(string) (model.Service, bool)) error {
	doc := neutrinoDoc{}
	for _, bq := range group.Bouquets {
		nb := neutrinoBq{Name: bq.Name}
		if bq.Hidden {
			nb.Hidden = "1"
		}
		if bq.Locked {
			nb.Locked = "1"
		}
		for _, favID := range bq.Services {
			svc, ok := lookup(favID)
			if !ok {
				continue
			}
			if svc.Type == model.TypeIPTV {
				nb.Services = append(nb.Services, neutrinoSv{Name: svc.Name, URL: svc.RefID})
				continue
			}
			parts := strings.SplitN(favID, ":", 3)
			sv := neutrinoSv{SSID: parts[0], Name: svc.Name}
			if len(parts) == 3 {
				sv.TSID = parts[1]
				sv.ONID = parts[2]
			}
			nb.Services = append(nb.Services, sv)
		}
		doc.Bouquets = append(doc.Bouquets, nb)
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
