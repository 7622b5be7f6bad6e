package acquire

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/demon-editor/core/internal/model"
)

// SatSource selects the listing site to scrape.
type SatSource int

const (
	LyngSat SatSource = iota
	KingOfSat
	FlySat
)

func (s SatSource) String() string {
	switch s {
	case LyngSat:
		return "LyngSat"
	case KingOfSat:
		return "KingOfSat"
	case FlySat:
		return "FlySat"
	default:
		return "unknown"
	}
}

func (s SatSource) listURL() string {
	switch s {
	case KingOfSat:
		return "https://en.kingofsat.net/satellites.php"
	case FlySat:
		return "https://flysat.com/en/satellitelist"
	default:
		return "https://www.lyngsat.com/tracker/index.html"
	}
}

// SatelliteLink is one row of a listing site's satellite index.
type SatelliteLink struct {
	Name     string
	URL      string
	Position int // tenths of a degree, west negative
	Flags    string
}

var positionRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*°?\s*([EW])`)

// ParsePosition converts "19.2°E" style text into signed tenths.
func ParsePosition(s string) (int, bool) {
	m := positionRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	deg, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	pos := int(deg*10 + 0.5)
	if m[2] == "W" {
		pos = -pos
	}
	return pos, true
}

// Satellites scrapes the source's index page into links. Rows that
// fail to parse are skipped and reported; the batch continues.
func (f *Fetcher) Satellites(ctx context.Context, src SatSource) ([]SatelliteLink, []ItemError, error) {
	base := src.listURL()
	body, err := f.get(ctx, base)
	if err != nil {
		return nil, nil, err
	}
	links, errs := parseSatelliteIndex(body, base)
	f.log.Info().Str("event", "sat.index").Str("source", src.String()).
		Int("satellites", len(links)).Int("errors", len(errs)).Msg("satellite index fetched")
	return links, errs, nil
}

func parseSatelliteIndex(body []byte, base string) ([]SatelliteLink, []ItemError) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, []ItemError{{Item: base, Err: err}}
	}

	var links []SatelliteLink
	var errs []ItemError
	seen := map[string]bool{}
	for _, row := range tableRows(body) {
		pos, ok := rowPosition(row)
		if !ok {
			continue
		}
		name, href := rowLink(row)
		if name == "" || href == "" {
			errs = append(errs, ItemError{Item: row.text(), Err: fmt.Errorf("row has a position but no link")})
			continue
		}
		ref, err := baseURL.Parse(href)
		if err != nil {
			errs = append(errs, ItemError{Item: name, Err: err})
			continue
		}
		u := ref.String()
		if seen[u] {
			continue
		}
		seen[u] = true
		links = append(links, SatelliteLink{Name: name, URL: u, Position: pos, Flags: "49"})
	}
	return links, errs
}

// SatelliteDetails fetches one satellite's page and parses its
// transponder table. Unparseable rows are reported, not fatal.
func (f *Fetcher) SatelliteDetails(ctx context.Context, link SatelliteLink) (model.Satellite, []ItemError, error) {
	body, err := f.get(ctx, link.URL)
	if err != nil {
		return model.Satellite{}, nil, err
	}
	sat := model.Satellite{Name: link.Name, Flags: link.Flags, Position: link.Position}
	var errs []ItemError
	for _, row := range tableRows(body) {
		tp, ok, err := parseTransponderRow(row.cells)
		if err != nil {
			errs = append(errs, ItemError{Item: row.text(), Err: err})
			continue
		}
		if ok {
			sat.Transponders = append(sat.Transponders, tp)
		}
	}
	return sat, errs, nil
}

var (
	freqRe = regexp.MustCompile(`^(\d{4,5})(?:\.\d+)?$`)
	fecRe  = regexp.MustCompile(`^(\d/\d{1,2}|Auto)$`)
)

var polarizations = map[string]string{"H": "0", "V": "1", "L": "2", "R": "3"}

var fecValues = map[string]string{
	"Auto": "0", "1/2": "1", "2/3": "2", "3/4": "3", "5/6": "4",
	"7/8": "5", "8/9": "6", "3/5": "7", "4/5": "8", "9/10": "9",
}

// parseTransponderRow recognizes a frequency/polarization/symbol-rate
// triple anywhere in the row; the remaining attributes are optional.
func parseTransponderRow(cells []string) (model.Transponder, bool, error) {
	var tp model.Transponder
	system := "0"
	modulation := "0"
	for _, raw := range cells {
		for _, token := range strings.Fields(strings.TrimSpace(raw)) {
			switch {
			case tp.Freq == "" && freqRe.MatchString(token):
				tp.Freq = toKilo(token)
			case tp.Polarization == "" && tp.Freq != "" && polarizations[token] != "":
				tp.Polarization = polarizations[token]
			case tp.SymbolRate == "" && tp.Polarization != "" && freqRe.MatchString(token):
				tp.SymbolRate = toKilo(token)
			case fecRe.MatchString(token):
				tp.FecInner = fecValues[token]
			case token == "DVB-S2" || token == "DVB-S2X":
				system = "1"
			case token == "QPSK":
				modulation = "1"
			case token == "8PSK":
				modulation = "2"
			}
		}
	}
	if tp.Freq == "" {
		return model.Transponder{}, false, nil
	}
	if tp.Polarization == "" || tp.SymbolRate == "" {
		return model.Transponder{}, false, fmt.Errorf("incomplete transponder row (freq %s)", tp.Freq)
	}
	if tp.FecInner == "" {
		tp.FecInner = "0"
	}
	tp.System = system
	tp.Modulation = modulation
	return tp, true, nil
}

// toKilo converts a MHz listing value ("11953.5") to the kHz string
// the receiver formats use ("11953500").
func toKilo(token string) string {
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return token
	}
	return strconv.FormatInt(int64(v*1000+0.5), 10)
}

// row is a flattened <tr>: cell texts plus the first link and image
// found.
type row struct {
	cells    []string
	linkText string
	linkHref string
	imgSrc   string
}

func (r row) text() string { return strings.Join(r.cells, " | ") }

func rowPosition(r row) (int, bool) {
	for _, c := range r.cells {
		if pos, ok := ParsePosition(c); ok {
			return pos, true
		}
	}
	return 0, false
}

func rowLink(r row) (name, href string) { return r.linkText, r.linkHref }

// tableRows tokenizes the document and flattens every table row. The
// listing sites differ in markup but all present one satellite or
// transponder per <tr>.
func tableRows(body []byte) []row {
	tok := html.NewTokenizer(strings.NewReader(string(body)))
	var rows []row
	var cur *row
	var cell strings.Builder
	inCell := false
	var href string

	flushCell := func() {
		if cur != nil && inCell {
			cur.cells = append(cur.cells, strings.TrimSpace(cell.String()))
			cell.Reset()
			inCell = false
		}
	}
	flushRow := func() {
		flushCell()
		if cur != nil {
			rows = append(rows, *cur)
			cur = nil
		}
	}

	for {
		switch tok.Next() {
		case html.ErrorToken:
			flushRow()
			return rows
		case html.StartTagToken, html.SelfClosingTagToken:
			t := tok.Token()
			switch t.Data {
			case "tr":
				flushRow()
				cur = &row{}
			case "td", "th":
				flushCell()
				inCell = true
			case "a":
				for _, a := range t.Attr {
					if a.Key == "href" {
						href = a.Val
					}
				}
			case "img":
				if cur != nil && cur.imgSrc == "" {
					for _, a := range t.Attr {
						if a.Key == "src" {
							cur.imgSrc = a.Val
						}
					}
				}
			}
		case html.EndTagToken:
			t := tok.Token()
			switch t.Data {
			case "tr":
				flushRow()
			case "td", "th":
				flushCell()
			case "a":
				href = ""
			}
		case html.TextToken:
			text := strings.TrimSpace(string(tok.Text()))
			if text == "" {
				break
			}
			if inCell {
				if cell.Len() > 0 {
					cell.WriteString(" ")
				}
				cell.WriteString(text)
			}
			if href != "" && cur != nil && cur.linkHref == "" {
				cur.linkText = text
				cur.linkHref = href
			}
		}
	}
}
