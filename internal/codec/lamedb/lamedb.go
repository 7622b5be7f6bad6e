// Package lamedb reads and writes the Enigma2 services database, both
// the v4 "lamedb" and the v5 "lamedb5" layout. Parsed lines are kept
// verbatim where the receiver expects byte-exact output, so a load/save
// cycle without edits reproduces the input file.
package lamedb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/demon-editor/core/internal/codec"
	"github.com/demon-editor/core/internal/model"
)

const (
	headerV4 = "eDVB services /4/"
	headerV5 = "eDVB services /5/"
)

// TransponderRec is one entry of the transponders section. Key is the
// "namespace:tsid:onid" tuple; Data is the payload line ("s 12551500:…",
// "t …" or "c …") without the leading tab.
type TransponderRec struct {
	Key  string
	Data string
}

// File is the parsed services database. Transponder order and the
// trailing editor comment are preserved for byte-exact round trips.
type File struct {
	Version      int
	Transponders []TransponderRec
	Services     []model.Service
	Comment      string
}

// Read loads and parses a services database, auto-detecting the version
// from the header line.
func Read(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &codec.MissingDataError{Path: path}
		}
		return nil, err
	}
	defer f.Close()
	return Parse(f, path)
}

// Parse reads a services database from r. The path is used only for
// error reporting.
func Parse(r io.Reader, path string) (*File, error) {
	br := bufio.NewReader(r)
	first, err := readLine(br)
	if err != nil {
		return nil, &codec.FormatError{Path: path, Line: 1, Msg: "empty file"}
	}
	switch strings.TrimRight(first, " \t") {
	case headerV4:
		return parseV4(br, path)
	case headerV5:
		return parseV5(br, path)
	}
	return nil, &codec.FormatError{Path: path, Line: 1, Msg: fmt.Sprintf("unknown header %q", first)}
}

func parseV4(br *bufio.Reader, path string) (*File, error) {
	f := &File{Version: 4}
	line, err := readLine(br)
	lineNo := 2
	if err != nil || strings.TrimSpace(line) != "transponders" {
		return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: "missing transponders section"}
	}
	tpData := make(map[string]string)
	for {
		key, err := readLine(br)
		lineNo++
		if err != nil {
			return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: "unexpected end of transponders"}
		}
		key = strings.TrimRight(key, " \t")
		if key == "end" {
			break
		}
		data, err := readLine(br)
		lineNo++
		if err != nil {
			return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: "transponder without data line"}
		}
		data = strings.TrimRight(strings.TrimPrefix(data, "\t"), " \t")
		slash, err := readLine(br)
		lineNo++
		if err != nil || strings.TrimSpace(slash) != "/" {
			return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: "transponder not terminated by /"}
		}
		f.Transponders = append(f.Transponders, TransponderRec{Key: key, Data: data})
		tpData[key] = data
	}
	line, err = readLine(br)
	lineNo++
	if err != nil || strings.TrimSpace(line) != "services" {
		return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: "missing services section"}
	}
	for {
		dataID, err := readLine(br)
		lineNo++
		if err != nil {
			return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: "unexpected end of services"}
		}
		dataID = strings.TrimRight(dataID, " \t")
		if dataID == "end" {
			break
		}
		name, err := readLine(br)
		lineNo++
		if err != nil {
			return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: "service without name line"}
		}
		flags, err := readLine(br)
		lineNo++
		if err != nil {
			return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: "service without flags line"}
		}
		svc, err := buildService(dataID, strings.TrimRight(name, " \t\r"), strings.TrimRight(flags, " \t\r"), tpData)
		if err != nil {
			return nil, &codec.FormatError{Path: path, Line: lineNo - 2, Msg: err.Error()}
		}
		f.Services = append(f.Services, svc)
	}
	if rest, err := readLine(br); err == nil {
		f.Comment = strings.TrimRight(rest, "\n")
	}
	return f, nil
}

func parseV5(br *bufio.Reader, path string) (*File, error) {
	f := &File{Version: 5}
	tpData := make(map[string]string)
	lineNo := 1
	for {
		line, err := readLine(br)
		lineNo++
		if err != nil {
			return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: "missing end marker"}
		}
		line = strings.TrimRight(line, " \t\r")
		switch {
		case line == "end":
			if rest, err := readLine(br); err == nil {
				f.Comment = strings.TrimRight(rest, "\n")
			}
			return f, nil
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		case strings.HasPrefix(line, "t:"):
			body := line[2:]
			// key is the first three colon fields, data follows the comma
			comma := strings.Index(body, ",")
			if comma < 0 {
				return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: "transponder line without payload"}
			}
			key := body[:comma]
			data := strings.Replace(body[comma+1:], ":", " ", 1)
			f.Transponders = append(f.Transponders, TransponderRec{Key: key, Data: data})
			tpData[key] = data
		case strings.HasPrefix(line, "s:"):
			dataID, name, flags, err := splitV5Service(line[2:])
			if err != nil {
				return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: err.Error()}
			}
			svc, err := buildService(dataID, name, flags, tpData)
			if err != nil {
				return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: err.Error()}
			}
			f.Services = append(f.Services, svc)
		default:
			return nil, &codec.FormatError{Path: path, Line: lineNo, Msg: fmt.Sprintf("unexpected line %q", line)}
		}
	}
}

// splitV5Service splits `<data_id>,"<name>",<flags>` keeping quotes out
// of the name and the flags list verbatim.
func splitV5Service(body string) (dataID, name, flags string, err error) {
	comma := strings.Index(body, ",")
	if comma < 0 {
		return "", "", "", fmt.Errorf("service line without name")
	}
	dataID = body[:comma]
	rest := body[comma+1:]
	if len(rest) < 2 || rest[0] != '"' {
		return "", "", "", fmt.Errorf("service name not quoted")
	}
	end := strings.Index(rest[1:], `"`)
	if end < 0 {
		return "", "", "", fmt.Errorf("unterminated service name")
	}
	name = rest[1 : 1+end]
	flags = strings.TrimPrefix(rest[2+end:], ",")
	return dataID, name, flags, nil
}

// buildService assembles a model.Service from the verbatim dataID, name
// and flags. Unknown flag letters are preserved untouched in FlagsCas.
func buildService(dataID, name, flags string, tpData map[string]string) (model.Service, error) {
	parts := strings.Split(dataID, ":")
	if len(parts) < 6 {
		return model.Service{}, fmt.Errorf("data id %q: want 6 fields, got %d", dataID, len(parts))
	}
	ssid, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return model.Service{}, fmt.Errorf("data id %q: ssid: %v", dataID, err)
	}
	ns, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return model.Service{}, fmt.Errorf("data id %q: namespace: %v", dataID, err)
	}
	tsid, err := strconv.ParseUint(parts[2], 16, 32)
	if err != nil {
		return model.Service{}, fmt.Errorf("data id %q: tsid: %v", dataID, err)
	}
	onid, err := strconv.ParseUint(parts[3], 16, 32)
	if err != nil {
		return model.Service{}, fmt.Errorf("data id %q: onid: %v", dataID, err)
	}
	styp, err := strconv.ParseUint(parts[4], 10, 32)
	if err != nil {
		return model.Service{}, fmt.Errorf("data id %q: type: %v", dataID, err)
	}
	ref := model.Reference{
		SSID:      uint32(ssid),
		TSID:      uint32(tsid),
		ONID:      uint32(onid),
		Namespace: uint32(ns),
		Type:      uint32(styp),
	}
	tpKey := fmt.Sprintf("%s:%s:%s", parts[1], parts[2], parts[3])
	svc := model.Service{
		FavID:       ref.FavID(),
		RefID:       ref.String(),
		Name:        name,
		Type:        serviceType(uint32(styp)),
		SSID:        parts[0],
		DataID:      dataID,
		FlagsCas:    flags,
		PiconID:     ref.PiconID(),
		Transponder: tpKey,
	}
	applyFlags(&svc, flags)
	if data, ok := tpData[tpKey]; ok {
		applyTransponder(&svc, data)
	}
	svc.Hidden = model.HasFlag(flags, model.FlagHidden)
	return svc, nil
}

func serviceType(t uint32) model.ServiceType {
	switch t {
	case 2, 10:
		return model.TypeRadio
	case 1, 17, 22, 25, 31:
		return model.TypeTV
	default:
		return model.TypeData
	}
}

func applyFlags(svc *model.Service, flags string) {
	for _, part := range strings.Split(flags, ",") {
		switch {
		case strings.HasPrefix(part, "p:"):
			svc.Package = part[2:]
		case strings.HasPrefix(part, "c:"):
			svc.Coded = true
			svc.CasList = append(svc.CasList, part)
		}
	}
}

// applyTransponder fills the display attributes from a transponder data
// line. Missing optional fields (pls, is_id, t2mi) are tolerated.
func applyTransponder(svc *model.Service, data string) {
	sp := strings.IndexByte(data, ' ')
	if sp < 0 {
		return
	}
	svc.TransponderType = data[:sp]
	fields := strings.Split(data[sp+1:], ":")
	get := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	switch svc.TransponderType {
	case "s":
		svc.Freq = get(0)
		svc.Rate = get(1)
		svc.Pol = get(2)
		svc.FEC = get(3)
		svc.Pos = formatPosition(get(4))
		svc.System = get(6)
		svc.Modulation = get(7)
	case "t":
		svc.Pos = "T"
		svc.Freq = get(0)
	case "c":
		svc.Pos = "C"
		svc.Freq = get(0)
		svc.Rate = get(1)
	}
}

// formatPosition renders tenths of a degree as "19.2E" / "0.8W".
func formatPosition(raw string) string {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return raw
	}
	side := "E"
	if v < 0 {
		side = "W"
		v = -v
	}
	return fmt.Sprintf("%d.%d%s", v/10, v%10, side)
}

// Write serializes the database in the given version.
func Write(w io.Writer, f *File) error {
	bw := bufio.NewWriter(w)
	switch f.Version {
	case 4:
		writeV4(bw, f)
	case 5:
		writeV5(bw, f)
	default:
		return fmt.Errorf("lamedb: unsupported version %d", f.Version)
	}
	return bw.Flush()
}

func writeV4(bw *bufio.Writer, f *File) {
	fmt.Fprintln(bw, headerV4)
	fmt.Fprintln(bw, "transponders")
	for _, tp := range f.Transponders {
		fmt.Fprintln(bw, tp.Key)
		fmt.Fprintf(bw, "\t%s\n", tp.Data)
		fmt.Fprintln(bw, "/")
	}
	fmt.Fprintln(bw, "end")
	fmt.Fprintln(bw, "services")
	for _, s := range f.Services {
		fmt.Fprintln(bw, s.DataID)
		fmt.Fprintln(bw, s.Name)
		fmt.Fprintln(bw, s.FlagsCas)
	}
	fmt.Fprintln(bw, "end")
	if f.Comment != "" {
		fmt.Fprintln(bw, f.Comment)
	}
}

func writeV5(bw *bufio.Writer, f *File) {
	fmt.Fprintln(bw, headerV5)
	for _, tp := range f.Transponders {
		fmt.Fprintf(bw, "t:%s,%s\n", tp.Key, strings.Replace(tp.Data, " ", ":", 1))
	}
	for _, s := range f.Services {
		fmt.Fprintf(bw, "s:%s,%q", s.DataID, s.Name)
		if s.FlagsCas != "" {
			fmt.Fprintf(bw, ",%s", s.FlagsCas)
		}
		fmt.Fprintln(bw)
	}
	fmt.Fprintln(bw, "end")
	if f.Comment != "" {
		fmt.Fprintln(bw, f.Comment)
	}
}

// WriteFile atomically writes the database to path. The version of f
// selects the on-disk layout regardless of the filename.
func WriteFile(path string, f *File) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup() //nolint:errcheck
	if err := Write(t, f); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\n"), nil
}
