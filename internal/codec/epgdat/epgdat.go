// Package epgdat decodes the Enigma2 binary EPG cache (epg.dat),
// versions V7 and V8. Decoding is partial by design: a corrupt event
// spoils only itself, never the file.
package epgdat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/demon-editor/core/internal/codec"
)

const (
	magic    = 0x98765432
	headerV7 = "ENIGMA_EPG_V7"
	headerV8 = "ENIGMA_EPG_V8"

	// Unix epoch day expressed as a Modified Julian Day (day 1 = 1858-11-17).
	mjdUnixEpoch = 40587
)

// Event is one decoded EPG entry.
type Event struct {
	SID      uint32
	NID      uint32
	TSID     uint32
	EventID  uint16
	Start    int64 // UTC epoch seconds
	Duration int64 // seconds
	Title    string
	Desc     string
	ExtDesc  string
	Data     []byte // the raw 10-byte event payload
}

type descriptor struct {
	typ     byte
	payload []byte
}

// Read decodes a file from disk. See Decode.
func Read(path string) ([]Event, []codec.ItemError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, &codec.MissingDataError{Path: path}
		}
		return nil, nil, err
	}
	return Decode(data, path)
}

// Decode parses an epg.dat image. Events with invalid BCD fields or
// unresolvable descriptor references are reported as item errors and
// omitted from the result.
func Decode(data []byte, path string) ([]Event, []codec.ItemError, error) {
	r := bytes.NewReader(data)
	fail := func(msg string) ([]Event, []codec.ItemError, error) {
		off := int64(len(data)) - int64(r.Len())
		return nil, nil, &codec.FormatError{Path: path, Offset: off, Msg: msg}
	}

	var m uint32
	if err := binary.Read(r, binary.LittleEndian, &m); err != nil || m != magic {
		return fail(fmt.Sprintf("bad magic %#x", m))
	}
	hdr := make([]byte, len(headerV7))
	if _, err := io.ReadFull(r, hdr); err != nil {
		return fail("truncated header")
	}
	var v8 bool
	switch string(hdr) {
	case headerV7:
	case headerV8:
		v8 = true
	default:
		return fail(fmt.Sprintf("unknown header %q", hdr))
	}

	var channels uint32
	if err := binary.Read(r, binary.LittleEndian, &channels); err != nil {
		return fail("truncated channel count")
	}

	type rawEvent struct {
		sid, nid, tsid uint32
		data           []byte
		crcs           []uint32
	}
	var raw []rawEvent
	for c := uint32(0); c < channels; c++ {
		var sid, nid, tsid, count uint32
		for _, dst := range []*uint32{&sid, &nid, &tsid, &count} {
			if err := binary.Read(r, binary.LittleEndian, dst); err != nil {
				return fail("truncated channel record")
			}
		}
		for e := uint32(0); e < count; e++ {
			length, err := readEventHeader(r, v8)
			if err != nil {
				return fail(err.Error())
			}
			if length < 10 {
				return fail(fmt.Sprintf("event length %d below minimum", length))
			}
			payload := make([]byte, 10)
			if _, err := io.ReadFull(r, payload); err != nil {
				return fail("truncated event data")
			}
			crcs := make([]uint32, (length-10)/4)
			for i := range crcs {
				if err := binary.Read(r, binary.LittleEndian, &crcs[i]); err != nil {
					return fail("truncated descriptor reference")
				}
			}
			raw = append(raw, rawEvent{sid: sid, nid: nid, tsid: tsid, data: payload, crcs: crcs})
		}
	}

	descs, err := readDescriptorTable(r)
	if err != nil {
		off := int64(len(data)) - int64(r.Len())
		return nil, nil, &codec.FormatError{Path: path, Offset: off, Msg: err.Error()}
	}

	var events []Event
	var errs []codec.ItemError
	for _, re := range raw {
		ev, err := decodeEvent(re.data)
		if err != nil {
			errs = append(errs, codec.ItemError{
				Item: fmt.Sprintf("sid %#x event %#x", re.sid, binary.BigEndian.Uint16(re.data[0:2])),
				Err:  err,
			})
			continue
		}
		ev.SID, ev.NID, ev.TSID = re.sid, re.nid, re.tsid
		for _, crc := range re.crcs {
			d, ok := descs[crc]
			if !ok {
				continue
			}
			applyDescriptor(&ev, d)
		}
		events = append(events, ev)
	}
	return events, errs, nil
}

// readEventHeader reads the per-event length+type header: one length
// byte in V7, a little-endian uint16 length in V8, each followed by a
// type byte the decoder does not interpret.
func readEventHeader(r *bytes.Reader, v8 bool) (int, error) {
	if v8 {
		var length uint16
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return 0, fmt.Errorf("truncated event header")
		}
		if _, err := r.ReadByte(); err != nil {
			return 0, fmt.Errorf("truncated event header")
		}
		return int(length), nil
	}
	length, err := r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("truncated event header")
	}
	if _, err := r.ReadByte(); err != nil {
		return 0, fmt.Errorf("truncated event header")
	}
	return int(length), nil
}

func readDescriptorTable(r *bytes.Reader) (map[uint32]descriptor, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("truncated descriptor table")
	}
	out := make(map[uint32]descriptor, count)
	for i := uint32(0); i < count; i++ {
		var id, refcount uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return nil, fmt.Errorf("truncated descriptor id")
		}
		if err := binary.Read(r, binary.LittleEndian, &refcount); err != nil {
			return nil, fmt.Errorf("truncated descriptor refcount")
		}
		typ, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("truncated descriptor type")
		}
		length, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("truncated descriptor length")
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("truncated descriptor payload")
		}
		out[id] = descriptor{typ: typ, payload: payload}
	}
	return out, nil
}

// decodeEvent decodes the fixed 10-byte event payload: event id (BE),
// MJD date (BE), BCD start time, BCD duration.
func decodeEvent(data []byte) (Event, error) {
	ev := Event{EventID: binary.BigEndian.Uint16(data[0:2]), Data: data}
	mjd := int64(binary.BigEndian.Uint16(data[2:4]))
	h, m, s := BCD(data[4]), BCD(data[5]), BCD(data[6])
	dh, dm, ds := BCD(data[7]), BCD(data[8]), BCD(data[9])
	for _, v := range []int{h, m, s, dh, dm, ds} {
		if v < 0 {
			return Event{}, fmt.Errorf("invalid BCD field")
		}
	}
	ev.Start = (mjd-mjdUnixEpoch)*86400 + int64(h*3600+m*60+s)
	ev.Duration = int64(dh*3600 + dm*60 + ds)
	return ev, nil
}

// BCD decodes one binary-coded-decimal byte. Any nibble above 9 yields
// the sentinel -1.
func BCD(b byte) int {
	hi, lo := int(b>>4), int(b&0x0f)
	if hi >= 0x0a || lo >= 0x0a {
		return -1
	}
	return 10*hi + lo
}

// Short-event descriptors below this size carry the title; larger ones
// carry the description.
const shortEventTitleMax = 32

func applyDescriptor(ev *Event, d descriptor) {
	switch d.typ {
	case 0x4d: // short event: lang(3), name_len, name, text_len, text
		name, text := splitShortEvent(d.payload)
		if len(d.payload) < shortEventTitleMax {
			if ev.Title == "" {
				ev.Title = name
			}
		} else if ev.Desc == "" {
			ev.Desc = name
			if text != "" {
				ev.Desc = text
			}
		}
	case 0x4e: // extended event: desc_num, lang(3), items_len, …, text_len, text
		if text := extendedEventText(d.payload); text != "" {
			ev.ExtDesc += text
		}
	}
}

func splitShortEvent(p []byte) (name, text string) {
	if len(p) < 4 {
		return "", ""
	}
	n := int(p[3])
	if 4+n > len(p) {
		return string(p[4:]), ""
	}
	name = string(p[4 : 4+n])
	rest := p[4+n:]
	if len(rest) < 1 {
		return name, ""
	}
	t := int(rest[0])
	if 1+t > len(rest) {
		return name, string(rest[1:])
	}
	return name, string(rest[1 : 1+t])
}

func extendedEventText(p []byte) string {
	if len(p) < 5 {
		return ""
	}
	items := int(p[4])
	idx := 5 + items
	if idx >= len(p) {
		return ""
	}
	t := int(p[idx])
	if idx+1+t > len(p) {
		return string(p[idx+1:])
	}
	return string(p[idx+1 : idx+1+t])
}
