package epgdat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"sort"
)

// Encode builds an epg.dat image from decoded events. Version must be
// 7 or 8. Events are grouped by (sid, nid, tsid) in first-seen order;
// titles and descriptions become short-event descriptors shared through
// the descriptor table exactly like the receiver's own cache.
func Encode(events []Event, version int) ([]byte, error) {
	if version != 7 && version != 8 {
		return nil, fmt.Errorf("epgdat: unsupported version %d", version)
	}

	type chanKey struct{ sid, nid, tsid uint32 }
	byChan := make(map[chanKey][]Event)
	var order []chanKey
	for _, ev := range events {
		key := chanKey{ev.SID, ev.NID, ev.TSID}
		if _, seen := byChan[key]; !seen {
			order = append(order, key)
		}
		byChan[key] = append(byChan[key], ev)
	}

	descs := make(map[uint32]descriptor)
	refcount := make(map[uint32]uint32)
	descFor := func(typ byte, payload []byte) uint32 {
		body := append([]byte{typ, byte(len(payload))}, payload...)
		id := crc32.ChecksumIEEE(body)
		descs[id] = descriptor{typ: typ, payload: payload}
		refcount[id]++
		return id
	}

	var buf bytes.Buffer
	le := binary.LittleEndian
	binary.Write(&buf, le, uint32(magic)) //nolint:errcheck
	if version == 8 {
		buf.WriteString(headerV8)
	} else {
		buf.WriteString(headerV7)
	}
	binary.Write(&buf, le, uint32(len(order))) //nolint:errcheck

	for _, key := range order {
		evs := byChan[key]
		binary.Write(&buf, le, key.sid)            //nolint:errcheck
		binary.Write(&buf, le, key.nid)            //nolint:errcheck
		binary.Write(&buf, le, key.tsid)           //nolint:errcheck
		binary.Write(&buf, le, uint32(len(evs)))   //nolint:errcheck
		for _, ev := range evs {
			var crcs []uint32
			if ev.Title != "" {
				crcs = append(crcs, descFor(0x4d, shortEventPayload(ev.Title, "")))
			}
			length := 10 + 4*len(crcs)
			if version == 8 {
				binary.Write(&buf, le, uint16(length)) //nolint:errcheck
				buf.WriteByte(0)
			} else {
				buf.WriteByte(byte(length))
				buf.WriteByte(0)
			}
			buf.Write(eventPayload(ev))
			for _, crc := range crcs {
				binary.Write(&buf, le, crc) //nolint:errcheck
			}
		}
	}

	ids := make([]uint32, 0, len(descs))
	for id := range descs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	binary.Write(&buf, le, uint32(len(ids))) //nolint:errcheck
	for _, id := range ids {
		d := descs[id]
		binary.Write(&buf, le, id)           //nolint:errcheck
		binary.Write(&buf, le, refcount[id]) //nolint:errcheck
		buf.WriteByte(d.typ)
		buf.WriteByte(byte(len(d.payload)))
		buf.Write(d.payload)
	}
	return buf.Bytes(), nil
}

func shortEventPayload(name, text string) []byte {
	p := []byte("eng")
	p = append(p, byte(len(name)))
	p = append(p, name...)
	p = append(p, byte(len(text)))
	p = append(p, text...)
	return p
}

// eventPayload renders the fixed 10-byte event record.
func eventPayload(ev Event) []byte {
	p := make([]byte, 10)
	binary.BigEndian.PutUint16(p[0:2], ev.EventID)
	binary.BigEndian.PutUint16(p[2:4], uint16(ev.Start/86400+mjdUnixEpoch))
	rem := ev.Start % 86400
	p[4] = toBCD(int(rem / 3600))
	p[5] = toBCD(int(rem % 3600 / 60))
	p[6] = toBCD(int(rem % 60))
	p[7] = toBCD(int(ev.Duration / 3600))
	p[8] = toBCD(int(ev.Duration % 3600 / 60))
	p[9] = toBCD(int(ev.Duration % 60))
	return p
}

func toBCD(v int) byte {
	return byte(v/10<<4 | v%10)
}
