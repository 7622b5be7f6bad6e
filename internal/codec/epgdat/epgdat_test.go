package epgdat

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/demon-editor/core/internal/codec"
)

func TestBCD(t *testing.T) {
	for b := 0; b < 256; b++ {
		got := BCD(byte(b))
		hi, lo := b>>4, b&0x0f
		if hi >= 0x0a || lo >= 0x0a {
			if got != -1 {
				t.Fatalf("BCD(%#x) = %d, want -1", b, got)
			}
			continue
		}
		if want := 10*hi + lo; got != want {
			t.Fatalf("BCD(%#x) = %d, want %d", b, got, want)
		}
	}
}

// buildV7Sample builds a minimal V7 file: one channel, one
// 14-byte event for 2020-01-01T20:00:00Z lasting 90 minutes.
func buildV7Sample(t *testing.T) []byte {
	t.Helper()
	title := shortEventPayload("Evening Show", "")
	descBody := append([]byte{0x4d, byte(len(title))}, title...)
	descID := uint32(0xdeadbeef)

	var buf bytes.Buffer
	le := binary.LittleEndian
	require.NoError(t, binary.Write(&buf, le, uint32(0x98765432)))
	buf.WriteString("ENIGMA_EPG_V7")
	require.NoError(t, binary.Write(&buf, le, uint32(1))) // channel count
	require.NoError(t, binary.Write(&buf, le, uint32(0x1)))
	require.NoError(t, binary.Write(&buf, le, uint32(0x85)))
	require.NoError(t, binary.Write(&buf, le, uint32(0x3)))
	require.NoError(t, binary.Write(&buf, le, uint32(1))) // event count

	buf.WriteByte(14) // length: 10 data + one crc
	buf.WriteByte(0)  // type
	mjd := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Unix()/86400 + mjdUnixEpoch
	payload := make([]byte, 10)
	binary.BigEndian.PutUint16(payload[0:2], 0x1234)
	binary.BigEndian.PutUint16(payload[2:4], uint16(mjd))
	payload[4], payload[5], payload[6] = 0x20, 0x00, 0x00 // 20:00:00 BCD
	payload[7], payload[8], payload[9] = 0x01, 0x30, 0x00 // 01:30:00 BCD
	buf.Write(payload)
	require.NoError(t, binary.Write(&buf, le, descID))

	require.NoError(t, binary.Write(&buf, le, uint32(1))) // descriptor count
	require.NoError(t, binary.Write(&buf, le, descID))
	require.NoError(t, binary.Write(&buf, le, uint32(1))) // refcount
	buf.Write(descBody)
	return buf.Bytes()
}

func TestDecodeV7Sample(t *testing.T) {
	events, errs, err := Decode(buildV7Sample(t), "epg.dat")
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Len(t, events, 1)

	ev := events[0]
	require.Equal(t, uint16(0x1234), ev.EventID)
	require.Equal(t, uint32(0x1), ev.SID)
	require.Equal(t, uint32(0x85), ev.NID)
	require.Equal(t, uint32(0x3), ev.TSID)
	want := time.Date(2020, 1, 1, 20, 0, 0, 0, time.UTC).Unix()
	require.Equal(t, want, ev.Start)
	require.Equal(t, int64(5400), ev.Duration)
	require.Equal(t, "Evening Show", ev.Title)
}

func TestDecodeInvalidBCDSpoilsOnlyThatEvent(t *testing.T) {
	good := Event{SID: 1, NID: 2, TSID: 3, EventID: 10, Start: 1577908800, Duration: 600, Title: "ok"}
	bad := Event{SID: 1, NID: 2, TSID: 3, EventID: 11, Start: 1577908800, Duration: 600}
	img, err := Encode([]Event{good, bad}, 7)
	require.NoError(t, err)

	// Corrupt the second event's BCD hour (event records are fixed size:
	// header 2 + data 10 + one crc for the first, header 2 + data 10 for
	// the second). Find the second event id and break the byte after MJD.
	idx := bytes.Index(img, []byte{0x00, 0x0b}) // event id 11 big-endian
	require.Greater(t, idx, 0)
	img[idx+4] = 0xaa

	events, errs, err := Decode(img, "epg.dat")
	require.NoError(t, err)
	require.Len(t, errs, 1)
	require.Len(t, events, 1)
	require.Equal(t, uint16(10), events[0].EventID)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, _, err := Decode([]byte{1, 2, 3, 4, 5, 6, 7, 8}, "epg.dat")
	require.ErrorIs(t, err, codec.ErrFormat)
}

func TestEncodeDecodeRoundTripV8(t *testing.T) {
	in := []Event{
		{SID: 0x6dca, NID: 0x1, TSID: 0x441, EventID: 1, Start: 1705318200, Duration: 3600, Title: "News"},
		{SID: 0x6dca, NID: 0x1, TSID: 0x441, EventID: 2, Start: 1705321800, Duration: 1800, Title: "Weather"},
	}
	img, err := Encode(in, 8)
	require.NoError(t, err)

	events, errs, err := Decode(img, "epg.dat")
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Len(t, events, 2)
	for i, ev := range events {
		require.Equal(t, in[i].EventID, ev.EventID)
		require.Equal(t, in[i].Start, ev.Start)
		require.Equal(t, in[i].Duration, ev.Duration)
		require.Equal(t, in[i].Title, ev.Title)
	}
}
