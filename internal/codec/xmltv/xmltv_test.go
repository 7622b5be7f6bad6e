package xmltv

import (
	"bytes"
	"compress/gzip"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `<?xml version="1.0" encoding="UTF-8"?>
<tv generator-info-name="test">
  <channel id="bbc1.uk">
    <display-name>BBC One HD</display-name>
    <display-name>BBC 1</display-name>
    <icon src="http://logos/bbc1.png"/>
  </channel>
  <programme start="20240115123045 +0100" stop="20240115133045 +0100" channel="bbc1.uk">
    <title>Lunch News</title>
    <desc>Midday headlines.</desc>
  </programme>
  <programme start="garbage" stop="20240115133045 +0100" channel="bbc1.uk">
    <title>Broken</title>
  </programme>
</tv>
`

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"20240115123045 +0100", 1705318245, false},
		{"20240115113045 +0000", 1705318245, false},
		{"20240115113045", 1705318245, false},
		{"20240115063045 -0500", 1705318245, false},
		{"2024", 0, true},
		{"garbage-garbage-long", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseTime(tc.in)
		if tc.wantErr {
			require.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseCollectsChannelsAndEvents(t *testing.T) {
	res, err := Parse(context.Background(), strings.NewReader(sample), "guide.xml")
	require.NoError(t, err)
	require.Len(t, res.Channels, 1)
	require.Equal(t, "bbc1.uk", res.Channels[0].ID)
	require.Equal(t, []string{"BBC One HD", "BBC 1"}, res.Channels[0].DisplayNames)

	require.Len(t, res.Events["bbc1.uk"], 1)
	ev := res.Events["bbc1.uk"][0]
	require.Equal(t, "Lunch News", ev.Title)
	require.Equal(t, int64(1705318245), ev.Start)
	require.Equal(t, int64(3600), ev.Length)

	// The broken programme is an item error, not a parse failure.
	require.Len(t, res.Errors, 1)
}

func TestParseGzipInput(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sample))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	res, err := Parse(context.Background(), &buf, "guide.xml.gz")
	require.NoError(t, err)
	require.Len(t, res.Channels, 1)
	require.Len(t, res.Events["bbc1.uk"], 1)
}

func TestParseHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Parse(ctx, strings.NewReader(sample), "guide.xml")
	require.ErrorIs(t, err, context.Canceled)
}
