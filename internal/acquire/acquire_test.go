package acquire

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/demon-editor/core/internal/model"
)

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"19.2°E", 192, true},
		{"30.0°W", -300, true},
		{"0.8W", -8, true},
		{"13E", 130, true},
		{"Astra 1KR/1L/1M at 19.2°E", 192, true},
		{"no position here", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParsePosition(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParsePosition(%q) = (%d, %v), want (%d, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

const indexHTML = `<html><body><table>
<tr><td><a href="/astra192.html">Astra 1KR</a></td><td>19.2°E</td></tr>
<tr><td><a href="/hotbird.html">Hot Bird 13F</a></td><td>13.0°E</td></tr>
<tr><td>30.0°W</td><td>row without a link</td></tr>
<tr><td><a href="/nav.html">Navigation</a></td><td>no position</td></tr>
</table></body></html>`

func TestParseSatelliteIndex(t *testing.T) {
	links, errs := parseSatelliteIndex([]byte(indexHTML), "https://example.net/tracker/index.html")
	require.Len(t, links, 2)
	require.Equal(t, "Astra 1KR", links[0].Name)
	require.Equal(t, "https://example.net/astra192.html", links[0].URL)
	require.Equal(t, 192, links[0].Position)
	require.Equal(t, 130, links[1].Position)

	// The position-only row is reported, the nav row is silently
	// ignored.
	require.Len(t, errs, 1)
}

func TestSatelliteDetailsParsesTransponders(t *testing.T) {
	const page = `<table>
	<tr><td>11953.50</td><td>H</td><td>27500</td><td>3/4</td><td>DVB-S</td><td>QPSK</td></tr>
	<tr><td>12551.00</td><td>V</td><td>22000</td><td>2/3</td><td>DVB-S2</td><td>8PSK</td></tr>
	<tr><td>12604.00</td><td>H</td><td></td><td></td><td></td><td></td></tr>
	</table>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	f := NewFetcher(100)
	sat, errs, err := f.SatelliteDetails(context.Background(), SatelliteLink{
		Name: "Astra 1KR", URL: srv.URL, Position: 192, Flags: "49",
	})
	require.NoError(t, err)
	require.Len(t, errs, 1, "incomplete row must be reported, not fatal")
	require.Len(t, sat.Transponders, 2)

	require.Equal(t, model.Transponder{
		Freq: "11953500", Polarization: "0", SymbolRate: "27500000",
		FecInner: "3", System: "0", Modulation: "1",
	}, sat.Transponders[0])
	require.Equal(t, "1", sat.Transponders[1].System)
	require.Equal(t, "2", sat.Transponders[1].Modulation)
	require.Equal(t, "1", sat.Transponders[1].Polarization)
}

func TestScrapeAndDownloadPicons(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/providers/astra.html", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<table>
		<tr><td><img src="/logo/one.png"></td><td>Channel One</td><td>28106</td></tr>
		<tr><td><img src="/logo/two.png"></td><td>Channel Two</td><td>28107</td></tr>
		<tr><td>No image row</td><td>28108</td></tr>
		</table>`))
	})
	mux.HandleFunc("/logo/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("png-bytes"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(100)
	pairs, errs, err := f.ScrapePicons(context.Background(), srv.URL+"/providers/astra.html")
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Len(t, pairs, 2)
	require.Equal(t, "28106", pairs[0].SSID)
	require.Equal(t, srv.URL+"/logo/one.png", pairs[0].ImageURL)

	dir := t.TempDir()
	saved, errs, err := f.DownloadPicons(context.Background(), pairs, dir, func(ssid string) (string, bool) {
		if ssid == "28106" {
			return "1_0_1_6DCA_441_1_C00000_0_0_0.png", true
		}
		return "", false
	})
	require.NoError(t, err)
	require.Empty(t, errs)
	require.Equal(t, 1, saved)
	_, statErr := os.Stat(filepath.Join(dir, "1_0_1_6DCA_441_1_C00000_0_0_0.png"))
	require.NoError(t, statErr)
}

func TestDownloadPiconsCancelBetweenFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewFetcher(100)
	saved, _, err := f.DownloadPicons(ctx, []PiconPair{{ImageURL: "http://x", SSID: "1"}}, t.TempDir(),
		func(string) (string, bool) { return "a.png", true })
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, saved)
}

func TestCollectPlaylist(t *testing.T) {
	const response = `{
		"contents": {"stuff": [
			{"playlistPanelVideoRenderer": {"videoId": "abc123", "title": {"simpleText": "First"}}},
			{"nested": {"playlistPanelVideoRenderer": {"videoId": "def456", "title": {"runs": [{"text": "Sec"}, {"text": "ond"}]}}}}
		]}
	}`
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(response), &doc))

	var items []PlaylistItem
	collectPlaylist(doc, &items)
	require.Len(t, items, 2)

	byID := map[string]string{}
	for _, it := range items {
		byID[it.VideoID] = it.Title
	}
	require.Equal(t, "First", byID["abc123"])
	require.Equal(t, "Second", byID["def456"])
}

func TestAPIKeyEnvOverride(t *testing.T) {
	t.Setenv("YT_API_KEY", "custom-key")
	require.Equal(t, "custom-key", apiKey())
	t.Setenv("YT_API_KEY", "")
	require.Equal(t, innertubeKey, apiKey())
}
