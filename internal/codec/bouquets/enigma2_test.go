package bouquets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/demon-editor/core/internal/codec"
	"github.com/demon-editor/core/internal/model"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

const (
	ref1 = "1:0:1:1:1:82:820000:0:0:0:"
	ref2 = "1:0:1:2:1:82:820000:0:0:0:"
	fav1 = "1:1:82:820000"
	fav2 = "2:1:82:820000"
)

func sampleFiles() map[string]string {
	return map[string]string{
		"bouquets.tv": "#NAME Bouquets (TV)\n" +
			"#SERVICE 1:7:1:0:0:0:0:0:0:0:FROM BOUQUET \"userbouquet.dbe01.tv\" ORDER BY bouquet\n",
		"userbouquet.dbe01.tv": "#NAME Favourites\n" +
			"#SERVICE " + ref1 + "\n" +
			"#SERVICE 1:64:0:0:0:0:0:0:0:0::Movies\n" +
			"#DESCRIPTION Movies\n" +
			"#SERVICE " + ref2 + "\n" +
			"#SERVICE 1:134:1:0:0:0:0:0:0:0:FROM BOUQUET \"alternatives.de01.tv\" ORDER BY bouquet\n" +
			"#SERVICE 4097:0:1:0:0:0:0:0:0:0:http%3a//host/stream.m3u8:Web One\n" +
			"#DESCRIPTION Web One\n",
		"alternatives.de01.tv": "#NAME Channel One\n" +
			"#SERVICE " + ref1 + "\n",
	}
}

func TestReadGroup(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, sampleFiles())

	group, synthesized, warns, err := ReadGroup(dir, model.BouquetTV)
	require.NoError(t, err)
	require.Empty(t, warns)
	require.Len(t, group.Bouquets, 1)

	bq := group.Bouquets[0]
	require.Equal(t, "Favourites", bq.Name)
	require.Equal(t, "dbe01", bq.File)
	require.Len(t, bq.Services, 5)
	require.Equal(t, fav1, bq.Services[0])
	require.Equal(t, fav2, bq.Services[2])
	require.Equal(t, "alt:de01", bq.Services[3])

	types := map[model.ServiceType]int{}
	var marker, alt, iptv model.Service
	for _, s := range synthesized {
		types[s.Type]++
		switch s.Type {
		case model.TypeMarker:
			marker = s
		case model.TypeAlt:
			alt = s
		case model.TypeIPTV:
			iptv = s
		}
	}
	require.Equal(t, 1, types[model.TypeMarker])
	require.Equal(t, "Movies", marker.Name)
	require.Equal(t, 1, types[model.TypeAlt])
	require.Equal(t, "Channel One", alt.Name)
	require.Equal(t, []string{fav1}, alt.AltRefs)
	require.Equal(t, 1, types[model.TypeIPTV])
	require.Equal(t, "Web One", iptv.Name)
}

func TestReadGroupDanglingAlternativesDowngrades(t *testing.T) {
	dir := t.TempDir()
	files := sampleFiles()
	delete(files, "alternatives.de01.tv")
	writeFiles(t, dir, files)

	group, synthesized, warns, err := ReadGroup(dir, model.BouquetTV)
	require.NoError(t, err)
	require.Len(t, warns, 1)
	require.ErrorIs(t, warns[0].Err, codec.ErrMissingData)

	// Bouquet keeps the Alt entry; the Alt is an empty group.
	require.Len(t, group.Bouquets[0].Services, 5)
	for _, s := range synthesized {
		if s.Type == model.TypeAlt {
			require.Empty(t, s.AltRefs)
		}
	}
}

func TestWriteGroupRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, sampleFiles())
	group, synthesized, _, err := ReadGroup(dir, model.BouquetTV)
	require.NoError(t, err)

	lookup := buildLookup(synthesized)

	out := t.TempDir()
	require.NoError(t, WriteGroup(out, group, lookup))

	group2, synth2, warns, err := ReadGroup(out, model.BouquetTV)
	require.NoError(t, err)
	require.Empty(t, warns)
	require.Equal(t, group.Bouquets[0].Services, group2.Bouquets[0].Services)
	require.Equal(t, len(synthesized), len(synth2))

	// The alternatives file is reproduced with its single entry.
	data, err := os.ReadFile(filepath.Join(out, "alternatives.de01.tv"))
	require.NoError(t, err)
	require.Equal(t, "#NAME Channel One\n#SERVICE "+ref1+"\n", string(data))
}

func buildLookup(synthesized []model.Service) func(string) (model.Service, bool) {
	services := map[string]model.Service{
		fav1: {FavID: fav1, RefID: ref1, Name: "Channel One", Type: model.TypeTV},
		fav2: {FavID: fav2, RefID: ref2, Name: "Channel Two", Type: model.TypeTV},
	}
	for _, s := range synthesized {
		services[s.FavID] = s
	}
	return func(id string) (model.Service, bool) {
		s, ok := services[id]
		return s, ok
	}
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Favourites", "favourites"},
		{"My  List (HD)", "my_list_hd"},
		{"", "bouquet"},
		{"***", "bouquet"},
	}
	for _, tc := range tests {
		if got := Slug(tc.in); got != tc.want {
			t.Errorf("Slug(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
