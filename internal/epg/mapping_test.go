package epg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in       string
		translit bool
		want     string
	}{
		{"BBC One HD", false, "BBCONEHD"},
		{"ORF 2 W", false, "ORF2W"},
		{"Das.Erste (HD)", false, "DASERSTEHD"},
		{"Первый канал", true, "PERVYIKANAL"},
		{"", false, ""},
	}
	for _, tc := range tests {
		if got := Normalize(tc.in, tc.translit); got != tc.want {
			t.Errorf("Normalize(%q, %v) = %q, want %q", tc.in, tc.translit, got, tc.want)
		}
	}
}

func TestTransliterateLocale(t *testing.T) {
	require.True(t, TransliterateLocale("ru_RU.UTF-8"))
	require.True(t, TransliterateLocale("ua"))
	require.True(t, TransliterateLocale("rs-Latn"))
	require.False(t, TransliterateLocale("de_AT"))
	require.False(t, TransliterateLocale(""))
}

func TestJaroWinkler(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"MARTHA", "MARHTA", 0.95, 0.97},
		{"DISCOVERYCHANNEL", "DISCOVERYCHANEL", 0.97, 1.0},
		{"ABC", "ABC", 1.0, 1.0},
		{"ABC", "XYZ", 0.0, 0.0},
		{"", "ABC", 0.0, 0.0},
	}
	for _, tc := range tests {
		got := jaroWinkler(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Errorf("jaroWinkler(%q, %q) = %f, want in [%f, %f]", tc.a, tc.b, got, tc.min, tc.max)
		}
	}
}

func TestAutoMapEqualityAndSimilarity(t *testing.T) {
	services := []string{"BBC One HD", "ORF 2 W", "Discovery Chanel"}
	channels := map[string][]string{
		"bbc1.uk":      {"BBC ONE HD"},
		"orf2.at":      {"ORF2W"},
		"discovery.us": {"Discovery Channel"},
		"other.de":     {"Something Else"},
	}

	got := AutoMap(services, channels, false)
	require.Equal(t, "bbc1.uk", got["BBC One HD"])
	require.Equal(t, "orf2.at", got["ORF 2 W"])
	// Not an exact normalized match; taken by the similarity pass.
	require.Equal(t, "discovery.us", got["Discovery Chanel"])
	require.Len(t, got, 3)
}

func TestAutoMapLeavesPoorMatchesUnmapped(t *testing.T) {
	got := AutoMap([]string{"Eurosport 1"}, map[string][]string{"x": {"National Geographic"}}, false)
	require.Empty(t, got)
}

func TestAutoMapDoesNotReuseClaimedChannel(t *testing.T) {
	services := []string{"Sky Cinema", "Sky Cinemaa"}
	channels := map[string][]string{"sky.de": {"Sky Cinema"}}
	got := AutoMap(services, channels, false)
	require.Equal(t, "sky.de", got["Sky Cinema"])
	_, ok := got["Sky Cinemaa"]
	require.False(t, ok, "claimed channel must not be assigned twice")
}

func TestNameMapRewrite(t *testing.T) {
	m := NameMap{"Das Erste": "daserste.de"}
	require.Equal(t, "daserste.de", m.Rewrite("Das Erste"))
	require.Equal(t, "ZDF", m.Rewrite("ZDF"))
}
