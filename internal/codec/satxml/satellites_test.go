package satxml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/demon-editor/core/internal/codec"
	"github.com/demon-editor/core/internal/model"
)

func sampleSats() []model.Satellite {
	return []model.Satellite{
		{
			Name:     "Astra 19.2E",
			Flags:    "49",
			Position: 192,
			Transponders: []model.Transponder{
				{Freq: "11953500", SymbolRate: "27500000", Polarization: "0", FecInner: "3", System: "0", Modulation: "1"},
				{Freq: "12551500", SymbolRate: "22000000", Polarization: "1", FecInner: "2", System: "1", Modulation: "2", PlsMode: "0", PlsCode: "1", IsID: "4"},
			},
		},
		{
			Name:     "Hispasat 30.0W",
			Flags:    "49",
			Position: -300,
			Transponders: []model.Transponder{
				{Freq: "10890000", SymbolRate: "27500000", Polarization: "1", FecInner: "3", System: "0", Modulation: "1"},
			},
		},
	}
}

func TestSatellitesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satellites.xml")
	in := sampleSats()
	require.NoError(t, WriteSatellites(path, in))

	out, err := ReadSatellites(path)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip differs (-in +out):\n%s", diff)
	}
}

func TestSatellitesWestPositionIsSignedASCII(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satellites.xml")
	require.NoError(t, WriteSatellites(path, sampleSats()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `position="-300"`)
	require.Contains(t, string(data), `position="192"`)
}

func TestReadSatellitesMissing(t *testing.T) {
	_, err := ReadSatellites(filepath.Join(t.TempDir(), "satellites.xml"))
	require.ErrorIs(t, err, codec.ErrMissingData)
}

func TestReadSatellitesBadPosition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "satellites.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<satellites><sat name="X" flags="0" position="east"/></satellites>`), 0o644))
	_, err := ReadSatellites(path)
	require.ErrorIs(t, err, codec.ErrFormat)
}

func TestNeutrinoServicesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "services.xml")
	in := []model.Service{
		{FavID: "6dca:441:1", RefID: "6dca:441:1", Name: "Das Erste", Type: model.TypeTV,
			SSID: "6dca", Freq: "11954", Rate: "27500", Pol: "0", FEC: "4",
			Pos: "19.2E", Package: "Astra 19.2E", TransponderType: "s", DataID: "1", Transponder: "441:1"},
		{FavID: "6dcb:441:1", RefID: "6dcb:441:1", Name: "Radio Top", Type: model.TypeRadio,
			SSID: "6dcb", Freq: "11954", Rate: "27500", Pol: "0", FEC: "4",
			Pos: "19.2E", Package: "Astra 19.2E", TransponderType: "s", DataID: "2", Transponder: "441:1"},
	}
	require.NoError(t, WriteNeutrinoServices(path, in))

	out, err := ReadNeutrinoServices(path)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, in[0].FavID, out[0].FavID)
	require.Equal(t, in[0].Name, out[0].Name)
	require.Equal(t, model.TypeRadio, out[1].Type)
	require.Equal(t, "19.2E", out[0].Pos)
}
