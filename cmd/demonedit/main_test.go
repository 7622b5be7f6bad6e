package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/demon-editor/core/internal/settings"
)

func TestParseOnOff(t *testing.T) {
	v, ok := parseOnOff("")
	require.True(t, ok)
	require.Nil(t, v)

	v, ok = parseOnOff("on")
	require.True(t, ok)
	require.True(t, *v)

	v, ok = parseOnOff("off")
	require.True(t, ok)
	require.False(t, *v)

	_, ok = parseOnOff("maybe")
	require.False(t, ok)
}

func TestRunRejectsInvalidFlags(t *testing.T) {
	require.Equal(t, 1, run([]string{"--telnet", "maybe"}))
	require.Equal(t, 1, run([]string{"--debug", "verbose"}))
	require.Equal(t, 1, run([]string{"--no-such-flag"}))
}

func TestRunVersion(t *testing.T) {
	require.Equal(t, 0, run([]string{"--version"}))
}

func TestPersistFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	mgr, err := settings.NewManager(path)
	require.NoError(t, err)

	on, off := true, false
	require.NoError(t, persistFlags(mgr, &on, &off))

	// The flags survive a fresh load from disk.
	reloaded, err := settings.NewManager(path)
	require.NoError(t, err)
	cfg := reloaded.Config()
	require.True(t, cfg.Telnet)
	require.False(t, cfg.Debug)

	require.NoError(t, persistFlags(reloaded, nil, &on))
	reloaded, err = settings.NewManager(path)
	require.NoError(t, err)
	cfg = reloaded.Config()
	require.True(t, cfg.Telnet, "untouched flag keeps its value")
	require.True(t, cfg.Debug)
}

func TestPlaylistURL(t *testing.T) {
	playlist := "#EXTM3U\n" +
		"#EXTINF:-1,Das Erste HD\n" +
		"http://127.0.0.1:8001/1:0:1:1:1:82:820000:0:0:0:\n"
	require.Equal(t, "http://127.0.0.1:8001/1:0:1:1:1:82:820000:0:0:0:", playlistURL(playlist))
	require.Empty(t, playlistURL("#EXTM3U\n"))
	require.Empty(t, playlistURL(""))
}
