package settings

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.json")
	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Config()
	require.Equal(t, configVersion, cfg.Version)
	require.Equal(t, "default", cfg.DefaultProfile)
	require.Contains(t, cfg.Profiles, "default")
	require.Equal(t, Enigma2, cfg.Profiles["default"].SettingType)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
}

func TestVersionMismatchResetsAndRecovers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	stale := `{"version": 99, "default_profile": "old", "profiles": {"old": {}}}`
	require.NoError(t, os.WriteFile(path, []byte(stale), 0o644))

	m, err := NewManager(path)
	require.ErrorIs(t, err, ErrVersionMismatch)
	var serr *SettingsError
	require.ErrorAs(t, err, &serr)

	// The manager is still usable with defaults and the file has
	// been rewritten.
	require.NotNil(t, m)
	require.Equal(t, "default", m.Config().DefaultProfile)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	var onDisk Config
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Equal(t, configVersion, onDisk.Version)
}

func TestProfileRoundTrip(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	p := defaultProfile()
	p.SettingType = NeutrinoMP
	p.Connection.Host = "10.0.0.10"
	m.SetProfile("living-room", p)
	require.NoError(t, m.Save())

	m2, err := NewManager(m.Path())
	require.NoError(t, err)
	got, err := m2.Profile("living-room")
	require.NoError(t, err)
	require.Equal(t, NeutrinoMP, got.SettingType)
	require.Equal(t, "10.0.0.10", got.Connection.Host)
}

func TestProfileEmptyNameUsesDefault(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	p, err := m.Profile("")
	require.NoError(t, err)
	require.Equal(t, Enigma2, p.SettingType)

	_, err = m.Profile("missing")
	require.Error(t, err)
}

func TestRemoveProfileGuardsDefault(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)

	require.Error(t, m.RemoveProfile("default"))

	m.SetProfile("second", defaultProfile())
	require.NoError(t, m.SetDefaultProfile("second"))
	require.NoError(t, m.RemoveProfile("default"))
	_, err = m.Profile("default")
	require.Error(t, err)
}

func TestResetToDefault(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	m.SetProfile("extra", defaultProfile())

	require.NoError(t, m.ResetToDefault())
	cfg := m.Config()
	require.Len(t, cfg.Profiles, 1)
	require.Contains(t, cfg.Profiles, "default")
}

func TestWatchPicksUpExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	m, err := NewManager(path)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	changed := make(chan Config, 1)
	go func() {
		_ = m.Watch(ctx, func(cfg Config) {
			select {
			case changed <- cfg:
			default:
			}
		})
	}()

	// Give the watcher a moment to register.
	time.Sleep(100 * time.Millisecond)

	cfg := m.Config()
	cfg.DefaultProfile = "edited"
	cfg.Profiles["edited"] = defaultProfile()
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	select {
	case got := <-changed:
		require.Equal(t, "edited", got.DefaultProfile)
	case <-ctx.Done():
		t.Fatal("watcher did not report the external edit")
	}
}
