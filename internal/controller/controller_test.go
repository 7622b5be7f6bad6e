package controller

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/demon-editor/core/internal/model"
	"github.com/demon-editor/core/internal/settings"
)

const testLamedb = `eDVB services /4/
transponders
00820000:0001:0082
	s 12551500:22000000:2:5:130:2:0
/
end
services
0001:00820000:0001:0082:1:0
Das Erste HD
p:ARD
0002:00820000:0001:0082:2:0
Radio Eins
p:RBB
end
`

const testBouquetsTV = "#NAME Bouquets (TV)\n" +
	"#SERVICE 1:7:1:0:0:0:0:0:0:0:FROM BOUQUET \"userbouquet.favourites.tv\" ORDER BY bouquet\n"

const testUserBouquet = "#NAME Favourites\n" +
	"#SERVICE 1:0:1:1:1:82:820000:0:0:0:\n" +
	"#SERVICE 1:0:2:2:1:82:820000:0:0:0:\n"

func writeDataDir(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"lamedb":                    testLamedb,
		"bouquets.tv":               testBouquetsTV,
		"userbouquet.favourites.tv": testUserBouquet,
		"blacklist":                 "1:0:2:2:1:82:820000:0:0:0:\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	dataDir := t.TempDir()
	writeDataDir(t, dataDir)

	mgr, err := settings.NewManager(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	mgr.Update(func(cfg *settings.Config) {
		p := cfg.Profiles["default"]
		p.Local.Data = dataDir
		p.Local.Backup = filepath.Join(t.TempDir(), "backup")
		cfg.Profiles["default"] = p
	})

	c, err := New(context.Background(), mgr)
	require.NoError(t, err)
	return c
}

func TestOpenLocalPublishesEvents(t *testing.T) {
	c := newTestController(t)
	events, stop := c.Bus.Subscribe(16)
	defer stop()

	require.NoError(t, c.OpenLocal(context.Background()))

	store := c.Store()
	require.Equal(t, 2, store.Len())
	require.Len(t, store.Groups(), 1)

	// The blacklisted service is locked on load.
	s, ok := store.Service("2:1:82:820000")
	require.True(t, ok)
	require.True(t, s.Locked)

	ev := <-events
	require.Equal(t, EventDataOpen, ev.Type)
	ev = <-events
	require.Equal(t, EventServicesUpdate, ev.Type)
	require.Equal(t, 2, ev.Count)
}

func TestServiceBatchSplitting(t *testing.T) {
	c := newTestController(t)
	events, stop := c.Bus.Subscribe(256)
	defer stop()

	c.publishServiceBatches(120)
	var counts []int
	for i := 0; i < 3; i++ {
		ev := <-events
		require.Equal(t, EventServicesUpdate, ev.Type)
		counts = append(counts, ev.Count)
	}
	require.Equal(t, []int{50, 50, 20}, counts)
}

func TestSaveWritesBackupAndCommits(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.OpenLocal(context.Background()))

	store := c.Store()
	require.NoError(t, store.ToggleLock("1:1:82:820000"))
	require.True(t, c.Dirty())

	require.NoError(t, c.Save(context.Background()))
	require.False(t, c.Dirty())

	backups, err := c.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	require.Regexp(t, `^\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}\.zip$`, filepath.Base(backups[0]))

	zr, err := zip.OpenReader(backups[0])
	require.NoError(t, err)
	defer zr.Close()
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	require.True(t, names["lamedb"])
	require.True(t, names["bouquets.tv"])

	// The new lock landed in the written blacklist.
	data, err := os.ReadFile(filepath.Join(c.activeProfile().Local.Data, "blacklist"))
	require.NoError(t, err)
	require.Contains(t, string(data), "1:0:1:1:1:82:820000:0:0:0:")
}

func TestSwitchProfileGuardsDirtyModel(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.OpenLocal(context.Background()))
	require.NoError(t, c.Store().ToggleHide("1:1:82:820000"))

	c.Settings.SetProfile("second", settings.DefaultConfig().Profiles["default"])
	err := c.SwitchProfile("second", false)
	require.ErrorIs(t, err, ErrUnsavedChanges)

	events, stop := c.Bus.Subscribe(4)
	defer stop()
	require.NoError(t, c.SwitchProfile("second", true))
	require.Equal(t, "second", c.ProfileName())
	ev := <-events
	require.Equal(t, EventProfileChanged, ev.Type)
	require.Equal(t, "second", ev.ID)
}

func TestRestorePreservesSatellites(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.OpenLocal(context.Background()))
	require.NoError(t, c.Save(context.Background()))
	backups, err := c.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 1)

	dataDir := c.activeProfile().Local.Data
	satPath := filepath.Join(dataDir, "satellites.xml")
	require.NoError(t, os.WriteFile(satPath, []byte(`<satellites><sat name="Kept" flags="49" position="192"/></satellites>`), 0o644))

	require.NoError(t, c.Restore(context.Background(), backups[0]))
	data, err := os.ReadFile(satPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "Kept")
	require.Len(t, c.Satellites(), 1)
}

func TestOpenArchive(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.OpenLocal(context.Background()))
	require.NoError(t, c.Save(context.Background()))
	backups, err := c.Backups()
	require.NoError(t, err)

	c2 := newTestController(t)
	require.NoError(t, c2.OpenArchive(context.Background(), backups[0]))
	require.Equal(t, 2, c2.Store().Len())
}

func TestImportBouquetSkipsExisting(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.OpenLocal(context.Background()))

	imported := "#NAME Imported\n" +
		"#SERVICE 1:0:1:1:1:82:820000:0:0:0:\n" +
		"#SERVICE 1:64:0:0:0:0:0:0:0:0::Section\n" +
		"#DESCRIPTION Section\n"
	path := filepath.Join(t.TempDir(), "userbouquet.imported.tv")
	require.NoError(t, os.WriteFile(path, []byte(imported), 0o644))

	skipped, err := c.ImportBouquet(path, model.BouquetTV)
	require.NoError(t, err)
	require.Empty(t, skipped)

	bq, ok := c.Store().Bouquet("Imported:" + string(model.BouquetTV))
	require.True(t, ok)
	require.Len(t, bq.Services, 2)

	// Importing again: the duplicate bouquet is a conflict and nothing
	// is added or reported.
	skipped, err = c.ImportBouquet(path, model.BouquetTV)
	require.ErrorIs(t, err, model.ErrConflict)
	require.Empty(t, skipped)
}

func TestImportBouquetConflictLeavesModelUntouched(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.OpenLocal(context.Background()))
	before := c.Store().Len()

	// Same bouquet name as the loaded one, but carrying a marker the
	// store has never seen. A canceled import must not keep it.
	colliding := "#NAME Favourites\n" +
		"#SERVICE 1:0:1:1:1:82:820000:0:0:0:\n" +
		"#SERVICE 1:64:0:0:0:0:0:0:0:0::Fresh\n" +
		"#DESCRIPTION Fresh\n"
	path := filepath.Join(t.TempDir(), "userbouquet.favourites.tv")
	require.NoError(t, os.WriteFile(path, []byte(colliding), 0o644))

	_, err := c.ImportBouquet(path, model.BouquetTV)
	require.ErrorIs(t, err, model.ErrConflict)
	require.Equal(t, before, c.Store().Len())
}

func TestExportM3U(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.OpenLocal(context.Background()))

	var bouquetID string
	for _, g := range c.Store().Groups() {
		for _, bq := range g.Bouquets {
			bouquetID = bq.ID()
		}
	}
	require.NotEmpty(t, bouquetID)

	var out bytes.Buffer
	n, err := c.ExportM3U(&out, bouquetID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Contains(t, out.String(), "http://127.0.0.1:8001/1:0:1:1:1:82:820000:0:0:0:")
	require.Contains(t, out.String(), "Das Erste HD")
}

func TestIPTVStreamURL(t *testing.T) {
	svc := model.Service{
		Type:  model.TypeIPTV,
		FavID: "4097:0:1:0:0:0:0:0:0:0:http%3a//host/stream.m3u8:Web One",
	}
	u, ok := IPTVStreamURL(svc)
	require.True(t, ok)
	require.Equal(t, "http://host/stream.m3u8", u)

	_, ok = IPTVStreamURL(model.Service{Type: model.TypeTV, FavID: "1:1:82:820000"})
	require.False(t, ok)
}

func TestAutoConfigureEpgAnnotatesServices(t *testing.T) {
	c := newTestController(t)
	require.NoError(t, c.OpenLocal(context.Background()))

	matched, err := c.AutoConfigureEpg(map[string][]string{
		"daserste.de": {"Das Erste HD"},
		"radioeins":   {"RADIO EINS"},
	}, "de_DE")
	require.NoError(t, err)
	require.Equal(t, 2, matched)

	s, ok := c.Store().Service("1:1:82:820000")
	require.True(t, ok)
	require.Equal(t, "daserste.de", s.EpgID)
}
