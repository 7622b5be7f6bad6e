// Package controller is the façade the front-end talks to: it owns the
// loaded data model, the active profile, background tasks and the
// event bus tying them together.
package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/demon-editor/core/internal/codec"
	"github.com/demon-editor/core/internal/codec/blacklist"
	"github.com/demon-editor/core/internal/codec/bouquets"
	"github.com/demon-editor/core/internal/codec/lamedb"
	"github.com/demon-editor/core/internal/codec/satxml"
	"github.com/demon-editor/core/internal/epg"
	"github.com/demon-editor/core/internal/log"
	"github.com/demon-editor/core/internal/model"
	"github.com/demon-editor/core/internal/settings"
)

// servicesBatch is how many rows a services-update event covers while
// a large database streams into the view.
const servicesBatch = 50

// ErrUnsavedChanges asks the front-end to confirm before the current
// model is dropped.
var ErrUnsavedChanges = errors.New("controller: unsaved changes in the current model")

// Controller wires the model, settings, EPG engine and transfer tasks
// together behind one API.
type Controller struct {
	Settings *settings.Manager
	Bus      *Bus
	Tasks    *TaskRunner
	Epg      *epg.Engine

	log zerolog.Logger

	mu          sync.Mutex
	profileName string
	profile     settings.Profile
	store       *model.Store
	db          *lamedb.File // Enigma2 services database, kept for save
	satellites  []model.Satellite

	saveMu sync.Mutex
}

// New builds a controller on the default profile. The context bounds
// every background task the controller will ever start.
func New(ctx context.Context, mgr *settings.Manager) (*Controller, error) {
	bus := NewBus()
	cfg := mgr.Config()
	profile, err := mgr.Profile(cfg.DefaultProfile)
	if err != nil {
		return nil, err
	}

	names := epg.NameMap{}
	if profile.Epg.NameMapEnabled {
		names, err = epg.LoadNameMap(nameMapPath(profile))
		if err != nil {
			return nil, err
		}
	}

	return &Controller{
		Settings:    mgr,
		Bus:         bus,
		Tasks:       NewTaskRunner(ctx, bus),
		Epg:         epg.NewEngine(names),
		log:         log.WithComponent("controller"),
		profileName: cfg.DefaultProfile,
		profile:     profile,
		store:       model.NewStore(),
	}, nil
}

func nameMapPath(p settings.Profile) string {
	return filepath.Join(p.Local.Data, "epg_name_map.json")
}

// ProfileName returns the active profile.
func (c *Controller) ProfileName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profileName
}

// Store exposes the loaded model.
func (c *Controller) Store() *model.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// Satellites returns the satellites.xml content loaded with the
// profile data.
func (c *Controller) Satellites() []model.Satellite {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.satellites
}

// Dirty reports whether the model differs from its last saved state.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Dirty()
}

// SwitchProfile activates another profile. With unsaved changes and
// force unset it refuses, so the front-end can prompt.
func (c *Controller) SwitchProfile(name string, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.Dirty() && !force {
		return ErrUnsavedChanges
	}
	profile, err := c.Settings.Profile(name)
	if err != nil {
		return err
	}
	c.profileName = name
	c.profile = profile
	c.store = model.NewStore()
	c.db = nil
	c.satellites = nil
	c.Bus.Publish(Event{Type: EventProfileChanged, ID: name})
	c.log.Info().Str("event", "profile.switch").Str("profile", name).Msg("profile activated")
	return nil
}

// OpenLocal loads the profile's local data directory into the model.
func (c *Controller) OpenLocal(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.openDir(ctx, c.profile.Local.Data)
}

// openDir parses a data directory and swaps the model. Callers hold
// c.mu.
func (c *Controller) openDir(ctx context.Context, dir string) error {
	var (
		services []model.Service
		groups   []*model.BouquetGroup
		locked   []string
		db       *lamedb.File
		err      error
	)
	switch c.profile.SettingType {
	case settings.NeutrinoMP:
		services, groups, locked, err = readNeutrinoDir(dir)
	default:
		services, groups, locked, db, err = readEnigma2Dir(dir)
	}
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	store := model.NewStore()
	if err := store.Load(services, groups, locked); err != nil {
		return err
	}
	store.CommitHash()
	c.store = store
	c.db = db

	sats, err := satxml.ReadSatellites(filepath.Join(dir, "satellites.xml"))
	if err != nil && !errors.Is(err, codec.ErrMissingData) {
		return err
	}
	c.satellites = sats

	c.Bus.Publish(Event{Type: EventDataOpen, ID: c.profileName})
	c.publishServiceBatches(store.Len())
	c.log.Info().Str("event", "data.open").Str("dir", dir).Int("services", store.Len()).Msg("model loaded")
	return nil
}

// publishServiceBatches yields the view in fixed-size slices so a
// 10k-service load keeps the front-end responsive.
func (c *Controller) publishServiceBatches(total int) {
	for done := 0; done < total; done += servicesBatch {
		n := servicesBatch
		if total-done < n {
			n = total - done
		}
		c.Bus.Publish(Event{Type: EventServicesUpdate, ID: c.profileName, Count: n})
	}
}

func readEnigma2Dir(dir string) ([]model.Service, []*model.BouquetGroup, []string, *lamedb.File, error) {
	db, err := lamedb.Read(filepath.Join(dir, "lamedb"))
	if errors.Is(err, codec.ErrMissingData) {
		db, err = lamedb.Read(filepath.Join(dir, "lamedb5"))
	}
	if err != nil {
		return nil, nil, nil, nil, err
	}

	services := append([]model.Service(nil), db.Services...)
	var groups []*model.BouquetGroup
	for _, t := range []model.BouquetType{model.BouquetTV, model.BouquetRadio} {
		group, synthesized, warns, err := bouquets.ReadGroup(dir, t)
		if err != nil {
			if errors.Is(err, codec.ErrMissingData) {
				continue
			}
			return nil, nil, nil, nil, err
		}
		for _, w := range warns {
			lg := log.WithComponent("controller")
			lg.Warn().Err(w.Err).Str("event", "data.open.warn").Str("item", w.Item).Msg("bouquet warning")
		}
		services = append(services, synthesized...)
		groups = append(groups, group)
	}

	locked, err := blacklist.Read(filepath.Join(dir, "blacklist"), true)
	if err != nil && !errors.Is(err, codec.ErrMissingData) {
		return nil, nil, nil, nil, err
	}
	return services, groups, locked, db, nil
}

func readNeutrinoDir(dir string) ([]model.Service, []*model.BouquetGroup, []string, error) {
	services, err := satxml.ReadNeutrinoServices(filepath.Join(dir, "services.xml"))
	if err != nil {
		return nil, nil, nil, err
	}
	var groups []*model.BouquetGroup
	for _, name := range []string{"bouquets.xml", "ubouquets.xml"} {
		group, synthesized, err := bouquets.ReadNeutrinoGroup(filepath.Join(dir, name), model.BouquetTV)
		if err != nil {
			if errors.Is(err, codec.ErrMissingData) {
				continue
			}
			return nil, nil, nil, err
		}
		services = append(services, synthesized...)
		groups = append(groups, group)
	}
	return services, groups, nil, nil
}

// Save writes the model back to the profile's data directory. Saves
// are serialized; a second Save blocks until the first finished. With
// backup enabled the previous files are zipped away first.
func (c *Controller) Save(ctx context.Context) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	store := c.store
	db := c.db
	profile := c.profile
	profileName := c.profileName
	backup := c.Settings.Config().BackupOnSave
	c.mu.Unlock()

	dir := profile.Local.Data
	if backup {
		if _, err := BackupDataDir(dir, profile.Local.Backup, profileName); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	switch profile.SettingType {
	case settings.NeutrinoMP:
		err = writeNeutrinoDir(dir, store)
	default:
		err = writeEnigma2Dir(dir, store, db)
	}
	if err != nil {
		return err
	}

	store.CommitHash()
	c.Bus.Publish(Event{Type: EventDataSave, ID: profileName})
	c.log.Info().Str("event", "data.save").Str("dir", dir).Msg("model saved")
	return nil
}

func writeEnigma2Dir(dir string, store *model.Store, db *lamedb.File) error {
	if db == nil {
		db = &lamedb.File{Version: 4}
	}
	var dvb []model.Service
	for _, s := range store.Services() {
		switch s.Type {
		case model.TypeMarker, model.TypeSpace, model.TypeAlt, model.TypeIPTV:
		default:
			dvb = append(dvb, s)
		}
	}
	db.Services = dvb
	if err := lamedb.WriteFile(filepath.Join(dir, "lamedb"), db); err != nil {
		return err
	}

	lookup := func(id string) (model.Service, bool) { return store.Service(id) }
	for _, group := range store.Groups() {
		if err := bouquets.WriteGroup(dir, group, lookup); err != nil {
			return err
		}
	}
	return blacklist.Write(filepath.Join(dir, "blacklist"), store.Blacklist())
}

func writeNeutrinoDir(dir string, store *model.Store) error {
	var dvb []model.Service
	for _, s := range store.Services() {
		switch s.Type {
		case model.TypeMarker, model.TypeSpace, model.TypeAlt, model.TypeIPTV:
		default:
			dvb = append(dvb, s)
		}
	}
	if err := satxml.WriteNeutrinoServices(filepath.Join(dir, "services.xml"), dvb); err != nil {
		return err
	}
	lookup := func(id string) (model.Service, bool) { return store.Service(id) }
	for _, group := range store.Groups() {
		name := "bouquets.xml"
		if len(store.Groups()) > 1 && group != store.Groups()[0] {
			name = "ubouquets.xml"
		}
		if err := bouquets.WriteNeutrinoGroup(filepath.Join(dir, name), group, lookup); err != nil {
			return err
		}
	}
	return nil
}

// SaveSatellites writes the loaded satellite list back to the data
// directory.
func (c *Controller) SaveSatellites() error {
	c.mu.Lock()
	sats := c.satellites
	dir := c.profile.Local.Data
	c.mu.Unlock()
	return satxml.WriteSatellites(filepath.Join(dir, "satellites.xml"), sats)
}

// SetSatellites replaces the in-memory satellite list.
func (c *Controller) SetSatellites(sats []model.Satellite) {
	c.mu.Lock()
	c.satellites = sats
	c.mu.Unlock()
}

// AutoConfigureEpg matches guide channels onto loaded services and
// annotates them with the resulting epg ids. It returns how many
// services were matched.
func (c *Controller) AutoConfigureEpg(channels map[string][]string, locale string) (int, error) {
	c.mu.Lock()
	store := c.store
	c.mu.Unlock()

	services := store.Services()
	names := make([]string, 0, len(services))
	byName := make(map[string]model.Service, len(services))
	for _, s := range services {
		if s.Name == "" || s.Type == model.TypeMarker || s.Type == model.TypeSpace {
			continue
		}
		names = append(names, s.Name)
		byName[s.Name] = s
	}

	matched := epg.AutoMap(names, channels, epg.TransliterateLocale(locale))
	for name, id := range matched {
		s := byName[name]
		s.EpgID = id
		if err := store.UpdateService(s.FavID, s); err != nil {
			return 0, err
		}
	}
	if len(matched) > 0 {
		c.Bus.Publish(Event{Type: EventEpgCacheUpdated, ID: c.ProfileName(), Count: len(matched)})
	}
	return len(matched), nil
}

// PublishBouquetChanged lets model-editing front-ends notify views.
func (c *Controller) PublishBouquetChanged(bouquetID string) {
	c.Bus.Publish(Event{Type: EventBouquetChanged, ID: bouquetID})
}

// PublishFavChanged notifies views about a favourites edit.
func (c *Controller) PublishFavChanged(favID string) {
	c.Bus.Publish(Event{Type: EventFavChanged, ID: favID})
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("controller: empty directory")
	}
	return os.MkdirAll(dir, 0o755)
}
