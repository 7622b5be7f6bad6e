package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/demon-editor/core/internal/log"
)

// Manager owns the loaded configuration. It is constructed once and
// handed to whoever needs settings; mutations stay in memory until
// Save.
type Manager struct {
	path string
	log  zerolog.Logger

	mu  sync.RWMutex
	cfg *Config
}

// NewManager loads the file at path, creating it with defaults when
// missing. A version mismatch resets the file and returns the manager
// together with a recoverable *SettingsError.
func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path, log: log.WithComponent("settings")}

	cfg, err := readConfig(path)
	switch {
	case os.IsNotExist(err):
		cfg = DefaultConfig()
		if werr := writeConfig(path, cfg); werr != nil {
			return nil, werr
		}
		m.cfg = cfg
		return m, nil
	case err != nil:
		return nil, &SettingsError{Path: path, Err: err}
	}

	if cfg.Version != configVersion {
		m.log.Warn().Str("event", "config.reset").
			Int("found", cfg.Version).Int("want", configVersion).Msg("config version mismatch, resetting")
		cfg = DefaultConfig()
		if werr := writeConfig(path, cfg); werr != nil {
			return nil, werr
		}
		m.cfg = cfg
		return m, &SettingsError{Path: path, Err: ErrVersionMismatch}
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]Profile{"default": defaultProfile()}
	}
	m.cfg = cfg
	return m, nil
}

// Path returns the backing file location.
func (m *Manager) Path() string { return m.path }

// Config returns a deep copy of the current configuration.
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := *m.cfg
	out.Profiles = make(map[string]Profile, len(m.cfg.Profiles))
	for k, v := range m.cfg.Profiles {
		out.Profiles[k] = v
	}
	return out
}

// Profile returns the named profile, or the default one for "".
func (m *Manager) Profile(name string) (Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if name == "" {
		name = m.cfg.DefaultProfile
	}
	p, ok := m.cfg.Profiles[name]
	if !ok {
		return Profile{}, &SettingsError{Path: m.path, Err: fmt.Errorf("unknown profile %q", name)}
	}
	return p, nil
}

// SetProfile stores or replaces a profile in memory.
func (m *Manager) SetProfile(name string, p Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Profiles[name] = p
}

// RemoveProfile drops a profile. The default profile cannot be
// removed.
func (m *Manager) RemoveProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == m.cfg.DefaultProfile {
		return &SettingsError{Path: m.path, Err: fmt.Errorf("cannot remove default profile %q", name)}
	}
	delete(m.cfg.Profiles, name)
	return nil
}

// SetDefaultProfile changes which profile opens on start.
func (m *Manager) SetDefaultProfile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cfg.Profiles[name]; !ok {
		return &SettingsError{Path: m.path, Err: fmt.Errorf("unknown profile %q", name)}
	}
	m.cfg.DefaultProfile = name
	return nil
}

// Update applies fn to the configuration under the lock.
func (m *Manager) Update(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.cfg)
}

// Save writes the in-memory state to disk atomically.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := writeConfig(m.path, m.cfg); err != nil {
		return err
	}
	m.log.Debug().Str("event", "config.saved").Str("path", m.path).Msg("settings written")
	return nil
}

// ResetToDefault rewrites both memory and disk with defaults.
func (m *Manager) ResetToDefault() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = DefaultConfig()
	return writeConfig(m.path, m.cfg)
}

// Watch reloads the configuration when the file changes on disk and
// calls onChange with the fresh copy. It blocks until the context
// ends. Writes made through Save are reported too; callers that care
// can compare.
func (m *Manager) Watch(ctx context.Context, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors and atomic writers replace the
	// file, which would silently drop a file-level watch.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			cfg, err := readConfig(m.path)
			if err != nil || cfg.Version != configVersion {
				m.log.Warn().Str("event", "config.watch.skip").Msg("ignoring unreadable config change")
				continue
			}
			m.mu.Lock()
			m.cfg = cfg
			m.mu.Unlock()
			if onChange != nil {
				onChange(m.Config())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			m.log.Warn().Err(err).Str("event", "config.watch.error").Msg("watcher error")
		}
	}
}
