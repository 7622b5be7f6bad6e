// Package settings persists application configuration: one JSON file
// holding named receiver profiles plus app-level options.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// configVersion guards the on-disk schema. A file with any other
// version is reset to defaults.
const configVersion = 1

// SettingType selects the receiver family a profile talks to.
type SettingType string

const (
	Enigma2    SettingType = "ENIGMA_2"
	NeutrinoMP SettingType = "NEUTRINO_MP"
)

// ErrVersionMismatch marks a config file whose version did not match;
// the file has been rewritten with defaults and work can continue.
var ErrVersionMismatch = errors.New("settings: config version mismatch")

// SettingsError is recoverable: the manager holds usable defaults when
// it is returned.
type SettingsError struct {
	Path string
	Err  error
}

func (e *SettingsError) Error() string {
	return fmt.Sprintf("settings: %s: %v", e.Path, e.Err)
}

func (e *SettingsError) Unwrap() error { return e.Err }

// Connection holds every way of reaching one receiver.
type Connection struct {
	Host           string `json:"host"`
	FTPPort        int    `json:"ftp_port"`
	FTPUser        string `json:"ftp_user"`
	FTPPassword    string `json:"ftp_password"`
	HTTPPort       int    `json:"http_port"`
	HTTPUser       string `json:"http_user"`
	HTTPPassword   string `json:"http_password"`
	UseSSL         bool   `json:"use_ssl"`
	TelnetPort     int    `json:"telnet_port"`
	TelnetUser     string `json:"telnet_user"`
	TelnetPassword string `json:"telnet_password"`
	TelnetTimeout  int    `json:"telnet_timeout"`
}

// ReceiverPaths are the remote directories on the box.
type ReceiverPaths struct {
	Services     string `json:"services"`
	UserBouquets string `json:"user_bouquets"`
	Satellites   string `json:"satellites"`
	Picons       string `json:"picons"`
}

// LocalPaths are the workstation directories a profile works in.
type LocalPaths struct {
	Data   string `json:"data"`
	Picons string `json:"picons"`
	Backup string `json:"backup"`
}

// EpgOptions selects and tunes the EPG source for a profile.
type EpgOptions struct {
	Source         string `json:"source"` // "http", "xmltv" or "dat"
	XMLTVUrl       string `json:"xmltv_url"`
	UpdateInterval int    `json:"update_interval"` // seconds
	NameMapEnabled bool   `json:"name_map_enabled"`
}

// Profile is one receiver configuration.
type Profile struct {
	SettingType SettingType   `json:"setting_type"`
	Connection  Connection    `json:"connection"`
	Receiver    ReceiverPaths `json:"receiver_paths"`
	Local       LocalPaths    `json:"local_paths"`
	Epg         EpgOptions    `json:"epg"`
	UseHTTP     bool          `json:"use_http"`
}

// Config is the whole on-disk document.
type Config struct {
	Version        int                `json:"version"`
	DefaultProfile string             `json:"default_profile"`
	Profiles       map[string]Profile `json:"profiles"`
	Locale         string             `json:"locale,omitempty"`
	BackupOnSave   bool               `json:"backup_on_save"`
	RemoveUnused   bool               `json:"remove_unused"`
	// Telnet and Debug are the feature flags the CLI persists.
	Telnet bool `json:"telnet"`
	Debug  bool `json:"debug"`
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "demon-editor", "config.json"), nil
}

func defaultProfile() Profile {
	return Profile{
		SettingType: Enigma2,
		Connection: Connection{
			Host: "127.0.0.1", FTPPort: 21, FTPUser: "root",
			HTTPPort: 80, HTTPUser: "root",
			TelnetPort: 23, TelnetUser: "root", TelnetTimeout: 5,
		},
		Receiver: ReceiverPaths{
			Services:     "/etc/enigma2/",
			UserBouquets: "/etc/enigma2/",
			Satellites:   "/etc/tuxbox/",
			Picons:       "/usr/share/enigma2/picon/",
		},
		Local: LocalPaths{Data: "data/", Picons: "picons/", Backup: "backup/"},
		Epg:   EpgOptions{Source: "http", UpdateInterval: 30},
	}
}

// DefaultConfig returns a usable configuration with one profile.
func DefaultConfig() *Config {
	return &Config{
		Version:        configVersion,
		DefaultProfile: "default",
		Profiles:       map[string]Profile{"default": defaultProfile()},
		BackupOnSave:   true,
	}
}

func readConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func writeConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, append(data, '\n'), 0o644)
}
