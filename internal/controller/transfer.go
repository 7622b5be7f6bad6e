package controller

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/demon-editor/core/internal/log"
	"github.com/demon-editor/core/internal/settings"
	"github.com/demon-editor/core/internal/transfer"
)

func ftpConfig(p settings.Profile) transfer.FTPConfig {
	return transfer.FTPConfig{
		Host:     p.Connection.Host,
		Port:     p.Connection.FTPPort,
		User:     p.Connection.FTPUser,
		Password: p.Connection.FTPPassword,
	}
}

func telnetConfig(p settings.Profile) transfer.TelnetConfig {
	return transfer.TelnetConfig{
		Host:     p.Connection.Host,
		Port:     p.Connection.TelnetPort,
		User:     p.Connection.TelnetUser,
		Password: p.Connection.TelnetPassword,
		Timeout:  time.Duration(p.Connection.TelnetTimeout) * time.Second,
	}
}

func transferPaths(p settings.Profile) transfer.Paths {
	return transfer.Paths{
		Services:   p.Receiver.Services,
		Satellites: p.Receiver.Satellites,
		Picons:     p.Receiver.Picons,
		LocalData:  p.Local.Data,
		LocalPic:   p.Local.Picons,
	}
}

func (c *Controller) activeProfile() settings.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// DownloadAll fetches the receiver's configuration into the local data
// directory as a background task and reloads the model when done.
func (c *Controller) DownloadAll() *Task {
	profile := c.activeProfile()
	name := c.ProfileName()
	return c.Tasks.Start("download", func(ctx context.Context, progress func(done, total int)) error {
		ctx = log.ContextWithProfile(ctx, name)
		if err := ensureDir(profile.Local.Data); err != nil {
			return err
		}
		f, err := transfer.DialFTP(ctx, ftpConfig(profile))
		if err != nil {
			return err
		}
		defer f.Close()

		count := 0
		_, err = transfer.DownloadSettings(ctx, f, transferPaths(profile), func(transfer.Progress) {
			count++
			progress(count, 0)
		})
		if err != nil {
			return err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		return c.openDir(ctx, profile.Local.Data)
	})
}

// UploadAll pushes the local configuration set to the receiver,
// bouncing or reloading its service layer around the transfer.
func (c *Controller) UploadAll(useTelnet bool) *Task {
	profile := c.activeProfile()
	name := c.ProfileName()
	removeUnused := c.Settings.Config().RemoveUnused

	return c.Tasks.Start("upload", func(ctx context.Context, progress func(done, total int)) error {
		ctx = log.ContextWithProfile(ctx, name)
		files, err := localSettingsFiles(profile.Local.Data)
		if err != nil {
			return err
		}

		f, err := transfer.DialFTP(ctx, ftpConfig(profile))
		if err != nil {
			return err
		}
		defer f.Close()

		var tel *transfer.TelnetSession
		if useTelnet {
			tel, err = transfer.DialTelnet(ctx, telnetConfig(profile))
			if err != nil {
				return err
			}
			defer tel.Close()
		}

		opts := transfer.UploadOptions{
			RemoveUnused: removeUnused,
			Neutrino:     profile.SettingType == settings.NeutrinoMP,
			UseHTTP:      profile.UseHTTP,
			HTTPPort:     profile.Connection.HTTPPort,
			HTTPUser:     profile.Connection.HTTPUser,
			HTTPPassword: profile.Connection.HTTPPassword,
		}
		count := 0
		return transfer.UploadSettings(ctx, f, tel, transferPaths(profile), files, opts, func(transfer.Progress) {
			count++
			progress(count, len(files))
		})
	})
}

// UploadPicons replaces the receiver's picon directory with the local
// one. Cancelable between files.
func (c *Controller) UploadPicons() *Task {
	profile := c.activeProfile()
	name := c.ProfileName()
	return c.Tasks.Start("picons-upload", func(ctx context.Context, progress func(done, total int)) error {
		ctx = log.ContextWithProfile(ctx, name)
		f, err := transfer.DialFTP(ctx, ftpConfig(profile))
		if err != nil {
			return err
		}
		defer f.Close()

		count := 0
		return transfer.UploadPicons(ctx, f, transferPaths(profile), func(transfer.Progress) {
			count++
			progress(count, 0)
		})
	})
}

// DownloadEpgDat fetches the receiver's epg.dat into the local data
// directory and returns its path through the task's name.
func (c *Controller) DownloadEpgDat(remotePath string) *Task {
	profile := c.activeProfile()
	name := c.ProfileName()
	return c.Tasks.Start("epg-download", func(ctx context.Context, progress func(done, total int)) error {
		ctx = log.ContextWithProfile(ctx, name)
		f, err := transfer.DialFTP(ctx, ftpConfig(profile))
		if err != nil {
			return err
		}
		defer f.Close()

		local := filepath.Join(profile.Local.Data, "epg.dat")
		count := 0
		_, err = f.Download(ctx, remotePath, local, func(transfer.Progress) {
			count++
			progress(count, 0)
		})
		return err
	})
}

// localSettingsFiles lists the uploadable configuration files in the
// data directory, bouquet files first so the receiver sees a complete
// set if the transfer dies midway.
func localSettingsFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return nil, err
	}
	var bouquetFiles, rest []string
	for _, m := range matches {
		name := filepath.Base(m)
		switch {
		case strings.HasSuffix(name, ".tv") || strings.HasSuffix(name, ".radio"):
			bouquetFiles = append(bouquetFiles, m)
		case name == "lamedb" || name == "lamedb5" || name == "services.xml" ||
			name == "bouquets.xml" || name == "ubouquets.xml" ||
			name == "blacklist" || name == "whitelist" ||
			name == "satellites.xml" || name == "webtv.xml":
			rest = append(rest, m)
		}
	}
	return append(bouquetFiles, rest...), nil
}
