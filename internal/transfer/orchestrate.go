package transfer

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"

	"github.com/demon-editor/core/internal/log"
)

// settingsEndings is the file set fetched from the services path on a
// full download. Matched by suffix so userbouquet.*.tv and friends are
// included.
var settingsEndings = []string{
	"tv", "radio",
	"bouquets.xml", "ubouquets.xml",
	"lamedb", "lamedb5",
	"services.xml",
	"blacklist", "whitelist",
}

// satelliteFiles live in the satellites path and are optional on many
// images.
var satelliteFiles = []string{"satellites.xml", "webtv.xml"}

// Paths names the remote and local directories a profile transfers
// between.
type Paths struct {
	Services   string
	Satellites string
	Picons     string
	LocalData  string
	LocalPic   string
}

// UploadOptions tunes a settings upload.
type UploadOptions struct {
	// RemoveUnused deletes remote bouquet files that are not part of
	// the upload set before uploading.
	RemoveUnused bool
	// Neutrino selects the Neutrino restart runlevel.
	Neutrino bool
	// UseHTTP reloads the service list through the box-local web API
	// instead of bouncing the service layer.
	UseHTTP      bool
	HTTPPort     int
	HTTPUser     string
	HTTPPassword string
}

func hasSettingsEnding(name string) bool {
	for _, e := range settingsEndings {
		if strings.HasSuffix(name, e) {
			return true
		}
	}
	return false
}

// DownloadSettings fetches the full configuration set into the local
// data directory and returns the local paths written, in fetch order.
func DownloadSettings(ctx context.Context, f *FTP, paths Paths, progress ProgressFunc) ([]string, error) {
	logger := log.WithComponentFromContext(ctx, "transfer")
	logger.Info().Str("event", "download.start").Str("dir", paths.Services).Msg("downloading settings")

	entries, _, err := f.List(paths.Services)
	if err != nil {
		return nil, err
	}

	var fetched []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return fetched, ErrCanceled
		}
		if e.Dir || !hasSettingsEnding(e.Name) {
			continue
		}
		local := filepath.Join(paths.LocalData, e.Name)
		if _, err := f.Download(ctx, path.Join(paths.Services, e.Name), local, progress); err != nil {
			return fetched, err
		}
		fetched = append(fetched, local)
	}

	for _, name := range satelliteFiles {
		if err := ctx.Err(); err != nil {
			return fetched, ErrCanceled
		}
		local := filepath.Join(paths.LocalData, name)
		if _, err := f.Download(ctx, path.Join(paths.Satellites, name), local, progress); err != nil {
			// Not every image ships webtv.xml; a 550 here is normal.
			if IsNoSuchFile(err) {
				continue
			}
			return fetched, err
		}
		fetched = append(fetched, local)
	}

	logger.Info().Str("event", "download.done").Int("files", len(fetched)).Msg("settings downloaded")
	return fetched, nil
}

// UploadSettings pushes the given local files to the receiver. When a
// Telnet session is supplied the service layer is stopped first and
// brought back (or the list reloaded over HTTP) afterwards.
func UploadSettings(ctx context.Context, f *FTP, tel *TelnetSession, paths Paths, files []string, opts UploadOptions, progress ProgressFunc) error {
	logger := log.WithComponentFromContext(ctx, "transfer")
	logger.Info().Str("event", "upload.start").Int("files", len(files)).Msg("uploading settings")

	if tel != nil && !opts.UseHTTP {
		if err := StopServices(ctx, tel); err != nil {
			return err
		}
	}

	if opts.RemoveUnused {
		if err := removeStaleBouquets(ctx, f, paths.Services, files); err != nil {
			return err
		}
	}

	for _, local := range files {
		if err := ctx.Err(); err != nil {
			return ErrCanceled
		}
		name := filepath.Base(local)
		remote := path.Join(paths.Services, name)
		if isSatelliteFile(name) {
			remote = path.Join(paths.Satellites, name)
		}
		if _, err := f.Upload(ctx, local, remote, progress); err != nil {
			return err
		}
	}

	if tel != nil {
		if opts.UseHTTP {
			if err := ReloadHTTP(ctx, tel, opts.HTTPPort, opts.HTTPUser, opts.HTTPPassword); err != nil {
				return err
			}
		} else if err := StartServices(ctx, tel, opts.Neutrino); err != nil {
			return err
		}
	}

	logger.Info().Str("event", "upload.done").Int("files", len(files)).Msg("settings uploaded")
	return nil
}

func isSatelliteFile(name string) bool {
	for _, s := range satelliteFiles {
		if name == s {
			return true
		}
	}
	return false
}

// removeStaleBouquets deletes remote userbouquet files that are not in
// the upload set, so renamed or removed bouquets do not linger on the
// box.
func removeStaleBouquets(ctx context.Context, f *FTP, servicesDir string, files []string) error {
	keep := make(map[string]struct{}, len(files))
	for _, local := range files {
		keep[filepath.Base(local)] = struct{}{}
	}

	entries, _, err := f.List(servicesDir)
	if err != nil {
		return err
	}
	logger := log.WithComponentFromContext(ctx, "transfer")
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return ErrCanceled
		}
		if e.Dir || !isBouquetFile(e.Name) {
			continue
		}
		if _, ok := keep[e.Name]; ok {
			continue
		}
		if _, err := f.Delete(path.Join(servicesDir, e.Name)); err != nil {
			return err
		}
		logger.Debug().Str("event", "upload.prune").Str("file", e.Name).Msg("stale bouquet removed")
	}
	return nil
}

func isBouquetFile(name string) bool {
	if !strings.HasSuffix(name, ".tv") && !strings.HasSuffix(name, ".radio") {
		return false
	}
	return strings.HasPrefix(name, "userbouquet.") || strings.HasPrefix(name, "alternatives.") ||
		name == "bouquets.tv" || name == "bouquets.radio"
}

// UploadPicons replaces the receiver's picon set with the contents of
// the local picon directory. A missing target directory (550) is
// created; existing images are deleted first.
func UploadPicons(ctx context.Context, f *FTP, paths Paths, progress ProgressFunc) error {
	logger := log.WithComponentFromContext(ctx, "transfer")

	entries, _, err := f.List(paths.Picons)
	if err != nil {
		if !IsNoSuchFile(err) {
			return err
		}
		if _, err := f.MakeDir(paths.Picons); err != nil {
			return err
		}
		entries = nil
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return ErrCanceled
		}
		if e.Dir || !isPiconFile(e.Name) {
			continue
		}
		if _, err := f.Delete(path.Join(paths.Picons, e.Name)); err != nil {
			return err
		}
	}

	matches, err := filepath.Glob(filepath.Join(paths.LocalPic, "*"))
	if err != nil {
		return err
	}
	var count int
	for _, local := range matches {
		if err := ctx.Err(); err != nil {
			return ErrCanceled
		}
		if !isPiconFile(local) {
			continue
		}
		if _, err := f.Upload(ctx, local, path.Join(paths.Picons, filepath.Base(local)), progress); err != nil {
			return err
		}
		count++
	}
	logger.Info().Str("event", "picons.uploaded").Int("files", count).Msg("picon upload finished")
	return nil
}

func isPiconFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".png" || ext == ".jpg"
}

// IsCanceled reports whether err stems from cooperative cancellation,
// including a context cancellation surfaced through a wrapped error.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}
