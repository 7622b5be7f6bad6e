package acquire

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// PiconPair is one scraped provider-page row: the channel logo and the
// service id it belongs to.
type PiconPair struct {
	ImageURL string
	SSID     string
}

var ssidRe = regexp.MustCompile(`^\d{1,5}$`)

// ScrapePicons walks a LyngSat-style provider page and pairs each
// channel logo with the service id in the same row.
func (f *Fetcher) ScrapePicons(ctx context.Context, pageURL string) ([]PiconPair, []ItemError, error) {
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, nil, err
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, err
	}

	var pairs []PiconPair
	var errs []ItemError
	for _, r := range imageRows(body) {
		ssid := ""
		for _, c := range r.cells {
			if ssidRe.MatchString(c) {
				ssid = c
				break
			}
		}
		if ssid == "" {
			continue
		}
		img, err := base.Parse(r.imgSrc)
		if err != nil {
			errs = append(errs, ItemError{Item: r.imgSrc, Err: err})
			continue
		}
		pairs = append(pairs, PiconPair{ImageURL: img.String(), SSID: ssid})
	}
	f.log.Info().Str("event", "picons.scraped").Str("url", pageURL).Int("picons", len(pairs)).Msg("provider page parsed")
	return pairs, errs, nil
}

// DownloadPicons fetches each scraped logo into dir. nameFor derives
// the receiver filename for an ssid; pairs it cannot resolve are
// skipped. Failures are per-item; cancellation is checked between
// files.
func (f *Fetcher) DownloadPicons(ctx context.Context, pairs []PiconPair, dir string, nameFor func(ssid string) (string, bool)) (int, []ItemError, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, nil, err
	}
	var errs []ItemError
	var saved int
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return saved, errs, err
		}
		name, ok := nameFor(p.SSID)
		if !ok {
			continue
		}
		data, err := f.get(ctx, p.ImageURL)
		if err != nil {
			errs = append(errs, ItemError{Item: p.ImageURL, Err: err})
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			errs = append(errs, ItemError{Item: name, Err: err})
			continue
		}
		saved++
	}
	return saved, errs, nil
}

// Find7z locates a 7-Zip binary. PATH is searched first, then the
// usual platform install locations.
func Find7z() (string, error) {
	for _, name := range []string{"7z", "7zr", "7za"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	var extra []string
	switch runtime.GOOS {
	case "windows":
		extra = []string{
			`C:\Program Files\7-Zip\7z.exe`,
			`C:\Program Files (x86)\7-Zip\7z.exe`,
		}
	case "darwin":
		extra = []string{"/usr/local/bin/7z", "/opt/homebrew/bin/7z"}
	default:
		extra = []string{"/usr/bin/7z", "/usr/bin/7zr"}
	}
	for _, p := range extra {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("acquire: no 7z binary found; install p7zip")
}

// DownloadPiconPackage retrieves a picon.cz 7z archive and extracts it
// into dir. When ids is non-empty only picons whose filename is in the
// set are kept, so a package can be trimmed to one bouquet.
func (f *Fetcher) DownloadPiconPackage(ctx context.Context, archiveURL, dir string, ids map[string]struct{}) (int, error) {
	data, err := f.get(ctx, archiveURL)
	if err != nil {
		return 0, err
	}

	tmp, err := os.MkdirTemp("", "picon-pkg-*")
	if err != nil {
		return 0, err
	}
	defer os.RemoveAll(tmp)

	archive := filepath.Join(tmp, "package.7z")
	if err := os.WriteFile(archive, data, 0o644); err != nil {
		return 0, err
	}

	bin, err := Find7z()
	if err != nil {
		return 0, err
	}
	extracted := filepath.Join(tmp, "out")
	cmd := exec.CommandContext(ctx, bin, "x", "-y", "-o"+extracted, archive)
	if out, err := cmd.CombinedOutput(); err != nil {
		return 0, fmt.Errorf("acquire: 7z extract: %w: %s", err, strings.TrimSpace(string(out)))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	var kept int
	err = filepath.WalkDir(extracted, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".png") {
			return nil
		}
		name := filepath.Base(p)
		if len(ids) > 0 {
			if _, ok := ids[name]; !ok {
				return nil
			}
		}
		if err := copyFile(p, filepath.Join(dir, name)); err != nil {
			return err
		}
		kept++
		return nil
	})
	if err != nil {
		return kept, err
	}
	f.log.Info().Str("event", "picons.package").Int("kept", kept).Msg("picon package extracted")
	return kept, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	cerr := out.Close()
	if err == nil {
		err = cerr
	}
	return err
}

func imageRows(body []byte) []row {
	var out []row
	for _, r := range tableRows(body) {
		if r.imgSrc != "" {
			out = append(out, r)
		}
	}
	return out
}
