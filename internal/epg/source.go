package epg

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/demon-editor/core/internal/codec/epgdat"
	"github.com/demon-editor/core/internal/codec/xmltv"
	"github.com/demon-editor/core/internal/log"
	"github.com/demon-editor/core/internal/model"
	"github.com/demon-editor/core/internal/openwebif"
)

// Source delivers a full event snapshot keyed by channel id or display
// name, depending on the backend.
type Source interface {
	Load(ctx context.Context) (map[string][]model.EpgEvent, error)
}

// HTTPSource queries the receiver's web API for one bouquet.
type HTTPSource struct {
	Client     *openwebif.Client
	BouquetRef string
}

func (s *HTTPSource) Load(ctx context.Context) (map[string][]model.EpgEvent, error) {
	events, err := s.Client.EpgMulti(ctx, s.BouquetRef)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]model.EpgEvent)
	for _, ev := range events {
		out[ev.ServiceName] = append(out[ev.ServiceName], ev)
	}
	return out, nil
}

// Now fetches just the running event per service.
func (s *HTTPSource) Now(ctx context.Context) (map[string]model.EpgEvent, error) {
	events, err := s.Client.EpgNow(ctx, s.BouquetRef)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.EpgEvent, len(events))
	for _, ev := range events {
		out[ev.ServiceName] = ev
	}
	return out, nil
}

// xmltvRefreshAge is how old the cached guide may grow before it is
// fetched again.
const xmltvRefreshAge = 24 * time.Hour

// XMLTVSource downloads a gzipped guide and parses it. The local copy
// lives under CacheDir with a SHA-1-derived name and is refreshed at
// most once per day.
type XMLTVSource struct {
	URL      string
	CacheDir string
	HTTP     *http.Client
}

// CachePath returns the local path for this source's guide.
func (s *XMLTVSource) CachePath() string {
	sum := sha1.Sum([]byte(s.URL))
	return filepath.Join(s.CacheDir, hex.EncodeToString(sum[:])+"_epg.gz")
}

func (s *XMLTVSource) Load(ctx context.Context) (map[string][]model.EpgEvent, error) {
	path := s.CachePath()
	if stale(path) {
		if err := s.fetch(ctx, path); err != nil {
			return nil, err
		}
	}
	res, err := xmltv.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		lg := log.WithComponent("epg")
		lg.Warn().Str("event", "xmltv.partial").
			Int("errors", len(res.Errors)).Msg("some programmes were skipped")
	}
	return res.Events, nil
}

// Channels parses only the channel table, for the auto-map dialog.
func (s *XMLTVSource) Channels(ctx context.Context) (map[string][]string, error) {
	path := s.CachePath()
	if stale(path) {
		if err := s.fetch(ctx, path); err != nil {
			return nil, err
		}
	}
	res, err := xmltv.ReadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string, len(res.Channels))
	for _, ch := range res.Channels {
		out[ch.ID] = ch.DisplayNames
	}
	return out, nil
}

func stale(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return true
	}
	return time.Since(fi.ModTime()) > xmltvRefreshAge
}

func (s *XMLTVSource) fetch(ctx context.Context, path string) error {
	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("epg: guide fetch %s: HTTP %d", s.URL, res.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, res.Body)
	cerr := out.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	lg := log.WithComponent("epg")
	lg.Info().Str("event", "xmltv.fetched").Str("url", s.URL).Msg("guide refreshed")
	return nil
}

// DATSource parses a local epg.dat snapshot, typically fetched from
// the box over FTP beforehand. Events key on service display name via
// the supplied resolver; unresolved channels key on their triple.
type DATSource struct {
	Path string
	// NameFor maps (sid, tsid, nid) to a display name.
	NameFor func(sid, tsid, nid uint32) (string, bool)
}

func (s *DATSource) Load(ctx context.Context) (map[string][]model.EpgEvent, error) {
	events, errs, err := epgdat.Read(s.Path)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		lg := log.WithComponent("epg")
		lg.Warn().Str("event", "dat.partial").
			Int("errors", len(errs)).Msg("some events were skipped")
	}
	out := make(map[string][]model.EpgEvent)
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%x:%x:%x", ev.SID, ev.TSID, ev.NID)
		if s.NameFor != nil {
			if name, ok := s.NameFor(ev.SID, ev.TSID, ev.NID); ok {
				key = name
			}
		}
		out[key] = append(out[key], model.EpgEvent{
			ServiceName: key,
			Title:       ev.Title,
			Start:       ev.Start,
			End:         ev.Start + ev.Duration,
			Length:      ev.Duration,
			Desc:        ev.Desc,
		})
	}
	return out, nil
}

// NameMap is the persisted service_name → tvg_id rewrite table.
type NameMap map[string]string

// LoadNameMap reads the JSON rewrite table; a missing file is an empty
// map.
func LoadNameMap(path string) (NameMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NameMap{}, nil
		}
		return nil, err
	}
	var m NameMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("epg: name map %s: %w", path, err)
	}
	return m, nil
}

// SaveNameMap writes the rewrite table.
func SaveNameMap(path string, m NameMap) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Rewrite returns the lookup key for a service name, applying the
// rewrite table when it has an entry.
func (m NameMap) Rewrite(name string) string {
	if id, ok := m[name]; ok && id != "" {
		return id
	}
	return name
}
