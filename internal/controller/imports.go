package controller

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/demon-editor/core/internal/codec/bouquets"
	"github.com/demon-editor/core/internal/codec/m3u"
	"github.com/demon-editor/core/internal/model"
)

// ImportBouquet merges a single userbouquet file into the current
// model. Services whose fav_id already exists are kept as-is and
// reported back so the front-end can show what was skipped.
func (c *Controller) ImportBouquet(path string, t model.BouquetType) (skipped []string, err error) {
	bq, synthesized, warns, err := bouquets.ReadUserBouquet(path, t)
	if err != nil {
		return nil, err
	}
	for _, w := range warns {
		c.log.Warn().Err(w.Err).Str("event", "import.warn").Str("item", w.Item).Msg("import warning")
	}

	c.mu.Lock()
	store := c.store
	c.mu.Unlock()

	// A colliding bouquet cancels the import before anything lands in
	// the store, so the front-end can offer merge/replace/cancel over a
	// clean model.
	if _, exists := store.Bouquet(bq.ID()); exists {
		return nil, &model.ConflictError{Kind: "bouquet", Existing: bq.ID(), Incoming: path}
	}

	for _, s := range synthesized {
		if _, exists := store.Service(s.FavID); exists {
			skipped = append(skipped, s.FavID)
			continue
		}
		if err := store.AddService(s); err != nil {
			return skipped, err
		}
	}

	if err := store.AddBouquet(bq); err != nil {
		return skipped, err
	}

	c.Bus.Publish(Event{Type: EventBouquetChanged, ID: bq.ID()})
	c.log.Info().Str("event", "import.bouquet").Str("bouquet", bq.Name).
		Int("services", len(bq.Services)).Int("skipped", len(skipped)).Msg("bouquet imported")
	return skipped, nil
}

// ImportM3U appends a playlist as a new IPTV bouquet. Every entry
// becomes a synthesized IPTV service.
func (c *Controller) ImportM3U(path, bouquetName string, t model.BouquetType) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	items, itemErrs, err := m3u.Parse(f, path)
	if err != nil {
		return 0, err
	}
	for _, ie := range itemErrs {
		c.log.Warn().Err(ie.Err).Str("event", "import.warn").Str("item", ie.Item).Msg("playlist warning")
	}

	c.mu.Lock()
	store := c.store
	c.mu.Unlock()

	bq := &model.Bouquet{Name: bouquetName, Type: t}
	for _, it := range items {
		svc := iptvService(it)
		if _, exists := store.Service(svc.FavID); !exists {
			if err := store.AddService(svc); err != nil {
				return 0, err
			}
		}
		bq.Services = append(bq.Services, svc.FavID)
	}
	if err := store.AddBouquet(bq); err != nil {
		return 0, err
	}
	c.Bus.Publish(Event{Type: EventBouquetChanged, ID: bq.ID()})
	return len(items), nil
}

// iptvService synthesizes the Enigma2 IPTV reference for a playlist
// item. The URL is percent-encoded into the reference the way the
// receiver expects it.
func iptvService(it m3u.Item) model.Service {
	enc := strings.ReplaceAll(it.URL, ":", "%3a")
	ref := fmt.Sprintf("4097:0:1:0:0:0:0:0:0:0:%s:%s", enc, it.Name)
	return model.Service{
		FavID: ref,
		RefID: ref,
		Name:  it.Name,
		Type:  model.TypeIPTV,
		EpgID: it.TvgID,
	}
}

// IPTVStreamURL extracts the playable URL out of an IPTV service
// reference.
func IPTVStreamURL(s model.Service) (string, bool) {
	if s.Type != model.TypeIPTV {
		return "", false
	}
	fields := strings.SplitN(s.FavID, ":", 11)
	if len(fields) < 11 {
		return "", false
	}
	tail := fields[10]
	if i := strings.LastIndex(tail, ":"); i >= 0 {
		tail = tail[:i]
	}
	decoded, err := url.PathUnescape(tail)
	if err != nil || decoded == "" {
		return "", false
	}
	return decoded, true
}

// ExportM3U writes one bouquet as a playlist. DVB services point at
// the receiver's stream port; IPTV entries keep their own URL.
func (c *Controller) ExportM3U(w io.Writer, bouquetID string) (int, error) {
	c.mu.Lock()
	store := c.store
	host := c.profile.Connection.Host
	c.mu.Unlock()

	bq, ok := store.Bouquet(bouquetID)
	if !ok {
		return 0, model.ErrUnknownBouquet
	}

	var items []m3u.Item
	for _, favID := range bq.Services {
		s, ok := store.Service(favID)
		if !ok {
			continue
		}
		switch s.Type {
		case model.TypeMarker, model.TypeSpace, model.TypeAlt:
			continue
		case model.TypeIPTV:
			u, ok := IPTVStreamURL(s)
			if !ok {
				continue
			}
			items = append(items, m3u.Item{Name: s.Name, TvgID: s.EpgID, URL: u})
		default:
			items = append(items, m3u.Item{
				Name:  s.Name,
				TvgID: s.EpgID,
				Group: bq.Name,
				URL:   fmt.Sprintf("http://%s:8001/%s", host, s.RefID),
			})
		}
	}
	if err := m3u.Write(w, items); err != nil {
		return 0, err
	}
	return len(items), nil
}
