package epg

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/demon-editor/core/internal/log"
	"github.com/demon-editor/core/internal/model"
)

// Engine owns both caches and keeps them fed from the active source.
type Engine struct {
	Fav   *FavCache
	Tab   *TabCache
	Names NameMap

	now func() time.Time
	log zerolog.Logger
}

func NewEngine(names NameMap) *Engine {
	if names == nil {
		names = NameMap{}
	}
	return &Engine{
		Fav:   NewFavCache(),
		Tab:   NewTabCache(),
		Names: names,
		now:   time.Now,
		log:   log.WithComponent("epg"),
	}
}

// RefreshTab reloads the full per-service lists.
func (e *Engine) RefreshTab(ctx context.Context, src Source) error {
	snapshot, err := src.Load(ctx)
	if err != nil {
		return err
	}
	e.Tab.Replace(snapshot)
	e.log.Debug().Str("event", "cache.tab").Int("services", len(snapshot)).Msg("tab cache refreshed")
	return nil
}

// RefreshFav rebuilds the current-event cache. An HTTPSource answers
// the running event directly; other sources derive it from the full
// snapshot by clock.
func (e *Engine) RefreshFav(ctx context.Context, src Source) error {
	if h, ok := src.(*HTTPSource); ok {
		now, err := h.Now(ctx)
		if err != nil {
			return err
		}
		e.Fav.Replace(now)
		return nil
	}

	snapshot, err := src.Load(ctx)
	if err != nil {
		return err
	}
	ts := e.now().Unix()
	current := make(map[string]model.EpgEvent)
	for name, events := range snapshot {
		for _, ev := range events {
			if ev.Start <= ts && ts < ev.End {
				current[name] = ev
				break
			}
		}
	}
	e.Fav.Replace(current)
	e.log.Debug().Str("event", "cache.fav").Int("services", len(current)).Msg("fav cache refreshed")
	return nil
}

// Current resolves the running event for a service display name,
// applying the name-map rewrite first.
func (e *Engine) Current(name string) (model.EpgEvent, bool) {
	return e.Fav.Current(e.Names.Rewrite(name))
}

// EventsFor returns the cached full list for a service.
func (e *Engine) EventsFor(name string) []model.EpgEvent {
	return e.Tab.Events(e.Names.Rewrite(name))
}

// RunFavRefresh refreshes the fav cache every interval until the
// context ends. The first refresh happens immediately. onUpdate fires
// after each successful refresh.
func (e *Engine) RunFavRefresh(ctx context.Context, src Source, interval time.Duration, onUpdate func()) {
	refresh := func() {
		if err := e.RefreshFav(ctx, src); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.log.Warn().Err(err).Str("event", "cache.fav.error").Msg("fav refresh failed")
			return
		}
		if onUpdate != nil {
			onUpdate()
		}
	}

	refresh()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}
