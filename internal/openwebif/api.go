package openwebif

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/demon-editor/core/internal/model"
)

// Timer is the normalized shape of an e2timer entry.
type Timer struct {
	ServiceRef  string
	ServiceName string
	Name        string
	Description string
	Begin       int64
	End         int64
	Disabled    bool
	Repeated    int
	Location    string
	EventID     int
}

// Info returns the box identity block from web/about.
func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	out, err := c.Send(ctx, ReqInfo, nil)
	if err != nil {
		return nil, err
	}
	if about, ok := dig(out, "e2abouts", "e2about"); ok {
		return about, nil
	}
	return out, nil
}

// Signal returns tuner SNR/AGC/BER readings.
func (c *Client) Signal(ctx context.Context) (map[string]any, error) {
	out, err := c.Send(ctx, ReqSignal, nil)
	if err != nil {
		return nil, err
	}
	if front, ok := dig(out, "e2frontendstatus"); ok {
		return front, nil
	}
	return out, nil
}

// Zap switches the receiver to the given service reference.
func (c *Client) Zap(ctx context.Context, ref string) error {
	_, err := c.Send(ctx, ReqZap, url.Values{"sRef": {ref}})
	return err
}

// StreamURL returns the direct transport-stream URL for a reference.
// The stream port is fixed at 8001 on Enigma2 images.
func (c *Client) StreamURL(ref string) string {
	return fmt.Sprintf("http://%s:8001/%s", c.cfg.Host, url.PathEscape(ref))
}

// Volume sets the absolute volume (0..100).
func (c *Client) Volume(ctx context.Context, level int) error {
	_, err := c.Send(ctx, ReqVolume, url.Values{"set": {"set" + strconv.Itoa(level)}})
	return err
}

// PowerState values accepted by web/powerstate.
const (
	PowerToggleStandby = 0
	PowerDeepStandby   = 1
	PowerReboot        = 2
	PowerRestartGUI    = 3
	PowerWakeup        = 4
	PowerStandby       = 5
)

// Power sends a power state transition.
func (c *Client) Power(ctx context.Context, state int) error {
	_, err := c.Send(ctx, ReqPower, url.Values{"newstate": {strconv.Itoa(state)}})
	return err
}

// Timers lists the receiver's timers.
func (c *Client) Timers(ctx context.Context) ([]Timer, error) {
	out, err := c.Send(ctx, ReqTimerList, nil)
	if err != nil {
		return nil, err
	}
	raw, _ := out["e2timerlist"].(map[string]any)
	var timers []Timer
	for _, entry := range asSlice(raw["e2timer"]) {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		timers = append(timers, Timer{
			ServiceRef:  str(m["e2servicereference"]),
			ServiceName: str(m["e2servicename"]),
			Name:        str(m["e2name"]),
			Description: str(m["e2description"]),
			Begin:       num(m["e2timebegin"]),
			End:         num(m["e2timeend"]),
			Disabled:    num(m["e2disabled"]) != 0,
			Repeated:    int(num(m["e2repeated"])),
			Location:    str(m["e2location"]),
			EventID:     int(num(m["e2eit"])),
		})
	}
	return timers, nil
}

func timerParams(t Timer) url.Values {
	v := url.Values{}
	v.Set("sRef", t.ServiceRef)
	v.Set("begin", strconv.FormatInt(t.Begin, 10))
	v.Set("end", strconv.FormatInt(t.End, 10))
	v.Set("name", t.Name)
	v.Set("description", t.Description)
	v.Set("repeated", strconv.Itoa(t.Repeated))
	if t.Disabled {
		v.Set("disabled", "1")
	} else {
		v.Set("disabled", "0")
	}
	if t.Location != "" {
		v.Set("dirname", t.Location)
	}
	if t.EventID != 0 {
		v.Set("eit", strconv.Itoa(t.EventID))
	}
	return v
}

// AddTimer creates a timer. The box answers an e2simplexmlresult whose
// state flag decides success.
func (c *Client) AddTimer(ctx context.Context, t Timer) error {
	out, err := c.Send(ctx, ReqTimerAdd, timerParams(t))
	if err != nil {
		return err
	}
	return checkSimpleResult("timeradd", out)
}

// EditTimer rewrites an existing timer identified by its original
// reference and window.
func (c *Client) EditTimer(ctx context.Context, old, updated Timer) error {
	v := timerParams(updated)
	v.Set("channelOld", old.ServiceRef)
	v.Set("beginOld", strconv.FormatInt(old.Begin, 10))
	v.Set("endOld", strconv.FormatInt(old.End, 10))
	out, err := c.Send(ctx, ReqTimerEdit, v)
	if err != nil {
		return err
	}
	return checkSimpleResult("timerchange", out)
}

// DeleteTimer removes a timer.
func (c *Client) DeleteTimer(ctx context.Context, t Timer) error {
	v := url.Values{}
	v.Set("sRef", t.ServiceRef)
	v.Set("begin", strconv.FormatInt(t.Begin, 10))
	v.Set("end", strconv.FormatInt(t.End, 10))
	out, err := c.Send(ctx, ReqTimerDelete, v)
	if err != nil {
		return err
	}
	return checkSimpleResult("timerdelete", out)
}

func checkSimpleResult(op string, out map[string]any) error {
	res, ok := dig(out, "e2simplexmlresult")
	if !ok {
		return nil
	}
	state := str(res["e2state"])
	if state == "True" || state == "true" {
		return nil
	}
	return &APIError{Sentinel: ErrUpstream, Operation: op, Body: str(res["e2statetext"])}
}

// EpgNow returns the current event per service for a bouquet
// reference.
func (c *Client) EpgNow(ctx context.Context, bouquetRef string) ([]model.EpgEvent, error) {
	return c.epgQuery(ctx, ReqEpgNow, url.Values{"bRef": {bouquetRef}})
}

// EpgMulti returns upcoming events for all services of a bouquet.
func (c *Client) EpgMulti(ctx context.Context, bouquetRef string) ([]model.EpgEvent, error) {
	return c.epgQuery(ctx, ReqEpgMulti, url.Values{"bRef": {bouquetRef}})
}

// EpgService returns the full event list for one service.
func (c *Client) EpgService(ctx context.Context, serviceRef string) ([]model.EpgEvent, error) {
	return c.epgQuery(ctx, ReqEpgService, url.Values{"sRef": {serviceRef}})
}

func (c *Client) epgQuery(ctx context.Context, req Request, params url.Values) ([]model.EpgEvent, error) {
	out, err := c.Send(ctx, req, params)
	if err != nil {
		return nil, err
	}
	raw, _ := out["e2eventlist"].(map[string]any)
	var events []model.EpgEvent
	for _, entry := range asSlice(raw["e2event"]) {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		start := num(m["e2eventstart"])
		length := num(m["e2eventduration"])
		events = append(events, model.EpgEvent{
			ServiceName: str(m["e2eventservicename"]),
			ServiceRef:  str(m["e2eventservicereference"]),
			Title:       str(m["e2eventtitle"]),
			Desc:        str(m["e2eventdescription"]),
			Start:       start,
			End:         start + length,
			Length:      length,
		})
	}
	return events, nil
}

// Recordings lists the movies under a receiver directory.
func (c *Client) Recordings(ctx context.Context, dir string) ([]map[string]any, error) {
	params := url.Values{}
	if dir != "" {
		params.Set("dirname", dir)
	}
	out, err := c.Send(ctx, ReqRecordings, params)
	if err != nil {
		return nil, err
	}
	raw, _ := out["e2movielist"].(map[string]any)
	var movies []map[string]any
	for _, entry := range asSlice(raw["e2movie"]) {
		if m, ok := entry.(map[string]any); ok {
			movies = append(movies, m)
		}
	}
	return movies, nil
}

func dig(m map[string]any, keys ...string) (map[string]any, bool) {
	cur := m
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func asSlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) int64 {
	switch t := v.(type) {
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	case float64:
		return int64(t)
	default:
		return 0
	}
}
