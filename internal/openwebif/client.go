// Package openwebif is a client for the receiver's web API. Endpoints
// under /web return e2 XML envelopes; responses are normalized into
// generic maps so callers stay independent of the firmware's exact
// schema.
package openwebif

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/demon-editor/core/internal/log"
)

// Request identifies a web API endpoint.
type Request string

const (
	ReqInfo            Request = "web/about"
	ReqSignal          Request = "web/signal"
	ReqCurrentEvent    Request = "web/getcurrent"
	ReqZap             Request = "web/zap"
	ReqStream          Request = "web/stream.m3u"
	ReqStreamCurrent   Request = "web/streamcurrent.m3u"
	ReqTimerList       Request = "web/timerlist"
	ReqTimerAdd        Request = "web/timeradd"
	ReqTimerEdit       Request = "web/timerchange"
	ReqTimerDelete     Request = "web/timerdelete"
	ReqEpgNow          Request = "web/epgnow"
	ReqEpgMulti        Request = "web/epgmulti"
	ReqEpgService      Request = "web/epgservice"
	ReqRecordings      Request = "web/movielist"
	ReqRecordingStream Request = "web/ts.m3u"
	ReqVolume          Request = "web/vol"
	ReqPower           Request = "web/powerstate"

	reqSession Request = "web/session"
)

// jsonRequests lists the endpoints whose firmwares answer JSON rather
// than the e2 XML envelope.
var jsonRequests = map[Request]bool{
	ReqStream:          true,
	ReqStreamCurrent:   true,
	ReqRecordingStream: true,
}

const defaultTimeout = 5 * time.Second

// Config holds the connection parameters for one receiver profile.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	UseSSL   bool
	// SkipVerify accepts the box's self-signed certificate.
	SkipVerify bool
	Timeout    time.Duration
}

func (c Config) baseURL() string {
	scheme := "http"
	port := c.Port
	if c.UseSSL {
		scheme = "https"
		if port == 0 {
			port = 443
		}
	} else if port == 0 {
		port = 80
	}
	return fmt.Sprintf("%s://%s:%d/", scheme, c.Host, port)
}

// Client is reusable across requests and safe for concurrent use; the
// session token is refreshed under a lock.
type Client struct {
	cfg  Config
	base string
	http *http.Client
	log  zerolog.Logger

	mu    sync.Mutex
	token string
}

// New builds a client. No connection is made until the first Send.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	transport := http.DefaultTransport
	if cfg.UseSSL && cfg.SkipVerify {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		transport = t
	}
	return &Client{
		cfg:  cfg,
		base: cfg.baseURL(),
		http: &http.Client{Timeout: timeout, Transport: transport},
		log:  log.WithComponent("openwebif"),
	}
}

// Send issues one request and returns the normalized response. A 412
// from the box means the session token went stale; the client
// re-initializes and retries once, transparently.
func (c *Client) Send(ctx context.Context, req Request, params url.Values) (map[string]any, error) {
	out, status, err := c.do(ctx, req, params)
	if status == http.StatusPreconditionFailed {
		if err := c.initSession(ctx); err != nil {
			return nil, err
		}
		out, _, err = c.do(ctx, req, params)
	}
	return out, err
}

func (c *Client) do(ctx context.Context, req Request, params url.Values) (map[string]any, int, error) {
	u := c.base + string(req)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, &APIError{Sentinel: ErrBadResponse, Operation: string(req), Err: err}
	}
	if c.cfg.User != "" {
		httpReq.SetBasicAuth(c.cfg.User, c.cfg.Password)
	}
	if token := c.currentToken(); token != "" {
		httpReq.Header.Set("Cookie", "sessionid="+token)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		sentinel := ErrUnavailable
		if isTimeout(err) {
			sentinel = ErrTimeout
		}
		return nil, 0, &APIError{Sentinel: sentinel, Operation: string(req), Err: err}
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, res.StatusCode, &APIError{Sentinel: ErrAuth, Operation: string(req), Status: res.StatusCode}
	case http.StatusPreconditionFailed:
		return nil, res.StatusCode, &APIError{Sentinel: ErrSession, Operation: string(req), Status: res.StatusCode}
	case http.StatusNotFound:
		return nil, res.StatusCode, &APIError{Sentinel: ErrNotFound, Operation: string(req), Status: res.StatusCode}
	default:
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, res.StatusCode, &APIError{
			Sentinel: ErrUpstream, Operation: string(req),
			Status: res.StatusCode, Body: strings.TrimSpace(string(body)),
		}
	}

	out, err := normalize(req, res.Body)
	if err != nil {
		return nil, res.StatusCode, &APIError{Sentinel: ErrBadResponse, Operation: string(req), Err: err}
	}
	return out, res.StatusCode, nil
}

func (c *Client) currentToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// initSession fetches a fresh session token from web/session.
func (c *Client) initSession(ctx context.Context) error {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()

	out, _, err := c.do(ctx, reqSession, nil)
	if err != nil {
		return err
	}
	token, _ := out["e2sessionid"].(string)
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	c.log.Debug().Str("event", "api.session").Msg("session token refreshed")
	return nil
}

// normalize turns the response body into a generic map. XML envelopes
// collapse to leaf-text values; repeated sibling elements become
// slices of maps.
func normalize(req Request, body io.Reader) (map[string]any, error) {
	if jsonRequests[req] {
		// Stream endpoints answer either JSON or a bare playlist.
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "{") {
			var out map[string]any
			if err := json.Unmarshal(data, &out); err != nil {
				return nil, err
			}
			return out, nil
		}
		return map[string]any{"m3u": trimmed}, nil
	}
	return xmlToMap(body)
}

// xmlToMap flattens an e2 XML document. Leaves map to their character
// data; repeated element names accumulate into []any.
func xmlToMap(r io.Reader) (map[string]any, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	root, err := decodeElement(dec)
	if err != nil {
		return nil, err
	}
	if m, ok := root.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"value": root}, nil
}

func decodeElement(dec *xml.Decoder) (any, error) {
	children := map[string]any{}
	var text strings.Builder
	hasChildren := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			if hasChildren {
				return children, nil
			}
			return strings.TrimSpace(text.String()), nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			hasChildren = true
			child, err := decodeElement(dec)
			if err != nil {
				return nil, err
			}
			name := t.Name.Local
			switch prev := children[name].(type) {
			case nil:
				children[name] = child
			case []any:
				children[name] = append(prev, child)
			default:
				children[name] = []any{prev, child}
			}
		case xml.EndElement:
			if hasChildren {
				return children, nil
			}
			return strings.TrimSpace(text.String()), nil
		case xml.CharData:
			text.Write(t)
		}
	}
}

func isTimeout(err error) bool {
	t, ok := err.(interface{ Timeout() bool })
	if ok && t.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}
