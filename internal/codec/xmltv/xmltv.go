// Package xmltv implements a streaming XMLTV reader. Input may be plain
// XML or gzip-compressed; parsed subtrees are released element by
// element so multi-hundred-megabyte guides stay cheap to walk.
package xmltv

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/demon-editor/core/internal/codec"
	"github.com/demon-editor/core/internal/model"
)

// Channel is one <channel> element with all its display names.
type Channel struct {
	ID           string   `xml:"id,attr"`
	DisplayNames []string `xml:"display-name"`
	Icon         struct {
		Src string `xml:"src,attr"`
	} `xml:"icon"`
}

type programme struct {
	Start   string `xml:"start,attr"`
	Stop    string `xml:"stop,attr"`
	Channel string `xml:"channel,attr"`
	Title   string `xml:"title"`
	Desc    string `xml:"desc"`
}

// Result is a partial parse: channels, events keyed by channel id, and
// per-programme errors that did not abort the run.
type Result struct {
	Channels []Channel
	Events   map[string][]model.EpgEvent
	Errors   []codec.ItemError
}

// ReadFile opens and parses a guide, transparently unpacking gzip.
func ReadFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &codec.MissingDataError{Path: path}
		}
		return nil, err
	}
	defer f.Close()
	return Parse(ctx, f, path)
}

// Parse consumes an XMLTV stream. The context is observed at every
// element boundary so a cancel takes effect mid-file.
func Parse(ctx context.Context, r io.Reader, path string) (*Result, error) {
	br, err := maybeGzip(r)
	if err != nil {
		return nil, &codec.FormatError{Path: path, Msg: err.Error()}
	}
	dec := xml.NewDecoder(br)
	dec.Entity = map[string]string{} // no entity expansion

	res := &Result{Events: make(map[string][]model.EpgEvent)}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := dec.Token()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return nil, &codec.FormatError{Path: path, Msg: err.Error()}
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "channel":
			var ch Channel
			if err := dec.DecodeElement(&ch, &start); err != nil {
				return nil, &codec.FormatError{Path: path, Msg: err.Error()}
			}
			res.Channels = append(res.Channels, ch)
		case "programme":
			var p programme
			if err := dec.DecodeElement(&p, &start); err != nil {
				return nil, &codec.FormatError{Path: path, Msg: err.Error()}
			}
			ev, err := p.toEvent()
			if err != nil {
				res.Errors = append(res.Errors, codec.ItemError{Item: p.Channel + "/" + p.Start, Err: err})
				continue
			}
			res.Events[p.Channel] = append(res.Events[p.Channel], ev)
		}
	}
}

func maybeGzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(2)
	if err == nil && len(head) == 2 && head[0] == 0x1f && head[1] == 0x8b {
		return gzip.NewReader(br)
	}
	return br, nil
}

func (p programme) toEvent() (model.EpgEvent, error) {
	start, err := ParseTime(p.Start)
	if err != nil {
		return model.EpgEvent{}, fmt.Errorf("start: %w", err)
	}
	stop, err := ParseTime(p.Stop)
	if err != nil {
		return model.EpgEvent{}, fmt.Errorf("stop: %w", err)
	}
	return model.EpgEvent{
		ServiceName: p.Channel,
		Title:       p.Title,
		Start:       start,
		End:         stop,
		Length:      stop - start,
		Desc:        p.Desc,
	}, nil
}

// ParseTime converts an XMLTV timestamp ("20240115123045 +0100") to UTC
// epoch seconds. A missing offset is treated as UTC.
func ParseTime(s string) (int64, error) {
	if len(s) >= 20 {
		t, err := time.Parse("20060102150405 -0700", s[:20])
		if err != nil {
			return 0, err
		}
		return t.Unix(), nil
	}
	if len(s) >= 14 {
		t, err := time.Parse("20060102150405", s[:14])
		if err != nil {
			return 0, err
		}
		return t.Unix(), nil
	}
	return 0, fmt.Errorf("timestamp %q too short", s)
}
