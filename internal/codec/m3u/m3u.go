// Package m3u imports and exports extended M3U playlists for IPTV
// bouquets.
package m3u

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/demon-editor/core/internal/codec"
)

// Item is one playlist entry. Raw preserves the original #EXTINF line so
// an import/export cycle reproduces it byte for byte.
type Item struct {
	Name     string
	Duration string
	URL      string
	Group    string // group-title
	TvgID    string
	TvgLogo  string
	VlcOpts  []string // #EXTVLCOPT lines between EXTINF and URL
	Raw      string
}

var (
	extinfRe = regexp.MustCompile(`^#EXTINF:(-?[\d.]+)(.*),(.*)$`)
	attrRe   = regexp.MustCompile(`([a-zA-Z0-9-]+)="([^"]*)"`)
)

// Parse reads an extended M3U playlist. Lines that belong to no entry
// are reported as item errors and skipped.
func Parse(r io.Reader, path string) ([]Item, []codec.ItemError, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var items []Item
	var errs []codec.ItemError
	var cur *Item
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \r")
		switch {
		case line == "" || line == "#EXTM3U" || strings.HasPrefix(line, "#EXTM3U "):
			continue
		case strings.HasPrefix(line, "#EXTINF:"):
			m := extinfRe.FindStringSubmatch(line)
			if m == nil {
				errs = append(errs, codec.ItemError{
					Item: fmt.Sprintf("%s:%d", path, lineNo),
					Err:  fmt.Errorf("unparsable EXTINF line"),
				})
				cur = nil
				continue
			}
			it := Item{Duration: m[1], Name: strings.TrimSpace(m[3]), Raw: line}
			for _, attr := range attrRe.FindAllStringSubmatch(m[2], -1) {
				switch attr[1] {
				case "group-title":
					it.Group = attr[2]
				case "tvg-id":
					it.TvgID = attr[2]
				case "tvg-logo":
					it.TvgLogo = attr[2]
				}
			}
			cur = &it
		case strings.HasPrefix(line, "#EXTVLCOPT"):
			if cur != nil {
				cur.VlcOpts = append(cur.VlcOpts, line)
			}
		case strings.HasPrefix(line, "#"):
			continue
		default:
			if cur == nil {
				errs = append(errs, codec.ItemError{
					Item: fmt.Sprintf("%s:%d", path, lineNo),
					Err:  fmt.Errorf("URL without EXTINF"),
				})
				continue
			}
			cur.URL = line
			items = append(items, *cur)
			cur = nil
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	return items, errs, nil
}

// Write emits an extended playlist. Items parsed from an import keep
// their original EXTINF lines in the original order.
func Write(w io.Writer, items []Item) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "#EXTM3U")
	for _, it := range items {
		if it.Raw != "" {
			fmt.Fprintln(bw, it.Raw)
		} else {
			dur := it.Duration
			if dur == "" {
				dur = "-1"
			}
			fmt.Fprintf(bw, "#EXTINF:%s", dur)
			if it.TvgID != "" {
				fmt.Fprintf(bw, ` tvg-id="%s"`, it.TvgID)
			}
			if it.TvgLogo != "" {
				fmt.Fprintf(bw, ` tvg-logo="%s"`, it.TvgLogo)
			}
			if it.Group != "" {
				fmt.Fprintf(bw, ` group-title="%s"`, it.Group)
			}
			fmt.Fprintf(bw, ",%s\n", it.Name)
		}
		if len(it.VlcOpts) == 0 {
			fmt.Fprintln(bw, "#EXTVLCOPT--http-reconnect=true")
		}
		for _, opt := range it.VlcOpts {
			fmt.Fprintln(bw, opt)
		}
		fmt.Fprintln(bw, it.URL)
	}
	return bw.Flush()
}
