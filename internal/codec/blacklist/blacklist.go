// Package blacklist reads and writes the newline-delimited lock lists.
// During editing the model is authoritative; the file is re-derived from
// the locked attribute of every service at save time.
package blacklist

import (
	"bufio"
	"os"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/demon-editor/core/internal/codec"
)

// Read returns the reference ids listed in a blacklist or whitelist
// file. Optional marks the file as allowed to be absent, in which case
// the caller downgrades the error to an empty set.
func Read(path string, optional bool) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &codec.MissingDataError{Path: path, Optional: optional}
		}
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}

// Write atomically rewrites the file with exactly the given ids.
func Write(path string, ids []string) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup() //nolint:errcheck
	for _, id := range ids {
		if _, err := t.WriteString(id + "\n"); err != nil {
			return err
		}
	}
	return t.CloseAtomicallyReplace()
}
