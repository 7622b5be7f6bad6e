package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Reference holds the numeric fields of an Enigma2 service reference.
// All values are parsed from their hex on-disk form.
type Reference struct {
	SSID      uint32
	TSID      uint32
	ONID      uint32
	Namespace uint32
	Type      uint32 // DVB service type, 1 for TV
}

// FavID derives the session key for a service. The key is the lowercase
// hex tuple the bouquet files use, so it is stable across load cycles.
func (r Reference) FavID() string {
	return fmt.Sprintf("%x:%x:%x:%x", r.SSID, r.TSID, r.ONID, r.Namespace)
}

// PiconID derives the deterministic picon filename for a reference.
func (r Reference) PiconID() string {
	return fmt.Sprintf("1_0_%X_%X_%X_%X_%X_0_0_0.png", r.Type, r.SSID, r.TSID, r.ONID, r.Namespace)
}

// String formats the full colon-separated service reference, the form
// used by OpenWebif and by "copy reference".
func (r Reference) String() string {
	return fmt.Sprintf("1:0:%X:%X:%X:%X:%X:0:0:0:", r.Type, r.SSID, r.TSID, r.ONID, r.Namespace)
}

// ParseReference parses a colon-separated Enigma2 service reference.
// Trailing empty fields are tolerated.
func ParseReference(s string) (Reference, error) {
	parts := strings.Split(strings.TrimSuffix(s, ":"), ":")
	if len(parts) < 7 {
		return Reference{}, fmt.Errorf("reference %q: want at least 7 fields, got %d", s, len(parts))
	}
	var vals [5]uint32
	fields := []struct {
		pos int
		dst *uint32
	}{
		{2, &vals[4]}, // type
		{3, &vals[0]}, // ssid
		{4, &vals[1]}, // tsid
		{5, &vals[2]}, // onid
		{6, &vals[3]}, // namespace
	}
	for _, f := range fields {
		v, err := strconv.ParseUint(parts[f.pos], 16, 32)
		if err != nil {
			return Reference{}, fmt.Errorf("reference %q: field %d: %w", s, f.pos, err)
		}
		*f.dst = uint32(v)
	}
	return Reference{SSID: vals[0], TSID: vals[1], ONID: vals[2], Namespace: vals[3], Type: vals[4]}, nil
}

// FavIDFromReference derives the fav_id directly from a reference string.
func FavIDFromReference(s string) (string, error) {
	r, err := ParseReference(s)
	if err != nil {
		return "", err
	}
	return r.FavID(), nil
}
