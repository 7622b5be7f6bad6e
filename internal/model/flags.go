package model

import (
	"strconv"
	"strings"
)

// Service flag bits carried in the "f:" entry of flags_cas.
const (
	FlagNew    = 1 // set by the receiver for newly found services
	FlagHidden = 2
	FlagLocked = 4
)

// flagValue extracts the numeric value of the "f:" entry from a raw
// flags_cas list. Unknown entries are left untouched by all flag edits.
func flagValue(flags string) int {
	for _, part := range strings.Split(flags, ",") {
		if v, ok := strings.CutPrefix(part, "f:"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return 0
}

// withFlagValue returns flags with the "f:" entry replaced (or appended,
// or dropped when the value reaches zero). Every other entry is preserved
// verbatim in its original position.
func withFlagValue(flags string, value int) string {
	var out []string
	replaced := false
	for _, part := range strings.Split(flags, ",") {
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "f:") {
			replaced = true
			if value != 0 {
				out = append(out, "f:"+strconv.Itoa(value))
			}
			continue
		}
		out = append(out, part)
	}
	if !replaced && value != 0 {
		out = append(out, "f:"+strconv.Itoa(value))
	}
	return strings.Join(out, ",")
}

// HasFlag reports whether the given flag bit is set in a flags_cas list.
func HasFlag(flags string, bit int) bool {
	return flagValue(flags)&bit != 0
}

// SetFlag sets or clears one flag bit, leaving everything else verbatim.
func SetFlag(flags string, bit int, on bool) string {
	v := flagValue(flags)
	if on {
		v |= bit
	} else {
		v &^= bit
	}
	return withFlagValue(flags, v)
}

// IsNew reports whether the service row should get the "new" background.
func IsNew(s Service) bool { return HasFlag(s.FlagsCas, FlagNew) }
