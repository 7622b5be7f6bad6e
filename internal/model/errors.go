package model

import (
	"errors"
	"fmt"
)

// ErrConflict is the sentinel wrapped by every ConflictError.
var ErrConflict = errors.New("conflict")

// ConflictError carries both sides of a name or id collision so a
// front-end can offer merge/replace/cancel.
type ConflictError struct {
	Kind     string // "bouquet", "service", "alternative"
	Existing string
	Incoming string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %q already exists (incoming %q)", e.Kind, e.Existing, e.Incoming)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ErrUnknownService is returned by key-based mutations for a fav_id that
// is not present in the store.
var ErrUnknownService = errors.New("unknown service")

// ErrUnknownBouquet is returned by bouquet mutations for an id that is
// not present in any group.
var ErrUnknownBouquet = errors.New("unknown bouquet")
