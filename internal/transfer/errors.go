// Package transfer moves configuration and media assets between the
// workstation and the receiver over FTP, Telnet and HTTP.
package transfer

import (
	"errors"
	"fmt"
)

// ErrCanceled is observed when a cooperative cancellation flag fires.
// It is never logged as an error.
var ErrCanceled = errors.New("task canceled")

// TransferError carries the failing file and the remote status so
// mid-batch failures stay attributable.
type TransferError struct {
	Op     string
	File   string
	Status string
	Err    error
}

func (e *TransferError) Error() string {
	msg := fmt.Sprintf("transfer: %s %s", e.Op, e.File)
	if e.Status != "" {
		msg += ": " + e.Status
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransferError) Unwrap() error { return e.Err }

// StatusOK reports whether a server status string indicates success
// (leading "2").
func StatusOK(status string) bool {
	return len(status) > 0 && status[0] == '2'
}
