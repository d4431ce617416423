// Package spooler reads the operating system's print queues. Backends expose
// the printers known to the system and the active entries of one queue.
package spooler

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoDefaultPrinter = errors.New("no default printer configured")
	ErrUnknownBackend   = errors.New("unknown spooler backend")
)

// Status bits of a queue entry. Values follow the winspool JOB_STATUS_*
// constants so the Windows backend can pass them through unchanged.
const (
	StatusPaused           uint32 = 0x00000001
	StatusError            uint32 = 0x00000002
	StatusDeleting         uint32 = 0x00000004
	StatusSpooling         uint32 = 0x00000008
	StatusPrinting         uint32 = 0x00000010
	StatusOffline          uint32 = 0x00000020
	StatusPaperOut         uint32 = 0x00000040
	StatusPrinted          uint32 = 0x00000080
	StatusDeleted          uint32 = 0x00000100
	StatusBlocked          uint32 = 0x00000200
	StatusUserIntervention uint32 = 0x00000400
)

// EntryInfo is a read-only view of one queue entry.
type EntryInfo struct {
	ID         int    `json:"id"`
	Document   string `json:"document,omitempty"`
	Status     uint32 `json:"status"`
	StatusText string `json:"status_text,omitempty"`
	Position   int    `json:"position"`
	TotalPages *int   `json:"total_pages,omitempty"`
}

// HasError reports whether the entry carries the error bit.
func (e EntryInfo) HasError() bool {
	return e.Status&StatusError != 0
}

// Spooler is the print subsystem as seen by the job tracker.
type Spooler interface {
	Printers(ctx context.Context) ([]string, error)
	DefaultPrinter(ctx context.Context) (string, error)
	Entries(ctx context.Context, printer string) ([]EntryInfo, error)
}

// New returns the backend registered under name.
func New(name, lpstatPath string) (Spooler, error) {
	switch name {
	case "cups":
		return NewCUPS(lpstatPath), nil
	case "windows":
		return newWindows()
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
