package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/orrn/printd/internal/spooler"
)

// Monitor watches one queue entry until it reaches a terminal state.
type Monitor struct {
	spooler spooler.Spooler
	clock   Clock
	logger  *slog.Logger
}

func NewMonitor(sp spooler.Spooler, clock Clock, logger *slog.Logger) *Monitor {
	return &Monitor{spooler: sp, clock: clock, logger: logger.With("component", "monitor")}
}

// AwaitCompletion polls the printer queue for entryID.
//
// An entry that is no longer listed counts as COMPLETED. The spooler gives no
// positive completion signal, so an entry purged by someone else is reported
// the same way. A set error bit yields ERROR, an entry still present after
// waitTimeout yields TIMEOUT, and a failed query yields EXCEPTION. All four
// are final.
func (m *Monitor) AwaitCompletion(ctx context.Context, printer string, entryID int, waitTimeout, poll time.Duration) (bool, EntryOutcome) {
	start := m.clock.Now()
	for {
		entries, err := m.spooler.Entries(ctx, printer)
		if err != nil {
			return false, EntryOutcome{EntryID: entryID, State: EntryException, Error: err.Error()}
		}

		entry, present := findEntry(entries, entryID)
		if !present {
			return true, EntryOutcome{EntryID: entryID, State: EntryCompleted}
		}
		if entry.HasError() {
			return false, EntryOutcome{EntryID: entryID, State: EntryError, Entry: &entry}
		}
		if m.clock.Now().Sub(start) > waitTimeout {
			return false, EntryOutcome{EntryID: entryID, State: EntryTimeout, Entry: &entry}
		}

		m.logger.Debug("spooler entry pending", "printer", printer, "entry_id", entryID,
			"position", entry.Position, "status", entry.StatusText)

		if err := m.clock.Sleep(ctx, poll); err != nil {
			return false, EntryOutcome{EntryID: entryID, State: EntryException, Error: err.Error()}
		}
	}
}

func findEntry(entries []spooler.EntryInfo, id int) (spooler.EntryInfo, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return spooler.EntryInfo{}, false
}
