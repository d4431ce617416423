package core

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/orrn/printd/internal/spooler"
)

// Snapshot is the set of entry ids seen in one queue at one instant.
type Snapshot map[int]struct{}

func (s Snapshot) Contains(id int) bool {
	_, ok := s[id]
	return ok
}

// NewIDs returns the ids present in s but not in before, ascending.
func (s Snapshot) NewIDs(before Snapshot) []int {
	var ids []int
	for id := range s {
		if !before.Contains(id) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Correlator finds the queue entry created by a dispatch by diffing queue
// snapshots taken before and after it.
type Correlator struct {
	spooler spooler.Spooler
	clock   Clock
	logger  *slog.Logger
}

func NewCorrelator(sp spooler.Spooler, clock Clock, logger *slog.Logger) *Correlator {
	return &Correlator{spooler: sp, clock: clock, logger: logger.With("component", "correlator")}
}

// Snapshot lists the printer's entry ids. A failed query yields an empty
// snapshot so one bad poll does not abort the job.
func (c *Correlator) Snapshot(ctx context.Context, printer string) Snapshot {
	snap := make(Snapshot)
	entries, err := c.spooler.Entries(ctx, printer)
	if err != nil {
		c.logger.Warn("spooler snapshot failed", "printer", printer, "error", err)
		return snap
	}
	for _, e := range entries {
		snap[e.ID] = struct{}{}
	}
	return snap
}

// FindNewEntry polls until an id outside before shows up or detectTimeout
// elapses. When several appear at once the smallest id wins; concurrent
// submissions to the same printer cannot be told apart. ok is false when
// nothing appeared, which callers must treat as indeterminate rather than
// failed: a fast job may finish before the first poll.
func (c *Correlator) FindNewEntry(ctx context.Context, printer string, before Snapshot, detectTimeout, poll time.Duration) (id int, ok bool) {
	deadline := c.clock.Now().Add(detectTimeout)
	for c.clock.Now().Before(deadline) {
		after := c.Snapshot(ctx, printer)
		if ids := after.NewIDs(before); len(ids) > 0 {
			if len(ids) > 1 {
				c.logger.Warn("several new spooler entries, picking lowest", "printer", printer, "ids", ids)
			}
			return ids[0], true
		}
		if err := c.clock.Sleep(ctx, poll); err != nil {
			return 0, false
		}
	}
	return 0, false
}
