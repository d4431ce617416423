package core

import (
	"context"
	"sync"
	"time"

	"github.com/orrn/printd/internal/spooler"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) sleepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

// fakeSpooler replays one scripted answer per Entries call; the last answer
// repeats once the script runs out.
type fakeSpooler struct {
	mu             sync.Mutex
	defaultPrinter string
	defaultErr     error
	script         []pollAnswer
	calls          int
	printers       []string
	printersErr    error
}

type pollAnswer struct {
	entries []spooler.EntryInfo
	err     error
}

func (s *fakeSpooler) Printers(ctx context.Context) ([]string, error) {
	return s.printers, s.printersErr
}

func (s *fakeSpooler) DefaultPrinter(ctx context.Context) (string, error) {
	if s.defaultErr != nil {
		return "", s.defaultErr
	}
	return s.defaultPrinter, nil
}

func (s *fakeSpooler) Entries(ctx context.Context, printer string) ([]spooler.EntryInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if len(s.script) == 0 {
		return nil, nil
	}
	if idx >= len(s.script) {
		idx = len(s.script) - 1
	}
	answer := s.script[idx]
	return append([]spooler.EntryInfo(nil), answer.entries...), answer.err
}

func (s *fakeSpooler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func queueOf(ids ...int) pollAnswer {
	entries := make([]spooler.EntryInfo, 0, len(ids))
	for i, id := range ids {
		entries = append(entries, spooler.EntryInfo{ID: id, Position: i + 1})
	}
	return pollAnswer{entries: entries}
}

func withError(answer pollAnswer, id int) pollAnswer {
	for i := range answer.entries {
		if answer.entries[i].ID == id {
			answer.entries[i].Status |= spooler.StatusError
			answer.entries[i].StatusText = "paper jam"
		}
	}
	return answer
}

type dispatchCall struct {
	filePath string
	printer  string
	copies   int
}

type fakeRenderer struct {
	mu     sync.Mutex
	code   int
	output string
	calls  []dispatchCall
}

func (r *fakeRenderer) Dispatch(ctx context.Context, filePath, printer string, copies int) (int, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, dispatchCall{filePath: filePath, printer: printer, copies: copies})
	return r.code, r.output
}

type recordedEvent struct {
	event  string
	status JobStatus
}

type recordingEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (e *recordingEvents) SendJobEvent(event string, job Job) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, recordedEvent{event: event, status: job.Status})
}
