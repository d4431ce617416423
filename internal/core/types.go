package core

import (
	"errors"
	"time"

	"github.com/orrn/printd/internal/spooler"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobTerminal       = errors.New("job already finished")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrQueueFull         = errors.New("print queue is full")
	ErrQueueStopped      = errors.New("print queue is stopped")
	ErrUnknownPrinter    = errors.New("unknown printer")
	ErrUnsafePrinterName = errors.New("printer name not allowed in a pipe target")
)

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

func (s JobStatus) rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusRunning:
		return 1
	case JobStatusDone, JobStatusFailed:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

type Paper struct {
	WidthMM  int `json:"width_mm"`
	HeightMM int `json:"height_mm"`
}

type Layout struct {
	Rows int `json:"rows"`
	Cols int `json:"cols"`
}

// PrintRequest is the submitted print order. Only Path, Printer and Copies
// drive the job; the layout and quality fields are carried for the record.
type PrintRequest struct {
	Path      string  `json:"path"`
	Printer   string  `json:"printer,omitempty"`
	Copies    int     `json:"copies"`
	DPI       int     `json:"dpi"`
	Scale     float64 `json:"scale"`
	MarginsMM []int   `json:"margins_mm"`
	Layout    Layout  `json:"layout"`
	Duplex    bool    `json:"duplex"`
	Paper     Paper   `json:"paper"`

	// FilePath is the resolved absolute path inside the print root.
	FilePath string `json:"-"`
}

type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomeNoEntryDetected    Outcome = "no_spool_job_detected"
	OutcomeDispatchFailed     Outcome = "dispatch_failed"
	OutcomeEntryError         Outcome = "error"
	OutcomeTimeout            Outcome = "timeout"
	OutcomeException          Outcome = "exception"
	OutcomePrinterUnavailable Outcome = "printer_unavailable"
	OutcomeInternal           Outcome = "internal_error"
)

// Result is the terminal payload of a job. OK is nil when the outcome is
// indeterminate: the renderer succeeded but no queue entry was observed.
type Result struct {
	OK       *bool         `json:"ok"`
	Outcome  Outcome       `json:"outcome"`
	Printer  string        `json:"printer,omitempty"`
	EntryID  *int          `json:"entry_id,omitempty"`
	ExitCode *int          `json:"exit_code,omitempty"`
	Output   string        `json:"output,omitempty"`
	Detail   *EntryOutcome `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type Job struct {
	ID        string       `json:"id"`
	Status    JobStatus    `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Request   PrintRequest `json:"request"`
	Result    *Result      `json:"result,omitempty"`
}

func (j *Job) clone() Job {
	c := *j
	if j.Request.MarginsMM != nil {
		c.Request.MarginsMM = append([]int(nil), j.Request.MarginsMM...)
	}
	if j.Result != nil {
		r := *j.Result
		r.OK = copyPtr(r.OK)
		r.EntryID = copyPtr(r.EntryID)
		r.ExitCode = copyPtr(r.ExitCode)
		if r.Detail != nil {
			d := *r.Detail
			if d.Entry != nil {
				e := *d.Entry
				e.TotalPages = copyPtr(e.TotalPages)
				d.Entry = &e
			}
			r.Detail = &d
		}
		c.Result = &r
	}
	return c
}

// EntryState is the terminal state the completion monitor reached.
type EntryState string

const (
	EntryCompleted EntryState = "COMPLETED"
	EntryError     EntryState = "ERROR"
	EntryTimeout   EntryState = "TIMEOUT"
	EntryException EntryState = "EXCEPTION"
)

type EntryOutcome struct {
	EntryID int                `json:"entry_id"`
	State   EntryState         `json:"state"`
	Entry   *spooler.EntryInfo `json:"entry,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// EventSender receives job lifecycle notifications. Implementations must not
// block the caller.
type EventSender interface {
	SendJobEvent(event string, job Job)
}

const (
	EventJobStarted   = "job_started"
	EventJobCompleted = "job_completed"
	EventJobFailed    = "job_failed"
)

func boolPtr(v bool) *bool { return &v }

func intPtr(v int) *int { return &v }

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
