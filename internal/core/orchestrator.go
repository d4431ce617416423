package core

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/orrn/printd/internal/metrics"
	"github.com/orrn/printd/internal/spooler"
)

type Timeouts struct {
	Detect time.Duration
	Wait   time.Duration
	Poll   time.Duration
}

// Orchestrator runs one print job from dispatch to a terminal status and
// records progress in the registry.
type Orchestrator struct {
	registry   *Registry
	spooler    spooler.Spooler
	renderer   Renderer
	correlator *Correlator
	monitor    *Monitor
	events     EventSender
	clock      Clock
	timeouts   Timeouts
	logger     *slog.Logger
}

type OrchestratorOptions struct {
	Registry *Registry
	Spooler  spooler.Spooler
	Renderer Renderer
	Events   EventSender
	Clock    Clock
	Timeouts Timeouts
	Logger   *slog.Logger
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry:   opts.Registry,
		spooler:    opts.Spooler,
		renderer:   opts.Renderer,
		correlator: NewCorrelator(opts.Spooler, clock, logger),
		monitor:    NewMonitor(opts.Spooler, clock, logger),
		events:     opts.Events,
		clock:      clock,
		timeouts:   opts.Timeouts,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Run processes jobID. Every failure ends up in the job's result; nothing is
// returned to the caller.
func (o *Orchestrator) Run(ctx context.Context, jobID string, req PrintRequest) {
	logger := o.logger.With("job_id", jobID)
	start := o.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("print job panicked", "panic", r)
			o.finish(logger, jobID, start, &Result{
				OK:      boolPtr(false),
				Outcome: OutcomeInternal,
				Error:   fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	job, err := o.registry.Update(jobID, func(j *Job) error {
		j.Status = JobStatusRunning
		return nil
	})
	if err != nil {
		logger.Error("failed to mark job running", "error", err)
		return
	}
	o.emit(EventJobStarted, job)
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	o.finish(logger, jobID, start, o.execute(ctx, logger, req))
}

func (o *Orchestrator) execute(ctx context.Context, logger *slog.Logger, req PrintRequest) *Result {
	printer := req.Printer
	if printer == "" {
		name, err := o.spooler.DefaultPrinter(ctx)
		if err != nil {
			return &Result{
				OK:      boolPtr(false),
				Outcome: OutcomePrinterUnavailable,
				Error:   err.Error(),
			}
		}
		printer = name
	} else if err := o.checkPrinter(ctx, printer); err != nil {
		logger.Warn("rejected printer", "printer", printer, "error", err)
		return &Result{
			OK:      boolPtr(false),
			Outcome: OutcomePrinterUnavailable,
			Printer: printer,
			Error:   err.Error(),
		}
	}
	logger = logger.With("printer", printer)

	// The snapshot must precede dispatch or the new entry could be missed.
	before := o.correlator.Snapshot(ctx, printer)

	filePath := req.FilePath
	if filePath == "" {
		filePath = req.Path
	}
	code, output := o.renderer.Dispatch(ctx, filePath, printer, req.Copies)
	metrics.DispatchExits.WithLabelValues(strconv.Itoa(code)).Inc()
	if code != 0 {
		logger.Warn("renderer failed", "exit_code", code)
		return &Result{
			OK:       boolPtr(false),
			Outcome:  OutcomeDispatchFailed,
			Printer:  printer,
			ExitCode: intPtr(code),
			Output:   output,
			Error:    "ghostscript_failed",
		}
	}

	entryID, found := o.correlator.FindNewEntry(ctx, printer, before, o.timeouts.Detect, o.timeouts.Poll)
	if !found {
		if err := ctx.Err(); err != nil {
			return &Result{
				OK:       boolPtr(false),
				Outcome:  OutcomeException,
				Printer:  printer,
				ExitCode: intPtr(code),
				Output:   output,
				Error:    fmt.Sprintf("interrupted while waiting for spooler entry: %v", err),
			}
		}
		logger.Info("no spooler entry observed after dispatch")
		return &Result{
			Outcome:  OutcomeNoEntryDetected,
			Printer:  printer,
			ExitCode: intPtr(code),
			Output:   output,
		}
	}
	logger.Info("spooler entry detected", "entry_id", entryID)

	ok, detail := o.monitor.AwaitCompletion(ctx, printer, entryID, o.timeouts.Wait, o.timeouts.Poll)
	return &Result{
		OK:       boolPtr(ok),
		Outcome:  outcomeFor(detail.State),
		Printer:  printer,
		EntryID:  intPtr(entryID),
		ExitCode: intPtr(code),
		Output:   output,
		Detail:   &detail,
	}
}

// checkPrinter accepts only printers the spooler lists. The name ends up in
// the renderer's output target, so nothing else may reach it.
func (o *Orchestrator) checkPrinter(ctx context.Context, printer string) error {
	printers, err := o.spooler.Printers(ctx)
	if err != nil {
		return err
	}
	for _, name := range printers {
		if name == printer {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownPrinter, printer)
}

func outcomeFor(state EntryState) Outcome {
	switch state {
	case EntryCompleted:
		return OutcomeCompleted
	case EntryError:
		return OutcomeEntryError
	case EntryTimeout:
		return OutcomeTimeout
	default:
		return OutcomeException
	}
}

func (o *Orchestrator) finish(logger *slog.Logger, jobID string, start time.Time, result *Result) {
	status := JobStatusDone
	if result.OK != nil && !*result.OK {
		status = JobStatusFailed
	}

	job, err := o.registry.Update(jobID, func(j *Job) error {
		j.Status = status
		j.Result = result
		return nil
	})
	if err != nil {
		logger.Error("failed to record job result", "error", err)
		return
	}

	metrics.JobsFinished.WithLabelValues(string(status), string(result.Outcome)).Inc()
	metrics.JobDuration.WithLabelValues(string(status)).Observe(o.clock.Now().Sub(start).Seconds())
	logger.Info("print job finished", "status", status, "outcome", result.Outcome)

	if status == JobStatusDone {
		o.emit(EventJobCompleted, job)
	} else {
		o.emit(EventJobFailed, job)
	}
}

func (o *Orchestrator) emit(event string, job Job) {
	if o.events != nil {
		o.events.SendJobEvent(event, job)
	}
}
