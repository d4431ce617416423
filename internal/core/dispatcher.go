package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/orrn/printd/internal/config"
)

const (
	// DispatchTimeout bounds one renderer invocation.
	DispatchTimeout = 60 * time.Second

	// SentinelExitCode reports that the renderer could not be run to
	// completion. Real processes never exit with it.
	SentinelExitCode = -1

	waitDelay = 5 * time.Second

	pipePrefix = "%pipe%"
)

// A %pipe% target is handed to /bin/sh, so printer names spliced into it are
// limited to characters the shell treats literally.
var pipeSafeName = regexp.MustCompile(`^[A-Za-z0-9._@+:-]+$`)

// Renderer hands a file to the print subsystem. Exit code 0 is the only
// success signal.
type Renderer interface {
	Dispatch(ctx context.Context, filePath, printer string, copies int) (exitCode int, output string)
}

// GhostscriptRenderer prints through a GhostScript output device that
// targets a named printer.
type GhostscriptRenderer struct {
	path           string
	device         string
	outputTemplate string
	extraArgs      []string
	timeout        time.Duration
}

func NewGhostscriptRenderer(cfg config.RendererConfig) *GhostscriptRenderer {
	return &GhostscriptRenderer{
		path:           cfg.GhostscriptPath,
		device:         cfg.Device,
		outputTemplate: cfg.OutputTemplate,
		extraArgs:      append([]string(nil), cfg.ExtraArgs...),
		timeout:        DispatchTimeout,
	}
}

// Args builds the GhostScript command line, without the binary itself.
func (r *GhostscriptRenderer) Args(filePath, printer string, copies int) []string {
	if copies < 1 {
		copies = 1
	}
	output := strings.ReplaceAll(r.outputTemplate, "{printer}", printer)
	args := []string{
		"-dBATCH",
		"-dNOPAUSE",
		"-dNumCopies=" + strconv.Itoa(copies),
		"-sDEVICE=" + r.device,
		"-sOutputFile=" + output,
	}
	args = append(args, r.extraArgs...)
	return append(args, filePath)
}

// CheckPrinter rejects printer names that are unsafe for the output template.
func (r *GhostscriptRenderer) CheckPrinter(printer string) error {
	if strings.HasPrefix(r.outputTemplate, pipePrefix) && !pipeSafeName.MatchString(printer) {
		return fmt.Errorf("%w: %q", ErrUnsafePrinterName, printer)
	}
	return nil
}

func (r *GhostscriptRenderer) Dispatch(ctx context.Context, filePath, printer string, copies int) (int, string) {
	if err := r.CheckPrinter(printer); err != nil {
		return SentinelExitCode, err.Error()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, r.path, r.Args(filePath, printer, copies)...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	// Output devices such as %pipe% spawn children that may hold the pipes.
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return SentinelExitCode, fmt.Sprintf("ghostscript timed out after %s", r.timeout)
		}
		return SentinelExitCode, fmt.Sprintf("ghostscript interrupted: %v", ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			return exitErr.ExitCode(), out.String()
		}
		return SentinelExitCode, err.Error()
	}
	return 0, out.String()
}

// Available reports whether the GhostScript binary can be found.
func (r *GhostscriptRenderer) Available() error {
	if _, err := exec.LookPath(r.path); err != nil {
		return fmt.Errorf("ghostscript binary %q not found: %w", r.path, err)
	}
	return nil
}

// Path returns the configured GhostScript binary.
func (r *GhostscriptRenderer) Path() string {
	return r.path
}
