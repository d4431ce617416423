package core

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/orrn/printd/internal/config"
)

func writeStub(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "gs")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestGhostscriptArgs(t *testing.T) {
	r := NewGhostscriptRenderer(config.RendererConfig{
		GhostscriptPath: "gswin64c.exe",
		Device:          "mswinpr2",
		OutputTemplate:  "%printer%{printer}",
		ExtraArgs:       []string{"-dQUIET"},
	})

	got := r.Args(`C:\PrintRoot\a.pdf`, "HP LaserJet", 3)
	want := []string{
		"-dBATCH",
		"-dNOPAUSE",
		"-dNumCopies=3",
		"-sDEVICE=mswinpr2",
		"-sOutputFile=%printer%HP LaserJet",
		"-dQUIET",
		`C:\PrintRoot\a.pdf`,
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("args mismatch:\n got  %q\n want %q", got, want)
	}

	if args := r.Args("a.pdf", "P", 0); args[2] != "-dNumCopies=1" {
		t.Fatalf("copies should default to 1, got %s", args[2])
	}
}

func TestDispatchSuccessCapturesOutput(t *testing.T) {
	stub := writeStub(t, `echo "rendering $*"; echo "warning" >&2; exit 0`)
	r := NewGhostscriptRenderer(config.RendererConfig{GhostscriptPath: stub, Device: "pdfwrite", OutputTemplate: "%pipe%lp -d {printer}"})

	code, out := r.Dispatch(context.Background(), "/tmp/a.pdf", "Office", 1)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (%s)", code, out)
	}
	if !strings.Contains(out, "-sOutputFile=%pipe%lp -d Office") || !strings.Contains(out, "warning") {
		t.Fatalf("expected combined output, got %q", out)
	}
}

func TestDispatchNonZeroExit(t *testing.T) {
	stub := writeStub(t, `echo "Error: /undefinedfilename"; exit 2`)
	r := NewGhostscriptRenderer(config.RendererConfig{GhostscriptPath: stub, Device: "pdfwrite", OutputTemplate: "{printer}"})

	code, out := r.Dispatch(context.Background(), "/tmp/missing.pdf", "Office", 1)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(out, "undefinedfilename") {
		t.Fatalf("expected output to be captured, got %q", out)
	}
}

func TestDispatchMissingBinaryReturnsSentinel(t *testing.T) {
	r := NewGhostscriptRenderer(config.RendererConfig{GhostscriptPath: filepath.Join(t.TempDir(), "no-gs"), Device: "pdfwrite", OutputTemplate: "{printer}"})

	code, out := r.Dispatch(context.Background(), "a.pdf", "Office", 1)
	if code != SentinelExitCode {
		t.Fatalf("expected sentinel, got %d", code)
	}
	if out == "" {
		t.Fatal("expected error text")
	}
	if err := r.Available(); err == nil {
		t.Fatal("expected Available to fail")
	}
}

func TestDispatchTimeoutReturnsSentinel(t *testing.T) {
	stub := writeStub(t, `exec sleep 5`)
	r := NewGhostscriptRenderer(config.RendererConfig{GhostscriptPath: stub, Device: "pdfwrite", OutputTemplate: "{printer}"})
	r.timeout = 100 * time.Millisecond

	code, out := r.Dispatch(context.Background(), "a.pdf", "Office", 1)
	if code != SentinelExitCode {
		t.Fatalf("expected sentinel, got %d", code)
	}
	if !strings.Contains(out, "timed out") {
		t.Fatalf("expected timeout text, got %q", out)
	}
}

func TestDispatchRejectsShellMetacharactersInPipeTarget(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	stub := writeStub(t, `touch "`+marker+`"; exit 0`)
	r := NewGhostscriptRenderer(config.RendererConfig{GhostscriptPath: stub, Device: "pdfwrite", OutputTemplate: "%pipe%lp -d {printer}"})

	for _, name := range []string{"x; touch /tmp/owned", "a|b", "$(id)", "`id`", "Office Printer", "a\nb"} {
		code, out := r.Dispatch(context.Background(), "/tmp/a.pdf", name, 1)
		if code != SentinelExitCode || !strings.Contains(out, "not allowed") {
			t.Fatalf("printer %q: expected rejection, got %d %q", name, code, out)
		}
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Fatal("renderer ran for an unsafe printer name")
	}

	if err := r.CheckPrinter("HP_LaserJet-4.local"); err != nil {
		t.Fatalf("plain queue name rejected: %v", err)
	}

	win := NewGhostscriptRenderer(config.RendererConfig{GhostscriptPath: "gswin64c.exe", Device: "mswinpr2", OutputTemplate: "%printer%{printer}"})
	if err := win.CheckPrinter("HP LaserJet (Floor 2)"); err != nil {
		t.Fatalf("printer targets do not go through a shell: %v", err)
	}
}
