package spooler

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// CUPS queries queues through the lpstat command.
type CUPS struct {
	lpstat string
	run    commandRunner
}

func NewCUPS(lpstatPath string) *CUPS {
	if lpstatPath == "" {
		lpstatPath = "lpstat"
	}
	return &CUPS{lpstat: lpstatPath, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

func (c *CUPS) Printers(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, c.lpstat, "-e")
	if err != nil {
		return nil, fmt.Errorf("list printers: %w", err)
	}
	var printers []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			printers = append(printers, name)
		}
	}
	return printers, scanner.Err()
}

func (c *CUPS) DefaultPrinter(ctx context.Context) (string, error) {
	out, err := c.run(ctx, c.lpstat, "-d")
	if err != nil {
		return "", fmt.Errorf("default printer: %w", err)
	}
	line := strings.TrimSpace(string(out))
	idx := strings.LastIndex(line, ":")
	if idx < 0 || strings.HasPrefix(line, "no system default") {
		return "", ErrNoDefaultPrinter
	}
	name := strings.TrimSpace(line[idx+1:])
	if name == "" {
		return "", ErrNoDefaultPrinter
	}
	return name, nil
}

func (c *CUPS) Entries(ctx context.Context, printer string) ([]EntryInfo, error) {
	out, err := c.run(ctx, c.lpstat, "-l", "-W", "not-completed", "-o", printer)
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", printer, err)
	}
	return parseLpstatJobs(printer, out), nil
}

// parseLpstatJobs reads "lpstat -l -o" output. Job lines start at column
// zero with a "<dest>-<id>" token; indented lines that follow describe the
// job's state.
func parseLpstatJobs(printer string, out []byte) []EntryInfo {
	var entries []EntryInfo
	var current *EntryInfo

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		if line[0] != ' ' && line[0] != '\t' {
			current = nil
			fields := strings.Fields(line)
			id, ok := parseJobToken(printer, fields[0])
			if !ok {
				continue
			}
			entries = append(entries, EntryInfo{ID: id, Position: len(entries) + 1})
			current = &entries[len(entries)-1]
			continue
		}

		if current == nil {
			continue
		}
		applyDetail(current, strings.TrimSpace(line))
	}
	return entries
}

func parseJobToken(printer, token string) (int, bool) {
	idx := strings.LastIndex(token, "-")
	if idx < 0 {
		return 0, false
	}
	if printer != "" && token[:idx] != printer {
		return 0, false
	}
	id, err := strconv.Atoi(token[idx+1:])
	if err != nil {
		return 0, false
	}
	return id, true
}

func applyDetail(entry *EntryInfo, detail string) {
	key, value, found := strings.Cut(detail, ":")
	if !found {
		return
	}
	value = strings.TrimSpace(value)
	switch strings.ToLower(key) {
	case "status", "alerts":
		if value == "" {
			return
		}
		if entry.StatusText != "" {
			entry.StatusText += "; "
		}
		entry.StatusText += value
		entry.Status |= statusFlags(value)
	}
}

func statusFlags(value string) uint32 {
	v := strings.ToLower(value)
	var flags uint32
	for _, marker := range []string{"stopped", "aborted", "error", "failed"} {
		if strings.Contains(v, marker) {
			flags |= StatusError
			break
		}
	}
	if strings.Contains(v, "job-printing") {
		flags |= StatusPrinting
	}
	if strings.Contains(v, "job-hold") {
		flags |= StatusPaused
	}
	if strings.Contains(v, "job-incoming") {
		flags |= StatusSpooling
	}
	return flags
}
