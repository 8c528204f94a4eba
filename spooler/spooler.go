package spooler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// Spooler is the OS print subsystem as seen by the dispatcher
type Spooler interface {
	// Printers lists the names of installed printers
	Printers(ctx context.Context) ([]string, error)
	// DefaultPrinter returns the system default printer, or "" when none is set
	DefaultPrinter(ctx context.Context) (string, error)
	// JobIDs returns the IDs of jobs currently queued for printer
	JobIDs(ctx context.Context, printer string) ([]int, error)
	// PrintFile hands file to the OS generic print action for printer
	PrintFile(ctx context.Context, printer, file string) error
}

// CommandResult holds the captured output of a finished process
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner runs an external command to completion. A nonzero exit is reported
// through ExitCode, not as an error; err is only set when the process could not run.
type CommandRunner func(ctx context.Context, name string, args ...string) (*CommandResult, error)

// ExecRunner runs commands with os/exec
func ExecRunner(ctx context.Context, name string, args ...string) (*CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &CommandResult{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && ctx.Err() == nil {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	return res, nil
}

// New returns the spooler backend for kind: "cups", "windows" or "auto"
func New(kind string, runner CommandRunner, logger *zap.Logger) (Spooler, error) {
	if runner == nil {
		runner = ExecRunner
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(kind) {
	case "", "auto":
		if runtime.GOOS == "windows" {
			return NewWindows(runner, logger), nil
		}
		return NewCUPS(runner, logger), nil
	case "cups":
		return NewCUPS(runner, logger), nil
	case "windows":
		return NewWindows(runner, logger), nil
	default:
		return nil, fmt.Errorf("unknown spooler %q", kind)
	}
}

// commandError formats a failed command with its diagnostic output
func commandError(name string, res *CommandResult) error {
	return fmt.Errorf("%s exited with %d: %s", name, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
}

func nonEmptyLines(out []byte) []string {
	var lines []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
