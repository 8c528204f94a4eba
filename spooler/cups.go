package spooler

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// CUPS talks to the CUPS scheduler through the lpstat and lp commands
type CUPS struct {
	run    CommandRunner
	logger *zap.Logger
}

// NewCUPS creates a CUPS spooler
func NewCUPS(runner CommandRunner, logger *zap.Logger) *CUPS {
	return &CUPS{run: runner, logger: logger}
}

func (c *CUPS) Printers(ctx context.Context) ([]string, error) {
	res, err := c.run(ctx, "lpstat", "-e")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, commandError("lpstat", res)
	}
	return nonEmptyLines(res.Stdout), nil
}

func (c *CUPS) DefaultPrinter(ctx context.Context) (string, error) {
	res, err := c.run(ctx, "lpstat", "-d")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", commandError("lpstat", res)
	}
	return parseDefaultDestination(res.Stdout), nil
}

// parseDefaultDestination reads "system default destination: NAME"
func parseDefaultDestination(out []byte) string {
	for _, line := range nonEmptyLines(out) {
		if strings.HasPrefix(line, "no system default") {
			return ""
		}
		if _, name, ok := strings.Cut(line, ": "); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

func (c *CUPS) JobIDs(ctx context.Context, printer string) ([]int, error) {
	res, err := c.run(ctx, "lpstat", "-o", printer)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, commandError("lpstat", res)
	}
	return parseJobIDs(res.Stdout, printer, c.logger), nil
}

// parseJobIDs reads lpstat -o lines of the form "PRINTER-42 user 1024 date"
func parseJobIDs(out []byte, printer string, logger *zap.Logger) []int {
	var ids []int
	for _, line := range nonEmptyLines(out) {
		fields := strings.Fields(line)
		jobName := fields[0]
		if !strings.HasPrefix(jobName, printer+"-") {
			continue
		}
		id, err := strconv.Atoi(jobName[len(printer)+1:])
		if err != nil {
			logger.Debug("unparseable lpstat line", zap.String("line", line))
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (c *CUPS) PrintFile(ctx context.Context, printer, file string) error {
	res, err := c.run(ctx, "lp", "-d", printer, "--", file)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return commandError("lp", res)
	}
	c.logger.Debug("submitted with lp", zap.String("printer", printer), zap.String("output", strings.TrimSpace(string(res.Stdout))))
	return nil
}
