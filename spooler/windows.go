package spooler

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Windows queries the Windows print spooler through PowerShell cmdlets
type Windows struct {
	run    CommandRunner
	logger *zap.Logger
}

// NewWindows creates a Windows spooler
func NewWindows(runner CommandRunner, logger *zap.Logger) *Windows {
	return &Windows{run: runner, logger: logger}
}

func (w *Windows) powershell(ctx context.Context, script string) ([]string, error) {
	res, err := w.run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, commandError("powershell", res)
	}
	return nonEmptyLines(res.Stdout), nil
}

// quote wraps s as a single-quoted PowerShell literal
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (w *Windows) Printers(ctx context.Context) ([]string, error) {
	return w.powershell(ctx, "Get-Printer | Select-Object -ExpandProperty Name")
}

func (w *Windows) DefaultPrinter(ctx context.Context) (string, error) {
	lines, err := w.powershell(ctx, "(Get-CimInstance -ClassName Win32_Printer -Filter 'Default=TRUE').Name")
	if err != nil || len(lines) == 0 {
		return "", err
	}
	return lines[0], nil
}

func (w *Windows) JobIDs(ctx context.Context, printer string) ([]int, error) {
	lines, err := w.powershell(ctx, "Get-PrintJob -PrinterName "+quote(printer)+" | Select-Object -ExpandProperty Id")
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(lines))
	for _, line := range lines {
		id, err := strconv.Atoi(line)
		if err != nil {
			w.logger.Debug("unparseable job id", zap.String("line", line))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PrintFile uses the shell "printto" verb of the file association, which takes
// the target printer as its argument. The name is double-quoted inside the
// literal so names with spaces stay one argument.
func (w *Windows) PrintFile(ctx context.Context, printer, file string) error {
	_, err := w.powershell(ctx, printToScript(printer, file))
	return err
}

func printToScript(printer, file string) string {
	return "Start-Process -FilePath " + quote(file) +
		" -Verb PrintTo -ArgumentList " + quote(`"`+printer+`"`) +
		" -WindowStyle Hidden"
}
