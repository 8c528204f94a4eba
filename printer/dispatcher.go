package printer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"massprint/models"
	"massprint/spooler"
	"massprint/tracker"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultHelperArgs is the argument template for a SumatraPDF-compatible helper
var DefaultHelperArgs = []string{"-print-to", "{printer}", "-silent", "-exit-when-done", "{file}"}

// Timing holds every polling interval and timeout used while waiting on the spooler.
// A zero timeout means wait without limit.
type Timing struct {
	// DrainPoll and DrainTimeout apply after the helper exits, until the queue is empty
	DrainPoll    time.Duration
	DrainTimeout time.Duration
	// SubmitPoll and SubmitTimeout apply while waiting for a shell-submitted job to appear
	SubmitPoll    time.Duration
	SubmitTimeout time.Duration
	// FinishPoll and FinishTimeout apply while waiting for that job to leave the queue
	FinishPoll    time.Duration
	FinishTimeout time.Duration
}

// DefaultTiming returns the intervals used by the desktop tool
func DefaultTiming() Timing {
	return Timing{
		DrainPoll:     300 * time.Millisecond,
		SubmitPoll:    500 * time.Millisecond,
		SubmitTimeout: 30 * time.Second,
		FinishPoll:    2 * time.Second,
		FinishTimeout: 30 * time.Minute,
	}
}

// Config contains configuration for the dispatcher
type Config struct {
	// HelperPath is the render-and-print helper. Empty disables the helper strategy.
	// A bare name is searched in PATH.
	HelperPath string
	// HelperArgs is the argument template; {printer} and {file} are substituted
	HelperArgs []string
	// Extension is the only file extension accepted
	Extension string
	Timing    Timing
	Logger    *zap.Logger
}

// Dispatcher sends one file at a time to a printer and waits for the spooler to finish it
type Dispatcher struct {
	config  Config
	spooler spooler.Spooler
	run     spooler.CommandRunner
	fs      afero.Fs
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher. runner and fs default to os/exec and the OS filesystem.
func NewDispatcher(config Config, sp spooler.Spooler, runner spooler.CommandRunner, fs afero.Fs) *Dispatcher {
	if len(config.HelperArgs) == 0 {
		config.HelperArgs = DefaultHelperArgs
	}
	if config.Extension == "" {
		config.Extension = tracker.DefaultExtension
	}
	if config.Timing == (Timing{}) {
		config.Timing = DefaultTiming()
	}
	if runner == nil {
		runner = spooler.ExecRunner
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		config:  config,
		spooler: sp,
		run:     runner,
		fs:      fs,
		logger:  logger,
	}
}

// Print submits file to printerName and returns once the spooler has nothing
// outstanding for it.
func (d *Dispatcher) Print(ctx context.Context, file, printerName string) error {
	if err := d.validate(file); err != nil {
		return err
	}

	job := models.PrintJob{Path: file, Printer: printerName}
	if helper, ok := d.resolveHelper(); ok {
		return d.printWithHelper(ctx, helper, job)
	}
	return d.printWithShell(ctx, job)
}

// validate rejects missing paths, directories, and other extensions before any queue interaction
func (d *Dispatcher) validate(file string) error {
	info, err := d.fs.Stat(file)
	if err != nil {
		return models.NewPrintError(models.CodeNotFound, file, "file not found", err)
	}
	if info.IsDir() || !tracker.MatchesExtension(file, d.config.Extension) {
		return models.NewPrintError(models.CodeNotFound, file,
			fmt.Sprintf("not a %s file", d.config.Extension), nil)
	}
	return nil
}

// resolveHelper finds the helper binary; it is looked up on every call so a helper
// installed mid-run is picked up on the next file.
func (d *Dispatcher) resolveHelper() (string, bool) {
	path := d.config.HelperPath
	if path == "" {
		return "", false
	}
	if filepath.IsAbs(path) {
		info, err := d.fs.Stat(path)
		if err != nil || info.IsDir() {
			return "", false
		}
		return path, true
	}
	found, err := exec.LookPath(path)
	if err != nil {
		return "", false
	}
	return found, true
}

// HelperArgs expands the argument template for job
func (d *Dispatcher) HelperArgs(job models.PrintJob) []string {
	r := strings.NewReplacer("{printer}", job.Printer, "{file}", job.Path)
	args := make([]string, len(d.config.HelperArgs))
	for i, arg := range d.config.HelperArgs {
		args[i] = r.Replace(arg)
	}
	return args
}

func (d *Dispatcher) printWithHelper(ctx context.Context, helper string, job models.PrintJob) error {
	args := d.HelperArgs(job)
	d.logger.Debug("executing print helper",
		zap.String("binary", helper),
		zap.Strings("args", args))

	res, err := d.run(ctx, helper, args...)
	if err != nil {
		return models.NewPrintError(models.CodeHelperFailure, job.Path, "print helper could not run", err)
	}
	if res.ExitCode != 0 {
		stderr := strings.TrimSpace(string(res.Stderr))
		d.logger.Error("print helper failed",
			zap.String("file", job.Path),
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", stderr))
		pe := models.NewPrintError(models.CodeHelperFailure, job.Path,
			fmt.Sprintf("print helper exited with %d", res.ExitCode), nil)
		pe.Detail = stderr
		return pe
	}

	t := d.config.Timing
	err = poll(ctx, t.DrainPoll, t.DrainTimeout, func() bool {
		return len(d.jobIDs(ctx, job.Printer)) == 0
	})
	if errors.Is(err, errPollTimeout) {
		return models.NewPrintError(models.CodeJobNeverFinished, job.Path,
			fmt.Sprintf("queue of %s did not drain within %v", job.Printer, t.DrainTimeout), nil)
	}
	return err
}

func (d *Dispatcher) printWithShell(ctx context.Context, job models.PrintJob) error {
	t := d.config.Timing
	before := make(map[int]struct{})
	for _, id := range d.jobIDs(ctx, job.Printer) {
		before[id] = struct{}{}
	}

	if err := d.spooler.PrintFile(ctx, job.Printer, job.Path); err != nil {
		return models.NewPrintError(models.CodeHelperFailure, job.Path, "shell print failed", err)
	}

	jobID := -1
	err := poll(ctx, t.SubmitPoll, t.SubmitTimeout, func() bool {
		for _, id := range d.jobIDs(ctx, job.Printer) {
			if _, seen := before[id]; !seen {
				jobID = id
				return true
			}
		}
		return false
	})
	if errors.Is(err, errPollTimeout) {
		return models.NewPrintError(models.CodeJobNeverQueued, job.Path,
			fmt.Sprintf("job never reached the spooler within %v", t.SubmitTimeout), nil)
	}
	if err != nil {
		return err
	}
	d.logger.Debug("job queued", zap.String("file", job.Path), zap.Int("job_id", jobID))

	err = poll(ctx, t.FinishPoll, t.FinishTimeout, func() bool {
		for _, id := range d.jobIDs(ctx, job.Printer) {
			if id == jobID {
				return false
			}
		}
		return true
	})
	if errors.Is(err, errPollTimeout) {
		return models.NewPrintError(models.CodeJobNeverFinished, job.Path,
			fmt.Sprintf("job %d did not finish within %v", jobID, t.FinishTimeout), nil)
	}
	return err
}

// jobIDs lists the printer queue; enumeration failures count as an empty queue
func (d *Dispatcher) jobIDs(ctx context.Context, printerName string) []int {
	ids, err := d.spooler.JobIDs(ctx, printerName)
	if err != nil {
		d.logger.Warn("cannot enumerate print queue", zap.String("printer", printerName), zap.Error(err))
		return nil
	}
	return ids
}
