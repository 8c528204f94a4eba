package batch

import (
	"context"
	"time"

	"massprint/models"
	"massprint/scanner"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultPausePoll is how often a paused run rechecks its signals
const DefaultPausePoll = 250 * time.Millisecond

// PrinterStore persists the last selected printer
type PrinterStore interface {
	SaveSelectedPrinter(ctx context.Context, name string) error
	LoadSelectedPrinter(ctx context.Context) (string, bool, error)
}

// Printer submits one file and waits for the spooler to finish it
type Printer interface {
	Print(ctx context.Context, file, printerName string) error
}

// Request describes one run
type Request struct {
	Root string
	// Printer overrides the saved printer and becomes the new saved one
	Printer string
}

// Orchestrator drives planned files through the printer one at a time
type Orchestrator struct {
	store     PrinterStore
	printer   Printer
	strategy  scanner.Strategy
	fs        afero.Fs
	logger    *zap.Logger
	runLog    *zap.Logger
	pausePoll time.Duration
	now       func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

func WithFs(fs afero.Fs) Option {
	return func(o *Orchestrator) { o.fs = fs }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithRunLog sets the logger that receives one line per printed or failed file
func WithRunLog(logger *zap.Logger) Option {
	return func(o *Orchestrator) { o.runLog = logger }
}

func WithPausePoll(d time.Duration) Option {
	return func(o *Orchestrator) { o.pausePoll = d }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(store PrinterStore, printer Printer, strategy scanner.Strategy, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		printer:   printer,
		strategy:  strategy,
		fs:        afero.NewOsFs(),
		logger:    zap.NewNop(),
		runLog:    zap.NewNop(),
		pausePoll: DefaultPausePoll,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run plans the work under req.Root and prints it. Setup errors are returned
// before any event is emitted; per-file errors end up in Result.Failures.
// Cancelling ctx stops the run at once and returns ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, rc *RunContext, req Request) (*Result, error) {
	defer rc.close()
	printerName, err := o.resolvePrinter(ctx, req.Printer)
	if err != nil {
		return nil, err
	}

	info, err := o.fs.Stat(req.Root)
	if err != nil || !info.IsDir() {
		return nil, models.NewPrintError(models.CodeNotADirectory, req.Root, "not a directory", err)
	}

	groups, err := o.strategy.Plan(ctx, req.Root)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.NewString(), Root: req.Root, Printer: printerName}
	return o.execute(ctx, rc, res, groups, true)
}

// Retry prints only the failures of a previous run with the same printer.
// Folder markers are never written by a retry.
func (o *Orchestrator) Retry(ctx context.Context, rc *RunContext, previous *Result) (*Result, error) {
	defer rc.close()
	res := &Result{RunID: uuid.NewString(), Root: previous.Root, Printer: previous.Printer}

	var groups []scanner.Group
	if paths := previous.FailedPaths(); len(paths) > 0 {
		groups = []scanner.Group{{Folder: previous.Root, Files: paths}}
	}
	o.logger.Info("retrying failures",
		zap.String("run_id", res.RunID),
		zap.String("previous_run_id", previous.RunID),
		zap.Int("files", len(previous.Failures)))
	return o.execute(ctx, rc, res, groups, false)
}

func (o *Orchestrator) resolvePrinter(ctx context.Context, explicit string) (string, error) {
	if explicit != "" {
		if err := o.store.SaveSelectedPrinter(ctx, explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}
	name, ok, err := o.store.LoadSelectedPrinter(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", models.NewPrintError(models.CodeNoPrinterConfigured, "", "no printer selected", nil)
	}
	return name, nil
}

func (o *Orchestrator) execute(ctx context.Context, rc *RunContext, res *Result, groups []scanner.Group, finishGroups bool) (*Result, error) {
	start := o.now()
	for _, g := range groups {
		res.Total += len(g.Files)
	}
	log := o.logger.With(zap.String("run_id", res.RunID), zap.String("printer", res.Printer))
	log.Info("run started", zap.String("root", res.Root), zap.Int("total", res.Total))
	rc.emit(Event{RunID: res.RunID, Kind: EventTotal, Total: res.Total})

	for _, g := range groups {
		failedBefore := len(res.Failures)
		for _, file := range g.Files {
			if err := o.waitWhilePaused(ctx, rc); err != nil {
				return res, err
			}
			if rc.IsCancelled() {
				return o.finish(rc, res, start, true, log), nil
			}
			printErr := o.printer.Print(ctx, file, res.Printer)
			if err := ctx.Err(); err != nil {
				return res, err
			}
			o.record(ctx, res, file, printErr, log)
			rc.emit(Event{RunID: res.RunID, Kind: EventProgress, Index: res.Processed, File: file, Err: printErr})
		}

		if finishGroups && len(res.Failures) == failedBefore {
			if err := o.strategy.Finished(ctx, g); err != nil {
				log.Error("failed to record finished group", zap.String("folder", g.Folder), zap.Error(err))
			}
		}
	}
	return o.finish(rc, res, start, false, log), nil
}

// record counts one attempted file and stores its outcome
func (o *Orchestrator) record(ctx context.Context, res *Result, file string, err error, log *zap.Logger) {
	res.Processed++

	if err != nil {
		res.Failures = append(res.Failures, Failure{Path: file, Err: err})
		res.Errored++
		log.Error("print failed", zap.String("file", file), zap.Error(err))
		o.runLog.Error("failed", zap.String("file", file), zap.String("printer", res.Printer), zap.Error(err))
		return
	}

	log.Info("printed", zap.String("file", file))
	o.runLog.Info("printed", zap.String("file", file), zap.String("printer", res.Printer))
	if err := o.strategy.Printed(ctx, file); err != nil {
		log.Error("failed to record printed file", zap.String("file", file), zap.Error(err))
	}
}

// waitWhilePaused blocks while the pause flag is set; a cancel request ends the wait
func (o *Orchestrator) waitWhilePaused(ctx context.Context, rc *RunContext) error {
	for rc.IsPaused() && !rc.IsCancelled() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.pausePoll):
		}
	}
	return ctx.Err()
}

func (o *Orchestrator) finish(rc *RunContext, res *Result, start time.Time, cancelled bool, log *zap.Logger) *Result {
	res.Elapsed = o.now().Sub(start)
	res.Cancelled = cancelled
	if res.Failures == nil {
		res.Failures = []Failure{}
	}

	kind := EventCompleted
	if cancelled {
		kind = EventCancelled
	}
	log.Info("run "+kind.String(),
		zap.Int("processed", res.Processed),
		zap.Int("errored", res.Errored),
		zap.Duration("elapsed", res.Elapsed))
	rc.emit(Event{RunID: res.RunID, Kind: kind, Result: res})
	return res
}
