package cmd

import (
	"context"
	"fmt"

	"massprint/batch"
	"massprint/db"
	"massprint/logger"
	"massprint/models"
	"massprint/printer"
	"massprint/scanner"
	"massprint/tracker"

	"go.uber.org/zap"
)

// session holds everything one command opened; close releases it
type session struct {
	database *db.Database
	tracker  *tracker.Tracker
	runLog   *zap.Logger
}

func (c *CLI) openSession() (*session, error) {
	database := db.NewDatabase(c.logger.Named("db"))
	if err := database.Init(c.cfg.Store.Path); err != nil {
		return nil, err
	}
	tr := tracker.New(database,
		tracker.WithFs(c.fs),
		tracker.WithExtension(c.cfg.Scan.Extension),
		tracker.WithLogger(c.logger.Named("tracker")))
	return &session{database: database, tracker: tr, runLog: zap.NewNop()}, nil
}

func (s *session) close() {
	s.runLog.Sync()
	s.database.Close()
}

// orchestrator wires the dispatcher and the configured scan strategy
func (c *CLI) orchestrator(s *session) (*batch.Orchestrator, error) {
	mode, err := scanner.ParseMode(c.cfg.Scan.Mode)
	if err != nil {
		return nil, err
	}
	var strategy scanner.Strategy
	switch mode {
	case scanner.ModeMarker:
		strategy = scanner.NewMarker(c.fs, c.cfg.Scan.MarkerName, c.cfg.Scan.Extension, c.logger.Named("scanner"))
	default:
		strategy = scanner.NewFingerprint(s.tracker)
	}

	runLog, err := logger.NewRunLog(c.cfg.RunLog.Path)
	if err != nil {
		return nil, err
	}
	s.runLog = runLog

	t := c.cfg.Timing
	dispatcher := printer.NewDispatcher(printer.Config{
		HelperPath: c.cfg.Helper.Path,
		HelperArgs: c.cfg.Helper.Args,
		Extension:  c.cfg.Scan.Extension,
		Timing: printer.Timing{
			DrainPoll:     t.DrainPoll,
			DrainTimeout:  t.DrainTimeout,
			SubmitPoll:    t.SubmitPoll,
			SubmitTimeout: t.SubmitTimeout,
			FinishPoll:    t.FinishPoll,
			FinishTimeout: t.FinishTimeout,
		},
		Logger: c.logger.Named("printer"),
	}, c.spooler, c.runner, c.fs)

	return batch.NewOrchestrator(s.tracker, dispatcher, strategy,
		batch.WithFs(c.fs),
		batch.WithLogger(c.logger.Named("batch")),
		batch.WithRunLog(runLog),
		batch.WithPausePoll(t.PausePoll),
	), nil
}

// printerOverride turns the configured printer into an explicit run request.
// "default" asks the spooler for the OS default printer.
func (c *CLI) printerOverride(ctx context.Context) (string, error) {
	name := c.cfg.Printer.Name
	if name != "default" {
		return name, nil
	}
	def, err := c.spooler.DefaultPrinter(ctx)
	if err != nil {
		return "", fmt.Errorf("error reading default printer: %w", err)
	}
	if def == "" {
		return "", models.NewPrintError(models.CodeNoPrinterConfigured, "", "the system has no default printer", nil)
	}
	return def, nil
}
