package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"massprint/batch"
	"massprint/queue"
	"massprint/tui"
	"massprint/watch"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type startFunc func(ctx context.Context, rc *batch.RunContext) (*batch.Result, error)

func (c *CLI) handleRun(ctx context.Context, folder string) error {
	root, err := filepath.Abs(folder)
	if err != nil {
		return err
	}
	printerName, err := c.printerOverride(ctx)
	if err != nil {
		return err
	}

	s, err := c.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	orch, err := c.orchestrator(s)
	if err != nil {
		return err
	}
	req := batch.Request{Root: root, Printer: printerName}

	if !c.cfg.UI.Plain {
		res, err := tui.Run(ctx, orch, req, tui.Options{
			PollInterval: c.cfg.UI.PollInterval,
			Logger:       c.logger.Named("tui"),
		})
		if err != nil {
			return err
		}
		if res != nil {
			c.printSummary(res)
		}
		return nil
	}

	res, err := c.runPlain(ctx, orch, req)
	if err != nil {
		return err
	}
	if len(res.Failures) > 0 {
		return fmt.Errorf("%d file(s) failed to print", len(res.Failures))
	}
	return nil
}

// runPlain runs once and then retries the failures up to the configured number of times
func (c *CLI) runPlain(ctx context.Context, orch *batch.Orchestrator, req batch.Request) (*batch.Result, error) {
	res, err := c.drive(ctx, func(ctx context.Context, rc *batch.RunContext) (*batch.Result, error) {
		return orch.Run(ctx, rc, req)
	})
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= c.cfg.UI.Retries && len(res.Failures) > 0 && !res.Cancelled; attempt++ {
		fmt.Fprintf(c.out, "Retrying %d failed file(s), attempt %d of %d\n", len(res.Failures), attempt, c.cfg.UI.Retries)
		previous := res
		res, err = c.drive(ctx, func(ctx context.Context, rc *batch.RunContext) (*batch.Result, error) {
			return orch.Retry(ctx, rc, previous)
		})
		if err != nil {
			return nil, err
		}
	}
	c.printSummary(res)
	return res, nil
}

// drive runs start on one goroutine and reports its events from another until
// the run closes its event queue
func (c *CLI) drive(ctx context.Context, start startFunc) (*batch.Result, error) {
	rc := batch.NewRunContext(nil)
	var res *batch.Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// start may fail before the run owns the queue
		defer rc.Events().Close()
		var err error
		res, err = start(gctx, rc)
		return err
	})
	g.Go(func() error {
		c.report(rc.Events())
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// report prints events as they are signalled until the queue is closed
func (c *CLI) report(events *queue.Queue[batch.Event]) {
	total := 0
	for range events.Ready() {
		c.printEvents(events.Drain(), &total)
	}
	c.printEvents(events.Drain(), &total)
}

func (c *CLI) printEvents(events []batch.Event, total *int) {
	for _, e := range events {
		switch e.Kind {
		case batch.EventTotal:
			*total = e.Total
			fmt.Fprintf(c.out, "%d file(s) to print\n", e.Total)
		case batch.EventProgress:
			status := "ok"
			if e.Err != nil {
				status = "FAILED: " + e.Err.Error()
			}
			fmt.Fprintf(c.out, "[%d/%d] %s %s\n", e.Index, *total, e.File, status)
		}
	}
}

func (c *CLI) printSummary(res *batch.Result) {
	switch {
	case res.Cancelled:
		fmt.Fprintf(c.out, "Cancelled after %d of %d file(s)\n", res.Processed, res.Total)
	case len(res.Failures) == 0:
		fmt.Fprintf(c.out, "Done: %d file(s) printed to %s in %s\n", res.Processed, res.Printer, res.Elapsed.Round(time.Millisecond))
	default:
		fmt.Fprintf(c.out, "Done with errors: %d of %d file(s) failed\n", len(res.Failures), res.Processed)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(c.out, "  %s: %v\n", f.Path, f.Err)
	}
}

func (c *CLI) handleWatch(ctx context.Context, folder string) error {
	root, err := filepath.Abs(folder)
	if err != nil {
		return err
	}
	printerName, err := c.printerOverride(ctx)
	if err != nil {
		return err
	}

	s, err := c.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	orch, err := c.orchestrator(s)
	if err != nil {
		return err
	}

	w := watch.New(root, watch.Config{
		Debounce:  c.cfg.Watch.Debounce,
		Extension: c.cfg.Scan.Extension,
		Fs:        c.fs,
		Logger:    c.logger.Named("watch"),
	})
	fmt.Fprintf(c.out, "Watching %s\n", root)
	return w.Run(ctx, func(ctx context.Context) error {
		res, err := c.runPlain(ctx, orch, batch.Request{Root: root, Printer: printerName})
		if err != nil {
			return err
		}
		c.logger.Info("watch run finished", zap.String("run_id", res.RunID), zap.Int("failures", len(res.Failures)))
		return nil
	})
}
