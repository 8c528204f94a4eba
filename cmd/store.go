package cmd

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
)

// handlePrinters lists the OS printers, marking the default and the saved one
func (c *CLI) handlePrinters(ctx context.Context) error {
	printers, err := c.spooler.Printers(ctx)
	if err != nil {
		return fmt.Errorf("error listing printers: %w", err)
	}
	def, err := c.spooler.DefaultPrinter(ctx)
	if err != nil {
		c.logger.Debug("cannot read default printer", zap.Error(err))
	}

	s, err := c.openSession()
	if err != nil {
		return err
	}
	defer s.close()
	saved, _, err := s.tracker.LoadSelectedPrinter(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Printers (%d total):\n\n", len(printers))
	for i, name := range printers {
		fmt.Fprintf(c.out, "%d. %s", i+1, name)
		if name == def {
			fmt.Fprint(c.out, " (default)")
		}
		if name == saved {
			fmt.Fprint(c.out, " (selected)")
		}
		fmt.Fprintln(c.out)
	}
	return nil
}

func (c *CLI) handleSetPrinter(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("printer name cannot be empty")
	}
	printers, err := c.spooler.Printers(ctx)
	if err != nil {
		return fmt.Errorf("error listing printers: %w", err)
	}
	if !slices.Contains(printers, name) {
		return fmt.Errorf("unknown printer %q", name)
	}

	s, err := c.openSession()
	if err != nil {
		return err
	}
	defer s.close()
	if err := s.tracker.SaveSelectedPrinter(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Selected printer: %s\n", name)
	return nil
}

// handleShowStats handles the status command
func (c *CLI) handleShowStats(ctx context.Context) error {
	s, err := c.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	stats, err := s.tracker.Stats(ctx)
	if err != nil {
		return err
	}
	printerName := stats.Printer
	if printerName == "" {
		printerName = "(none)"
	}
	lastPrinted := "never"
	if stats.LastPrintedAt != nil {
		lastPrinted = stats.LastPrintedAt.Format(time.DateTime)
	}

	fmt.Fprintln(c.out, "Store Statistics:")
	fmt.Fprintln(c.out, "=================")
	fmt.Fprintf(c.out, "Store: %s\n", c.cfg.Store.Path)
	fmt.Fprintf(c.out, "Tracked files: %d\n", stats.TotalFiles)
	fmt.Fprintf(c.out, "Printed: %d\n", stats.PrintedFiles)
	fmt.Fprintf(c.out, "Pending: %d\n", stats.PendingFiles)
	fmt.Fprintf(c.out, "Total size: %d bytes\n", stats.TotalSize)
	fmt.Fprintf(c.out, "Last printed: %s\n", lastPrinted)
	fmt.Fprintf(c.out, "Selected printer: %s\n", printerName)
	return nil
}

// handleListFiles handles the list command
func (c *CLI) handleListFiles(ctx context.Context) error {
	s, err := c.openSession()
	if err != nil {
		return err
	}
	defer s.close()

	records, err := s.tracker.Records(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Tracked files (%d total):\n\n", len(records))
	for i, rec := range records {
		status := "pending"
		if rec.Printed {
			status = "printed"
			if rec.PrintedAt != nil {
				status += " " + rec.PrintedAt.Format(time.DateTime)
			}
		}
		fmt.Fprintf(c.out, "%d. %s (%d bytes) %s\n", i+1, rec.Path, rec.Size, status)
	}
	return nil
}
