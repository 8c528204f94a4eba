package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"massprint/batch"
	"massprint/config"
	"massprint/models"
	"massprint/queue"
	"massprint/spooler"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSpooler struct {
	printers []string
	def      string
}

func (f *fakeSpooler) Printers(context.Context) ([]string, error) { return f.printers, nil }

func (f *fakeSpooler) DefaultPrinter(context.Context) (string, error) { return f.def, nil }

func (f *fakeSpooler) JobIDs(context.Context, string) ([]int, error) { return nil, nil }

func (f *fakeSpooler) PrintFile(context.Context, string, string) error {
	return errors.New("shell printing is not expected")
}

// flakyHelper fails each listed file once, then succeeds
type flakyHelper struct {
	mu       sync.Mutex
	failOnce map[string]bool
	files    []string
}

func (h *flakyHelper) run(_ context.Context, _ string, args ...string) (*spooler.CommandResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	file := args[len(args)-1]
	h.files = append(h.files, file)
	if h.failOnce[file] {
		delete(h.failOnce, file)
		return &spooler.CommandResult{ExitCode: 1, Stderr: []byte("paper jam")}, nil
	}
	return &spooler.CommandResult{}, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.Store.Path = filepath.Join(dir, "state.db")
	cfg.RunLog.Path = filepath.Join(dir, "logs", "massprint.log")
	cfg.Helper.Path = "/opt/helper"
	cfg.UI.Plain = true
	cfg.UI.PollInterval = 5 * time.Millisecond
	cfg.Timing.DrainPoll = time.Millisecond
	return cfg
}

func testFs(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range []string{"/docs/a.pdf", "/docs/sub/b.pdf", "/opt/helper"} {
		require.NoError(t, afero.WriteFile(fs, f, []byte("%PDF"), 0755))
	}
	return fs
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		command string
		rest    []string
		wantErr bool
	}{
		{"explicit run", []string{"run", "/docs"}, "run", []string{"/docs"}, false},
		{"implicit run", []string{"--plain", "/docs"}, "run", []string{"/docs"}, false},
		{"flags after command", []string{"watch", "/docs", "--mode", "marker"}, "watch", []string{"/docs"}, false},
		{"status", []string{"status"}, "status", []string{}, false},
		{"set printer", []string{"set-printer", "Office"}, "set-printer", []string{"Office"}, false},
		{"missing command", []string{}, "", nil, true},
		{"missing folder", []string{"run"}, "", nil, true},
		{"extra argument", []string{"status", "now"}, "", nil, true},
		{"unknown flag", []string{"--nope", "run", "/docs"}, "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, _, err := ParseFlags(tt.args, &bytes.Buffer{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.command, inv.Command)
			assert.Equal(t, tt.rest, inv.Args)
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	var out bytes.Buffer
	_, _, err := ParseFlags([]string{"--help"}, &out)
	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, out.String(), "set-printer")
	assert.Contains(t, out.String(), "--retry")
}

func TestCLI_RunPlainWithRetry(t *testing.T) {
	cfg := testConfig(t)
	cfg.Printer.Name = "Office"
	cfg.UI.Retries = 1
	helper := &flakyHelper{failOnce: map[string]bool{"/docs/sub/b.pdf": true}}
	var out bytes.Buffer
	cli := NewCLI(cfg, Deps{Out: &out, Spooler: &fakeSpooler{}, Runner: helper.run, Fs: testFs(t)})

	require.NoError(t, cli.Run(context.Background(), &Invocation{Command: "run", Args: []string{"/docs"}}))
	assert.Equal(t, []string{"/docs/a.pdf", "/docs/sub/b.pdf", "/docs/sub/b.pdf"}, helper.files)

	text := out.String()
	assert.Contains(t, text, "2 file(s) to print")
	assert.Contains(t, text, "[2/2] /docs/sub/b.pdf FAILED")
	assert.Contains(t, text, "Retrying 1 failed file(s), attempt 1 of 1")
	assert.Contains(t, text, "Done: 1 file(s) printed to Office")

	// Everything is recorded, so the next run has nothing to do
	out.Reset()
	cfg.Printer.Name = ""
	require.NoError(t, cli.Run(context.Background(), &Invocation{Command: "run", Args: []string{"/docs"}}))
	assert.Contains(t, out.String(), "0 file(s) to print")
	assert.Len(t, helper.files, 3)

	out.Reset()
	require.NoError(t, cli.Run(context.Background(), &Invocation{Command: "status"}))
	assert.Contains(t, out.String(), "Printed: 2")
	assert.Contains(t, out.String(), "Selected printer: Office")

	out.Reset()
	require.NoError(t, cli.Run(context.Background(), &Invocation{Command: "list"}))
	assert.Contains(t, out.String(), "Tracked files (2 total)")
	assert.Contains(t, out.String(), "/docs/a.pdf (4 bytes) printed")
}

func TestCLI_RunPlainReportsFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.Printer.Name = "Office"
	helper := &flakyHelper{failOnce: map[string]bool{"/docs/a.pdf": true}}
	var out bytes.Buffer
	cli := NewCLI(cfg, Deps{Out: &out, Spooler: &fakeSpooler{}, Runner: helper.run, Fs: testFs(t)})

	err := cli.Run(context.Background(), &Invocation{Command: "run", Args: []string{"/docs"}})
	assert.EqualError(t, err, "1 file(s) failed to print")
	assert.Contains(t, out.String(), "Done with errors: 1 of 2 file(s) failed")
	assert.Contains(t, out.String(), "paper jam")
}

func TestCLI_ReportStopsWhenQueueCloses(t *testing.T) {
	var out bytes.Buffer
	cli := NewCLI(testConfig(t), Deps{Out: &out})
	events := queue.New[batch.Event]()

	done := make(chan struct{})
	go func() {
		defer close(done)
		cli.report(events)
	}()
	events.Push(batch.Event{Kind: batch.EventTotal, Total: 2})
	events.Push(batch.Event{Kind: batch.EventProgress, Index: 1, File: "/docs/a.pdf"})
	events.Push(batch.Event{Kind: batch.EventProgress, Index: 2, File: "/docs/b.pdf", Err: models.ErrHelperFailure})
	events.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("report kept running after the queue closed")
	}
	assert.Equal(t, "2 file(s) to print\n"+
		"[1/2] /docs/a.pdf ok\n"+
		"[2/2] /docs/b.pdf FAILED: "+models.ErrHelperFailure.Error()+"\n", out.String())
}

func TestCLI_RunWithoutPrinter(t *testing.T) {
	cfg := testConfig(t)
	cli := NewCLI(cfg, Deps{Spooler: &fakeSpooler{}, Runner: (&flakyHelper{}).run, Fs: testFs(t)})

	err := cli.Run(context.Background(), &Invocation{Command: "run", Args: []string{"/docs"}})
	assert.ErrorIs(t, err, models.ErrNoPrinterConfigured)
}

func TestCLI_DefaultPrinter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Printer.Name = "default"

	cli := NewCLI(cfg, Deps{Spooler: &fakeSpooler{def: "Front Desk"}})
	name, err := cli.printerOverride(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Front Desk", name)

	cli = NewCLI(cfg, Deps{Spooler: &fakeSpooler{}})
	_, err = cli.printerOverride(context.Background())
	assert.ErrorIs(t, err, models.ErrNoPrinterConfigured)
}

func TestCLI_Printers(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	cli := NewCLI(cfg, Deps{Out: &out, Spooler: &fakeSpooler{printers: []string{"Office", "PDF"}, def: "PDF"}})

	err := cli.Run(context.Background(), &Invocation{Command: "set-printer", Args: []string{"Nope"}})
	assert.Error(t, err)

	require.NoError(t, cli.Run(context.Background(), &Invocation{Command: "set-printer", Args: []string{"Office"}}))

	out.Reset()
	require.NoError(t, cli.Run(context.Background(), &Invocation{Command: "printers"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, "1. Office (selected)", lines[len(lines)-2])
	assert.Equal(t, "2. PDF (default)", lines[len(lines)-1])
}

func TestCLI_MarkerMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Printer.Name = "Office"
	cfg.Scan.Mode = "marker"
	fs := afero.NewMemMapFs()
	for _, f := range []string{"/docs/A/1.pdf", "/docs/A/2.pdf", "/docs/B/3.pdf", "/docs/B/.imprimido", "/opt/helper"} {
		require.NoError(t, afero.WriteFile(fs, f, []byte("%PDF"), 0755))
	}
	helper := &flakyHelper{}
	cli := NewCLI(cfg, Deps{Spooler: &fakeSpooler{}, Runner: helper.run, Fs: fs})

	require.NoError(t, cli.Run(context.Background(), &Invocation{Command: "run", Args: []string{"/docs"}}))
	assert.Equal(t, []string{"/docs/A/1.pdf", "/docs/A/2.pdf"}, helper.files)

	ok, err := afero.Exists(fs, "/docs/A/.imprimido")
	require.NoError(t, err)
	assert.True(t, ok)
}
