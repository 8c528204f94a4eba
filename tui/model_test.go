package tui

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"massprint/batch"
	"massprint/models"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	retried *batch.Result
}

func (s *stubRunner) Run(context.Context, *batch.RunContext, batch.Request) (*batch.Result, error) {
	return &batch.Result{}, nil
}

func (s *stubRunner) Retry(_ context.Context, _ *batch.RunContext, previous *batch.Result) (*batch.Result, error) {
	s.retried = previous
	return &batch.Result{}, nil
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func failedResult() *batch.Result {
	return &batch.Result{
		RunID:     "run-1",
		Root:      "/docs",
		Printer:   "Office",
		Total:     3,
		Processed: 3,
		Errored:   2,
		Failures: []batch.Failure{
			{Path: "/docs/a/1.pdf", Err: models.ErrHelperFailure},
			{Path: "/docs/b/2.pdf", Err: models.ErrJobNeverFinished},
		},
	}
}

func TestModel_DrainsEventsOnTick(t *testing.T) {
	m := NewModel(context.Background(), &stubRunner{}, batch.Request{Root: "/docs"}, Options{})
	events := m.rc.Events()
	events.Push(batch.Event{Kind: batch.EventTotal, Total: 4})
	events.Push(batch.Event{Kind: batch.EventProgress, Index: 1, File: "/docs/1.pdf"})
	events.Push(batch.Event{Kind: batch.EventProgress, Index: 2, File: "/docs/2.pdf"})

	m, cmd := update(t, m, tickMsg{})
	assert.NotNil(t, cmd, "ticking continues")
	assert.Equal(t, 4, m.total)
	assert.Equal(t, 2, m.done)
	assert.Equal(t, "/docs/2.pdf", m.current)
	assert.Contains(t, m.View(), "2/4")
	assert.Zero(t, events.Len())
}

func TestModel_PauseAndCancel(t *testing.T) {
	m := NewModel(context.Background(), &stubRunner{}, batch.Request{Root: "/docs"}, Options{})

	m, _ = update(t, m, key('p'))
	assert.True(t, m.paused)
	assert.True(t, m.rc.IsPaused())
	assert.Contains(t, m.View(), "paused")

	m, _ = update(t, m, key('p'))
	assert.False(t, m.rc.IsPaused())

	m, _ = update(t, m, key('c'))
	assert.True(t, m.rc.IsCancelled())
}

func TestModel_RunDoneWithFailures(t *testing.T) {
	var opened []string
	m := NewModel(context.Background(), &stubRunner{}, batch.Request{Root: "/docs"}, Options{
		Open: func(path string) error {
			opened = append(opened, path)
			return nil
		},
	})

	m, _ = update(t, m, runDoneMsg{result: failedResult()})
	assert.Equal(t, stateDone, m.state)
	view := m.View()
	assert.Contains(t, view, "2 of 3 files failed")
	assert.Contains(t, view, "/docs/b/2.pdf")

	m, _ = update(t, m, key('j'))
	m, _ = update(t, m, key('j'))
	m, _ = update(t, m, key('o'))
	assert.Equal(t, []string{"/docs/b/2.pdf"}, opened)

	m, _ = update(t, m, key('k'))
	m, _ = update(t, m, key('o'))
	assert.Equal(t, []string{"/docs/b/2.pdf", "/docs/a/1.pdf"}, opened)
}

func TestModel_OpenErrorIsShown(t *testing.T) {
	m := NewModel(context.Background(), &stubRunner{}, batch.Request{Root: "/docs"}, Options{
		Open: func(string) error { return errors.New("no file manager") },
	})
	m, _ = update(t, m, runDoneMsg{result: failedResult()})
	m, _ = update(t, m, key('o'))
	assert.Contains(t, m.View(), "no file manager")
}

func TestModel_RetryFailures(t *testing.T) {
	runner := &stubRunner{}
	m := NewModel(context.Background(), runner, batch.Request{Root: "/docs"}, Options{})
	first := m.rc
	prev := failedResult()

	m, _ = update(t, m, runDoneMsg{result: prev})
	m, cmd := update(t, m, key('r'))
	require.NotNil(t, cmd)
	assert.Equal(t, stateRunning, m.state)
	assert.NotSame(t, first, m.rc)
	assert.Equal(t, 2, m.total)

	msg := cmd()
	assert.Same(t, prev, runner.retried)
	m, _ = update(t, m, msg)
	assert.Equal(t, stateDone, m.state)
	assert.Contains(t, m.View(), "Printed 0 files")
}

func TestModel_RetryIgnoredWithoutFailures(t *testing.T) {
	m := NewModel(context.Background(), &stubRunner{}, batch.Request{Root: "/docs"}, Options{})
	m, _ = update(t, m, runDoneMsg{result: &batch.Result{Processed: 2, Failures: []batch.Failure{}}})

	m, cmd := update(t, m, key('r'))
	assert.Nil(t, cmd)
	assert.Equal(t, stateDone, m.state)
}

func TestModel_SetupError(t *testing.T) {
	m := NewModel(context.Background(), &stubRunner{}, batch.Request{Root: "/docs"}, Options{})
	m, _ = update(t, m, runDoneMsg{err: models.ErrNoPrinterConfigured})
	assert.Equal(t, stateFailed, m.state)
	assert.Contains(t, m.View(), "no printer configured")
}

func TestModel_QuitWaitsForRunningWork(t *testing.T) {
	m := NewModel(context.Background(), &stubRunner{}, batch.Request{Root: "/docs"}, Options{})
	m, cmd := update(t, m, key('q'))
	assert.Nil(t, cmd, "quit must wait for the worker")
	assert.True(t, m.rc.IsCancelled())
	assert.Contains(t, m.View(), "stopping after the current file")

	m, cmd = update(t, m, key('p'))
	assert.Nil(t, cmd)
	assert.False(t, m.rc.IsPaused(), "keys are ignored while stopping")

	res := &batch.Result{Total: 3, Processed: 1, Cancelled: true}
	m, cmd = update(t, m, runDoneMsg{result: res})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Same(t, res, m.result)
}

func TestModel_QuitWhenIdle(t *testing.T) {
	m := NewModel(context.Background(), &stubRunner{}, batch.Request{Root: "/docs"}, Options{})
	m, _ = update(t, m, runDoneMsg{result: &batch.Result{}})
	_, cmd := update(t, m, key('q'))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

// slowRunner blocks inside Run until released, like a worker stuck in Print
type slowRunner struct {
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (s *slowRunner) Run(_ context.Context, rc *batch.RunContext, _ batch.Request) (*batch.Result, error) {
	close(s.started)
	<-s.release
	s.finished.Store(true)
	return &batch.Result{Total: 2, Processed: 1, Cancelled: rc.IsCancelled()}, nil
}

func (s *slowRunner) Retry(context.Context, *batch.RunContext, *batch.Result) (*batch.Result, error) {
	return &batch.Result{}, nil
}

func TestRun_QuitDuringPrintWaitsForWorker(t *testing.T) {
	runner := &slowRunner{started: make(chan struct{}), release: make(chan struct{})}
	p := newProgram(context.Background(), runner, batch.Request{Root: "/docs"},
		Options{PollInterval: 10 * time.Millisecond},
		tea.WithInput(nil), tea.WithOutput(io.Discard), tea.WithoutSignalHandler())

	type outcome struct {
		model tea.Model
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		final, err := p.Run()
		done <- outcome{final, err}
	}()

	<-runner.started
	p.Send(key('q'))

	select {
	case <-done:
		t.Fatal("program exited while the worker was still printing")
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	var out outcome
	select {
	case out = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("program did not exit after the worker finished")
	}
	require.NoError(t, out.err)
	assert.True(t, runner.finished.Load())

	m := out.model.(Model)
	require.NotNil(t, m.result)
	assert.True(t, m.result.Cancelled)
	assert.Equal(t, 1, m.result.Processed)
}
