package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"massprint/batch"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Runner starts runs and retries
type Runner interface {
	Run(ctx context.Context, rc *batch.RunContext, req batch.Request) (*batch.Result, error)
	Retry(ctx context.Context, rc *batch.RunContext, previous *batch.Result) (*batch.Result, error)
}

type state int

const (
	stateRunning state = iota
	stateDone
	stateFailed
)

type tickMsg time.Time

type runDoneMsg struct {
	result *batch.Result
	err    error
}

// Options configures the interactive surface
type Options struct {
	PollInterval time.Duration
	// Open shows a file's containing folder; defaults to OpenContainingFolder
	Open   func(path string) error
	Logger *zap.Logger
}

// Model is the bubbletea model of one interactive session
type Model struct {
	ctx    context.Context
	runner Runner
	req    batch.Request
	opts   Options
	logger *zap.Logger

	rc       *batch.RunContext
	state    state
	total    int
	done     int
	current  string
	paused   bool
	result   *batch.Result
	err      error
	cursor   int
	notice   string
	quitting bool
	progress progress.Model
	width    int
}

// NewModel creates the model; the first run starts from Init
func NewModel(ctx context.Context, runner Runner, req batch.Request, opts Options) Model {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 150 * time.Millisecond
	}
	if opts.Open == nil {
		opts.Open = OpenContainingFolder
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return Model{
		ctx:      ctx,
		runner:   runner,
		req:      req,
		opts:     opts,
		logger:   logger,
		rc:       batch.NewRunContext(nil),
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

func newProgram(ctx context.Context, runner Runner, req batch.Request, opts Options, extra ...tea.ProgramOption) *tea.Program {
	popts := append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, extra...)
	return tea.NewProgram(NewModel(ctx, runner, req, opts), popts...)
}

// Run starts the program and blocks until the user quits. Quitting during a
// run returns only after the file being printed has been recorded.
func Run(ctx context.Context, runner Runner, req batch.Request, opts Options) (*batch.Result, error) {
	final, err := newProgram(ctx, runner, req, opts).Run()
	if err != nil {
		return nil, err
	}
	m := final.(Model)
	return m.result, m.err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.startRun(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.PollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) startRun() tea.Cmd {
	rc, runner, ctx, req := m.rc, m.runner, m.ctx, m.req
	return func() tea.Msg {
		res, err := runner.Run(ctx, rc, req)
		return runDoneMsg{result: res, err: err}
	}
}

func (m Model) startRetry(previous *batch.Result) tea.Cmd {
	rc, runner, ctx := m.rc, m.runner, m.ctx
	return func() tea.Msg {
		res, err := runner.Retry(ctx, rc, previous)
		return runDoneMsg{result: res, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(msg.Width-8, 10)
		return m, nil

	case tickMsg:
		m.drain()
		return m, m.tick()

	case runDoneMsg:
		m.drain()
		m.result = msg.result
		m.err = msg.err
		m.current = ""
		m.paused = false
		m.cursor = 0
		if msg.err != nil {
			m.state = stateFailed
			m.logger.Error("run failed", zap.Error(msg.err))
		} else {
			m.state = stateDone
		}
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil
	}
	return m, nil
}

// drain applies every queued event without blocking
func (m *Model) drain() {
	for _, e := range m.rc.Events().Drain() {
		switch e.Kind {
		case batch.EventTotal:
			m.total = e.Total
			m.done = 0
		case batch.EventProgress:
			m.done = e.Index
			m.current = e.File
		case batch.EventCompleted, batch.EventCancelled:
			m.result = e.Result
		}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.quitting {
		m.notice = "stopping after the current file"
		return m, nil
	}
	m.notice = ""
	switch msg.String() {
	case "ctrl+c", "q":
		if m.state != stateRunning {
			return m, tea.Quit
		}
		// the worker still owns the store until runDoneMsg arrives
		m.rc.Cancel()
		m.quitting = true
		m.notice = "stopping after the current file"

	case "p":
		if m.state == stateRunning {
			m.paused = m.rc.TogglePause()
		}

	case "c":
		if m.state == stateRunning {
			m.rc.Cancel()
			m.notice = "cancelling after the current file"
		}

	case "r":
		if m.state == stateDone && m.result != nil && len(m.result.Failures) > 0 {
			previous := m.result
			m.rc = batch.NewRunContext(nil)
			m.state = stateRunning
			m.result = nil
			m.total, m.done = len(previous.Failures), 0
			return m, m.startRetry(previous)
		}

	case "o":
		if f, ok := m.selectedFailure(); ok {
			if err := m.opts.Open(f.Path); err != nil {
				m.notice = fmt.Sprintf("cannot open folder: %v", err)
			}
		}

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.result != nil && m.cursor < len(m.result.Failures)-1 {
			m.cursor++
		}
	}
	return m, nil
}

func (m Model) selectedFailure() (batch.Failure, bool) {
	if m.state != stateDone || m.result == nil || m.cursor >= len(m.result.Failures) {
		return batch.Failure{}, false
	}
	return m.result.Failures[m.cursor], true
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("massprint"))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("folder ") + m.req.Root + "\n")
	if m.result != nil && m.result.Printer != "" {
		b.WriteString(labelStyle.Render("printer ") + m.result.Printer + "\n")
	}
	b.WriteString("\n")

	switch m.state {
	case stateRunning:
		b.WriteString(m.viewRunning())
	case stateDone:
		b.WriteString(m.viewResult())
	case stateFailed:
		b.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n")
	}

	if m.notice != "" {
		b.WriteString("\n" + pausedStyle.Render(m.notice) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render(m.help()))
	return b.String()
}

func (m Model) viewRunning() string {
	var b strings.Builder
	percent := 0.0
	if m.total > 0 {
		percent = float64(m.done) / float64(m.total)
	}
	b.WriteString(m.progress.ViewAs(percent))
	b.WriteString(fmt.Sprintf("  %d/%d\n", m.done, m.total))
	if m.current != "" {
		b.WriteString(labelStyle.Render("last ") + fileStyle.Render(filepath.Base(m.current)) + "\n")
	}
	if m.paused {
		b.WriteString(pausedStyle.Render("paused") + "\n")
	}
	return b.String()
}

func (m Model) viewResult() string {
	res := m.result
	if res == nil {
		return ""
	}
	var b strings.Builder
	switch {
	case res.Cancelled:
		b.WriteString(pausedStyle.Render(fmt.Sprintf("Cancelled after %d of %d files", res.Processed, res.Total)))
	case len(res.Failures) == 0:
		b.WriteString(successStyle.Render(fmt.Sprintf("Printed %d files in %s", res.Processed, res.Elapsed.Round(time.Second))))
	default:
		b.WriteString(errorStyle.Render(fmt.Sprintf("%d of %d files failed", len(res.Failures), res.Processed)))
	}
	b.WriteString("\n")

	if len(res.Failures) == 0 {
		return b.String()
	}
	var lines []string
	for i, f := range res.Failures {
		line := fmt.Sprintf("%s  %v", f.Path, f.Err)
		if i == m.cursor {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	b.WriteString(boxStyle.Render(strings.Join(lines, "\n")))
	b.WriteString("\n")
	return b.String()
}

func (m Model) help() string {
	switch m.state {
	case stateRunning:
		if m.quitting {
			return "waiting for the current file"
		}
		return "p pause/resume • c cancel • q quit"
	case stateDone:
		if m.result != nil && len(m.result.Failures) > 0 {
			return "↑/↓ select • o open folder • r retry failures • q quit"
		}
	}
	return "q quit"
}
