package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"massprint/config"
	"massprint/logger"
	"massprint/spooler"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Invocation is a parsed command line
type Invocation struct {
	Command    string
	Args       []string
	ConfigFile string
}

var commands = map[string]int{
	"run":         1,
	"watch":       1,
	"printers":    0,
	"set-printer": 1,
	"status":      0,
	"list":        0,
}

// ParseFlags parses args into an invocation and the flag set config binds to.
// A first argument that is not a command is the folder of an implicit run.
func ParseFlags(args []string, out io.Writer) (*Invocation, *pflag.FlagSet, error) {
	flags := pflag.NewFlagSet("massprint", pflag.ContinueOnError)
	flags.SetOutput(out)
	configFile := flags.String("config", "", "Path to a TOML config file")
	flags.String("db", "", "Path to the completion store (default massprint.db)")
	flags.String("printer", "", `Printer to use and remember; "default" picks the OS default`)
	flags.String("mode", "", "Scan mode: fingerprint or marker")
	flags.String("helper", "", "Render-and-print helper binary")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Bool("plain", false, "Print progress lines instead of the interactive view")
	flags.Int("retry", 0, "Retry failed files up to N times (plain mode)")
	flags.Usage = func() { ShowHelp(out, flags) }

	if err := flags.Parse(args); err != nil {
		return nil, nil, err
	}

	rest := flags.Args()
	if len(rest) == 0 {
		return nil, flags, errors.New("missing command")
	}

	inv := &Invocation{Command: rest[0], Args: rest[1:], ConfigFile: *configFile}
	want, known := commands[inv.Command]
	if !known {
		inv.Command = "run"
		inv.Args = rest
		want = commands["run"]
	}
	if len(inv.Args) != want {
		return nil, flags, fmt.Errorf("%s expects %d argument(s), got %d", inv.Command, want, len(inv.Args))
	}
	return inv, flags, nil
}

// ShowHelp displays the help message
func ShowHelp(out io.Writer, flags *pflag.FlagSet) {
	fmt.Fprintln(out, "massprint - batch print PDF folders")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage:")
	fmt.Fprintln(out, "  massprint [flags] run <folder>      print pending files (default command)")
	fmt.Fprintln(out, "  massprint [flags] watch <folder>    print again whenever files change")
	fmt.Fprintln(out, "  massprint printers                  list printers")
	fmt.Fprintln(out, "  massprint set-printer <name>        remember a printer")
	fmt.Fprintln(out, "  massprint status                    show store statistics")
	fmt.Fprintln(out, "  massprint list                      list tracked files")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fmt.Fprint(out, flags.FlagUsages())
}

// Main runs the command line and returns the process exit code
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	inv, flags, err := ParseFlags(args, stderr)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		if flags != nil {
			ShowHelp(stderr, flags)
		}
		return 2
	}

	cfg, err := config.Load(inv.ConfigFile, flags)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	log, err := logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer log.Sync()

	sp, err := spooler.New(cfg.Printer.Spooler, nil, log.Named("spooler"))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	cli := NewCLI(cfg, Deps{Out: stdout, Logger: log, Spooler: sp})
	if err := cli.Run(ctx, inv); err != nil {
		log.Error("command failed", zap.String("command", inv.Command), zap.Error(err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// Deps holds the collaborators of the CLI
type Deps struct {
	Out     io.Writer
	Logger  *zap.Logger
	Spooler spooler.Spooler
	// Runner executes the print helper; defaults to os/exec
	Runner spooler.CommandRunner
	Fs     afero.Fs
}

// CLI handles command-line interface operations
type CLI struct {
	cfg     *config.Config
	out     io.Writer
	logger  *zap.Logger
	spooler spooler.Spooler
	runner  spooler.CommandRunner
	fs      afero.Fs
}

// NewCLI creates a new CLI instance
func NewCLI(cfg *config.Config, deps Deps) *CLI {
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	return &CLI{
		cfg:     cfg,
		out:     deps.Out,
		logger:  deps.Logger,
		spooler: deps.Spooler,
		runner:  deps.Runner,
		fs:      deps.Fs,
	}
}

// Run executes the command of inv
func (c *CLI) Run(ctx context.Context, inv *Invocation) error {
	switch inv.Command {
	case "run":
		return c.handleRun(ctx, inv.Args[0])
	case "watch":
		return c.handleWatch(ctx, inv.Args[0])
	case "printers":
		return c.handlePrinters(ctx)
	case "set-printer":
		return c.handleSetPrinter(ctx, strings.TrimSpace(inv.Args[0]))
	case "status":
		return c.handleShowStats(ctx)
	case "list":
		return c.handleListFiles(ctx)
	default:
		return fmt.Errorf("unknown command %q", inv.Command)
	}
}
