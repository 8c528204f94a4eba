package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Store   StoreConfig
	RunLog  RunLogConfig
	Log     LogConfig
	Printer PrinterConfig
	Helper  HelperConfig
	Scan    ScanConfig
	Timing  TimingConfig
	UI      UIConfig
	Watch   WatchConfig
}

// StoreConfig holds the completion store location
type StoreConfig struct {
	Path string
}

// RunLogConfig holds the human-readable run log location
type RunLogConfig struct {
	Path string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// PrinterConfig selects the printer and the spooler backend
type PrinterConfig struct {
	Name    string // empty uses the saved printer, "default" the OS default
	Spooler string // auto, cups, windows
}

// HelperConfig describes the render-and-print helper
type HelperConfig struct {
	Path string
	Args []string
}

// ScanConfig selects how pending work is found
type ScanConfig struct {
	Mode       string // fingerprint, marker
	MarkerName string
	Extension  string
}

// TimingConfig holds every spooler polling interval and timeout.
// A zero timeout waits without limit.
type TimingConfig struct {
	DrainPoll     time.Duration
	DrainTimeout  time.Duration
	SubmitPoll    time.Duration
	SubmitTimeout time.Duration
	FinishPoll    time.Duration
	FinishTimeout time.Duration
	PausePoll     time.Duration
}

// UIConfig holds settings of the interactive and plain surfaces
type UIConfig struct {
	PollInterval time.Duration
	Plain        bool
	Retries      int
}

// WatchConfig holds watch mode settings
type WatchConfig struct {
	Debounce time.Duration
}

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string]string{
	"db":        "store.path",
	"printer":   "printer.name",
	"mode":      "scan.mode",
	"helper":    "helper.path",
	"log-level": "log.level",
	"plain":     "ui.plain",
	"retry":     "ui.retries",
}

// Load loads configuration. Priority (highest to lowest):
// 1. Command line flags that were set
// 2. Environment variables with MASSPRINT_ prefix (e.g., MASSPRINT_STORE_PATH)
// 3. configFile, or massprint.toml in the working directory or $HOME/.config/massprint
// 4. Built-in defaults
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("massprint")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/massprint")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("MASSPRINT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("error binding flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Store: StoreConfig{
			Path: v.GetString("store.path"),
		},
		RunLog: RunLogConfig{
			Path: v.GetString("runlog.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Printer: PrinterConfig{
			Name:    v.GetString("printer.name"),
			Spooler: v.GetString("printer.spooler"),
		},
		Helper: HelperConfig{
			Path: v.GetString("helper.path"),
			Args: v.GetStringSlice("helper.args"),
		},
		Scan: ScanConfig{
			Mode:       v.GetString("scan.mode"),
			MarkerName: v.GetString("scan.marker_name"),
			Extension:  v.GetString("scan.extension"),
		},
		Timing: TimingConfig{
			DrainPoll:     v.GetDuration("timing.drain_poll"),
			DrainTimeout:  v.GetDuration("timing.drain_timeout"),
			SubmitPoll:    v.GetDuration("timing.submit_poll"),
			SubmitTimeout: v.GetDuration("timing.submit_timeout"),
			FinishPoll:    v.GetDuration("timing.finish_poll"),
			FinishTimeout: v.GetDuration("timing.finish_timeout"),
			PausePoll:     v.GetDuration("timing.pause_poll"),
		},
		UI: UIConfig{
			PollInterval: v.GetDuration("ui.poll_interval"),
			Plain:        v.GetBool("ui.plain"),
			Retries:      v.GetInt("ui.retries"),
		},
		Watch: WatchConfig{
			Debounce: v.GetDuration("watch.debounce"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = "massprint.db"
	}
	if cfg.RunLog.Path == "" {
		cfg.RunLog.Path = "logs/massprint.log"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.Printer.Spooler == "" {
		cfg.Printer.Spooler = "auto"
	}
	if cfg.Helper.Path == "" {
		cfg.Helper.Path = "SumatraPDF"
	}
	if cfg.Scan.Mode == "" {
		cfg.Scan.Mode = "fingerprint"
	}
	cfg.Scan.Mode = strings.ToLower(cfg.Scan.Mode)
	if cfg.Scan.MarkerName == "" {
		cfg.Scan.MarkerName = ".imprimido"
	}
	if cfg.Scan.Extension == "" {
		cfg.Scan.Extension = ".pdf"
	}
	if !strings.HasPrefix(cfg.Scan.Extension, ".") {
		cfg.Scan.Extension = "." + cfg.Scan.Extension
	}
	if cfg.Timing.DrainPoll == 0 {
		cfg.Timing.DrainPoll = 300 * time.Millisecond
	}
	// DrainTimeout stays zero: wait for the queue without limit
	if cfg.Timing.SubmitPoll == 0 {
		cfg.Timing.SubmitPoll = 500 * time.Millisecond
	}
	if cfg.Timing.SubmitTimeout == 0 {
		cfg.Timing.SubmitTimeout = 30 * time.Second
	}
	if cfg.Timing.FinishPoll == 0 {
		cfg.Timing.FinishPoll = 2 * time.Second
	}
	if cfg.Timing.FinishTimeout == 0 {
		cfg.Timing.FinishTimeout = 30 * time.Minute
	}
	if cfg.Timing.PausePoll == 0 {
		cfg.Timing.PausePoll = 250 * time.Millisecond
	}
	if cfg.UI.PollInterval == 0 {
		cfg.UI.PollInterval = 150 * time.Millisecond
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 2 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Scan.Mode {
	case "fingerprint", "marker":
	default:
		return fmt.Errorf("scan.mode must be fingerprint or marker, got %q", c.Scan.Mode)
	}
	switch strings.ToLower(c.Printer.Spooler) {
	case "auto", "cups", "windows":
	default:
		return fmt.Errorf("printer.spooler must be auto, cups or windows, got %q", c.Printer.Spooler)
	}
	if c.Scan.MarkerName == "." || c.Scan.MarkerName == ".." || strings.ContainsAny(c.Scan.MarkerName, `/\`) {
		return fmt.Errorf("scan.marker_name must be a plain file name, got %q", c.Scan.MarkerName)
	}
	if c.UI.Retries < 0 {
		return fmt.Errorf("ui.retries cannot be negative")
	}
	for name, d := range map[string]time.Duration{
		"timing.drain_timeout":  c.Timing.DrainTimeout,
		"timing.submit_timeout": c.Timing.SubmitTimeout,
		"timing.finish_timeout": c.Timing.FinishTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s cannot be negative", name)
		}
	}
	return nil
}
