package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"massprint/tracker"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last change before a run starts
const DefaultDebounce = 2 * time.Second

// Trigger starts one run
type Trigger func(ctx context.Context) error

// Config contains configuration for the watcher
type Config struct {
	Debounce  time.Duration
	Extension string
	Fs        afero.Fs
	Logger    *zap.Logger
}

// Watcher reruns a trigger whenever matching files under a folder tree change
type Watcher struct {
	root   string
	config Config
	logger *zap.Logger
	add    func(string) error
}

// New creates a watcher for root
func New(root string, config Config) *Watcher {
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.Extension == "" {
		config.Extension = tracker.DefaultExtension
	}
	if config.Fs == nil {
		config.Fs = afero.NewOsFs()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{root: root, config: config, logger: logger}
}

// Run triggers once, then again after every burst of relevant changes,
// until ctx ends. Trigger errors are logged and watching continues.
func (w *Watcher) Run(ctx context.Context, trigger Trigger) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}
	defer fw.Close()
	w.add = fw.Add

	if err := w.addTree(w.root); err != nil {
		return err
	}

	w.fire(ctx, trigger)
	return w.loop(ctx, fw.Events, fw.Errors, trigger)
}

func (w *Watcher) loop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, trigger Trigger) error {
	timer := time.NewTimer(w.config.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				w.logger.Debug("change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
				timer.Reset(w.config.Debounce)
			}
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warn("error while watching", zap.Error(err))
		case <-timer.C:
			w.fire(ctx, trigger)
		}
	}
}

func (w *Watcher) fire(ctx context.Context, trigger Trigger) {
	if err := trigger(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error("run failed", zap.String("root", w.root), zap.Error(err))
	}
}

// relevant reports whether event may have produced new pending work.
// New directories are added to the watch list.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if event.Has(fsnotify.Create) {
		if info, err := w.config.Fs.Stat(event.Name); err == nil && info.IsDir() {
			if tracker.IgnoredEntry(name, true) {
				return false
			}
			if err := w.addTree(event.Name); err != nil {
				w.logger.Warn("cannot watch new folder", zap.String("path", event.Name), zap.Error(err))
			}
			return true
		}
	}
	if tracker.IgnoredEntry(name, false) || !tracker.MatchesExtension(name, w.config.Extension) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}

// addTree watches dir and every non-hidden directory below it
func (w *Watcher) addTree(dir string) error {
	return afero.Walk(w.config.Fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if path != dir && tracker.IgnoredEntry(info.Name(), true) {
			return filepath.SkipDir
		}
		if w.add == nil {
			return nil
		}
		if err := w.add(path); err != nil {
			return fmt.Errorf("error watching %s: %w", path, err)
		}
		return nil
	})
}
