package tracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"massprint/db"
	"massprint/models"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultExtension is the file extension tracked when none is configured
const DefaultExtension = ".pdf"

// Tracker is the completion store: it remembers which files were printed and
// which printer was last selected.
type Tracker struct {
	db        *db.Database
	fs        afero.Fs
	extension string
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures a Tracker
type Option func(*Tracker)

// WithFs replaces the filesystem used for walking folders
func WithFs(fs afero.Fs) Option {
	return func(t *Tracker) { t.fs = fs }
}

// WithExtension sets the tracked file extension
func WithExtension(ext string) Option {
	return func(t *Tracker) {
		if ext != "" {
			t.extension = ext
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithClock overrides the time source used for printed timestamps
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a tracker on top of an initialized database
func New(database *db.Database, opts ...Option) *Tracker {
	t := &Tracker{
		db:        database,
		fs:        afero.NewOsFs(),
		extension: DefaultExtension,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// PendingIn recursively walks folder and returns, in lexical order, the files that
// were never printed or whose size or modification time changed since they were.
// Returned files are recorded as unprinted before PendingIn returns.
func (t *Tracker) PendingIn(ctx context.Context, folder string) ([]string, error) {
	t.logger.Info("scanning folder", zap.String("folder", folder))

	var candidates []models.FileRecord
	seen := make(map[string]struct{})
	err := afero.Walk(t.fs, folder, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			t.logger.Warn("error accessing path", zap.String("path", path), zap.Error(err))
			return nil // Continue with other files
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if info.IsDir() {
			if path != folder && IgnoredEntry(info.Name(), true) {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := t.fs.Stat(path)
			if err != nil {
				t.logger.Warn("broken symlink", zap.String("path", path), zap.Error(err))
				return nil
			}
			info = target
		}
		if t.shouldSkip(path, info) {
			return nil
		}

		resolved := resolvePath(path)
		if _, dup := seen[resolved]; dup {
			return nil
		}
		seen[resolved] = struct{}{}
		candidates = append(candidates, models.FileRecord{
			Path:    resolved,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory: %w", err)
	}
	// symlinks resolve outside the walk order
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })

	pending, err := t.db.SyncPending(ctx, candidates)
	if err != nil {
		return nil, err
	}

	t.logger.Info("scan completed",
		zap.String("folder", folder),
		zap.Int("seen", len(candidates)),
		zap.Int("pending", len(pending)))
	return pending, nil
}

func (t *Tracker) shouldSkip(path string, info os.FileInfo) bool {
	if IgnoredEntry(filepath.Base(path), false) {
		return true
	}
	if !info.Mode().IsRegular() {
		t.logger.Debug("skipping special file", zap.String("path", path))
		return true
	}
	return !MatchesExtension(path, t.extension)
}

// IgnoredEntry reports whether a directory entry is never scanned: dot-folders
// and "._" resource forks. Other dot-named files are regular documents.
func IgnoredEntry(name string, isDir bool) bool {
	if isDir {
		return strings.HasPrefix(name, ".")
	}
	return strings.HasPrefix(name, "._")
}

// MatchesExtension reports whether path has the given extension, ignoring case
func MatchesExtension(path, ext string) bool {
	return strings.EqualFold(filepath.Ext(path), ext)
}

// resolvePath returns the absolute path with symlinks resolved when possible
func resolvePath(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path // fallback to original path
	}
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	return absPath
}

// MarkPrinted records a successful print for path. Unknown paths are ignored.
func (t *Tracker) MarkPrinted(ctx context.Context, path string) error {
	path = resolvePath(path)
	ok, err := t.db.MarkPrinted(ctx, path, t.now())
	if err != nil {
		return err
	}
	if !ok {
		t.logger.Warn("mark printed for unknown file", zap.String("path", path))
	}
	return nil
}

// SaveSelectedPrinter persists the printer chosen by the user
func (t *Tracker) SaveSelectedPrinter(ctx context.Context, name string) error {
	return t.db.SetConfig(ctx, db.ConfigKeyPrinter, name)
}

// LoadSelectedPrinter returns the last saved printer, if any
func (t *Tracker) LoadSelectedPrinter(ctx context.Context) (string, bool, error) {
	name, ok, err := t.db.GetConfig(ctx, db.ConfigKeyPrinter)
	if err != nil || !ok || name == "" {
		return "", false, err
	}
	return name, true, nil
}

// Records returns every known file record
func (t *Tracker) Records(ctx context.Context) ([]models.FileRecord, error) {
	return t.db.ListFiles(ctx)
}

// Stats returns statistics about the store
func (t *Tracker) Stats(ctx context.Context) (*models.Stats, error) {
	return t.db.GetStats(ctx)
}
