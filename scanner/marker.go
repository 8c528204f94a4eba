package scanner

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"massprint/tracker"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultMarkerName is the sentinel file written into fully printed folders
const DefaultMarkerName = ".imprimido"

// Marker treats each immediate subfolder of the root as one group and skips
// folders that already hold the sentinel file.
type Marker struct {
	fs         afero.Fs
	markerName string
	extension  string
	logger     *zap.Logger
	now        func() time.Time
}

// NewMarker creates the folder-marker strategy
func NewMarker(fs afero.Fs, markerName, extension string, logger *zap.Logger) *Marker {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if markerName == "" {
		markerName = DefaultMarkerName
	}
	if extension == "" {
		extension = tracker.DefaultExtension
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Marker{
		fs:         fs,
		markerName: markerName,
		extension:  extension,
		logger:     logger,
		now:        time.Now,
	}
}

func (m *Marker) Plan(ctx context.Context, root string) ([]Group, error) {
	entries, err := afero.ReadDir(m.fs, root)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var groups []Group
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || tracker.IgnoredEntry(entry.Name(), true) {
			continue
		}
		folder := filepath.Join(root, entry.Name())

		done, err := afero.Exists(m.fs, filepath.Join(folder, m.markerName))
		if err != nil {
			return nil, fmt.Errorf("error checking marker in %s: %w", folder, err)
		}
		if done {
			m.logger.Info("skipping folder already printed", zap.String("folder", folder))
			continue
		}

		files, err := m.listFiles(folder)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			continue
		}
		groups = append(groups, Group{Folder: folder, Files: files})
	}
	return groups, nil
}

// listFiles returns the matching files directly inside folder, sorted by name
func (m *Marker) listFiles(folder string) ([]string, error) {
	entries, err := afero.ReadDir(m.fs, folder)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", folder, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || tracker.IgnoredEntry(entry.Name(), false) ||
			!tracker.MatchesExtension(entry.Name(), m.extension) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	files := make([]string, len(names))
	for i, name := range names {
		files[i] = filepath.Join(folder, name)
	}
	return files, nil
}

func (m *Marker) Printed(context.Context, string) error {
	return nil
}

func (m *Marker) Finished(_ context.Context, group Group) error {
	path := filepath.Join(group.Folder, m.markerName)
	content := fmt.Sprintf("printed %s\n", m.now().Format(time.RFC3339))
	if err := afero.WriteFile(m.fs, path, []byte(content), 0644); err != nil {
		return fmt.Errorf("error writing marker %s: %w", path, err)
	}
	m.logger.Info("folder marked as printed", zap.String("folder", group.Folder))
	return nil
}
