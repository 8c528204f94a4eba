package scanner

import (
	"context"
)

// CompletionStore is the part of the tracker the fingerprint strategy needs
type CompletionStore interface {
	PendingIn(ctx context.Context, folder string) ([]string, error)
	MarkPrinted(ctx context.Context, path string) error
}

// Fingerprint tracks every file individually by size and modification time
type Fingerprint struct {
	store CompletionStore
}

// NewFingerprint creates the fingerprint strategy
func NewFingerprint(store CompletionStore) *Fingerprint {
	return &Fingerprint{store: store}
}

func (f *Fingerprint) Plan(ctx context.Context, root string) ([]Group, error) {
	files, err := f.store.PendingIn(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return []Group{{Folder: root, Files: files}}, nil
}

func (f *Fingerprint) Printed(ctx context.Context, path string) error {
	return f.store.MarkPrinted(ctx, path)
}

func (f *Fingerprint) Finished(context.Context, Group) error {
	return nil
}
