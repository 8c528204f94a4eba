package scanner

import (
	"context"
	"fmt"
	"strings"
)

// Mode selects a scanning strategy
type Mode string

const (
	ModeFingerprint Mode = "fingerprint"
	ModeMarker      Mode = "marker"
)

// ParseMode validates a configured mode name
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeFingerprint, ModeMarker:
		return m, nil
	default:
		return "", fmt.Errorf("unknown scan mode %q (want %s or %s)", s, ModeFingerprint, ModeMarker)
	}
}

// Group is a unit of work whose files print in order. Folder-marker mode
// writes its marker only after a whole group prints without error.
type Group struct {
	Folder string
	Files  []string
}

// Strategy decides what needs printing and records outcomes
type Strategy interface {
	// Plan returns the pending work under root in print order
	Plan(ctx context.Context, root string) ([]Group, error)
	// Printed records one successfully printed file
	Printed(ctx context.Context, path string) error
	// Finished records that every file of group printed without error
	Finished(ctx context.Context, group Group) error
}
