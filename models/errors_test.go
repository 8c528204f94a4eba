package models

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPrintError_Is(t *testing.T) {
	err := fmt.Errorf("printing: %w", NewPrintError(CodeJobNeverQueued, "/docs/a.pdf", "never queued", nil))

	assert.ErrorIs(t, err, ErrJobNeverQueued)
	assert.NotErrorIs(t, err, ErrJobNeverFinished)
	assert.NotErrorIs(t, err, os.ErrNotExist)

	var pe *PrintError
	assert.True(t, errors.As(err, &pe))
	assert.True(t, pe.IsSpoolerTimeout())
}

func TestPrintError_Unwrap(t *testing.T) {
	err := NewPrintError(CodeNotFound, "/docs/a.pdf", "file not found", os.ErrNotExist)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, err.IsSpoolerTimeout())
}

func TestPrintError_Error(t *testing.T) {
	err := NewPrintError(CodeHelperFailure, "/docs/a.pdf", "print helper exited with 1", nil)
	err.Detail = "cannot open printer"
	assert.Equal(t, "/docs/a.pdf: print helper exited with 1: cannot open printer", err.Error())

	assert.Equal(t, "no printer configured", ErrNoPrinterConfigured.Error())
}

func TestFingerprint_Equal(t *testing.T) {
	now := time.Now()
	a := Fingerprint{Size: 10, ModTime: now}

	assert.True(t, a.Equal(Fingerprint{Size: 10, ModTime: time.Unix(0, now.UnixNano())}))
	assert.False(t, a.Equal(Fingerprint{Size: 11, ModTime: now}))
	assert.False(t, a.Equal(Fingerprint{Size: 10, ModTime: now.Add(time.Nanosecond)}))
}
