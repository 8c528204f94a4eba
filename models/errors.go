package models

// ErrorCode classifies print failures
type ErrorCode string

const (
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeHelperFailure       ErrorCode = "HELPER_FAILURE"
	CodeJobNeverQueued      ErrorCode = "JOB_NEVER_QUEUED"
	CodeJobNeverFinished    ErrorCode = "JOB_NEVER_FINISHED"
	CodeNoPrinterConfigured ErrorCode = "NO_PRINTER_CONFIGURED"
	CodeNotADirectory       ErrorCode = "NOT_A_DIRECTORY"
)

// Sentinels for errors.Is; they match any PrintError with the same code.
var (
	ErrNotFound            = &PrintError{Code: CodeNotFound, Message: "file not found or not printable"}
	ErrHelperFailure       = &PrintError{Code: CodeHelperFailure, Message: "print helper failed"}
	ErrJobNeverQueued      = &PrintError{Code: CodeJobNeverQueued, Message: "job never reached the spooler"}
	ErrJobNeverFinished    = &PrintError{Code: CodeJobNeverFinished, Message: "printer did not finish within the time limit"}
	ErrNoPrinterConfigured = &PrintError{Code: CodeNoPrinterConfigured, Message: "no printer configured"}
	ErrNotADirectory       = &PrintError{Code: CodeNotADirectory, Message: "not a directory"}
)

// PrintError represents a failure while setting up or executing a print job
type PrintError struct {
	Code    ErrorCode
	Path    string
	Message string
	// Detail holds diagnostic output captured from external processes
	Detail string
	Cause  error
}

func (e *PrintError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *PrintError) Unwrap() error {
	return e.Cause
}

// Is matches on the error code so wrapped instances compare equal to the sentinels
func (e *PrintError) Is(target error) bool {
	t, ok := target.(*PrintError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsSpoolerTimeout reports whether the error is one of the two spooler timeout kinds
func (e *PrintError) IsSpoolerTimeout() bool {
	return e.Code == CodeJobNeverQueued || e.Code == CodeJobNeverFinished
}

// NewPrintError creates a new PrintError
func NewPrintError(code ErrorCode, path, message string, cause error) *PrintError {
	return &PrintError{
		Code:    code,
		Path:    path,
		Message: message,
		Cause:   cause,
	}
}
