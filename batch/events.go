package batch

import (
	"fmt"
	"time"
)

// EventKind identifies what an Event reports
type EventKind int

const (
	// EventTotal is emitted once per run before the first file
	EventTotal EventKind = iota
	// EventProgress is emitted after every attempted file, success or failure
	EventProgress
	// EventCompleted ends a run that attempted every planned file
	EventCompleted
	// EventCancelled ends a run stopped by a cancel request
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventTotal:
		return "total"
	case EventProgress:
		return "progress"
	case EventCompleted:
		return "completed"
	case EventCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one message of the ordered stream a run emits
type Event struct {
	RunID string
	Kind  EventKind
	// Total is set on EventTotal
	Total int
	// Index, File and Err are set on EventProgress; Index is 1-based
	Index int
	File  string
	Err   error
	// Result is set on the terminal events
	Result *Result
}

// Failure is a file whose print attempt returned an error
type Failure struct {
	Path string
	Err  error
}

// Result summarizes a finished or cancelled run
type Result struct {
	RunID     string
	Root      string
	Printer   string
	Total     int
	Processed int
	Errored   int
	Elapsed   time.Duration
	Failures  []Failure
	Cancelled bool
}

// Succeeded reports whether the run completed with no failures
func (r *Result) Succeeded() bool {
	return !r.Cancelled && len(r.Failures) == 0
}

// FailedPaths lists the paths of all failures in attempt order
func (r *Result) FailedPaths() []string {
	paths := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		paths[i] = f.Path
	}
	return paths
}
