package batch

import (
	"sync/atomic"

	"massprint/queue"
)

// RunContext carries the pause and cancel signals of one run and the sink its
// events are pushed to. Signals are safe to set from any goroutine.
type RunContext struct {
	paused    atomic.Bool
	cancelled atomic.Bool
	events    *queue.Queue[Event]
}

// NewRunContext creates a run context; a nil queue gets a fresh one
func NewRunContext(events *queue.Queue[Event]) *RunContext {
	if events == nil {
		events = queue.New[Event]()
	}
	return &RunContext{events: events}
}

// Events returns the queue the run emits to. The queue is closed when the run
// returns, so consumers may range over Ready.
func (rc *RunContext) Events() *queue.Queue[Event] {
	return rc.events
}

func (rc *RunContext) Pause() {
	rc.paused.Store(true)
}

func (rc *RunContext) Resume() {
	rc.paused.Store(false)
}

// TogglePause flips the pause flag and returns the new state
func (rc *RunContext) TogglePause() bool {
	for {
		old := rc.paused.Load()
		if rc.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// Cancel requests the run stop at the next file boundary
func (rc *RunContext) Cancel() {
	rc.cancelled.Store(true)
}

func (rc *RunContext) IsPaused() bool {
	return rc.paused.Load()
}

func (rc *RunContext) IsCancelled() bool {
	return rc.cancelled.Load()
}

func (rc *RunContext) emit(e Event) {
	rc.events.Push(e)
}

func (rc *RunContext) close() {
	rc.events.Close()
}
