package queue

import (
	"container/list"
	"sync"
)

// Queue is an unbounded FIFO. Push never blocks and Drain returns immediately,
// so a producer goroutine can feed a consumer that polls on a timer.
type Queue[T any] struct {
	mtx       sync.Mutex
	innerChan chan struct{}
	items     *list.List
	closed    bool
}

// New creates an empty queue
func New[T any]() *Queue[T] {
	return &Queue[T]{
		innerChan: make(chan struct{}, 1),
		items:     list.New(),
	}
}

// Push appends item. Items pushed after Close are dropped.
func (q *Queue[T]) Push(item T) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	if q.closed {
		return
	}
	q.items.PushBack(item)

	select {
	case q.innerChan <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued item in push order, or nil when empty
func (q *Queue[T]) Drain() []T {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.items.Len() == 0 {
		return nil
	}
	out := make([]T, 0, q.items.Len())
	for elem := q.items.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(T))
	}
	q.items.Init()
	return out
}

// Len returns the number of queued items
func (q *Queue[T]) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return q.items.Len()
}

// Ready is signalled after pushes; it is closed by Close. One signal may cover
// several pushes, so consumers should Drain after every receive.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.innerChan
}

// Close stops accepting items. Items already queued can still be drained.
func (q *Queue[T]) Close() {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.innerChan)
}
