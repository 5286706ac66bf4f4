// Package queue provides the bounded-concurrency primitives used by the
// upload pipeline: a drain-and-refill work queue and a countdown batch
// tracker.
package queue

import "sync"

// DefaultMaxConcurrent is the handler parallelism used when none is given.
const DefaultMaxConcurrent = 5

// Handler processes one queued item.
type Handler func(item interface{}) error

// ItemError pairs a failed item with the error its handler returned.
type ItemError struct {
	Item interface{}
	Err  error
}

type task struct {
	item    interface{}
	handler Handler
	done    func()
}

// ConcurrentQueue runs queued handlers with at most maxConcurrent in flight.
// When both the pending and in-flight counts reach zero it notifies every
// registered emptied listener; pushing new work afterwards restarts
// processing and the listeners fire again on the next drain.
type ConcurrentQueue struct {
	maxConcurrent int

	mu       sync.Mutex
	pending  []task
	inFlight int

	emptiedListeners []func()
	errorListeners   []func(ItemError)
}

// NewConcurrentQueue creates a queue with the given parallelism limit.
// Non-positive limits fall back to DefaultMaxConcurrent.
func NewConcurrentQueue(maxConcurrent int) *ConcurrentQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &ConcurrentQueue{maxConcurrent: maxConcurrent}
}

// OnEmptied registers a listener invoked each time the queue drains.
func (q *ConcurrentQueue) OnEmptied(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.emptiedListeners = append(q.emptiedListeners, fn)
}

// OnError registers a listener invoked with each handler failure. Handler
// errors never propagate to the pusher; the queue keeps draining.
func (q *ConcurrentQueue) OnError(fn func(ItemError)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.errorListeners = append(q.errorListeners, fn)
}

// Push adds one item to the queue.
func (q *ConcurrentQueue) Push(item interface{}, handler Handler) {
	q.push(task{item: item, handler: handler})
}

// PushAll adds every item and blocks until all of their handlers have
// settled. Other items may be pushed concurrently; PushAll only waits for
// its own.
func (q *ConcurrentQueue) PushAll(items []interface{}, handler Handler) {
	if len(items) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(items))
	for _, item := range items {
		q.push(task{item: item, handler: handler, done: wg.Done})
	}
	wg.Wait()
}

func (q *ConcurrentQueue) push(t task) {
	q.mu.Lock()
	if q.inFlight < q.maxConcurrent {
		q.inFlight++
		q.mu.Unlock()
		go q.run(t)
		return
	}
	q.pending = append(q.pending, t)
	q.mu.Unlock()
}

func (q *ConcurrentQueue) run(t task) {
	for {
		err := safeInvoke(t.handler, t.item)
		if err != nil {
			q.notifyError(ItemError{Item: t.item, Err: err})
		}
		if t.done != nil {
			t.done()
		}

		q.mu.Lock()
		if len(q.pending) == 0 {
			q.inFlight--
			drained := q.inFlight == 0
			listeners := make([]func(), len(q.emptiedListeners))
			copy(listeners, q.emptiedListeners)
			q.mu.Unlock()

			if drained {
				for _, fn := range listeners {
					fn()
				}
			}
			return
		}
		t = q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
	}
}

func (q *ConcurrentQueue) notifyError(itemErr ItemError) {
	q.mu.Lock()
	listeners := make([]func(ItemError), len(q.errorListeners))
	copy(listeners, q.errorListeners)
	q.mu.Unlock()

	for _, fn := range listeners {
		fn(itemErr)
	}
}

func safeInvoke(handler Handler, item interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
			} else {
				err = &panicError{value: r}
			}
		}
	}()
	return handler(item)
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return "queue handler panicked"
}
