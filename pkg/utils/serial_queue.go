package utils

import "sync"

// SerialQueue runs submitted functions one at a time, in submission order, on
// its own goroutine. Submit never blocks. After Close no further function runs.
type SerialQueue struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewSerialQueue() *SerialQueue {
	q := &SerialQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Submit enqueues fn. It reports false when the queue is closed.
func (q *SerialQueue) Submit(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.queue = append(q.queue, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Close drops pending work. A function already running is not interrupted.
func (q *SerialQueue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.queue = nil
		q.mu.Unlock()
		close(q.done)
	})
}

func (q *SerialQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *SerialQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case <-q.signal:
		}

		for {
			q.mu.Lock()
			if q.closed || len(q.queue) == 0 {
				q.mu.Unlock()
				break
			}
			fn := q.queue[0]
			q.queue[0] = nil
			q.queue = q.queue[1:]
			q.mu.Unlock()

			fn()
		}
	}
}
