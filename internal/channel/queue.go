package channel

import "sync"

// serialQueue runs pushed callbacks one at a time in push order without
// ever blocking the pusher.
type serialQueue struct {
	mu      sync.Mutex
	items   []func()
	running bool
}

func (q *serialQueue) push(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.drain()
}

func (q *serialQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		fn := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		fn()
	}
}
