package audio

import (
	"sync"

	"voicecoach/internal/ports"
)

// tapSet fans captured blocks out to registered taps.
type tapSet struct {
	mu   sync.Mutex
	next int
	fns  map[int]ports.BlockFunc
}

func newTapSet() *tapSet {
	return &tapSet{fns: make(map[int]ports.BlockFunc)}
}

func (t *tapSet) add(fn ports.BlockFunc) func() {
	t.mu.Lock()
	id := t.next
	t.next++
	t.fns[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.fns, id)
		t.mu.Unlock()
	}
}

func (t *tapSet) clear() {
	t.mu.Lock()
	t.fns = make(map[int]ports.BlockFunc)
	t.mu.Unlock()
}

// dispatch holds the lock while calling taps so that an untap that
// returns guarantees no further callbacks for that tap.
func (t *tapSet) dispatch(block []float32, sampleRate int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, fn := range t.fns {
		fn(block, sampleRate)
	}
}
