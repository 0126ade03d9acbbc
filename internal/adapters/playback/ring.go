package playback

import (
	"sync"
	"sync/atomic"
)

// ring queues flushed cycles for the device reader. When full the oldest
// cycle is dropped.
type ring struct {
	mu       sync.Mutex
	blocks   [][]float32
	head     int // offset into blocks[0]
	capacity int
	free     [][]float32

	overruns atomic.Uint64
}

func newRing(capacity int) *ring {
	return &ring{capacity: capacity}
}

func (r *ring) push(block []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.blocks) >= r.capacity {
		r.recycle(r.blocks[0])
		r.blocks = r.blocks[1:]
		r.head = 0
		r.overruns.Add(1)
	}
	var b []float32
	if n := len(r.free); n > 0 {
		b, r.free = r.free[n-1][:0], r.free[:n-1]
	}
	r.blocks = append(r.blocks, append(b, block...))
}

// pop hands up to n samples to fn in order.
func (r *ring) pop(n int, fn func(float32)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n > 0 && len(r.blocks) > 0 {
		b := r.blocks[0]
		take := min(n, len(b)-r.head)
		for _, s := range b[r.head : r.head+take] {
			fn(s)
		}
		r.head += take
		n -= take
		if r.head == len(b) {
			r.recycle(b)
			r.blocks = r.blocks[1:]
			r.head = 0
		}
	}
}

func (r *ring) recycle(b []float32) {
	if len(r.free) < r.capacity {
		r.free = append(r.free, b)
	}
}

func (r *ring) buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := -r.head
	for _, b := range r.blocks {
		total += len(b)
	}
	return total
}
