package routing

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

type observerEntry struct {
	id uint64
	o  core.Observer
}

// notifier fans notifications out to registered observers. The observer
// list is copy-on-write so the audio thread never takes a lock.
type notifier struct {
	mu     sync.Mutex
	nextID uint64
	list   atomic.Pointer[[]observerEntry]
	faults atomic.Uint64
}

func newNotifier() *notifier {
	n := &notifier{}
	n.list.Store(&[]observerEntry{})
	return n
}

// subscribe returns a func that removes the observer; calling it twice is harmless.
func (n *notifier) subscribe(o core.Observer) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	next := append(slices.Clone(*n.list.Load()), observerEntry{id: id, o: o})
	n.list.Store(&next)

	var once sync.Once
	return func() {
		once.Do(func() { n.unsubscribe(id) })
	}
}

func (n *notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	next := slices.DeleteFunc(slices.Clone(*n.list.Load()), func(e observerEntry) bool {
		return e.id == id
	})
	n.list.Store(&next)
}

func (n *notifier) volumeChanged(monitor, broadcast float32) {
	for _, e := range *n.list.Load() {
		n.call(func() { e.o.OnVolumeChanged(monitor, broadcast) })
	}
}

func (n *notifier) bufferReady(buf []float32, channels int) {
	for _, e := range *n.list.Load() {
		n.call(func() { e.o.OnBufferReady(buf, channels) })
	}
}

func (n *notifier) speakingChanged(id domain.ParticipantID, speaking bool) {
	for _, e := range *n.list.Load() {
		n.call(func() { e.o.OnSpeakingChanged(id, speaking) })
	}
}

// call keeps a faulty observer from taking down the audio thread.
func (n *notifier) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			if c := n.faults.Add(1); shouldLog(c) {
				log.Error().Str("module", "routing.notify").Interface("panic", r).Uint64("faults", c).Msg("observer panicked")
			}
		}
	}()
	fn()
}

// shouldLog throttles logging on hot paths: first hit, then every 500th.
func shouldLog(n uint64) bool {
	return n == 1 || n%500 == 0
}
