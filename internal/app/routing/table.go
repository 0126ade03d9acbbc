package routing

import (
	"io"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
)

// tableSnapshot is an immutable lookup published to the audio thread.
type tableSnapshot struct {
	version uint64
	pairs   map[domain.ParticipantID]*SinkPair
}

type retiredPair struct {
	pair    *SinkPair
	version uint64
}

// Table maps participants to their sink pairs. Writers build a new
// snapshot under mu and publish it atomically; the audio thread reads
// snapshots without locking. Slots of removed pairs are recycled only
// once the audio thread has acquired a snapshot that no longer holds them.
type Table struct {
	mu      sync.Mutex
	snap    atomic.Pointer[tableSnapshot]
	slots   []*SinkPair
	free    []int
	budget  int
	retired []retiredPair

	// audio thread side of the handoff
	observed atomic.Uint64
	inCycle  atomic.Bool

	sinks          core.SinkFactory
	policy         core.BudgetPolicy
	spatialDefault bool
	bus            *BusController
	backend        *backendRef
	notify         *notifier
}

func newTable(budget int, sinks core.SinkFactory, policy core.BudgetPolicy, spatialDefault bool, bus *BusController, backend *backendRef, n *notifier) *Table {
	if budget < 1 {
		budget = 1
	}
	if sinks == nil {
		sinks = core.DiscardSinks
	}
	t := &Table{
		sinks:          sinks,
		policy:         policy,
		spatialDefault: spatialDefault,
		bus:            bus,
		backend:        backend,
		notify:         n,
	}
	t.snap.Store(&tableSnapshot{pairs: map[domain.ParticipantID]*SinkPair{}})
	t.growLocked(budget)
	return t
}

// growLocked extends the arena to budget slots; it never shrinks.
func (t *Table) growLocked(budget int) {
	if budget > t.budget {
		t.budget = budget
	}
	for len(t.slots) < t.budget {
		t.slots = append(t.slots, nil)
		t.free = append(t.free, len(t.slots)-1)
	}
	// lowest slot first
	slices.SortFunc(t.free, func(a, b int) int { return b - a })
}

// SetBudget resizes the voice budget; existing pairs keep their slots.
func (t *Table) SetBudget(budget int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.growLocked(budget)
	t.budget = max(budget, 1)
}

func (t *Table) Budget() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.budget
}

// Create returns the sink pair for id, building it if absent. A second
// call for the same id returns the existing handle unchanged.
func (t *Table) Create(id domain.ParticipantID, displayName string) *SinkPair {
	t.mu.Lock()
	cur := t.snap.Load()
	if sp, ok := cur.pairs[id]; ok {
		t.mu.Unlock()
		log.Debug().Str("module", "routing.table").Uint64("peer", uint64(id)).Msg("sink pair already exists")
		return sp
	}
	t.reclaimLocked()

	p := domain.Participant{ID: id, DisplayName: displayName}
	active, budget := len(cur.pairs), t.budget
	overBudget := active >= budget
	action := core.BudgetWarn
	if overBudget && t.policy != nil {
		action = t.policy.OnOverBudget(p, active, budget)
	}

	slot := t.allocSlotLocked()
	sp := newSinkPair(p, slot, t.spatialDefault, t.bus, t.backend)
	sp.overBudget = overBudget
	if overBudget && action == core.BudgetAllowMuted {
		sp.params.Load().muted = true
	}
	sp.monitor, sp.broadcast = t.sinks.NewSinks(p, slot)
	if sp.monitor == nil {
		sp.monitor = core.DiscardSink{}
	}
	if sp.broadcast == nil {
		sp.broadcast = core.DiscardSink{}
	}
	t.slots[slot] = sp

	next := &tableSnapshot{
		version: cur.version + 1,
		pairs:   maps.Clone(cur.pairs),
	}
	next.pairs[id] = sp
	t.snap.Store(next)
	t.mu.Unlock()

	logger := log.With().Str("module", "routing.table").Uint64("peer", uint64(id)).Str("name", displayName).Int("slot", slot).Logger()
	if overBudget && action == core.BudgetWarn {
		logger.Warn().Int("active", active).Int("budget", budget).Msg("voice budget exceeded, backend may cull")
	}
	logger.Info().Msg("sink pair created")
	sp.push()
	return sp
}

// allocSlotLocked pops a free slot or appends an overflow slot.
func (t *Table) allocSlotLocked() int {
	if n := len(t.free); n > 0 {
		slot := t.free[n-1]
		t.free = t.free[:n-1]
		return slot
	}
	t.slots = append(t.slots, nil)
	return len(t.slots) - 1
}

// Remove drops the pair for id; it is a no-op when absent. Frames already
// in flight may still reach the removed pair's sinks during the current
// cycle, never after it.
func (t *Table) Remove(id domain.ParticipantID) {
	t.mu.Lock()
	cur := t.snap.Load()
	sp, ok := cur.pairs[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	sp.removed.Store(true)
	next := &tableSnapshot{
		version: cur.version + 1,
		pairs:   maps.Clone(cur.pairs),
	}
	delete(next.pairs, id)
	t.snap.Store(next)
	t.retired = append(t.retired, retiredPair{pair: sp, version: next.version})
	t.reclaimLocked()
	t.mu.Unlock()

	t.backend.removeSink(id)
	if sp.Speaking() {
		t.notify.speakingChanged(id, false)
	}
	log.Info().Str("module", "routing.table").Uint64("peer", uint64(id)).Int("slot", sp.slot).Msg("sink pair removed")
}

// reclaimLocked releases retired pairs the audio thread can no longer see.
func (t *Table) reclaimLocked() {
	if len(t.retired) == 0 {
		return
	}
	idle := !t.inCycle.Load()
	observed := t.observed.Load()
	kept := t.retired[:0]
	for _, r := range t.retired {
		if !idle && observed < r.version {
			kept = append(kept, r)
			continue
		}
		t.release(r.pair)
	}
	clear(t.retired[len(kept):])
	t.retired = kept
}

func (t *Table) release(sp *SinkPair) {
	if t.slots[sp.slot] == sp {
		t.slots[sp.slot] = nil
		t.free = append(t.free, sp.slot)
	}
	for _, s := range []core.Sink{sp.monitor, sp.broadcast} {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				log.Warn().Err(err).Str("module", "routing.table").Uint64("peer", uint64(sp.ID())).Msg("close sink")
			}
		}
	}
}

// Reclaim releases whatever the audio thread has stopped referencing.
func (t *Table) Reclaim() {
	t.mu.Lock()
	t.reclaimLocked()
	t.mu.Unlock()
}

// Get never creates.
func (t *Table) Get(id domain.ParticipantID) (*SinkPair, bool) {
	sp, ok := t.snap.Load().pairs[id]
	return sp, ok
}

// All returns the ids of every active pair in ascending order.
func (t *Table) All() []domain.ParticipantID {
	ids := slices.Collect(maps.Keys(t.snap.Load().pairs))
	slices.Sort(ids)
	return ids
}

func (t *Table) Len() int { return len(t.snap.Load().pairs) }

func (t *Table) pairs() []*SinkPair {
	snap := t.snap.Load()
	out := make([]*SinkPair, 0, len(snap.pairs))
	for _, id := range t.All() {
		if sp, ok := snap.pairs[id]; ok {
			out = append(out, sp)
		}
	}
	return out
}

// Views returns API copies of every active pair ordered by id.
func (t *Table) Views() []View {
	ps := t.pairs()
	out := make([]View, 0, len(ps))
	for _, sp := range ps {
		out = append(out, sp.View())
	}
	return out
}

// enterCycle marks the audio thread busy and returns the snapshot it
// will use until exitCycle.
func (t *Table) enterCycle() *tableSnapshot {
	t.inCycle.Store(true)
	snap := t.snap.Load()
	if t.observed.Load() < snap.version {
		t.observed.Store(snap.version)
	}
	return snap
}

func (t *Table) exitCycle() {
	t.inCycle.Store(false)
}

// clearAll removes every pair; used at engine teardown.
func (t *Table) clearAll() {
	for _, id := range t.All() {
		t.Remove(id)
	}
	t.Reclaim()
}
