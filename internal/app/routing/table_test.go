package routing

import (
	"testing"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	first := e.Table.Create(3, "bob")
	first.SetVolume(0.4)
	second := e.Table.Create(3, "someone else")

	assert.Same(t, first, second)
	assert.Equal(t, "bob", second.Participant().DisplayName)
	assert.InDelta(t, 0.4, second.MonitorVolume(), 1e-6)
	assert.Equal(t, 1, e.Table.Len())
}

func TestCreateDefaults(t *testing.T) {
	e, _ := newTestEngine(t, func(o *Options) { o.SpatialDefault = true })
	sp := e.Table.Create(1, "a")

	assert.Equal(t, float32(1), sp.MonitorVolume())
	assert.Equal(t, float32(1), sp.BroadcastVolume())
	assert.False(t, sp.Muted())
	assert.True(t, sp.SpatialEnabled())

	on, cutoff := sp.LowPassFilter()
	assert.False(t, on)
	assert.Equal(t, DefaultLowPassCutoffHz, cutoff)
	on, delay, decay := sp.EchoFilter()
	assert.False(t, on)
	assert.Equal(t, DefaultEchoDelayMs, delay)
	assert.Equal(t, DefaultEchoDecay, decay)
}

func TestGetNeverCreates(t *testing.T) {
	e, _ := newTestEngine(t, nil)

	_, ok := e.Table.Get(9)
	assert.False(t, ok)
	assert.Zero(t, e.Table.Len())
}

func TestAllSorted(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	for _, id := range []domain.ParticipantID{5, 1, 3} {
		e.Table.Create(id, id.String())
	}
	assert.Equal(t, []domain.ParticipantID{1, 3, 5}, e.Table.All())

	views := e.Table.Views()
	require.Len(t, views, 3)
	assert.Equal(t, "1", views[0].DisplayName)
}

func TestRemove(t *testing.T) {
	b := newMockBackend()
	e, f := newTestEngine(t, func(o *Options) { o.Backend = b })
	sp := e.Table.Create(1, "a")

	e.Table.Remove(1)
	e.Table.Remove(1)
	e.Table.Remove(42)

	_, ok := e.Table.Get(1)
	assert.False(t, ok)
	assert.True(t, sp.Removed())
	assert.True(t, f.get(1).monitor.isClosed())
	assert.Equal(t, []domain.ParticipantID{1}, b.removed)

	// setters on a stale handle change nothing
	sp.SetVolume(0.1)
	assert.Equal(t, float32(1), sp.MonitorVolume())
	_, ok = b.sink(1)
	assert.False(t, ok)
}

func TestRemoveDuringCycleDefersSlotReuse(t *testing.T) {
	e, f := newTestEngine(t, func(o *Options) { o.Profile.MaxRealVoices = 4 })

	a := e.Table.Create(1, "a")
	e.Table.Create(2, "b")
	require.Equal(t, 0, a.Slot())

	e.Router.BeginCycle()
	e.Table.Remove(1)
	// the pinned snapshot still routes to the removed pair
	e.Router.Dispatch(frame(1, 0.5))
	c := e.Table.Create(3, "c")
	e.Router.EndCycle()

	assert.Equal(t, 1, f.get(1).monitor.count())
	assert.NotEqual(t, a.Slot(), c.Slot())
	assert.False(t, f.get(1).monitor.isClosed())

	e.Table.Reclaim()
	assert.True(t, f.get(1).monitor.isClosed())

	d := e.Table.Create(4, "d")
	assert.Equal(t, a.Slot(), d.Slot())

	e.Router.Dispatch(frame(1, 0.5))
	assert.Equal(t, 1, f.get(1).monitor.count())
}

func TestSlotReusedWhenIdle(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	a := e.Table.Create(1, "a")
	e.Table.Remove(1)
	b := e.Table.Create(2, "b")
	assert.Equal(t, a.Slot(), b.Slot())
}

func TestOverBudget(t *testing.T) {
	tests := []struct {
		name   string
		policy core.BudgetPolicy
		muted  bool
	}{
		{name: "default warns", policy: nil},
		{name: "allow", policy: fixedPolicy(core.BudgetAllow)},
		{name: "allow muted", policy: fixedPolicy(core.BudgetAllowMuted), muted: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(t, func(o *Options) {
				o.Profile.MaxRealVoices = 1
				o.Policy = tt.policy
			})
			first := e.Table.Create(1, "a")
			extra := e.Table.Create(2, "b")

			assert.False(t, first.OverBudget())
			assert.True(t, extra.OverBudget())
			assert.Equal(t, tt.muted, extra.Muted())
			assert.Equal(t, 2, e.Table.Len())
			assert.Equal(t, 1, extra.Slot())
		})
	}
}
