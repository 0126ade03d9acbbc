package routing

import (
	"math"
	"testing"

	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSetVolumeClamps(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	sp := e.Table.Create(1, "a")

	tests := []struct {
		in, want float32
	}{
		{1.5, 1},
		{-0.2, 0},
		{0.3, 0.3},
		{float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		sp.SetVolume(tt.in)
		assert.Equal(t, tt.want, sp.MonitorVolume())
		assert.Equal(t, tt.want, sp.BroadcastVolume())
	}
}

func TestMuteRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	sp := e.Table.Create(1, "a")
	sp.SetVolume(0.7)

	sp.SetMuted(true)
	assert.Zero(t, sp.EffectiveMonitorGain())
	assert.Zero(t, sp.EffectiveBroadcastGain())

	sp.SetMuted(false)
	assert.InDelta(t, 0.7, sp.MonitorVolume(), 1e-6)
	assert.InDelta(t, 0.7, sp.EffectiveMonitorGain(), 1e-6)
}

func TestIndependentSinkVolumes(t *testing.T) {
	e, f := newTestEngine(t, nil)
	sp := e.Table.Create(1, "a")
	sp.SetMonitorVolume(0.25)
	sp.SetBroadcastVolume(0.75)

	e.Router.Dispatch(frame(1, 1))
	assert.InDeltaSlice(t, []float32{0.25}, f.get(1).monitor.last(), 1e-6)
	assert.InDeltaSlice(t, []float32{0.75}, f.get(1).broadcast.last(), 1e-6)
}

func TestSpatialToggle(t *testing.T) {
	b := newMockBackend()
	e, _ := newTestEngine(t, func(o *Options) { o.Backend = b })
	sp := e.Table.Create(1, "a")

	sp.SetPosition(domain.Vec3{X: 1})
	assert.Equal(t, domain.Vec3{}, sp.Position())

	sp.EnableSpatialAudio()
	sp.SetPosition(domain.Vec3{X: 1, Y: 2, Z: 3})
	assert.Equal(t, domain.Vec3{X: 1, Y: 2, Z: 3}, sp.Position())
	assert.Equal(t, float32(1), sp.SpatialBlend())
	p, _ := b.sink(1)
	assert.Equal(t, float32(1), p.SpatialBlend)
	assert.Equal(t, domain.Vec3{X: 1, Y: 2, Z: 3}, p.Position)

	sp.DisableSpatialAudio()
	assert.Zero(t, sp.SpatialBlend())
	p, _ = b.sink(1)
	assert.Zero(t, p.SpatialBlend)
}

func TestFilterParameters(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	sp := e.Table.Create(1, "a")

	sp.SetLowPassFilter(true, 1200)
	on, cutoff := sp.LowPassFilter()
	assert.True(t, on)
	assert.Equal(t, float32(1200), cutoff)

	sp.SetLowPassFilter(true, 0)
	_, cutoff = sp.LowPassFilter()
	assert.Equal(t, DefaultLowPassCutoffHz, cutoff)

	sp.SetLowPassFilter(false, 90000)
	on, cutoff = sp.LowPassFilter()
	assert.False(t, on)
	assert.Equal(t, float32(22000), cutoff)

	sp.SetEchoFilter(true, 250, 2)
	on, delay, decay := sp.EchoFilter()
	assert.True(t, on)
	assert.Equal(t, float32(250), delay)
	assert.Equal(t, float32(1), decay)

	sp.SetEchoFilter(true, -1, 0.3)
	_, delay, decay = sp.EchoFilter()
	assert.Equal(t, DefaultEchoDelayMs, delay)
	assert.Equal(t, float32(0.3), decay)
}

func TestView(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	sp := e.Table.Create(4, "dora")
	sp.SetVolume(0.5)
	e.Bus.SetMonitorBusVolume(0.5)

	v := sp.View()
	assert.Equal(t, domain.ParticipantID(4), v.ID)
	assert.Equal(t, "dora", v.DisplayName)
	assert.InDelta(t, 0.25, v.EffectiveMonitorGain, 1e-6)
	assert.InDelta(t, 0.5, v.EffectiveBroadcastGain, 1e-6)
}
