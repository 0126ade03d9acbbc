package ingest

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResamplerSameRate(t *testing.T) {
	var r resampler
	got := r.process(nil, []float32{1, 2, 3}, 48000, 48000, 1)
	assert.Equal(t, []float32{1, 2, 3}, got)
}

func TestResamplerUpsampleIsSeamless(t *testing.T) {
	var r resampler
	got := r.process(nil, []float32{0, 1, 2, 3}, 2, 4, 1)
	assert.InDeltaSlice(t, []float32{0, 0.5, 1, 1.5, 2, 2.5}, got, 1e-6)

	got = r.process(nil, []float32{4, 5}, 2, 4, 1)
	assert.InDeltaSlice(t, []float32{3, 3.5, 4, 4.5}, got, 1e-6)
}

func TestResamplerDownsampleStereo(t *testing.T) {
	var r resampler
	got := r.process(nil, []float32{0, 0, 1, -1, 2, -2, 3, -3, 4, -4}, 4, 2, 2)
	assert.InDeltaSlice(t, []float32{0, 0, 2, -2}, got, 1e-6)
}

// fakeDecoder emits payload bytes as samples scaled to [0,1].
type fakeDecoder struct {
	rate int
	fail bool
}

func (d *fakeDecoder) Decode(payload []byte, pcm []float32) (int, int, int, error) {
	if d.fail {
		return 0, 0, 0, errors.New("corrupt")
	}
	for i, b := range payload {
		pcm[i] = float32(b) / 255
	}
	return len(payload), 1, d.rate, nil
}

type decodedFrame struct {
	id      domain.ParticipantID
	samples []float32
}

type recordSink struct {
	mu     sync.Mutex
	frames []decodedFrame
}

func (s *recordSink) OnFrameDecoded(id domain.ParticipantID, pcm []float32, n, channels int) {
	s.mu.Lock()
	s.frames = append(s.frames, decodedFrame{id, slices.Clone(pcm[:n*channels])})
	s.mu.Unlock()
}

func (s *recordSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// packets returns a ReadFunc that yields payloads then io.EOF.
func packets(payloads ...[]byte) ReadFunc {
	var mu sync.Mutex
	return func() (*rtp.Packet, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(payloads) == 0 {
			return nil, io.EOF
		}
		p := &rtp.Packet{Payload: payloads[0]}
		payloads = payloads[1:]
		return p, nil
	}
}

func TestFeedDecodesPackets(t *testing.T) {
	sink := &recordSink{}
	m := NewManager(sink, 48000)

	feed := m.Start(context.Background(), 7, packets([]byte{255, 0}, nil, []byte{51}), &fakeDecoder{rate: 48000})

	require.Eventually(t, feed.Stopped, time.Second, time.Millisecond)
	require.Equal(t, 2, sink.len())
	assert.Equal(t, domain.ParticipantID(7), sink.frames[0].id)
	assert.InDeltaSlice(t, []float32{1, 0}, sink.frames[0].samples, 1e-6)
	assert.InDeltaSlice(t, []float32{0.2}, sink.frames[1].samples, 1e-6)
	assert.Equal(t, uint64(3), m.Stats().Packets)
}

func TestFeedCountsDecodeErrors(t *testing.T) {
	sink := &recordSink{}
	m := NewManager(sink, 48000)

	feed := m.Start(context.Background(), 1, packets([]byte{1}, []byte{2}), &fakeDecoder{fail: true})

	require.Eventually(t, feed.Stopped, time.Second, time.Millisecond)
	assert.Zero(t, sink.len())
	assert.Equal(t, uint64(2), m.Stats().DecodeErrors)
}

func TestManagerReplaceAndStop(t *testing.T) {
	block := make(chan struct{})
	blocking := func() (*rtp.Packet, error) {
		<-block
		return nil, io.EOF
	}
	defer close(block)

	m := NewManager(&recordSink{}, 48000)
	first := m.Start(context.Background(), 1, blocking, &fakeDecoder{rate: 48000})
	second := m.Start(context.Background(), 1, blocking, &fakeDecoder{rate: 48000})

	assert.True(t, first.Stopped())
	assert.False(t, second.Stopped())
	assert.Equal(t, 1, m.Stats().Feeds)

	m.Stop(1)
	assert.True(t, second.Stopped())
	assert.False(t, m.Has(1))

	m.Start(context.Background(), 2, blocking, &fakeDecoder{rate: 48000})
	m.StopAll()
	assert.Zero(t, m.Stats().Feeds)
}

func TestApplyProfileResamples(t *testing.T) {
	sink := &recordSink{}
	m := NewManager(sink, 48000)
	m.ApplyProfile(domain.PlatformProfile{SampleRateHz: 24000})

	feed := m.Start(context.Background(), 1, packets([]byte{0, 51, 102, 153}), &fakeDecoder{rate: 48000})

	require.Eventually(t, feed.Stopped, time.Second, time.Millisecond)
	require.Equal(t, 1, sink.len())
	assert.InDeltaSlice(t, []float32{0, 0.4}, sink.frames[0].samples, 1e-6)
}
