package record

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dkeye/VoiceRouter/internal/app/profile"
	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"
)

var _ core.Observer = (*Recorder)(nil)

func readAll(t *testing.T, path string) (*wav.WavFormat, []wav.Sample) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rd := wav.NewReader(bytes.NewReader(data))
	format, err := rd.Format()
	require.NoError(t, err)

	var all []wav.Sample
	for {
		s, err := rd.ReadSamples()
		all = append(all, s...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	return format, all
}

func TestRecorder_WritesStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bus.wav")
	r, err := New(path, Options{SampleRate: 48000, Channels: 2})
	require.NoError(t, err)

	r.OnBufferReady([]float32{0.5, -0.5, 0, 1}, 2)
	r.OnBufferReady([]float32{2, -2}, 2)
	require.NoError(t, r.Close())
	assert.Equal(t, uint32(3), r.Stats().Samples)

	format, samples := readAll(t, path)
	assert.Equal(t, uint16(2), format.NumChannels)
	assert.Equal(t, uint32(48000), format.SampleRate)
	assert.Equal(t, uint16(16), format.BitsPerSample)
	require.Len(t, samples, 3)
	assert.Equal(t, [2]int{16383, -16383}, samples[0].Values)
	assert.Equal(t, [2]int{0, 32767}, samples[1].Values)
	assert.Equal(t, [2]int{32767, -32767}, samples[2].Values)
}

func TestRecorder_ConvertsLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	r, err := New(path, Options{SampleRate: 44100, Channels: 1})
	require.NoError(t, err)

	r.OnBufferReady([]float32{0.5, 0.3}, 2)
	require.NoError(t, r.Close())

	_, samples := readAll(t, path)
	require.Len(t, samples, 1)
	assert.Equal(t, 13106, samples[0].Values[0])
}

func TestRecorder_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.wav")
	r, err := New(path, Options{Channels: 1})
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	// buffers after close are ignored
	r.OnBufferReady([]float32{1}, 1)
	assert.Equal(t, uint32(0), r.Stats().Samples)
}

func TestRecorder_RejectsChannels(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "x.wav"), Options{Channels: 3})
	assert.ErrorIs(t, err, ErrChannels)
}

func TestRecorder_LocksSampleRate(t *testing.T) {
	r, err := New(filepath.Join(t.TempDir(), "rate.wav"), Options{SampleRate: 48000, Channels: 1})
	require.NoError(t, err)
	defer r.Close()

	assert.NoError(t, r.CheckProfile(profile.Select(domain.DeviceXRTier3)))
	assert.ErrorIs(t, r.CheckProfile(profile.Select(domain.DeviceMobile)), profile.ErrRateLocked)
}

func TestConvert(t *testing.T) {
	assert.Equal(t, []float32{1, 1, 2, 2}, convert(nil, []float32{1, 2}, 1, 2))
	assert.Equal(t, []float32{0.5}, convert(nil, []float32{0, 1}, 2, 1))
}
