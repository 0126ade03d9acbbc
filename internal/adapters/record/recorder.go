// Package record writes the broadcast mix to a 16-bit PCM WAV file.
package record

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceRouter/internal/app/profile"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/youpy/go-wav"
)

const (
	bitsPerSample = 16
	defaultQueue  = 64
)

var ErrChannels = errors.New("record: wav supports one or two channels")

type Options struct {
	SampleRate int
	Channels   int
	// Queue is how many cycles may wait for the writer before drops.
	Queue int
}

type Stats struct {
	Samples uint32 `json:"samples"`
	Dropped uint64 `json:"dropped"`
}

// Recorder is a core.Observer. OnBufferReady copies the buffer into a
// pooled slot and never blocks; a writer goroutine encodes to disk.
type Recorder struct {
	path     string
	file     *os.File
	w        *wav.Writer
	rate     int
	channels int

	mu     sync.RWMutex
	closed bool
	queue  chan []float32
	free   chan []float32
	done   chan struct{}
	err    error

	samples atomic.Uint32
	dropped atomic.Uint64
}

func New(path string, opts Options) (*Recorder, error) {
	if opts.Channels < 1 || opts.Channels > 2 {
		return nil, ErrChannels
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.Queue <= 0 {
		opts.Queue = defaultQueue
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording: %w", err)
	}
	r := &Recorder{
		path:     path,
		file:     f,
		rate:     opts.SampleRate,
		channels: opts.Channels,
		queue:    make(chan []float32, opts.Queue),
		free:     make(chan []float32, opts.Queue),
		done:     make(chan struct{}),
	}
	// the data size is unknown until Close rewrites the header
	r.w = wav.NewWriter(f, 0, uint16(opts.Channels), uint32(opts.SampleRate), bitsPerSample)
	for range opts.Queue {
		r.free <- nil
	}
	go r.run()
	log.Info().Str("module", "record").Str("path", path).Int("rate", opts.SampleRate).Int("channels", opts.Channels).Msg("recording started")
	return r, nil
}

func (r *Recorder) OnVolumeChanged(float32, float32) {}

func (r *Recorder) OnSpeakingChanged(domain.ParticipantID, bool) {}

// OnBufferReady queues a copy of buf. Buffers in another channel layout
// are converted; a full queue drops the buffer.
func (r *Recorder) OnBufferReady(buf []float32, channels int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	var slot []float32
	select {
	case slot = <-r.free:
	default:
		r.dropped.Add(1)
		return
	}
	slot = convert(slot[:0], buf, max(channels, 1), r.channels)
	r.queue <- slot
}

func convert(dst, src []float32, from, to int) []float32 {
	if from == to {
		return append(dst, src...)
	}
	frames := len(src) / from
	for i := range frames {
		in := src[i*from : i*from+from]
		if to == 1 {
			var sum float32
			for _, s := range in {
				sum += s
			}
			dst = append(dst, sum/float32(from))
			continue
		}
		for c := range to {
			dst = append(dst, in[min(c, from-1)])
		}
	}
	return dst
}

func (r *Recorder) run() {
	defer close(r.done)
	var samples []wav.Sample
	for buf := range r.queue {
		frames := len(buf) / r.channels
		samples = samples[:0]
		for i := range frames {
			var s wav.Sample
			for c := range r.channels {
				s.Values[c] = toPCM16(buf[i*r.channels+c])
			}
			samples = append(samples, s)
		}
		if r.err == nil {
			if err := r.w.WriteSamples(samples); err != nil {
				r.err = fmt.Errorf("write samples: %w", err)
				log.Error().Err(err).Str("module", "record").Msg("recording write failed")
			} else {
				r.samples.Add(uint32(frames))
			}
		}
		r.free <- buf
	}
}

func toPCM16(s float32) int {
	s = min(max(s, -1), 1)
	return int(s * 32767)
}

// Close flushes queued buffers, rewrites the header with the final length
// and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done

	err := r.err
	if _, serr := r.file.Seek(0, io.SeekStart); serr != nil {
		err = errors.Join(err, fmt.Errorf("seek header: %w", serr))
	} else {
		wav.NewWriter(r.file, r.samples.Load(), uint16(r.channels), uint32(r.rate), bitsPerSample)
	}
	if cerr := r.file.Close(); cerr != nil {
		err = errors.Join(err, fmt.Errorf("close recording: %w", cerr))
	}
	log.Info().Str("module", "record").Str("path", r.path).Uint32("samples", r.samples.Load()).Uint64("dropped", r.dropped.Load()).Msg("recording closed")
	return err
}

// CheckProfile refuses profiles at another rate; the WAV header is fixed.
func (r *Recorder) CheckProfile(p domain.PlatformProfile) error {
	if p.SampleRateHz != r.rate {
		return fmt.Errorf("%w: recording at %d Hz", profile.ErrRateLocked, r.rate)
	}
	return nil
}

func (r *Recorder) Stats() Stats {
	return Stats{Samples: r.samples.Load(), Dropped: r.dropped.Load()}
}
