package ingest

import (
	"context"
	"sync/atomic"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/dkeye/VoiceRouter/internal/domain"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// maxDecodedFrames covers a 120 ms Opus packet at 48 kHz in stereo.
const maxDecodedFrames = 5760

// ReadFunc returns the next RTP packet of a remote track.
type ReadFunc func() (*rtp.Packet, error)

// FrameSink receives decoded PCM; it must not retain pcm past the call.
type FrameSink interface {
	OnFrameDecoded(id domain.ParticipantID, pcm []float32, sampleCount, channels int)
}

// Feed decodes one participant's incoming audio track.
type Feed struct {
	ID   domain.ParticipantID
	read ReadFunc
	dec  core.Decoder
	out  FrameSink
	rate *atomic.Int64

	cancel  context.CancelFunc
	stopped atomic.Bool

	rs      resampler
	pcm     []float32
	scratch []float32

	packets      atomic.Uint64
	decodeErrors atomic.Uint64
}

func newFeed(id domain.ParticipantID, read ReadFunc, dec core.Decoder, out FrameSink, rate *atomic.Int64, cancel context.CancelFunc) *Feed {
	return &Feed{
		ID:     id,
		read:   read,
		dec:    dec,
		out:    out,
		rate:   rate,
		cancel: cancel,
		pcm:    make([]float32, maxDecodedFrames*2),
	}
}

// loop reads packets until the track ends or ctx is canceled.
func (f *Feed) loop(ctx context.Context, logger *zerolog.Logger) {
	defer f.stopped.Store(true)
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("feed ctx done")
			return
		default:
		}
		pkt, err := f.read()
		if err != nil {
			if ctx.Err() == nil {
				logger.Info().Err(err).Msg("feed read RTP stopped")
			}
			return
		}
		if f.stopped.Load() {
			return
		}
		f.handle(pkt, logger)
	}
}

func (f *Feed) handle(pkt *rtp.Packet, logger *zerolog.Logger) {
	f.packets.Add(1)
	if len(pkt.Payload) == 0 {
		return
	}
	frames, channels, rate, err := f.dec.Decode(pkt.Payload, f.pcm)
	if err != nil {
		if c := f.decodeErrors.Add(1); c == 1 || c%500 == 0 {
			logger.Warn().Err(err).Uint64("errors", c).Msg("decode failed")
		}
		return
	}
	if frames == 0 || channels == 0 {
		return
	}
	target := int(f.rate.Load())
	if target <= 0 {
		target = rate
	}
	f.scratch = f.rs.process(f.scratch[:0], f.pcm[:frames*channels], rate, target, channels)
	if n := len(f.scratch) / channels; n > 0 {
		f.out.OnFrameDecoded(f.ID, f.scratch, n, channels)
	}
}

// Stop cancels the feed; the read loop exits after its current packet.
func (f *Feed) Stop() {
	f.stopped.Store(true)
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Feed) Stopped() bool { return f.stopped.Load() }
