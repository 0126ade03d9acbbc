package rtc

import (
	"errors"
	"fmt"

	"github.com/dkeye/VoiceRouter/internal/core"
	"github.com/pion/opus"
)

var ErrShortPacket = errors.New("opus packet too short")

const (
	// both decode calls repeat every SILK sample three times on output
	silkUpsample = 3
	maxPacket48k = 5760
)

// opusDecoder adapts pion/opus to core.Decoder.
type opusDecoder struct {
	dec opus.Decoder
	raw []float32
}

// NewOpusDecoder is a core.DecoderFactory.
func NewOpusDecoder() core.Decoder {
	return &opusDecoder{
		dec: opus.NewDecoder(),
		raw: make([]float32, maxPacket48k*2),
	}
}

func (d *opusDecoder) Decode(payload []byte, pcm []float32) (frames, channels, sampleRate int, err error) {
	samples48k, err := packetSamples(payload)
	if err != nil {
		return 0, 0, 0, err
	}
	clear(d.raw)
	bandwidth, isStereo, err := d.dec.DecodeFloat32(payload, d.raw)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("opus decode: %w", err)
	}
	channels = 1
	if isStereo {
		channels = 2
	}
	sampleRate = int(bandwidth.SampleRate()) * silkUpsample
	frames = samples48k * sampleRate / 48000
	n := copy(pcm[:min(frames*channels, len(pcm))], d.raw)
	return n / channels, channels, sampleRate, nil
}

// packetSamples returns the duration of an Opus packet in 48 kHz samples.
func packetSamples(packet []byte) (int, error) {
	if len(packet) < 1 {
		return 0, ErrShortPacket
	}
	toc := packet[0]
	config := toc >> 3
	var frame int
	switch {
	case config < 12:
		frame = []int{480, 960, 1920, 2880}[config%4]
	case config < 16:
		frame = []int{480, 960}[config%2]
	default:
		frame = []int{120, 240, 480, 960}[config%4]
	}
	count := 1
	switch toc & 0x3 {
	case 1, 2:
		count = 2
	case 3:
		if len(packet) < 2 {
			return 0, ErrShortPacket
		}
		count = int(packet[1] & 0x3f)
	}
	return min(frame*count, maxPacket48k), nil
}
