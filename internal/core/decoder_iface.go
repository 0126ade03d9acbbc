package core

// Decoder turns one encoded RTP payload into interleaved float32 PCM.
// frames is the per-channel sample count written to pcm.
type Decoder interface {
	Decode(payload []byte, pcm []float32) (frames, channels, sampleRate int, err error)
}

// DecoderFactory builds one decoder per incoming track; decoders are stateful.
type DecoderFactory func() Decoder
