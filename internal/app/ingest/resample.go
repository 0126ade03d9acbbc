package ingest

// resampler converts interleaved float32 PCM between rates by linear
// interpolation. It carries the last input frame and the fractional read
// position across calls so packet boundaries stay seamless.
type resampler struct {
	in, out  int
	channels int
	last     []float32
	pos      float64
}

func (r *resampler) reset(in, out, channels int) {
	r.in, r.out, r.channels = in, out, channels
	r.last = make([]float32, channels)
	r.pos = 0
}

// process appends the resampled src to dst.
func (r *resampler) process(dst, src []float32, in, out, channels int) []float32 {
	if in != r.in || out != r.out || channels != r.channels {
		r.reset(in, out, channels)
	}
	if in == out {
		return append(dst, src...)
	}
	frames := len(src) / channels
	if frames == 0 {
		return dst
	}
	step := float64(in) / float64(out)
	// position -1 refers to r.last
	sample := func(i, c int) float32 {
		if i < 0 {
			return r.last[c]
		}
		return src[i*channels+c]
	}
	for r.pos < float64(frames-1) {
		i := int(r.pos+1) - 1
		frac := float32(r.pos - float64(i))
		for c := range channels {
			a, b := sample(i, c), sample(i+1, c)
			dst = append(dst, a+(b-a)*frac)
		}
		r.pos += step
	}
	r.pos -= float64(frames)
	copy(r.last, src[(frames-1)*channels:])
	return dst
}
