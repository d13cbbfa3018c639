package stream

import (
	"context"
	"time"

	"github.com/cueflow/cueflow/internal/audio"
)

// Broadcast format. Opus only speaks a handful of rates, none of them the
// engine's native 44.1kHz, so the tap is resampled to 48kHz and cut into
// the 20ms frames the codec wants.
const (
	BroadcastRate  = 48000
	FrameDuration  = 20 * time.Millisecond
	framesPerFrame = BroadcastRate / 50 // 960 per channel at 20ms
	frameSamples   = framesPerFrame * audio.Channels
)

// Repacketizer converts the mixer tap's native-rate blocks into fixed 20ms
// frames at the broadcast rate.
type Repacketizer struct {
	out chan []int16

	// resampler state: fractional read position and the last frame of the
	// previous block for interpolation across block boundaries
	frac float64
	prev [audio.Channels]int16
	have bool

	pending []int16
}

func NewRepacketizer() *Repacketizer {
	return &Repacketizer{
		out:     make(chan []int16, 16),
		pending: make([]int16, 0, frameSamples*2),
	}
}

// Frames is the output of the repacketizer, suitable as a Broadcaster source.
func (r *Repacketizer) Frames() <-chan []int16 { return r.out }

// Run consumes tap blocks until the tap closes or the context ends, then
// closes the output.
func (r *Repacketizer) Run(ctx context.Context, tap <-chan []int16) {
	defer close(r.out)
	for {
		select {
		case <-ctx.Done():
			return
		case block, ok := <-tap:
			if !ok {
				return
			}
			r.push(block)
		}
	}
}

// push resamples one interleaved block with linear interpolation and emits
// every complete 20ms frame it yields.
func (r *Repacketizer) push(block []int16) {
	n := len(block) / audio.Channels
	if n == 0 {
		return
	}
	step := float64(audio.SampleRate) / float64(BroadcastRate)

	frame := func(i int, ch int) float64 {
		// i == -1 reaches back into the previous block's final frame
		if i < 0 {
			if r.have {
				return float64(r.prev[ch])
			}
			return float64(block[ch])
		}
		return float64(block[i*audio.Channels+ch])
	}

	pos := r.frac - 1 // relative to block start; -1..0 covers the seam
	for pos+1 < float64(n) {
		i := int(pos)
		t := pos - float64(i)
		if pos < 0 {
			i = -1
			t = pos + 1
		}
		for ch := 0; ch < audio.Channels; ch++ {
			v := frame(i, ch)*(1-t) + frame(i+1, ch)*t
			r.pending = append(r.pending, clamp16(v))
		}
		pos += step
	}
	r.frac = pos - float64(n) + 1
	for ch := 0; ch < audio.Channels; ch++ {
		r.prev[ch] = block[(n-1)*audio.Channels+ch]
	}
	r.have = true

	for len(r.pending) >= frameSamples {
		f := make([]int16, frameSamples)
		copy(f, r.pending[:frameSamples])
		r.pending = r.pending[:copy(r.pending, r.pending[frameSamples:])]
		select {
		case r.out <- f:
		default:
			// downstream wedged, drop rather than stall the tap
		}
	}
}

func clamp16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
