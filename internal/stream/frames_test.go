package stream

import (
	"math"
	"testing"

	"github.com/cueflow/cueflow/internal/audio"
)

// pushAndDrain feeds blocks through the repacketizer, draining after every
// push the way the broadcaster goroutine would.
func pushAndDrain(r *Repacketizer, blocks [][]int16) [][]int16 {
	var out [][]int16
	collect := func() {
		for {
			select {
			case f := <-r.out:
				out = append(out, f)
			default:
				return
			}
		}
	}
	for _, b := range blocks {
		r.push(b)
		collect()
	}
	return out
}

func chunkBlocks(samples []int16) [][]int16 {
	var blocks [][]int16
	for off := 0; off < len(samples); off += audio.BlockSamples {
		end := off + audio.BlockSamples
		if end > len(samples) {
			end = len(samples)
		}
		blocks = append(blocks, samples[off:end])
	}
	return blocks
}

func TestRepacketizerFrameShape(t *testing.T) {
	r := NewRepacketizer()

	second := make([]int16, audio.SampleRate*audio.Channels)
	frames := pushAndDrain(r, chunkBlocks(second))

	// One second at 44.1kHz resamples to one second at 48kHz: 50 frames of
	// 20ms, minus the partial one still pending.
	if len(frames) < 48 || len(frames) > 50 {
		t.Fatalf("got %d frames from one second of audio, want 48-50", len(frames))
	}
	for i, f := range frames {
		if len(f) != frameSamples {
			t.Fatalf("frame %d has %d samples, want %d", i, len(f), frameSamples)
		}
	}
}

func TestRepacketizerDCLevelPreserved(t *testing.T) {
	r := NewRepacketizer()

	// A constant signal must survive linear resampling exactly.
	second := make([]int16, audio.SampleRate*audio.Channels)
	for i := range second {
		second[i] = 1000
	}
	frames := pushAndDrain(r, chunkBlocks(second))
	if len(frames) == 0 {
		t.Fatal("no frames produced")
	}
	// Skip the first frame, whose head interpolates against the zero seed.
	for fi, f := range frames[1:] {
		for i, v := range f {
			if v != 1000 {
				t.Fatalf("frame %d sample %d = %d, want 1000", fi+1, i, v)
			}
		}
	}
}

func TestRepacketizerToneFrequency(t *testing.T) {
	r := NewRepacketizer()

	// A 441Hz tone at 44.1kHz must still be 441Hz at 48kHz: count zero
	// crossings over a known stretch of output.
	freq := 441.0
	n := audio.SampleRate // one second
	tone := make([]int16, n*audio.Channels)
	for i := 0; i < n; i++ {
		v := int16(10000 * math.Sin(2*math.Pi*freq*float64(i)/audio.SampleRate))
		tone[i*audio.Channels] = v
		tone[i*audio.Channels+1] = v
	}
	frames := pushAndDrain(r, chunkBlocks(tone))

	var left []int16
	for _, f := range frames {
		for i := 0; i < len(f); i += audio.Channels {
			left = append(left, f[i])
		}
	}
	if len(left) < BroadcastRate/2 {
		t.Fatalf("too little output: %d samples", len(left))
	}

	crossings := 0
	for i := 1; i < len(left); i++ {
		if (left[i-1] < 0) != (left[i] < 0) {
			crossings++
		}
	}
	seconds := float64(len(left)) / BroadcastRate
	gotFreq := float64(crossings) / 2 / seconds
	if math.Abs(gotFreq-freq) > 5 {
		t.Errorf("resampled tone at %.1fHz, want %.0fHz", gotFreq, freq)
	}
}

func TestClamp16(t *testing.T) {
	if clamp16(40000) != 32767 {
		t.Error("positive overflow not clamped")
	}
	if clamp16(-40000) != -32768 {
		t.Error("negative overflow not clamped")
	}
	if clamp16(123) != 123 {
		t.Error("in-range value altered")
	}
}
