package deck

import (
	"math"
	"testing"

	"github.com/cueflow/cueflow/internal/audio"
)

// sine fills n stereo frames with a sine at freq Hz.
func sine(freq float64, n int) []float32 {
	out := make([]float32, n*audio.Channels)
	for i := 0; i < n; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/audio.SampleRate))
		out[i*audio.Channels] = v
		out[i*audio.Channels+1] = v
	}
	return out
}

func rms(buf []float32) float64 {
	var sum float64
	for _, v := range buf {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(buf)))
}

// settleFrames is long enough for filter transients to die down.
const settleFrames = audio.SampleRate / 2

func TestEQKillsBass(t *testing.T) {
	eq := newThreeBandEQ(audio.SampleRate)
	eq.Bass.Store(0)

	low := sine(60, settleFrames)
	ref := rms(low)
	eq.process(low)

	// The back half, past the transient, should carry almost nothing.
	if got := rms(low[len(low)/2:]); got > ref*0.1 {
		t.Errorf("60Hz RMS after bass kill = %v, want under 10%% of %v", got, ref)
	}
}

func TestEQKillsHighs(t *testing.T) {
	eq := newThreeBandEQ(audio.SampleRate)
	eq.High.Store(0)

	hi := sine(10000, settleFrames)
	ref := rms(hi)
	eq.process(hi)

	if got := rms(hi[len(hi)/2:]); got > ref*0.1 {
		t.Errorf("10kHz RMS after high kill = %v, want under 10%% of %v", got, ref)
	}
}

func TestEQPassesUntouchedBand(t *testing.T) {
	eq := newThreeBandEQ(audio.SampleRate)
	eq.Bass.Store(0)

	mid := sine(1000, settleFrames)
	ref := rms(mid)
	eq.process(mid)

	// A mid tone survives a bass kill largely intact.
	if got := rms(mid[len(mid)/2:]); got < ref*0.7 {
		t.Errorf("1kHz RMS after bass kill = %v, want at least 70%% of %v", got, ref)
	}
}

func TestSweepFilterLowpass(t *testing.T) {
	f := newSweepFilter(audio.SampleRate)
	f.SetType(FilterLowPass)
	f.SetCutoff(1000)
	f.Enabled.Store(true)

	hi := sine(8000, settleFrames)
	ref := rms(hi)
	f.process(hi)
	if got := rms(hi[len(hi)/2:]); got > ref*0.1 {
		t.Errorf("8kHz through 1kHz lowpass: RMS = %v, want under 10%% of %v", got, ref)
	}

	f.reset()
	low := sine(100, settleFrames)
	ref = rms(low)
	f.process(low)
	if got := rms(low[len(low)/2:]); got < ref*0.7 {
		t.Errorf("100Hz through 1kHz lowpass: RMS = %v, want mostly intact vs %v", got, ref)
	}
}

func TestSweepFilterDisabledPassthrough(t *testing.T) {
	f := newSweepFilter(audio.SampleRate)
	f.SetCutoff(500)

	in := sine(8000, audio.BlockSize)
	want := append([]float32(nil), in...)
	f.process(in)
	for i := range in {
		if in[i] != want[i] {
			t.Fatalf("disabled filter altered sample %d: %v != %v", i, in[i], want[i])
		}
	}
}

func TestSweepFilterCutoffClamped(t *testing.T) {
	f := newSweepFilter(audio.SampleRate)
	f.SetCutoff(5)
	if got := f.Cutoff(); got < 20 {
		t.Errorf("Cutoff = %v, want clamped to at least 20Hz", got)
	}
	f.SetCutoff(1e6)
	if got := f.Cutoff(); got >= audio.SampleRate/2 {
		t.Errorf("Cutoff = %v, want below Nyquist", got)
	}
}

func TestReverbDryPassthrough(t *testing.T) {
	r := newReverb(audio.SampleRate)

	in := sine(440, audio.BlockSize)
	want := append([]float32(nil), in...)
	r.process(in)
	for i := range in {
		if in[i] != want[i] {
			t.Fatalf("wet=0 reverb altered sample %d", i)
		}
	}
}

func TestReverbAddsTail(t *testing.T) {
	r := newReverb(audio.SampleRate)
	r.Wet.Store(0.5)

	// Feed an impulse, then silence: the taps should echo it back.
	frames := audio.SampleRate / 5
	buf := make([]float32, frames*audio.Channels)
	buf[0] = 1
	buf[1] = 1
	r.process(buf)

	var tail float64
	for i := audio.Channels; i < len(buf); i++ {
		tail += math.Abs(float64(buf[i]))
	}
	if tail == 0 {
		t.Error("reverb produced no tail after an impulse")
	}
}

func TestEchoDryPassthrough(t *testing.T) {
	e := newEcho(audio.SampleRate)

	in := sine(440, audio.BlockSize)
	want := append([]float32(nil), in...)
	e.process(in)
	for i := range in {
		if in[i] != want[i] {
			t.Fatalf("wet=0 echo altered sample %d", i)
		}
	}
}

func TestEchoRepeats(t *testing.T) {
	e := newEcho(audio.SampleRate)
	e.Wet.Store(0.8)
	e.SetDelay(0.05)

	delayFrames := int(0.05 * audio.SampleRate)
	buf := make([]float32, (delayFrames+10)*audio.Channels)
	buf[0] = 1
	buf[1] = 1
	e.process(buf)

	echoL := buf[delayFrames*audio.Channels]
	if math.Abs(float64(echoL)-0.8) > 1e-3 {
		t.Errorf("echo at delay = %v, want 0.8 (impulse * wet)", echoL)
	}
}

func TestEchoDelayClamped(t *testing.T) {
	e := newEcho(audio.SampleRate)
	e.SetDelay(0)
	if e.Delay() < 0.01 {
		t.Errorf("Delay = %v, want at least 10ms", e.Delay())
	}
	e.SetDelay(100)
	if e.Delay() > 2.0 {
		t.Errorf("Delay = %v, want at most ring length", e.Delay())
	}
}

func TestChainResetClearsTails(t *testing.T) {
	c := NewEffectsChain(audio.SampleRate)
	c.Reverb.Wet.Store(0.5)
	c.Echo.Wet.Store(0.5)
	c.Echo.SetDelay(0.02)

	loud := make([]float32, audio.BlockSamples)
	for i := range loud {
		loud[i] = 0.9
	}
	c.Process(loud)

	c.Reset()

	silence := make([]float32, audio.BlockSamples)
	c.Process(silence)
	for i, v := range silence {
		if v != 0 {
			t.Fatalf("sample %d = %v after Reset, want pure silence", i, v)
		}
	}
}
