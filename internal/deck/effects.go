package deck

import (
	"math"
	"sync/atomic"

	"github.com/cueflow/cueflow/internal/audio"
)

// atomicFloat is a float64 readable from the render path without locks.
type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }

// biquad is one second-order IIR section with per-channel state.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     [audio.Channels]float64
}

func (bq *biquad) reset() {
	for ch := 0; ch < audio.Channels; ch++ {
		bq.x1[ch], bq.x2[ch], bq.y1[ch], bq.y2[ch] = 0, 0, 0, 0
	}
}

func (bq *biquad) tick(ch int, x float64) float64 {
	y := bq.b0*x + bq.b1*bq.x1[ch] + bq.b2*bq.x2[ch] - bq.a1*bq.y1[ch] - bq.a2*bq.y2[ch]
	bq.x2[ch], bq.x1[ch] = bq.x1[ch], x
	bq.y2[ch], bq.y1[ch] = bq.y1[ch], y
	return y
}

// lowpassCoeffs fills a biquad with RBJ low-pass coefficients (Butterworth Q).
func lowpassCoeffs(bq *biquad, cutoff, sampleRate float64) {
	w0 := 2 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / (2 * math.Sqrt2 / 2)
	cosw := math.Cos(w0)
	a0 := 1 + alpha
	bq.b0 = (1 - cosw) / 2 / a0
	bq.b1 = (1 - cosw) / a0
	bq.b2 = (1 - cosw) / 2 / a0
	bq.a1 = -2 * cosw / a0
	bq.a2 = (1 - alpha) / a0
}

// highpassCoeffs fills a biquad with RBJ high-pass coefficients.
func highpassCoeffs(bq *biquad, cutoff, sampleRate float64) {
	w0 := 2 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / (2 * math.Sqrt2 / 2)
	cosw := math.Cos(w0)
	a0 := 1 + alpha
	bq.b0 = (1 + cosw) / 2 / a0
	bq.b1 = -(1 + cosw) / a0
	bq.b2 = (1 + cosw) / 2 / a0
	bq.a1 = -2 * cosw / a0
	bq.a2 = (1 - alpha) / a0
}

// EQ band crossover frequencies. Bass < 250Hz, mid 250Hz-4kHz, high > 4kHz.
const (
	eqBassCutoff = 250.0
	eqHighCutoff = 4000.0
)

// threeBandEQ splits the signal into bass/mid/high with cascaded biquads,
// applies a gain per band, and sums the bands back. A gain of 0 removes the
// band entirely because the split happens before the gain.
type threeBandEQ struct {
	Bass atomicFloat
	Mid  atomicFloat
	High atomicFloat

	bassLP  [2]biquad
	midHP   [2]biquad
	midLP   [2]biquad
	highHP  [2]biquad
}

func newThreeBandEQ(sampleRate float64) *threeBandEQ {
	eq := &threeBandEQ{}
	for i := range eq.bassLP {
		lowpassCoeffs(&eq.bassLP[i], eqBassCutoff, sampleRate)
		highpassCoeffs(&eq.midHP[i], eqBassCutoff, sampleRate)
		lowpassCoeffs(&eq.midLP[i], eqHighCutoff, sampleRate)
		highpassCoeffs(&eq.highHP[i], eqHighCutoff, sampleRate)
	}
	eq.Bass.Store(1.0)
	eq.Mid.Store(1.0)
	eq.High.Store(1.0)
	return eq
}

func (eq *threeBandEQ) reset() {
	for i := range eq.bassLP {
		eq.bassLP[i].reset()
		eq.midHP[i].reset()
		eq.midLP[i].reset()
		eq.highHP[i].reset()
	}
}

func (eq *threeBandEQ) process(buf []float32) {
	bass := eq.Bass.Load()
	mid := eq.Mid.Load()
	high := eq.High.Load()
	// Neutral gains still run the split so filter memory stays warm; a later
	// kill would otherwise click from stale state.
	frames := len(buf) / audio.Channels
	for i := 0; i < frames; i++ {
		for ch := 0; ch < audio.Channels; ch++ {
			x := float64(buf[i*audio.Channels+ch])

			b := eq.bassLP[0].tick(ch, x)
			b = eq.bassLP[1].tick(ch, b)

			m := eq.midHP[0].tick(ch, x)
			m = eq.midHP[1].tick(ch, m)
			m = eq.midLP[0].tick(ch, m)
			m = eq.midLP[1].tick(ch, m)

			h := eq.highHP[0].tick(ch, x)
			h = eq.highHP[1].tick(ch, h)

			buf[i*audio.Channels+ch] = float32(b*bass + m*mid + h*high)
		}
	}
}

// Filter types for the sweepable per-deck filter.
const (
	FilterLowPass int32 = iota
	FilterHighPass
)

// sweepFilter is a single low-pass or high-pass with adjustable cutoff.
// Coefficients are rebuilt in the control domain and swapped in atomically;
// filter memory stays with the render domain.
type sweepFilter struct {
	Enabled atomic.Bool
	ftype   atomic.Int32
	cutoff  atomicFloat

	coeffs     atomic.Pointer[biquad] // coefficients only, state unused
	state      [2]biquad
	sampleRate float64
}

func newSweepFilter(sampleRate float64) *sweepFilter {
	f := &sweepFilter{sampleRate: sampleRate}
	f.cutoff.Store(20000)
	f.SetCutoff(20000)
	return f
}

// SetCutoff clamps the cutoff into [20Hz, Nyquist) and rebuilds coefficients.
func (f *sweepFilter) SetCutoff(freq float64) {
	nyquist := f.sampleRate / 2
	if freq < 20 {
		freq = 20
	}
	if freq >= nyquist {
		freq = nyquist - 1
	}
	f.cutoff.Store(freq)
	f.rebuild()
}

func (f *sweepFilter) SetType(t int32) {
	f.ftype.Store(t)
	f.rebuild()
}

func (f *sweepFilter) Cutoff() float64 { return f.cutoff.Load() }
func (f *sweepFilter) Type() int32     { return f.ftype.Load() }

func (f *sweepFilter) rebuild() {
	var bq biquad
	if f.ftype.Load() == FilterHighPass {
		highpassCoeffs(&bq, f.cutoff.Load(), f.sampleRate)
	} else {
		lowpassCoeffs(&bq, f.cutoff.Load(), f.sampleRate)
	}
	f.coeffs.Store(&bq)
}

func (f *sweepFilter) reset() {
	f.state[0].reset()
	f.state[1].reset()
}

func (f *sweepFilter) process(buf []float32) {
	if !f.Enabled.Load() {
		return
	}
	c := f.coeffs.Load()
	for i := range f.state {
		f.state[i].b0, f.state[i].b1, f.state[i].b2 = c.b0, c.b1, c.b2
		f.state[i].a1, f.state[i].a2 = c.a1, c.a2
	}
	frames := len(buf) / audio.Channels
	for i := 0; i < frames; i++ {
		for ch := 0; ch < audio.Channels; ch++ {
			x := float64(buf[i*audio.Channels+ch])
			y := f.state[0].tick(ch, x)
			y = f.state[1].tick(ch, y)
			buf[i*audio.Channels+ch] = float32(y)
		}
	}
}

// reverb is a small delay-line reverb: four prime-spaced taps fed back with
// a decay factor, blended wet/dry. Wet 0 is exact passthrough.
type reverb struct {
	Wet   atomicFloat
	Decay atomicFloat

	buffer [audio.Channels][]float32 // fixed-length ring, 100ms
	pos    int
	taps   [4]int
}

func newReverb(sampleRate float64) *reverb {
	r := &reverb{}
	size := int(0.1 * sampleRate)
	for ch := range r.buffer {
		r.buffer[ch] = make([]float32, size)
	}
	for i, ms := range []float64{23, 41, 59, 79} {
		r.taps[i] = int(ms * sampleRate / 1000)
	}
	r.Decay.Store(0.5)
	return r
}

func (r *reverb) reset() {
	for ch := range r.buffer {
		for i := range r.buffer[ch] {
			r.buffer[ch][i] = 0
		}
	}
	r.pos = 0
}

func (r *reverb) process(buf []float32) {
	wet := r.Wet.Load()
	if wet == 0 {
		return
	}
	decay := r.Decay.Load()
	size := len(r.buffer[0])
	frames := len(buf) / audio.Channels
	for i := 0; i < frames; i++ {
		for ch := 0; ch < audio.Channels; ch++ {
			dry := buf[i*audio.Channels+ch]
			var tail float32
			for _, tap := range r.taps {
				idx := r.pos - tap
				if idx < 0 {
					idx += size
				}
				tail += r.buffer[ch][idx]
			}
			tail *= float32(decay) / float32(len(r.taps))
			r.buffer[ch][r.pos] = dry + tail*float32(decay)
			buf[i*audio.Channels+ch] = dry*(1-float32(wet)) + (dry+tail)*float32(wet)
		}
		r.pos++
		if r.pos >= size {
			r.pos = 0
		}
	}
}

// echo is a mono-summed delay with feedback, fixed 2s ring buffer.
type echo struct {
	Wet      atomicFloat
	Feedback atomicFloat
	delay    atomicFloat // seconds

	buffer []float32
	pos    int
}

func newEcho(sampleRate float64) *echo {
	e := &echo{buffer: make([]float32, int(2.0*sampleRate))}
	e.delay.Store(0.5)
	e.Feedback.Store(0.3)
	return e
}

// SetDelay clamps the delay time to the ring buffer length.
func (e *echo) SetDelay(sec float64) {
	max := float64(len(e.buffer)) / audio.SampleRate
	if sec < 0.01 {
		sec = 0.01
	}
	if sec > max {
		sec = max
	}
	e.delay.Store(sec)
}

func (e *echo) Delay() float64 { return e.delay.Load() }

func (e *echo) reset() {
	for i := range e.buffer {
		e.buffer[i] = 0
	}
	e.pos = 0
}

func (e *echo) process(buf []float32) {
	wet := e.Wet.Load()
	if wet == 0 {
		return
	}
	feedback := e.Feedback.Load()
	delaySamples := int(e.delay.Load() * audio.SampleRate)
	if delaySamples >= len(e.buffer) {
		delaySamples = len(e.buffer) - 1
	}
	frames := len(buf) / audio.Channels
	for i := 0; i < frames; i++ {
		mono := (buf[i*audio.Channels] + buf[i*audio.Channels+1]) / 2
		idx := e.pos - delaySamples
		if idx < 0 {
			idx += len(e.buffer)
		}
		delayed := e.buffer[idx]
		e.buffer[e.pos] = mono + delayed*float32(feedback)
		e.pos++
		if e.pos >= len(e.buffer) {
			e.pos = 0
		}
		buf[i*audio.Channels] += delayed * float32(wet)
		buf[i*audio.Channels+1] += delayed * float32(wet)
	}
}

// EffectsChain applies the deck's effect stages in fixed order:
// EQ, then filter, then reverb, then echo. Each deck owns one chain; its
// internal memory carries across blocks and is reset on track load.
type EffectsChain struct {
	EQ     *threeBandEQ
	Filter *sweepFilter
	Reverb *reverb
	Echo   *echo

	resetPending atomic.Bool
}

// NewEffectsChain builds a chain for the given sample rate.
func NewEffectsChain(sampleRate float64) *EffectsChain {
	return &EffectsChain{
		EQ:     newThreeBandEQ(sampleRate),
		Filter: newSweepFilter(sampleRate),
		Reverb: newReverb(sampleRate),
		Echo:   newEcho(sampleRate),
	}
}

// Process runs buf through every stage in place. Must only be called from
// the render path; stage state is not safe for concurrent Process calls.
// A pending Reset is applied here, so stage memory is only ever written by
// the render goroutine.
func (c *EffectsChain) Process(buf []float32) {
	if c.resetPending.CompareAndSwap(true, false) {
		c.clearState()
	}
	if len(buf) == 0 {
		return
	}
	c.EQ.process(buf)
	c.Filter.process(buf)
	c.Reverb.process(buf)
	c.Echo.process(buf)
}

// Reset requests a clear of all stage memory before the next processed
// block. Called when a track is (re)loaded so the previous track's tails
// and filter state do not bleed into the next one. Safe to call from the
// control domain while the render path is inside Process.
func (c *EffectsChain) Reset() {
	c.resetPending.Store(true)
}

func (c *EffectsChain) clearState() {
	c.EQ.reset()
	c.Filter.reset()
	c.Reverb.reset()
	c.Echo.reset()
}
