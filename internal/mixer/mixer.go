package mixer

import (
	"context"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/cueflow/cueflow/internal/audio"
	"github.com/cueflow/cueflow/internal/deck"
	"github.com/cueflow/cueflow/internal/track"
	"github.com/viterin/vek/vek32"
)

// Origin tags who issued a control write. The automation engine tags its own
// writes so the override detector only reacts to human ones.
type Origin int

const (
	OriginHuman Origin = iota
	OriginAutomation
)

type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) Load() float64   { return math.Float64frombits(f.bits.Load()) }

// Mixer owns the two decks, the crossfader and the master bus, and renders
// the mixed output one block at a time. One Mixer per output device.
type Mixer struct {
	DeckA *deck.Deck
	DeckB *deck.Deck

	crossfader   atomicFloat // -1 = A only, 0 = equal, +1 = B only
	masterVolume atomicFloat

	peakA      atomicFloat
	peakB      atomicFloat
	peakMaster atomicFloat

	lastHumanNanos atomic.Int64
	overruns       atomic.Int64

	running atomic.Bool
	device  *device

	// Render scratch, touched only by the render goroutine.
	bufA    []float32
	bufB    []float32
	scratch []float32

	tap chan []int16 // optional master-mix tap for broadcast sinks
}

// New creates a mixer with two fresh decks, crossfader hard on A and the
// master at 0.8 so a full-scale track leaves limiter headroom.
func New() *Mixer {
	m := &Mixer{
		DeckA:   deck.New("A"),
		DeckB:   deck.New("B"),
		bufA:    make([]float32, audio.BlockSamples),
		bufB:    make([]float32, audio.BlockSamples),
		scratch: make([]float32, audio.BlockSamples),
	}
	m.crossfader.Store(-1.0)
	m.masterVolume.Store(0.8)
	return m
}

// Deck returns the deck with the given id ("A" or "B"), or nil.
func (m *Mixer) Deck(id string) *deck.Deck {
	switch id {
	case "A", "a":
		return m.DeckA
	case "B", "b":
		return m.DeckB
	}
	return nil
}

// SetCrossfader moves the crossfader, clamped to [-1, +1].
func (m *Mixer) SetCrossfader(v float64, origin Origin) {
	if v < -1 {
		v = -1
	}
	if v > 1 {
		v = 1
	}
	m.crossfader.Store(v)
	m.noteOrigin(origin)
}

// Crossfader returns the current crossfader position.
func (m *Mixer) Crossfader() float64 { return m.crossfader.Load() }

// SetMasterVolume sets the master gain (>= 0).
func (m *Mixer) SetMasterVolume(v float64, origin Origin) {
	if v < 0 {
		v = 0
	}
	m.masterVolume.Store(v)
	m.noteOrigin(origin)
}

// MasterVolume returns the master gain.
func (m *Mixer) MasterVolume() float64 { return m.masterVolume.Load() }

// SetEQ sets one EQ band gain on a deck. Band is "bass", "mid" or "high";
// gain 0 kills the band, 1 is neutral, above 1 boosts.
func (m *Mixer) SetEQ(deckID, band string, gain float64, origin Origin) bool {
	d := m.Deck(deckID)
	if d == nil || gain < 0 {
		return false
	}
	switch band {
	case "bass":
		d.FX.EQ.Bass.Store(gain)
	case "mid":
		d.FX.EQ.Mid.Store(gain)
	case "high":
		d.FX.EQ.High.Store(gain)
	default:
		return false
	}
	m.noteOrigin(origin)
	return true
}

// SetDeckVolume sets one deck's gain.
func (m *Mixer) SetDeckVolume(deckID string, v float64, origin Origin) bool {
	d := m.Deck(deckID)
	if d == nil {
		return false
	}
	d.SetVolume(v)
	m.noteOrigin(origin)
	return true
}

// PlayDeck starts a deck's transport.
func (m *Mixer) PlayDeck(deckID string, origin Origin) error {
	d := m.Deck(deckID)
	if d == nil {
		return deck.ErrNotLoaded
	}
	m.noteOrigin(origin)
	return d.Play()
}

// PauseDeck pauses a deck's transport.
func (m *Mixer) PauseDeck(deckID string, origin Origin) {
	if d := m.Deck(deckID); d != nil {
		d.Pause()
		m.noteOrigin(origin)
	}
}

// StopDeck stops a deck's transport and rewinds it.
func (m *Mixer) StopDeck(deckID string, origin Origin) {
	if d := m.Deck(deckID); d != nil {
		d.Stop()
		m.noteOrigin(origin)
	}
}

// SeekDeck jumps a deck to a position in seconds.
func (m *Mixer) SeekDeck(deckID string, sec float64, origin Origin) {
	if d := m.Deck(deckID); d != nil {
		d.Seek(sec)
		m.noteOrigin(origin)
	}
}

// CueDeck jumps a deck back to its cue point.
func (m *Mixer) CueDeck(deckID string, origin Origin) bool {
	d := m.Deck(deckID)
	if d == nil {
		return false
	}
	d.ReturnToCue()
	m.noteOrigin(origin)
	return true
}

// LoadDeck replaces a deck's audio. Like every other control write it
// carries an origin, since swapping a track out from under a transition is
// as much an override as grabbing the crossfader.
func (m *Mixer) LoadDeck(deckID string, samples []float32, sampleRate int, info *track.Analysis, origin Origin) error {
	d := m.Deck(deckID)
	if d == nil {
		return deck.ErrNotLoaded
	}
	if err := d.Load(samples, sampleRate, info); err != nil {
		return err
	}
	m.noteOrigin(origin)
	return nil
}

// SetFilter configures a deck's sweep filter. Type is "lowpass" or
// "highpass"; cutoff is in Hz.
func (m *Mixer) SetFilter(deckID string, enabled bool, ftype string, cutoff float64, origin Origin) bool {
	d := m.Deck(deckID)
	if d == nil {
		return false
	}
	switch ftype {
	case "lowpass":
		d.FX.Filter.SetType(deck.FilterLowPass)
	case "highpass":
		d.FX.Filter.SetType(deck.FilterHighPass)
	default:
		return false
	}
	if cutoff > 0 {
		d.FX.Filter.SetCutoff(cutoff)
	}
	d.FX.Filter.Enabled.Store(enabled)
	m.noteOrigin(origin)
	return true
}

// SetReverb sets a deck's reverb wet mix and decay.
func (m *Mixer) SetReverb(deckID string, wet, decay float64, origin Origin) bool {
	d := m.Deck(deckID)
	if d == nil || wet < 0 || wet > 1 {
		return false
	}
	d.FX.Reverb.Wet.Store(wet)
	d.FX.Reverb.Decay.Store(clamp(decay, 0, 0.99))
	m.noteOrigin(origin)
	return true
}

// SetEcho sets a deck's echo wet mix, feedback and delay time in seconds.
func (m *Mixer) SetEcho(deckID string, wet, feedback, delay float64, origin Origin) bool {
	d := m.Deck(deckID)
	if d == nil || wet < 0 || wet > 1 {
		return false
	}
	d.FX.Echo.Wet.Store(wet)
	d.FX.Echo.Feedback.Store(clamp(feedback, 0, 0.95))
	d.FX.Echo.SetDelay(delay)
	m.noteOrigin(origin)
	return true
}

func (m *Mixer) noteOrigin(origin Origin) {
	if origin == OriginHuman {
		m.lastHumanNanos.Store(time.Now().UnixNano())
	}
}

// LastHumanTouch returns the time of the most recent human-origin control
// write, zero if none has happened.
func (m *Mixer) LastHumanTouch() time.Time {
	n := m.lastHumanNanos.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Overruns returns how many render blocks missed their deadline so far.
func (m *Mixer) Overruns() int64 { return m.overruns.Load() }

// CrossfadeGains maps a crossfader position in [-1,+1] to per-deck gains
// using the constant-power law: equal-power at center instead of the
// loudness dip a linear fade has there.
func CrossfadeGains(pos float64) (gainA, gainB float64) {
	theta := (pos + 1) / 2 * math.Pi / 2
	return math.Cos(theta), math.Sin(theta)
}

// EnableTap returns a channel carrying the master mix as int16 PCM blocks.
// Sends never block the render path: if the consumer lags, blocks are dropped.
func (m *Mixer) EnableTap() <-chan []int16 {
	if m.tap == nil {
		m.tap = make(chan []int16, 64)
	}
	return m.tap
}

// RenderBlock renders one mixed block into buf (interleaved stereo).
// This is the hard-deadline path: it pulls both decks through their effect
// chains, applies the constant-power crossfade, master gain and a block-wide
// limiter. A missed deadline is counted and logged, never fatal.
func (m *Mixer) RenderBlock(buf []float32) {
	start := time.Now()

	n := len(buf)
	if n > len(m.bufA) {
		// A device asking for more than one block at a time gets it in
		// block-sized chunks so scratch stays fixed.
		for off := 0; off < n; off += len(m.bufA) {
			end := off + len(m.bufA)
			if end > n {
				end = n
			}
			m.RenderBlock(buf[off:end])
		}
		return
	}
	a := m.bufA[:n]
	b := m.bufB[:n]

	m.DeckA.Render(a)
	m.DeckA.FX.Process(a)
	m.DeckB.Render(b)
	m.DeckB.FX.Process(b)

	m.peakA.Store(float64(blockPeak(m.scratch[:n], a)))
	m.peakB.Store(float64(blockPeak(m.scratch[:n], b)))

	gainA, gainB := CrossfadeGains(m.crossfader.Load())
	vek32.MulNumber_Into(buf, a, float32(gainA))
	vek32.MulNumber_Inplace(b, float32(gainB))
	vek32.Add_Inplace(buf, b)

	vek32.MulNumber_Inplace(buf, float32(m.masterVolume.Load()))

	// Block-wide limiter: scaling the whole block by 1/peak avoids the
	// harmonic distortion per-sample clipping would add.
	peak := blockPeak(m.scratch[:n], buf)
	m.peakMaster.Store(float64(peak))
	if peak > 1.0 {
		vek32.DivNumber_Inplace(buf, peak)
	}

	if m.tap != nil {
		pcm := audio.FloatsToPCM(buf, make([]int16, n))
		select {
		case m.tap <- pcm:
		default:
		}
	}

	if elapsed := time.Since(start); elapsed > audio.BlockDuration {
		m.overruns.Add(1)
		log.Printf("Mixer: render overrun: %v > %v budget", elapsed, audio.BlockDuration)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func blockPeak(scratch, buf []float32) float32 {
	if len(buf) == 0 {
		return 0
	}
	vek32.Abs_Into(scratch, buf)
	return vek32.Max(scratch)
}

// RunClocked drives the render loop from a wall-clock ticker instead of an
// output device. Used headless (broadcast-only) and in tests; never run it
// while a device stream is open or blocks render twice as fast.
func (m *Mixer) RunClocked(ctx context.Context) {
	m.running.Store(true)
	defer m.running.Store(false)
	ticker := time.NewTicker(audio.BlockDuration)
	defer ticker.Stop()
	buf := make([]float32, audio.BlockSamples)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RenderBlock(buf)
		}
	}
}
