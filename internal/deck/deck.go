package deck

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/cueflow/cueflow/internal/audio"
	"github.com/cueflow/cueflow/internal/track"
)

var (
	// ErrLoad marks bad or empty audio data handed to Load.
	ErrLoad = errors.New("cannot load audio")
	// ErrNotLoaded marks an operation that requires a loaded track.
	ErrNotLoaded = errors.New("no track loaded")
)

// Transport states.
const (
	Stopped int32 = iota
	Playing
	Paused
)

// loadedTrack bundles the decoded buffer with its analysis so the render
// path swaps both in one atomic pointer exchange.
type loadedTrack struct {
	samples []float32 // interleaved stereo, owned exclusively by the deck
	info    *track.Analysis
}

func (lt *loadedTrack) frames() int { return len(lt.samples) / audio.Channels }

// Deck is one independent playback unit. Parameters are written by the
// control domain and read every block by the render domain; each field is
// individually atomic, cross-field consistency within a block is not needed.
type Deck struct {
	ID string

	current   atomic.Pointer[loadedTrack]
	position  atomic.Int64 // frame index into the loaded buffer
	transport atomic.Int32
	volume    atomicFloat

	cuePoint    atomic.Int64 // frame index
	loopStart   atomic.Int64
	loopEnd     atomic.Int64
	loopEnabled atomic.Bool

	// FX is the deck-owned effects chain, reset on every load.
	FX *EffectsChain
}

// New creates a deck with a neutral effects chain and unity volume.
func New(id string) *Deck {
	d := &Deck{ID: id, FX: NewEffectsChain(audio.SampleRate)}
	d.volume.Store(1.0)
	return d
}

// Load replaces the deck's audio. The new buffer is swapped in atomically
// between render blocks, so the render path never observes a half-replaced
// buffer. Transport resets to stopped, position to 0, effect memory cleared.
func (d *Deck) Load(samples []float32, sampleRate int, info *track.Analysis) error {
	if len(samples) == 0 {
		return fmt.Errorf("%w: deck %s: empty sample buffer", ErrLoad, d.ID)
	}
	if sampleRate <= 0 {
		return fmt.Errorf("%w: deck %s: sample rate %d", ErrLoad, d.ID, sampleRate)
	}
	if sampleRate != audio.SampleRate {
		return fmt.Errorf("%w: deck %s: sample rate %d, want %d", ErrLoad, d.ID, sampleRate, audio.SampleRate)
	}

	// Stop first so an in-flight render settles on silence, then swap.
	d.transport.Store(Stopped)
	d.current.Store(&loadedTrack{samples: samples, info: info})
	d.position.Store(0)
	d.cuePoint.Store(0)
	d.loopEnabled.Store(false)
	d.FX.Reset()
	return nil
}

// Unload drops the loaded track, leaving a stopped, silence-producing deck.
func (d *Deck) Unload() {
	d.transport.Store(Stopped)
	d.current.Store(nil)
	d.position.Store(0)
	d.loopEnabled.Store(false)
	d.FX.Reset()
}

// Play starts playback. Fails on an unloaded deck; replaying while already
// playing is a no-op.
func (d *Deck) Play() error {
	if d.current.Load() == nil {
		return fmt.Errorf("%w: deck %s", ErrNotLoaded, d.ID)
	}
	d.transport.Store(Playing)
	return nil
}

// Pause halts playback, keeping position. Idempotent.
func (d *Deck) Pause() {
	if d.transport.Load() == Playing {
		d.transport.Store(Paused)
	}
}

// Stop halts playback and rewinds to the start. Idempotent.
func (d *Deck) Stop() {
	d.transport.Store(Stopped)
	d.position.Store(0)
}

// Seek jumps to a position in seconds, clamped into the loaded track.
// Safe while playing or stopped.
func (d *Deck) Seek(sec float64) {
	lt := d.current.Load()
	if lt == nil {
		return
	}
	pos := int64(audio.SecondsToFrames(sec))
	if pos < 0 {
		pos = 0
	}
	if max := int64(lt.frames()); pos > max {
		pos = max
	}
	d.position.Store(pos)
}

// SetCuePoint marks the current position as the cue point.
func (d *Deck) SetCuePoint() {
	d.cuePoint.Store(d.position.Load())
}

// ReturnToCue jumps back to the stored cue point.
func (d *Deck) ReturnToCue() {
	d.position.Store(d.cuePoint.Load())
}

// SetLoop enables a loop over [start, end) seconds.
func (d *Deck) SetLoop(start, end float64) {
	if end <= start {
		return
	}
	d.loopStart.Store(int64(audio.SecondsToFrames(start)))
	d.loopEnd.Store(int64(audio.SecondsToFrames(end)))
	d.loopEnabled.Store(true)
}

// ClearLoop disables looping.
func (d *Deck) ClearLoop() {
	d.loopEnabled.Store(false)
}

// SetVolume sets the deck gain (>= 0).
func (d *Deck) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	d.volume.Store(v)
}

func (d *Deck) Volume() float64 { return d.volume.Load() }

// Loaded reports whether a track is loaded.
func (d *Deck) Loaded() bool { return d.current.Load() != nil }

// Track returns the loaded track's analysis, or nil.
func (d *Deck) Track() *track.Analysis {
	if lt := d.current.Load(); lt != nil {
		return lt.info
	}
	return nil
}

// IsPlaying reports whether the transport is in the playing state.
func (d *Deck) IsPlaying() bool { return d.transport.Load() == Playing }

// Transport returns the raw transport state.
func (d *Deck) Transport() int32 { return d.transport.Load() }

// PositionSeconds returns the playhead position in seconds.
func (d *Deck) PositionSeconds() float64 {
	return audio.FramesToSeconds(int(d.position.Load()))
}

// Duration returns the loaded track length in seconds, 0 if unloaded.
func (d *Deck) Duration() float64 {
	if lt := d.current.Load(); lt != nil {
		return audio.FramesToSeconds(lt.frames())
	}
	return 0
}

// TimeRemaining returns seconds left until the end of the loaded audio.
func (d *Deck) TimeRemaining() float64 {
	rem := d.Duration() - d.PositionSeconds()
	if rem < 0 {
		return 0
	}
	return rem
}

// Progress returns playback progress in [0,1].
func (d *Deck) Progress() float64 {
	dur := d.Duration()
	if dur == 0 {
		return 0
	}
	return d.PositionSeconds() / dur
}

// Render fills buf (interleaved stereo, len = frames*2) with the next audio
// block scaled by the deck volume. If nothing is playable it fills silence:
// silence is the contract for "nothing to render", it keeps the callback
// cadence intact. Reaching the end zero-pads the tail and flips the
// transport to stopped. Real-time safe: no allocation, no locks, no I/O.
func (d *Deck) Render(buf []float32) {
	lt := d.current.Load()
	if lt == nil || d.transport.Load() != Playing {
		zero(buf)
		return
	}

	totalFrames := int64(lt.frames())
	pos := d.position.Load()
	if pos >= totalFrames {
		d.transport.Store(Stopped)
		zero(buf)
		return
	}

	want := len(buf) / audio.Channels
	vol := float32(d.volume.Load())
	filled := 0

	loop := d.loopEnabled.Load()
	loopStart, loopEnd := d.loopStart.Load(), d.loopEnd.Load()
	if loop && (loopEnd > totalFrames || loopEnd <= loopStart) {
		loop = false
	}

	for filled < want {
		if loop && pos >= loopEnd {
			pos = loopStart
		}
		limit := totalFrames
		if loop && loopEnd < limit {
			limit = loopEnd
		}
		if pos >= limit {
			break
		}
		n := want - filled
		if avail := int(limit - pos); n > avail {
			n = avail
		}
		src := lt.samples[pos*audio.Channels : (pos+int64(n))*audio.Channels]
		dst := buf[filled*audio.Channels:]
		for i, s := range src {
			dst[i] = s * vol
		}
		pos += int64(n)
		filled += n
	}

	if filled < want {
		// Ran out of audio: pad the tail with silence and stop.
		zero(buf[filled*audio.Channels:])
		pos = totalFrames
		d.transport.Store(Stopped)
	}
	d.position.Store(pos)
}

func zero(buf []float32) {
	for i := range buf {
		buf[i] = 0
	}
}
