package mixer

import (
	"errors"
	"fmt"
	"log"

	"github.com/cueflow/cueflow/internal/audio"
	"github.com/ebitengine/oto/v3"
)

// ErrDevice marks an unavailable or failed audio output device.
var ErrDevice = errors.New("audio device unavailable")

// device wraps the oto output stream. oto pulls PCM through an io.Reader
// from its own playback goroutine, which becomes our render domain.
type device struct {
	ctx    *oto.Context
	player *oto.Player
}

// deviceStream adapts the mixer's block renderer to oto's pull model.
type deviceStream struct {
	m   *Mixer
	buf []float32
}

func (s *deviceStream) Read(p []byte) (int, error) {
	// 2 bytes per int16 sample.
	samples := len(p) / 2
	if samples == 0 {
		return 0, nil
	}
	if samples > len(s.buf) {
		samples = len(s.buf)
	}
	block := s.buf[:samples]
	s.m.RenderBlock(block)
	for i, f := range block {
		v := f
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		s16 := int16(v * 32767)
		p[i*2] = byte(s16)
		p[i*2+1] = byte(uint16(s16) >> 8)
	}
	return samples * 2, nil
}

// Start opens the real-time output stream. Fails with ErrDevice when no
// output device can be opened. Calling Start on a running mixer is a no-op.
func (m *Mixer) Start() error {
	if m.running.Load() {
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   audio.SampleRate,
		ChannelCount: audio.Channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDevice, err)
	}
	<-ready

	stream := &deviceStream{m: m, buf: make([]float32, audio.BlockSamples)}
	player := ctx.NewPlayer(stream)
	player.SetBufferSize(audio.SampleRate / 10 * audio.Channels * 2) // ~100ms
	player.Play()

	m.device = &device{ctx: ctx, player: player}
	m.running.Store(true)
	log.Printf("Mixer: output device started (%dHz, block %d)", audio.SampleRate, audio.BlockSize)
	return nil
}

// Stop closes the output stream. Idempotent.
func (m *Mixer) Stop() {
	if !m.running.Load() {
		return
	}
	if m.device != nil && m.device.player != nil {
		m.device.player.Close()
	}
	m.device = nil
	m.running.Store(false)
	log.Printf("Mixer: output device stopped")
}

// Running reports whether the output stream is open.
func (m *Mixer) Running() bool { return m.running.Load() }
