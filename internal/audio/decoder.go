package audio

import (
	"encoding/binary"
	"fmt"
	"os/exec"
)

// DecodeFile runs FFmpeg to decode an audio file to raw PCM.
// Returns interleaved stereo float32 samples at 44.1kHz.
func DecodeFile(path string) ([]float32, error) {
	cmd := exec.Command("ffmpeg",
		"-i", path,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "44100",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg decode %s: %w", path, err)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]float32, len(out)/2)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
		samples[i] = float32(s) / 32768.0
	}

	return samples, nil
}

// FloatsToPCM converts float32 samples to int16 PCM, clamping to range.
func FloatsToPCM(samples []float32, out []int16) []int16 {
	if cap(out) < len(samples) {
		out = make([]int16, len(samples))
	}
	out = out[:len(samples)]
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		out[i] = int16(s * 32767)
	}
	return out
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
