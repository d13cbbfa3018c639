package audio

import "time"

const (
	SampleRate   = 44100
	Channels     = 2
	BlockSize    = 1024                 // frames per render block
	BlockSamples = BlockSize * Channels // interleaved float32 samples per block
)

// BlockDuration is the wall-clock time one render block covers (~23ms).
// The render path has to finish inside this budget or the device underruns.
const BlockDuration = time.Duration(BlockSize) * time.Second / SampleRate

// SecondsToFrames converts a position in seconds to a frame index.
func SecondsToFrames(sec float64) int {
	return int(sec * SampleRate)
}

// FramesToSeconds converts a frame index to seconds.
func FramesToSeconds(frames int) float64 {
	return float64(frames) / SampleRate
}
