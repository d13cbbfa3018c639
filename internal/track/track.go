package track

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidTrack marks a malformed analysis record fed to the scorer or planner.
var ErrInvalidTrack = errors.New("invalid track analysis")

// Analysis is the fixed per-track record produced by the analysis stage.
// The mixing core consumes it read-only and never mutates it.
type Analysis struct {
	ID        string    `json:"id"`
	FilePath  string    `json:"file_path"`
	Title     string    `json:"title,omitempty"`
	BPM       float64   `json:"bpm"`
	Key       string    `json:"key"`
	Scale     string    `json:"scale"`
	Camelot   string    `json:"camelot"`
	Energy    float64   `json:"energy"`
	Duration  float64   `json:"duration"` // seconds
	BeatTimes []float64 `json:"beat_times,omitempty"`
}

// Name returns a display name for the track.
func (a *Analysis) Name() string {
	if a.Title != "" {
		return a.Title
	}
	if a.ID != "" {
		return a.ID
	}
	return a.FilePath
}

// Validate checks the record against the contract the scorer and planner
// rely on. All violations map to ErrInvalidTrack.
func (a *Analysis) Validate() error {
	if a.BPM <= 0 {
		return fmt.Errorf("%w: %s: bpm %.2f must be > 0", ErrInvalidTrack, a.Name(), a.BPM)
	}
	if a.Energy < 0 || a.Energy > 1 {
		return fmt.Errorf("%w: %s: energy %.2f outside [0,1]", ErrInvalidTrack, a.Name(), a.Energy)
	}
	if a.Duration <= 0 {
		return fmt.Errorf("%w: %s: duration %.2f must be > 0", ErrInvalidTrack, a.Name(), a.Duration)
	}
	if _, _, err := ParseCamelot(a.Camelot); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidTrack, a.Name(), err)
	}
	for i := 1; i < len(a.BeatTimes); i++ {
		if a.BeatTimes[i] <= a.BeatTimes[i-1] {
			return fmt.Errorf("%w: %s: beat times not increasing at index %d", ErrInvalidTrack, a.Name(), i)
		}
	}
	return nil
}

// ParseCamelot splits a Camelot wheel code like "8A" into its hour (1-12)
// and letter ('A' minor / 'B' major).
func ParseCamelot(code string) (hour int, letter byte, err error) {
	if len(code) < 2 {
		return 0, 0, fmt.Errorf("camelot code %q too short", code)
	}
	letter = code[len(code)-1]
	if letter != 'A' && letter != 'B' {
		return 0, 0, fmt.Errorf("camelot code %q: letter must be A or B", code)
	}
	hour, convErr := strconv.Atoi(code[:len(code)-1])
	if convErr != nil || hour < 1 || hour > 12 {
		return 0, 0, fmt.Errorf("camelot code %q: hour must be 1-12", code)
	}
	return hour, letter, nil
}

// BarLength returns the length of one 4/4 bar in seconds at the track's tempo.
func (a *Analysis) BarLength() float64 {
	return (60.0 / a.BPM) * 4
}
