package mixer

import "github.com/cueflow/cueflow/internal/deck"

// DeckStatus is the per-deck slice of a status snapshot.
type DeckStatus struct {
	Loaded        bool    `json:"loaded"`
	Track         string  `json:"track,omitempty"`
	Playing       bool    `json:"playing"`
	Position      float64 `json:"position"`
	Duration      float64 `json:"duration"`
	TimeRemaining float64 `json:"time_remaining"`
	Progress      float64 `json:"progress"`
	Volume        float64 `json:"volume"`
	Peak          float64 `json:"peak"`
	FaderLevel    float64 `json:"fader_level"`
}

// Status is one observation of the whole mixer, safe to take from the
// control domain at any time. Fields may come from adjacent render ticks;
// that skew is within one block period and acceptable.
type Status struct {
	DeckA        DeckStatus `json:"deck_a"`
	DeckB        DeckStatus `json:"deck_b"`
	Crossfader   float64    `json:"crossfader"`
	MasterVolume float64    `json:"master_volume"`
	MasterPeak   float64    `json:"master_peak"`
	Running      bool       `json:"running"`
}

// Snapshot captures the current mixer state.
func (m *Mixer) Snapshot() Status {
	gainA, gainB := CrossfadeGains(m.crossfader.Load())
	return Status{
		DeckA:        deckStatus(m.DeckA, m.peakA.Load(), gainA),
		DeckB:        deckStatus(m.DeckB, m.peakB.Load(), gainB),
		Crossfader:   m.crossfader.Load(),
		MasterVolume: m.masterVolume.Load(),
		MasterPeak:   m.peakMaster.Load(),
		Running:      m.running.Load(),
	}
}

func deckStatus(d *deck.Deck, peak, fader float64) DeckStatus {
	s := DeckStatus{
		Loaded:        d.Loaded(),
		Playing:       d.IsPlaying(),
		Position:      d.PositionSeconds(),
		Duration:      d.Duration(),
		TimeRemaining: d.TimeRemaining(),
		Progress:      d.Progress(),
		Volume:        d.Volume(),
		Peak:          peak,
		FaderLevel:    fader,
	}
	if t := d.Track(); t != nil {
		s.Track = t.Name()
	}
	return s
}
