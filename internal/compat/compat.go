// Package compat scores how well two analyzed tracks will mix together,
// combining tempo closeness, Camelot-wheel harmony and energy similarity.
package compat

import (
	"math"

	"github.com/cueflow/cueflow/internal/track"
)

// Tier buckets a score for display.
type Tier string

const (
	TierPerfect   Tier = "perfect"
	TierGood      Tier = "good"
	TierOK        Tier = "ok"
	TierDifficult Tier = "difficult"
)

// Term weights and BPM band edges.
const (
	bpmWeight    = 0.4
	keyWeight    = 0.3
	energyWeight = 0.3

	bpmPerfectDelta = 6.0  // within this the BPM term is 1.0
	bpmZeroDelta    = 26.0 // at this delta the BPM term reaches 0
)

// Score is the derived compatibility of a track pair. Not persisted.
type Score struct {
	Value      float64 `json:"value"` // 0..1
	Tier       Tier    `json:"tier"`
	BPMTerm    float64 `json:"bpm_term"`
	KeyTerm    float64 `json:"key_term"`
	EnergyTerm float64 `json:"energy_term"`
}

// Compute scores a pair of tracks. Symmetric: Compute(a,b) == Compute(b,a).
// Fails with track.ErrInvalidTrack when either record is malformed.
func Compute(a, b *track.Analysis) (Score, error) {
	if err := a.Validate(); err != nil {
		return Score{}, err
	}
	if err := b.Validate(); err != nil {
		return Score{}, err
	}

	bpmTerm := bpmCloseness(a.BPM, b.BPM)
	keyTerm := camelotAffinity(a.Camelot, b.Camelot)
	energyTerm := math.Max(0, 1-math.Abs(a.Energy-b.Energy))

	value := bpmWeight*bpmTerm + keyWeight*keyTerm + energyWeight*energyTerm
	return Score{
		Value:      value,
		Tier:       tierFor(value),
		BPMTerm:    bpmTerm,
		KeyTerm:    keyTerm,
		EnergyTerm: energyTerm,
	}, nil
}

func bpmCloseness(bpmA, bpmB float64) float64 {
	delta := math.Abs(bpmA - bpmB)
	if delta <= bpmPerfectDelta {
		return 1.0
	}
	return math.Max(0, 1-(delta-bpmPerfectDelta)/(bpmZeroDelta-bpmPerfectDelta))
}

// camelotAffinity implements the harmonic-mixing rules on the Camelot wheel:
// identical code or relative major/minor is 1.0, an adjacent hour with the
// same letter is 0.8 (the wheel wraps, 12 and 1 are neighbours), anything
// else 0.5. Adjacency is checked in both directions so the term is symmetric.
func camelotAffinity(codeA, codeB string) float64 {
	hourA, letterA, errA := track.ParseCamelot(codeA)
	hourB, letterB, errB := track.ParseCamelot(codeB)
	if errA != nil || errB != nil {
		return 0.5
	}
	if hourA == hourB {
		return 1.0 // same code, or relative major/minor
	}
	if letterA == letterB {
		diff := (hourB - hourA + 12) % 12
		if diff == 1 || diff == 11 {
			return 0.8
		}
	}
	return 0.5
}

func tierFor(v float64) Tier {
	switch {
	case v >= 0.8:
		return TierPerfect
	case v >= 0.6:
		return TierGood
	case v >= 0.4:
		return TierOK
	default:
		return TierDifficult
	}
}
