// Package plan turns a pair of track analyses into a timed transition:
// where to leave the outgoing track, where to drop into the incoming one,
// and the ordered timeline of mix actions in between.
package plan

import (
	"errors"
	"fmt"
	"math"

	"github.com/cueflow/cueflow/internal/compat"
	"github.com/cueflow/cueflow/internal/track"
)

// ErrInsufficientLength means the outgoing track is too short for the
// requested transition duration. Callers fall back to a shorter duration
// or reject the pairing.
var ErrInsufficientLength = errors.New("track too short for transition")

// ActionKind identifies one mix action on the timeline. A closed enum so
// the advisor and automation engine never string-match.
type ActionKind int

const (
	ActionStartIncoming ActionKind = iota // start deck B, crossfader untouched
	ActionBassCutOutgoing
	ActionBassInIncoming
	ActionHighInIncoming
	ActionMidInIncoming
	ActionCrossfadeCenter
	ActionFadeOutOutgoing
	ActionIncomingOnly // crossfader hard to B, stop deck A
)

func (k ActionKind) String() string {
	switch k {
	case ActionStartIncoming:
		return "start_incoming"
	case ActionBassCutOutgoing:
		return "bass_cut_outgoing"
	case ActionBassInIncoming:
		return "bass_in_incoming"
	case ActionHighInIncoming:
		return "high_in_incoming"
	case ActionMidInIncoming:
		return "mid_in_incoming"
	case ActionCrossfadeCenter:
		return "crossfade_center"
	case ActionFadeOutOutgoing:
		return "fade_out_outgoing"
	case ActionIncomingOnly:
		return "incoming_only"
	}
	return "unknown"
}

// Event is one timed action. Offset is seconds from transition start.
// The numeric parameters are enough to execute the action without any
// further lookups: which deck, the target EQ gain, the target crossfader.
type Event struct {
	Offset     float64    `json:"offset"`
	Beat       int        `json:"beat"`
	Kind       ActionKind `json:"kind"`
	Deck       string     `json:"deck,omitempty"`
	EQBand     string     `json:"eq_band,omitempty"`
	TargetGain float64    `json:"target_gain"`
	Crossfader float64    `json:"crossfader"`
}

// Strategy carries advisory metadata about how the mix should feel.
type Strategy struct {
	Speed      string  `json:"speed"` // smooth / moderate / quick
	BPMDiff    float64 `json:"bpm_diff"`
	EnergyDiff float64 `json:"energy_diff"`
	EQStrategy string  `json:"eq_strategy"`
	Confidence string  `json:"confidence"` // high / medium / low
}

// Plan is one complete transition. Built once, consumed read-only by the
// automation engine and the advisor, discarded when the transition ends.
type Plan struct {
	TrackA *track.Analysis `json:"track_a"`
	TrackB *track.Analysis `json:"track_b"`

	TransitionStart float64 `json:"transition_start"` // seconds into track A
	CuePoint        float64 `json:"cue_point"`        // seconds into track B
	Duration        float64 `json:"duration"`         // seconds
	DurationBars    int     `json:"duration_bars"`
	BarLength       float64 `json:"bar_length"`

	Compatibility compat.Score `json:"compatibility"`
	Strategy      Strategy     `json:"strategy"`
	Timeline      []Event      `json:"timeline"`
}

// End returns the final timeline offset, equal to Duration.
func (p *Plan) End() float64 {
	if len(p.Timeline) == 0 {
		return 0
	}
	return p.Timeline[len(p.Timeline)-1].Offset
}

// Policy holds the tunable duration-band thresholds. The contract is only
// that the chosen duration is one of the three bar counts and grows with
// mix difficulty; the cutoffs themselves are tuning knobs.
type Policy struct {
	QuickBars    int
	StandardBars int
	LongBars     int

	QuickMinScore  float64 // compatibility needed for the quick mix
	QuickMaxEnergy float64 // max energy delta for the quick mix
	LongMinEnergy  float64 // energy delta that forces the long blend
}

// DefaultPolicy mirrors classic DJ practice: 8 bars for an easy swap,
// 32 for a big energy shift, 16 otherwise.
func DefaultPolicy() Policy {
	return Policy{
		QuickBars:      8,
		StandardBars:   16,
		LongBars:       32,
		QuickMinScore:  0.8,
		QuickMaxEnergy: 0.15,
		LongMinEnergy:  0.3,
	}
}

// Planner builds transition plans under a duration policy.
type Planner struct {
	policy Policy
}

// New creates a planner. A zero-valued policy is replaced with defaults.
func New(policy Policy) *Planner {
	if policy.QuickBars == 0 {
		policy = DefaultPolicy()
	}
	return &Planner{policy: policy}
}

// Plan builds the transition from a into b using the policy's duration
// band. Fails with track.ErrInvalidTrack on malformed analyses and
// ErrInsufficientLength when a is too short for the chosen duration.
func (p *Planner) Plan(a, b *track.Analysis) (*Plan, error) {
	score, err := compat.Compute(a, b)
	if err != nil {
		return nil, err
	}
	return p.PlanBars(a, b, p.chooseBars(score, a, b))
}

// PlanBars builds the transition with an explicit bar count, one of the
// policy's three bands.
func (p *Planner) PlanBars(a, b *track.Analysis, bars int) (*Plan, error) {
	score, err := compat.Compute(a, b)
	if err != nil {
		return nil, err
	}

	barLength := a.BarLength()
	duration := float64(bars) * barLength
	transitionStart := a.Duration - duration
	if transitionStart < 0 {
		return nil, fmt.Errorf("%w: %s is %.1fs, %d bars need %.1fs",
			ErrInsufficientLength, a.Name(), a.Duration, bars, duration)
	}

	return &Plan{
		TrackA:          a,
		TrackB:          b,
		TransitionStart: transitionStart,
		CuePoint:        cuePoint(b),
		Duration:        duration,
		DurationBars:    bars,
		BarLength:       barLength,
		Compatibility:   score,
		Strategy:        strategyFor(a, b),
		Timeline:        timeline(bars, barLength),
	}, nil
}

// FallbackBars lists the policy durations at or below the given bar count,
// longest first. The automation engine walks it when a plan comes back with
// ErrInsufficientLength.
func (p *Planner) FallbackBars(bars int) []int {
	all := []int{p.policy.LongBars, p.policy.StandardBars, p.policy.QuickBars}
	var out []int
	for _, b := range all {
		if b <= bars {
			out = append(out, b)
		}
	}
	return out
}

func (p *Planner) chooseBars(score compat.Score, a, b *track.Analysis) int {
	energyDelta := math.Abs(a.Energy - b.Energy)
	switch {
	case energyDelta >= p.policy.LongMinEnergy:
		return p.policy.LongBars
	case score.Value >= p.policy.QuickMinScore && energyDelta <= p.policy.QuickMaxEnergy:
		return p.policy.QuickBars
	default:
		return p.policy.StandardBars
	}
}

// cuePoint approximates "end of intro": the 16th detected beat when the
// grid is long enough, the 8th on short grids, otherwise the very start.
func cuePoint(t *track.Analysis) float64 {
	switch {
	case len(t.BeatTimes) >= 16:
		return t.BeatTimes[15]
	case len(t.BeatTimes) >= 8:
		return t.BeatTimes[7]
	default:
		return 0
	}
}

func strategyFor(a, b *track.Analysis) Strategy {
	bpmDiff := math.Abs(a.BPM - b.BPM)
	energyDiff := math.Abs(a.Energy - b.Energy)

	speed := "quick"
	switch {
	case bpmDiff <= 3:
		speed = "smooth"
	case bpmDiff <= 6:
		speed = "moderate"
	}

	eq := "balanced"
	if b.Energy > a.Energy+0.05 {
		eq = "gradual_energy_increase"
	} else if b.Energy < a.Energy-0.05 {
		eq = "energy_decrease"
	}

	confidence := "low"
	switch {
	case bpmDiff <= 3 && energyDiff <= 0.15:
		confidence = "high"
	case bpmDiff <= 6 && energyDiff <= 0.3:
		confidence = "medium"
	}

	return Strategy{
		Speed:      speed,
		BPMDiff:    math.Round(bpmDiff*10) / 10,
		EnergyDiff: math.Round(energyDiff*100) / 100,
		EQStrategy: eq,
		Confidence: confidence,
	}
}

// timeline lays mix actions on the beat grid. All three shapes share the
// same milestones (start incoming at 0%, bass swap, crossfader to center at
// 50%, fade at 75%, done at 100%); the long blend additionally walks the
// incoming track's highs and mids in before touching bass.
func timeline(bars int, barLength float64) []Event {
	beatLen := barLength / 4
	totalBeats := bars * 4
	at := func(beat int) float64 { return float64(beat) * beatLen }

	var events []Event
	add := func(beat int, e Event) {
		e.Beat = beat
		e.Offset = at(beat)
		events = append(events, e)
	}

	add(0, Event{Kind: ActionStartIncoming, Deck: "B", Crossfader: -1})

	if bars >= 32 {
		add(totalBeats/8, Event{Kind: ActionHighInIncoming, Deck: "B", EQBand: "high", TargetGain: 1})
		add(totalBeats/4, Event{Kind: ActionMidInIncoming, Deck: "B", EQBand: "mid", TargetGain: 1})
		add(totalBeats*3/8, Event{Kind: ActionBassCutOutgoing, Deck: "A", EQBand: "bass", TargetGain: 0})
		add(totalBeats/2, Event{Kind: ActionBassInIncoming, Deck: "B", EQBand: "bass", TargetGain: 1})
		add(totalBeats*5/8, Event{Kind: ActionCrossfadeCenter, Crossfader: 0})
	} else {
		add(totalBeats/8, Event{Kind: ActionBassCutOutgoing, Deck: "A", EQBand: "bass", TargetGain: 0})
		add(totalBeats/4, Event{Kind: ActionBassInIncoming, Deck: "B", EQBand: "bass", TargetGain: 1})
		add(totalBeats/2, Event{Kind: ActionCrossfadeCenter, Crossfader: 0})
	}

	add(totalBeats*3/4, Event{Kind: ActionFadeOutOutgoing, Deck: "A", Crossfader: 1})
	add(totalBeats, Event{Kind: ActionIncomingOnly, Deck: "B", Crossfader: 1})

	return events
}
