// Package advisor turns live mixer state plus the active transition plan
// into the single "what to do now" suggestion shown to the DJ.
package advisor

import (
	"fmt"
	"sync"

	"github.com/cueflow/cueflow/internal/mixer"
	"github.com/cueflow/cueflow/internal/plan"
)

// Urgency levels for a suggestion.
const (
	UrgencyLow    = "low"
	UrgencyMedium = "medium"
	UrgencyHigh   = "high"
)

// Suggestion is the current human-facing advice.
type Suggestion struct {
	Message string             `json:"message"`
	Urgency string             `json:"urgency"`
	Action  string             `json:"action"`
	Params  map[string]float64 `json:"params,omitempty"`
}

// Config holds the advisory time bands, in seconds before transition start.
type Config struct {
	PrepareWindow float64 // "prepare next track" starts here
	ReadyWindow   float64 // "get ready" inside this window
}

// DefaultConfig matches the automation engine's load/arm cutoffs.
func DefaultConfig() Config {
	return Config{PrepareWindow: 60, ReadyWindow: 16}
}

// Advisor is side-effect-free apart from remembering which timeline
// milestone it last reported, so polling does not repeat suggestions.
type Advisor struct {
	cfg Config

	mu           sync.Mutex
	plan         *plan.Plan
	outgoing     string // deck id carrying the plan's outgoing track
	lastReported int
}

// New creates an advisor. Zero config gets defaults.
func New(cfg Config) *Advisor {
	if cfg.PrepareWindow == 0 {
		cfg = DefaultConfig()
	}
	return &Advisor{cfg: cfg, outgoing: "A", lastReported: -1}
}

// SetPlan installs the active transition plan and which deck holds the
// outgoing track. Resets milestone tracking. Pass nil to clear.
func (a *Advisor) SetPlan(p *plan.Plan, outgoingDeck string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.plan = p
	if outgoingDeck != "" {
		a.outgoing = outgoingDeck
	}
	a.lastReported = -1
}

// Suggest computes the current suggestion from a mixer snapshot.
func (a *Advisor) Suggest(st mixer.Status) Suggestion {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := st.DeckA
	if a.outgoing == "B" {
		out = st.DeckB
	}

	if a.plan == nil {
		if !st.DeckA.Playing && !st.DeckB.Playing {
			return Suggestion{Message: "Load a track and press play to start", Urgency: UrgencyLow, Action: "idle"}
		}
		return Suggestion{
			Message: fmt.Sprintf("Playing, %.0fs remaining, no transition planned", out.TimeRemaining),
			Urgency: UrgencyLow,
			Action:  "playing",
		}
	}

	untilStart := a.plan.TransitionStart - out.Position

	switch {
	case untilStart > a.cfg.PrepareWindow:
		return Suggestion{
			Message: fmt.Sprintf("Playing normally, transition in %.0fs", untilStart),
			Urgency: UrgencyLow,
			Action:  "playing",
		}
	case untilStart > 0:
		urgency := UrgencyMedium
		msg := fmt.Sprintf("Prepare next track: cue %s at %.1fs, %.0fs to transition",
			a.plan.TrackB.Name(), a.plan.CuePoint, untilStart)
		if untilStart <= a.cfg.ReadyWindow {
			urgency = UrgencyHigh
			msg = fmt.Sprintf("Get ready: transition in %.0fs", untilStart)
		}
		return Suggestion{
			Message: msg,
			Urgency: urgency,
			Action:  "prepare",
			Params:  map[string]float64{"cue_point": a.plan.CuePoint, "seconds_until": untilStart},
		}
	}

	elapsed := -untilStart
	if elapsed > a.plan.Duration {
		return Suggestion{Message: "Transition complete", Urgency: UrgencyLow, Action: "complete"}
	}

	// Most recently passed milestone not yet reported.
	idx := -1
	for i, ev := range a.plan.Timeline {
		if ev.Offset <= elapsed {
			idx = i
		}
	}
	if idx >= 0 && idx > a.lastReported {
		a.lastReported = idx
		ev := a.plan.Timeline[idx]
		s := eventSuggestion(ev)
		return s
	}

	// Milestone already reported: point at the next one instead.
	if next := idx + 1; next < len(a.plan.Timeline) {
		ev := a.plan.Timeline[next]
		return Suggestion{
			Message: fmt.Sprintf("In transition, next: %s in %.1fs", ev.Kind, ev.Offset-elapsed),
			Urgency: UrgencyHigh,
			Action:  "transitioning",
			Params:  map[string]float64{"seconds_until": ev.Offset - elapsed},
		}
	}
	return Suggestion{Message: "Transition complete", Urgency: UrgencyLow, Action: "complete"}
}

func eventSuggestion(ev plan.Event) Suggestion {
	s := Suggestion{Urgency: UrgencyHigh, Action: ev.Kind.String(), Params: map[string]float64{}}
	switch ev.Kind {
	case plan.ActionStartIncoming:
		s.Message = "Start deck B, keep the crossfader where it is"
		s.Params["crossfader"] = ev.Crossfader
	case plan.ActionBassCutOutgoing:
		s.Message = "Cut the bass on deck A"
		s.Params["eq_bass"] = ev.TargetGain
	case plan.ActionBassInIncoming:
		s.Message = "Bring the bass in on deck B"
		s.Params["eq_bass"] = ev.TargetGain
	case plan.ActionHighInIncoming:
		s.Message = "Open the highs on deck B"
		s.Params["eq_high"] = ev.TargetGain
	case plan.ActionMidInIncoming:
		s.Message = "Open the mids on deck B"
		s.Params["eq_mid"] = ev.TargetGain
	case plan.ActionCrossfadeCenter:
		s.Message = "Crossfader to center"
		s.Params["crossfader"] = ev.Crossfader
	case plan.ActionFadeOutOutgoing:
		s.Message = "Fade out deck A"
		s.Params["crossfader"] = ev.Crossfader
	case plan.ActionIncomingOnly:
		s.Message = "Crossfader fully to B, stop deck A"
		s.Params["crossfader"] = ev.Crossfader
	default:
		s.Message = ev.Kind.String()
	}
	return s
}
