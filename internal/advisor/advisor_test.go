package advisor

import (
	"strings"
	"testing"

	"github.com/cueflow/cueflow/internal/mixer"
	"github.com/cueflow/cueflow/internal/plan"
	"github.com/cueflow/cueflow/internal/track"
)

func mkTrack(id string, duration float64) *track.Analysis {
	return &track.Analysis{ID: id, BPM: 128, Camelot: "8A", Energy: 0.5, Duration: duration}
}

// statusAt fakes a mixer snapshot with deck A playing at the given position.
func statusAt(pos, duration float64) mixer.Status {
	return mixer.Status{
		DeckA: mixer.DeckStatus{
			Loaded:        true,
			Playing:       true,
			Position:      pos,
			Duration:      duration,
			TimeRemaining: duration - pos,
		},
	}
}

func planFor(t *testing.T) *plan.Plan {
	t.Helper()
	// 128 BPM, 16 bars: 30s transition starting at 150s.
	p, err := plan.New(plan.DefaultPolicy()).PlanBars(mkTrack("a", 180), mkTrack("b", 200), 16)
	if err != nil {
		t.Fatalf("PlanBars: %v", err)
	}
	return p
}

func TestSuggestIdle(t *testing.T) {
	a := New(Config{})
	s := a.Suggest(mixer.Status{})
	if s.Action != "idle" || s.Urgency != UrgencyLow {
		t.Errorf("idle suggestion = %+v", s)
	}
}

func TestSuggestNoPlan(t *testing.T) {
	a := New(Config{})
	s := a.Suggest(statusAt(10, 180))
	if s.Action != "playing" {
		t.Errorf("Action = %q, want playing", s.Action)
	}
	if !strings.Contains(s.Message, "no transition planned") {
		t.Errorf("Message = %q", s.Message)
	}
}

func TestSuggestBands(t *testing.T) {
	tests := []struct {
		name        string
		pos         float64
		wantAction  string
		wantUrgency string
	}{
		{"far out", 50, "playing", UrgencyLow},
		{"inside prepare window", 100, "prepare", UrgencyMedium},
		{"inside ready window", 140, "prepare", UrgencyHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(Config{PrepareWindow: 60, ReadyWindow: 16})
			a.SetPlan(planFor(t), "A")
			s := a.Suggest(statusAt(tt.pos, 180))
			if s.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", s.Action, tt.wantAction)
			}
			if s.Urgency != tt.wantUrgency {
				t.Errorf("Urgency = %q, want %q", s.Urgency, tt.wantUrgency)
			}
		})
	}
}

func TestSuggestMilestoneOnce(t *testing.T) {
	a := New(Config{PrepareWindow: 60, ReadyWindow: 16})
	a.SetPlan(planFor(t), "A")

	// Just past the first milestone (start incoming at 150s).
	s1 := a.Suggest(statusAt(150.5, 180))
	if s1.Action != "start_incoming" {
		t.Fatalf("first poll Action = %q, want start_incoming", s1.Action)
	}

	// Same position polled again: milestone must not repeat.
	s2 := a.Suggest(statusAt(150.6, 180))
	if s2.Action == "start_incoming" {
		t.Fatal("milestone reported twice")
	}
	if s2.Action != "transitioning" {
		t.Errorf("second poll Action = %q, want transitioning", s2.Action)
	}
}

func TestSuggestWalksMilestones(t *testing.T) {
	a := New(Config{PrepareWindow: 60, ReadyWindow: 16})
	p := planFor(t)
	a.SetPlan(p, "A")

	a.Suggest(statusAt(150.5, 180)) // consume start_incoming

	// Jump past the bass cut (150 + 3.75).
	s := a.Suggest(statusAt(154.5, 180))
	if s.Action != "bass_cut_outgoing" {
		t.Errorf("Action = %q, want bass_cut_outgoing", s.Action)
	}
}

func TestSuggestComplete(t *testing.T) {
	a := New(Config{PrepareWindow: 60, ReadyWindow: 16})
	a.SetPlan(planFor(t), "A")
	s := a.Suggest(statusAt(180.5, 200))
	if s.Action != "complete" {
		t.Errorf("Action = %q, want complete", s.Action)
	}
}

func TestSetPlanResetsTracking(t *testing.T) {
	a := New(Config{PrepareWindow: 60, ReadyWindow: 16})
	a.SetPlan(planFor(t), "A")
	a.Suggest(statusAt(150.5, 180))

	a.SetPlan(planFor(t), "A")
	s := a.Suggest(statusAt(150.5, 180))
	if s.Action != "start_incoming" {
		t.Errorf("after plan reset Action = %q, want start_incoming again", s.Action)
	}
}

func TestSuggestOutgoingDeckB(t *testing.T) {
	a := New(Config{PrepareWindow: 60, ReadyWindow: 16})
	a.SetPlan(planFor(t), "B")

	st := mixer.Status{
		DeckB: mixer.DeckStatus{Loaded: true, Playing: true, Position: 140, Duration: 180, TimeRemaining: 40},
	}
	s := a.Suggest(st)
	if s.Action != "prepare" || s.Urgency != UrgencyHigh {
		t.Errorf("outgoing B suggestion = %+v, want urgent prepare", s)
	}
}
