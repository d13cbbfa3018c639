package plan

import (
	"errors"
	"math"
	"testing"

	"github.com/cueflow/cueflow/internal/track"
)

func mkTrack(id string, bpm, energy, duration float64) *track.Analysis {
	return &track.Analysis{
		ID:       id,
		BPM:      bpm,
		Camelot:  "8A",
		Energy:   energy,
		Duration: duration,
	}
}

func TestPlanBarsGeometry(t *testing.T) {
	a := mkTrack("a", 128, 0.5, 180)
	b := mkTrack("b", 128, 0.5, 200)

	p, err := New(DefaultPolicy()).PlanBars(a, b, 16)
	if err != nil {
		t.Fatalf("PlanBars: %v", err)
	}

	// 128 BPM: bar is 1.875s, 16 bars is 30s, start at 150s into a 180s track.
	if math.Abs(p.BarLength-1.875) > 1e-9 {
		t.Errorf("BarLength = %v, want 1.875", p.BarLength)
	}
	if math.Abs(p.Duration-30) > 1e-9 {
		t.Errorf("Duration = %v, want 30", p.Duration)
	}
	if math.Abs(p.TransitionStart-150) > 1e-9 {
		t.Errorf("TransitionStart = %v, want 150", p.TransitionStart)
	}
	if math.Abs(p.End()-p.Duration) > 1e-9 {
		t.Errorf("End = %v, want Duration %v", p.End(), p.Duration)
	}
}

func TestTimelineMilestones(t *testing.T) {
	a := mkTrack("a", 128, 0.5, 180)
	b := mkTrack("b", 128, 0.5, 200)

	p, err := New(DefaultPolicy()).PlanBars(a, b, 16)
	if err != nil {
		t.Fatalf("PlanBars: %v", err)
	}

	wantKinds := []ActionKind{
		ActionStartIncoming,
		ActionBassCutOutgoing,
		ActionBassInIncoming,
		ActionCrossfadeCenter,
		ActionFadeOutOutgoing,
		ActionIncomingOnly,
	}
	if len(p.Timeline) != len(wantKinds) {
		t.Fatalf("timeline has %d events, want %d", len(p.Timeline), len(wantKinds))
	}
	for i, want := range wantKinds {
		if p.Timeline[i].Kind != want {
			t.Errorf("event %d kind = %v, want %v", i, p.Timeline[i].Kind, want)
		}
	}

	// 64 beats at 0.46875s each: milestones at 0%, 12.5%, 25%, 50%, 75%, 100%.
	wantOffsets := []float64{0, 3.75, 7.5, 15, 22.5, 30}
	for i, want := range wantOffsets {
		if math.Abs(p.Timeline[i].Offset-want) > 1e-9 {
			t.Errorf("event %d offset = %v, want %v", i, p.Timeline[i].Offset, want)
		}
	}

	for i := 1; i < len(p.Timeline); i++ {
		if p.Timeline[i].Offset < p.Timeline[i-1].Offset {
			t.Fatalf("timeline not in time order at event %d", i)
		}
	}
}

func TestTimelineLongBlend(t *testing.T) {
	a := mkTrack("a", 120, 0.2, 300)
	b := mkTrack("b", 120, 0.8, 300)

	p, err := New(DefaultPolicy()).PlanBars(a, b, 32)
	if err != nil {
		t.Fatalf("PlanBars: %v", err)
	}

	wantKinds := []ActionKind{
		ActionStartIncoming,
		ActionHighInIncoming,
		ActionMidInIncoming,
		ActionBassCutOutgoing,
		ActionBassInIncoming,
		ActionCrossfadeCenter,
		ActionFadeOutOutgoing,
		ActionIncomingOnly,
	}
	if len(p.Timeline) != len(wantKinds) {
		t.Fatalf("timeline has %d events, want %d", len(p.Timeline), len(wantKinds))
	}
	for i, want := range wantKinds {
		if p.Timeline[i].Kind != want {
			t.Errorf("event %d kind = %v, want %v", i, p.Timeline[i].Kind, want)
		}
	}
	// Highs and mids land before the bass swap.
	if !(p.Timeline[1].Offset < p.Timeline[3].Offset) {
		t.Error("highs should come in before the bass cut")
	}
}

func TestChooseBars(t *testing.T) {
	planner := New(DefaultPolicy())
	tests := []struct {
		name     string
		a        *track.Analysis
		b        *track.Analysis
		wantBars int
	}{
		{
			"close match gets quick blend",
			mkTrack("a", 128, 0.50, 600),
			mkTrack("b", 128, 0.55, 600),
			8,
		},
		{
			"energy jump gets long blend",
			mkTrack("a", 128, 0.2, 600),
			mkTrack("b", 128, 0.6, 600),
			32,
		},
		{
			"middle ground gets standard blend",
			mkTrack("a", 128, 0.5, 600),
			mkTrack("b", 140, 0.7, 600),
			16,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := planner.Plan(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Plan: %v", err)
			}
			if p.DurationBars != tt.wantBars {
				t.Errorf("DurationBars = %d, want %d", p.DurationBars, tt.wantBars)
			}
		})
	}
}

func TestPlanTooShort(t *testing.T) {
	a := mkTrack("a", 128, 0.5, 20) // 16 bars need 30s
	b := mkTrack("b", 128, 0.5, 200)

	_, err := New(DefaultPolicy()).PlanBars(a, b, 16)
	if !errors.Is(err, ErrInsufficientLength) {
		t.Fatalf("error = %v, want ErrInsufficientLength", err)
	}
}

func TestPlanRejectsInvalid(t *testing.T) {
	bad := mkTrack("bad", 0, 0.5, 200)
	good := mkTrack("good", 128, 0.5, 200)
	if _, err := New(DefaultPolicy()).Plan(bad, good); !errors.Is(err, track.ErrInvalidTrack) {
		t.Fatalf("error = %v, want ErrInvalidTrack", err)
	}
}

func TestFallbackBars(t *testing.T) {
	planner := New(DefaultPolicy())
	got := planner.FallbackBars(32)
	want := []int{32, 16, 8}
	if len(got) != len(want) {
		t.Fatalf("FallbackBars(32) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FallbackBars(32) = %v, want %v", got, want)
		}
	}
	if got := planner.FallbackBars(10); len(got) != 1 || got[0] != 8 {
		t.Errorf("FallbackBars(10) = %v, want [8]", got)
	}
}

func TestCuePoint(t *testing.T) {
	beats := func(n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = float64(i) * 0.5
		}
		return out
	}

	tests := []struct {
		name  string
		beats []float64
		want  float64
	}{
		{"long grid uses 16th beat", beats(64), 7.5},
		{"short grid uses 8th beat", beats(10), 3.5},
		{"no grid starts at zero", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := mkTrack("b", 128, 0.5, 200)
			b.BeatTimes = tt.beats
			a := mkTrack("a", 128, 0.5, 200)
			p, err := New(DefaultPolicy()).PlanBars(a, b, 16)
			if err != nil {
				t.Fatalf("PlanBars: %v", err)
			}
			if math.Abs(p.CuePoint-tt.want) > 1e-9 {
				t.Errorf("CuePoint = %v, want %v", p.CuePoint, tt.want)
			}
		})
	}
}

func TestStrategy(t *testing.T) {
	a := mkTrack("a", 128, 0.5, 600)
	b := mkTrack("b", 130, 0.6, 600)
	p, err := New(DefaultPolicy()).Plan(a, b)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p.Strategy.Speed != "smooth" {
		t.Errorf("Speed = %q, want smooth for 2 BPM apart", p.Strategy.Speed)
	}
	if p.Strategy.Confidence != "high" {
		t.Errorf("Confidence = %q, want high", p.Strategy.Confidence)
	}
	if p.Strategy.EQStrategy != "gradual_energy_increase" {
		t.Errorf("EQStrategy = %q, want gradual_energy_increase", p.Strategy.EQStrategy)
	}
}
