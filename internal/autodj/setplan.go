package autodj

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cueflow/cueflow/internal/plan"
	"github.com/cueflow/cueflow/internal/track"
)

// SetFile is the on-disk description of a set: named, ordered track ids
// resolved against the library at load time.
type SetFile struct {
	Name   string   `yaml:"name"`
	Tracks []string `yaml:"tracks"`
}

// LoadSetFile reads a YAML set description.
func LoadSetFile(path string) (*SetFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read set file: %w", err)
	}
	var sf SetFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return nil, fmt.Errorf("parse set file %s: %w", path, err)
	}
	if len(sf.Tracks) == 0 {
		return nil, fmt.Errorf("set file %s names no tracks", path)
	}
	return &sf, nil
}

// Resolve maps the set file's track ids onto library analyses, preserving
// set order. Unknown ids fail loudly; a set with a hole is not worth playing.
func (sf *SetFile) Resolve(library []*track.Analysis) ([]*track.Analysis, error) {
	byID := make(map[string]*track.Analysis, len(library))
	for _, t := range library {
		byID[t.ID] = t
	}
	out := make([]*track.Analysis, 0, len(sf.Tracks))
	for _, id := range sf.Tracks {
		t, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("set %q references unknown track %q", sf.Name, id)
		}
		out = append(out, t)
	}
	return out, nil
}

// SetTransition summarizes one planned hand-off inside a set.
type SetTransition struct {
	From          string  `json:"from" yaml:"from"`
	To            string  `json:"to" yaml:"to"`
	Bars          int     `json:"bars" yaml:"bars"`
	Duration      float64 `json:"duration_sec" yaml:"duration_sec"`
	Compatibility float64 `json:"compatibility" yaml:"compatibility"`
	Tier          string  `json:"tier" yaml:"tier"`
	EnergyFlow    string  `json:"energy_flow" yaml:"energy_flow"`
}

// SetPlan is the full preview of a set: every transition planned up front
// plus the estimated running time with overlaps subtracted.
type SetPlan struct {
	Name        string          `json:"name" yaml:"name"`
	Tracks      []string        `json:"tracks" yaml:"tracks"`
	Transitions []SetTransition `json:"transitions" yaml:"transitions"`
	TotalSec    float64         `json:"total_sec" yaml:"total_sec"`
}

// BuildSetPlan plans every consecutive pair in the set so the operator can
// see how it will flow before committing. Each pair gets the same fallback
// treatment the live engine uses.
func BuildSetPlan(planner *plan.Planner, name string, tracks []*track.Analysis) (*SetPlan, error) {
	if len(tracks) < 2 {
		return nil, fmt.Errorf("a set plan needs at least two tracks, got %d", len(tracks))
	}

	sp := &SetPlan{Name: name}
	var total float64
	for _, t := range tracks {
		sp.Tracks = append(sp.Tracks, t.Name())
		total += t.Duration
	}

	e := &Engine{planner: planner}
	for i := 0; i < len(tracks)-1; i++ {
		a, b := tracks[i], tracks[i+1]
		p, err := e.planCandidate(a, b)
		if err != nil {
			return nil, fmt.Errorf("planning %s into %s: %w", a.Name(), b.Name(), err)
		}
		sp.Transitions = append(sp.Transitions, SetTransition{
			From:          a.Name(),
			To:            b.Name(),
			Bars:          p.DurationBars,
			Duration:      p.Duration,
			Compatibility: p.Compatibility.Value,
			Tier:          string(p.Compatibility.Tier),
			EnergyFlow:    p.Strategy.EQStrategy,
		})
		// Overlapped playtime is counted once.
		total -= p.Duration
	}
	sp.TotalSec = total
	return sp, nil
}
