package autodj

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cueflow/cueflow/internal/plan"
	"github.com/cueflow/cueflow/internal/track"
)

func TestLoadSetFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "friday.yaml")
	body := "name: friday night\ntracks:\n  - opener\n  - peak\n  - closer\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	sf, err := LoadSetFile(path)
	if err != nil {
		t.Fatalf("LoadSetFile: %v", err)
	}
	if sf.Name != "friday night" {
		t.Errorf("Name = %q", sf.Name)
	}
	if len(sf.Tracks) != 3 || sf.Tracks[0] != "opener" {
		t.Errorf("Tracks = %v", sf.Tracks)
	}
}

func TestLoadSetFileRejectsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(path, []byte("name: empty\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSetFile(path); err == nil {
		t.Fatal("empty set file accepted")
	}
}

func TestResolve(t *testing.T) {
	library := []*track.Analysis{mkTrack("a", 100), mkTrack("b", 100)}
	sf := &SetFile{Name: "s", Tracks: []string{"b", "a"}}

	tracks, err := sf.Resolve(library)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tracks[0].ID != "b" || tracks[1].ID != "a" {
		t.Errorf("resolved order = %s, %s, want set order", tracks[0].ID, tracks[1].ID)
	}

	sf.Tracks = []string{"a", "missing"}
	if _, err := sf.Resolve(library); err == nil || !strings.Contains(err.Error(), "missing") {
		t.Errorf("Resolve with unknown id: err = %v", err)
	}
}

func TestBuildSetPlan(t *testing.T) {
	planner := plan.New(testPolicy())
	tracks := []*track.Analysis{mkTrack("a", 100), mkTrack("b", 100), mkTrack("c", 100)}

	sp, err := BuildSetPlan(planner, "test set", tracks)
	if err != nil {
		t.Fatalf("BuildSetPlan: %v", err)
	}
	if len(sp.Transitions) != 2 {
		t.Fatalf("transitions = %d, want 2", len(sp.Transitions))
	}
	if sp.Transitions[0].From != "a" || sp.Transitions[0].To != "b" {
		t.Errorf("first transition = %s -> %s", sp.Transitions[0].From, sp.Transitions[0].To)
	}

	// Identical tracks at 240 BPM plan the 1-bar quick blend (1s each),
	// so the overlap-corrected total is 300 - 2.
	if sp.TotalSec != 298 {
		t.Errorf("TotalSec = %v, want 298", sp.TotalSec)
	}
}

func TestBuildSetPlanNeedsTwoTracks(t *testing.T) {
	planner := plan.New(testPolicy())
	if _, err := BuildSetPlan(planner, "solo", []*track.Analysis{mkTrack("a", 100)}); err == nil {
		t.Fatal("single-track set plan accepted")
	}
}
