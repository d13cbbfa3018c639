package track

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// LoadLibrary reads every *.json analysis sidecar under dir. Records that
// fail validation are logged and skipped rather than failing the load.
func LoadLibrary(dir string) ([]*Analysis, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read library %s: %w", dir, err)
	}

	var tracks []*Analysis
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		a, err := LoadAnalysis(filepath.Join(dir, e.Name()))
		if err != nil {
			log.Printf("Library: skipping %s: %v", e.Name(), err)
			continue
		}
		tracks = append(tracks, a)
	}

	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Name() < tracks[j].Name() })
	return tracks, nil
}

// LoadAnalysis reads and validates a single analysis sidecar.
func LoadAnalysis(path string) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Analysis
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if a.ID == "" {
		a.ID = filepath.Base(path[:len(path)-len(".json")])
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}
