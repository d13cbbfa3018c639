// Package queue orders a pool of analyzed tracks by how well each one
// would mix out of the currently-playing track.
package queue

import (
	"sort"
	"sync"

	"github.com/cueflow/cueflow/internal/compat"
	"github.com/cueflow/cueflow/internal/track"
)

// Candidate pairs a queued track with its compatibility to the current one.
type Candidate struct {
	Track *track.Analysis `json:"track"`
	Score compat.Score    `json:"score"`
}

// PairScore is one entry of the all-pairs compatibility matrix.
type PairScore struct {
	TrackA string       `json:"track_a"`
	TrackB string       `json:"track_b"`
	Score  compat.Score `json:"score"`
}

// Manager holds the waiting tracks, the current track and play history.
// Safe for concurrent use by the control and automation domains.
type Manager struct {
	mu      sync.RWMutex
	queue   []*track.Analysis
	current *track.Analysis
	played  []*track.Analysis
}

// NewManager creates an empty queue.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends a track to the queue.
func (m *Manager) Add(t *track.Analysis) {
	m.mu.Lock()
	m.queue = append(m.queue, t)
	m.mu.Unlock()
}

// Remove drops the first queued track with the given id. Reports whether
// anything was removed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.queue {
		if t.ID == id {
			m.queue = append(m.queue[:i], m.queue[i+1:]...)
			return true
		}
	}
	return false
}

// SetCurrent marks a track as now playing, pushing the previous current
// track into history and removing the new one from the queue if present.
func (m *Manager) SetCurrent(t *track.Analysis) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.played = append(m.played, m.current)
	}
	m.current = t
	if t != nil {
		for i, q := range m.queue {
			if q.ID == t.ID {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				break
			}
		}
	}
}

// Current returns the currently-playing track, or nil.
func (m *Manager) Current() *track.Analysis {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Len returns the number of queued tracks.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queue)
}

// Tracks returns a copy of the queued tracks in queue order.
func (m *Manager) Tracks() []*track.Analysis {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*track.Analysis, len(m.queue))
	copy(out, m.queue)
	return out
}

// PlayedCount returns how many tracks have finished playing.
func (m *Manager) PlayedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.played)
}

// NextCandidates scores every queued track against the current one and
// returns the best n, highest score first. With no current track the queue
// order stands and scores are omitted. Malformed records score zero rather
// than failing the whole ranking.
func (m *Manager) NextCandidates(n int) []Candidate {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || n > len(m.queue) {
		n = len(m.queue)
	}

	out := make([]Candidate, 0, len(m.queue))
	for _, t := range m.queue {
		c := Candidate{Track: t}
		if m.current != nil {
			if s, err := compat.Compute(m.current, t); err == nil {
				c.Score = s
			} else {
				c.Score = compat.Score{Tier: compat.TierDifficult}
			}
		} else {
			c.Score = compat.Score{Value: 1, Tier: compat.TierPerfect}
		}
		out = append(out, c)
	}
	if m.current != nil {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score.Value > out[j].Score.Value })
	}
	return out[:n]
}

// Matrix returns compatibility scores for every queued pair, best first.
func (m *Manager) Matrix() []PairScore {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []PairScore
	for i, a := range m.queue {
		for _, b := range m.queue[i+1:] {
			s, err := compat.Compute(a, b)
			if err != nil {
				continue
			}
			out = append(out, PairScore{TrackA: a.Name(), TrackB: b.Name(), Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score.Value > out[j].Score.Value })
	return out
}
