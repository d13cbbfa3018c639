// Package autodj sequences a whole set: it consumes the queue, builds
// transition plans, executes their timelines against the live mixer and
// yields to the human the moment any control is touched.
package autodj

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/cueflow/cueflow/internal/advisor"
	"github.com/cueflow/cueflow/internal/audio"
	"github.com/cueflow/cueflow/internal/mixer"
	"github.com/cueflow/cueflow/internal/plan"
	"github.com/cueflow/cueflow/internal/queue"
	"github.com/cueflow/cueflow/internal/track"
)

// Action is the engine's current state. A closed set so the advisor and
// status consumers never have to string-match.
type Action int

const (
	ActionIdle Action = iota
	ActionLoadingFirst
	ActionMonitoring
	ActionLoadingNext
	ActionArmed
	ActionTransitioning
	ActionSwapping
	ActionCompleted
	ActionStopped
)

func (a Action) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionLoadingFirst:
		return "loading_first"
	case ActionMonitoring:
		return "monitoring"
	case ActionLoadingNext:
		return "loading_next"
	case ActionArmed:
		return "armed"
	case ActionTransitioning:
		return "transitioning"
	case ActionSwapping:
		return "swapping"
	case ActionCompleted:
		return "completed"
	case ActionStopped:
		return "stopped"
	}
	return "unknown"
}

// Config holds the engine's tunable time cutoffs.
type Config struct {
	LoadThreshold float64       // seconds remaining that triggers loading the next track
	ArmThreshold  float64       // seconds remaining that starts the idle deck
	PollInterval  time.Duration // cadence of the cooperative control loop
}

// DefaultConfig mirrors common practice: load with a minute to spare,
// start the idle deck half a minute out, observe several times a second.
func DefaultConfig() Config {
	return Config{LoadThreshold: 60, ArmThreshold: 30, PollInterval: 250 * time.Millisecond}
}

// LoadFunc decodes a track file into interleaved stereo samples. Injected
// so tests can run the engine without ffmpeg or real files.
type LoadFunc func(path string) ([]float32, error)

// Status is the engine's externally visible state.
type Status struct {
	Enabled           bool   `json:"enabled"`
	Running           bool   `json:"running"`
	Paused            bool   `json:"paused"`
	CurrentAction     string `json:"current_action"`
	ActionDetails     string `json:"action_details"`
	CurrentTrackIndex int    `json:"current_track_index"`
	TotalTracks       int    `json:"total_tracks"`
	CompletedReason   string `json:"completed_reason,omitempty"`
}

type loadOutcome struct {
	candidate *track.Analysis
	plan      *plan.Plan
	samples   []float32
	err       error
}

// Engine drives the set. All waits are bounded; every poll re-reads live
// mixer state because the human can take over at any instant.
type Engine struct {
	mixer   *mixer.Mixer
	queue   *queue.Manager
	planner *plan.Planner
	advisor *advisor.Advisor
	cfg     Config
	load    LoadFunc

	mu              sync.RWMutex
	enabled         bool
	running         bool
	paused          bool
	action          Action
	details         string
	completedReason string
	trackIndex      int
	totalTracks     int

	// run-loop private state, only touched by the run goroutine
	outgoing      string // physical deck id of the current track
	activePlan    *plan.Plan
	pending       *loadOutcome
	loadCh        chan loadOutcome
	loading       bool
	started       bool // transition clock running
	elapsed       float64
	nextEvent     int
	fadeFrom      float64
	fadeStart     float64
	lastHumanSeen time.Time

	cancel context.CancelFunc
}

// New creates an engine over the given collaborators. A nil load falls
// back to the ffmpeg decoder.
func New(m *mixer.Mixer, q *queue.Manager, p *plan.Planner, adv *advisor.Advisor, cfg Config, load LoadFunc) *Engine {
	if cfg.PollInterval == 0 {
		cfg = DefaultConfig()
	}
	if load == nil {
		load = audio.DecodeFile
	}
	return &Engine{
		mixer:   m,
		queue:   q,
		planner: p,
		advisor: adv,
		cfg:     cfg,
		load:    load,
		action:  ActionIdle,
	}
}

// Start begins automating the given tracks in queue order. The first track
// plays on deck A; the rest are consumed best-candidate-first.
func (e *Engine) Start(ctx context.Context, tracks []*track.Analysis) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("autodj already running")
	}
	if len(tracks) == 0 {
		return errors.New("autodj needs at least one track")
	}
	for _, t := range tracks {
		if err := t.Validate(); err != nil {
			return err
		}
	}

	for _, t := range tracks[1:] {
		e.queue.Add(t)
	}
	e.queue.SetCurrent(tracks[0])

	e.enabled = true
	e.running = true
	e.paused = false
	e.action = ActionLoadingFirst
	e.details = "loading first track"
	e.completedReason = ""
	e.trackIndex = 0
	e.totalTracks = len(tracks)
	e.outgoing = "A"
	e.activePlan = nil
	e.pending = nil
	e.loadCh = make(chan loadOutcome, 1)
	e.loading = false
	e.started = false
	e.elapsed = 0
	e.nextEvent = 0
	e.lastHumanSeen = time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	go e.run(runCtx)
	return nil
}

// Stop ends automation from any state within one poll interval. It releases
// the active plan but leaves deck transport alone: killing the music is the
// operator's call, not the engine's.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.enabled = false
	e.running = false
	e.action = ActionStopped
	e.details = "stopped by request"
	e.activePlan = nil
	e.mu.Unlock()
	e.advisor.SetPlan(nil, "")
}

// Pause suspends all timed transitions; the transition clock freezes.
func (e *Engine) Pause() {
	e.mu.Lock()
	e.paused = true
	e.details = "paused, human has the controls"
	e.mu.Unlock()
}

// Resume continues from the frozen transition offset. Human touches before
// the resume no longer count as overrides.
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.lastHumanSeen = time.Now()
	e.details = "resuming"
	e.mu.Unlock()
}

// Paused reports the override/pause flag.
func (e *Engine) Paused() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.paused
}

// GetStatus snapshots the engine state.
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Enabled:           e.enabled,
		Running:           e.running,
		Paused:            e.paused,
		CurrentAction:     e.action.String(),
		ActionDetails:     e.details,
		CurrentTrackIndex: e.trackIndex,
		TotalTracks:       e.totalTracks,
		CompletedReason:   e.completedReason,
	}
}

// ActivePlan returns the plan currently being executed, or nil.
func (e *Engine) ActivePlan() *plan.Plan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activePlan
}

func (e *Engine) run(ctx context.Context) {
	log.Printf("AutoDJ: started, %d tracks", e.totalTracks)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			if done := e.step(dt); done {
				return
			}
		}
	}
}

// step advances the state machine by one tick. Returns true when the run
// loop should exit.
func (e *Engine) step(dt float64) bool {
	e.checkOverride()

	e.mu.RLock()
	action := e.action
	paused := e.paused
	e.mu.RUnlock()

	switch action {
	case ActionLoadingFirst:
		e.stepLoadFirst()
	case ActionMonitoring:
		if !paused {
			e.stepMonitoring()
		}
	case ActionLoadingNext:
		e.stepLoadingNext()
	case ActionArmed:
		if !paused {
			e.stepArmed()
		}
	case ActionTransitioning:
		e.stepTransitioning(dt, paused)
	case ActionCompleted, ActionStopped:
		return true
	}
	return false
}

// checkOverride pauses the engine when any control write with human origin
// landed since the last tick. Engine writes are tagged automation and never
// trip this.
func (e *Engine) checkOverride() {
	touch := e.mixer.LastHumanTouch()
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused && touch.After(e.lastHumanSeen) {
		e.paused = true
		e.details = "human override detected, automation paused"
		log.Printf("AutoDJ: human override detected, pausing")
	}
}

func (e *Engine) setAction(a Action, details string) {
	e.mu.Lock()
	e.action = a
	e.details = details
	e.mu.Unlock()
	log.Printf("AutoDJ: %s", details)
}

func (e *Engine) stepLoadFirst() {
	cur := e.queue.Current()
	samples, err := e.load(cur.FilePath)
	if err != nil {
		e.complete(fmt.Sprintf("cannot load first track %s: %v", cur.Name(), err))
		return
	}
	if err := e.mixer.LoadDeck(e.outgoing, samples, audio.SampleRate, cur, mixer.OriginAutomation); err != nil {
		e.complete(fmt.Sprintf("cannot load first track %s: %v", cur.Name(), err))
		return
	}
	e.mixer.SetCrossfader(e.sideOf(e.outgoing), mixer.OriginAutomation)
	e.mixer.PlayDeck(e.outgoing, mixer.OriginAutomation)
	e.setAction(ActionMonitoring, fmt.Sprintf("playing %s", cur.Name()))
}

func (e *Engine) stepMonitoring() {
	d := e.mixer.Deck(e.outgoing)

	if e.queue.Len() == 0 {
		if !d.IsPlaying() && d.TimeRemaining() <= 0.5 {
			e.complete("end of set")
		}
		return
	}

	if d.TimeRemaining() <= e.cfg.LoadThreshold {
		e.setAction(ActionLoadingNext, "picking and loading next track")
	}
}

// stepLoadingNext plans against the best queue candidate and decodes it in
// the background. Unplannable candidates are skipped, not fatal; a pool
// with nothing plannable completes the set early with the reason.
func (e *Engine) stepLoadingNext() {
	if e.loading {
		select {
		case out := <-e.loadCh:
			e.loading = false
			e.finishLoad(out)
		default:
		}
		return
	}

	cur := e.queue.Current()
	candidates := e.queue.NextCandidates(0)
	var chosen *track.Analysis
	var chosenPlan *plan.Plan
	for _, c := range candidates {
		p, err := e.planCandidate(cur, c.Track)
		if err != nil {
			log.Printf("AutoDJ: skipping %s: %v", c.Track.Name(), err)
			e.queue.Remove(c.Track.ID)
			continue
		}
		chosen = c.Track
		chosenPlan = p
		break
	}
	if chosen == nil {
		e.complete("no remaining track can be planned after the current one")
		return
	}

	e.loading = true
	go func(t *track.Analysis, p *plan.Plan) {
		samples, err := e.load(t.FilePath)
		e.loadCh <- loadOutcome{candidate: t, plan: p, samples: samples, err: err}
	}(chosen, chosenPlan)
}

// planCandidate tries the policy duration first and falls back through the
// shorter bands when the outgoing track is too short for it.
func (e *Engine) planCandidate(cur, next *track.Analysis) (*plan.Plan, error) {
	p, err := e.planner.Plan(cur, next)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, plan.ErrInsufficientLength) {
		return nil, err
	}
	// Walk every policy band longest-first; retrying the band the policy
	// already rejected just fails the same way and costs nothing.
	for _, bars := range e.planner.FallbackBars(math.MaxInt) {
		p2, err2 := e.planner.PlanBars(cur, next, bars)
		if err2 == nil {
			return p2, nil
		}
		if !errors.Is(err2, plan.ErrInsufficientLength) {
			return nil, err2
		}
		err = err2
	}
	return nil, err
}

func (e *Engine) finishLoad(out loadOutcome) {
	if out.err != nil {
		log.Printf("AutoDJ: decode failed for %s: %v, skipping", out.candidate.Name(), out.err)
		e.queue.Remove(out.candidate.ID)
		e.setAction(ActionMonitoring, "decode failed, rechoosing")
		return
	}
	idle := e.idleDeck()
	if err := e.mixer.LoadDeck(idle, out.samples, audio.SampleRate, out.candidate, mixer.OriginAutomation); err != nil {
		log.Printf("AutoDJ: deck %s load failed for %s: %v, skipping", idle, out.candidate.Name(), err)
		e.queue.Remove(out.candidate.ID)
		e.setAction(ActionMonitoring, "load failed, rechoosing")
		return
	}
	d := e.mixer.Deck(idle)
	d.Seek(out.plan.CuePoint)
	d.SetCuePoint()

	// The timeline brings the incoming bands in, so they start cut: bass
	// always, mids and highs too on the long blend.
	e.mixer.SetEQ(idle, "bass", 0, mixer.OriginAutomation)
	if out.plan.DurationBars >= 32 {
		e.mixer.SetEQ(idle, "mid", 0, mixer.OriginAutomation)
		e.mixer.SetEQ(idle, "high", 0, mixer.OriginAutomation)
	}

	e.mu.Lock()
	e.activePlan = out.plan
	e.mu.Unlock()
	e.advisor.SetPlan(out.plan, e.outgoing)

	e.setAction(ActionArmed, fmt.Sprintf("armed: %s cued at %.1fs", out.candidate.Name(), out.plan.CuePoint))
}

func (e *Engine) stepArmed() {
	d := e.mixer.Deck(e.outgoing)
	if d.TimeRemaining() > e.cfg.ArmThreshold {
		return
	}
	// Start the incoming deck silent: the crossfader still points at the
	// outgoing side, so it is inaudible until the timeline moves it.
	e.mixer.PlayDeck(e.idleDeck(), mixer.OriginAutomation)
	e.started = false
	e.elapsed = 0
	e.nextEvent = 0
	e.setAction(ActionTransitioning, "both decks running, waiting for transition point")
}

func (e *Engine) stepTransitioning(dt float64, paused bool) {
	p := e.ActivePlan()
	if p == nil {
		e.setAction(ActionMonitoring, "transition aborted, plan released")
		return
	}
	if paused {
		return // clock frozen, nothing advances
	}

	cur := e.mixer.Deck(e.outgoing)
	if !e.started {
		if cur.PositionSeconds() < p.TransitionStart {
			return
		}
		e.started = true
	} else {
		e.elapsed += dt
	}

	for e.nextEvent < len(p.Timeline) && p.Timeline[e.nextEvent].Offset <= e.elapsed {
		e.execute(p.Timeline[e.nextEvent])
		e.nextEvent++
	}

	// Smooth crossfader ramp through the fade-out stretch.
	if e.fadeStart > 0 && e.elapsed >= e.fadeStart && e.elapsed < p.End() {
		progress := (e.elapsed - e.fadeStart) / (p.End() - e.fadeStart)
		pos := e.fadeFrom + (1-e.fadeFrom)*progress
		e.mixer.SetCrossfader(e.side(pos), mixer.OriginAutomation)
	}

	if e.nextEvent >= len(p.Timeline) {
		e.swap()
	}
}

// execute applies one timeline event to the mixer with automation origin.
// Plan events name decks logically: "A" is the outgoing side, "B" the
// incoming one; side() maps that onto the physical crossfader direction.
func (e *Engine) execute(ev plan.Event) {
	deckID := e.outgoing
	if ev.Deck == "B" {
		deckID = e.idleDeck()
	}

	switch ev.Kind {
	case plan.ActionStartIncoming:
		e.mixer.PlayDeck(deckID, mixer.OriginAutomation)
	case plan.ActionBassCutOutgoing, plan.ActionBassInIncoming, plan.ActionHighInIncoming, plan.ActionMidInIncoming:
		e.mixer.SetEQ(deckID, ev.EQBand, ev.TargetGain, mixer.OriginAutomation)
	case plan.ActionCrossfadeCenter:
		e.mixer.SetCrossfader(e.side(ev.Crossfader), mixer.OriginAutomation)
	case plan.ActionFadeOutOutgoing:
		// The ramp picks up at center, where the preceding crossfade
		// milestone left the fader, and glides to full incoming.
		e.fadeStart = ev.Offset
		e.fadeFrom = 0
	case plan.ActionIncomingOnly:
		e.mixer.SetCrossfader(e.side(1), mixer.OriginAutomation)
	}

	e.mu.Lock()
	e.details = fmt.Sprintf("timeline: %s at %.1fs", ev.Kind, ev.Offset)
	e.mu.Unlock()
	log.Printf("AutoDJ: %s at +%.1fs", ev.Kind, ev.Offset)
}

// swap relabels which physical deck is "current", stops the finished deck
// and goes back to monitoring, or completes when the queue is empty.
func (e *Engine) swap() {
	p := e.ActivePlan()
	e.setAction(ActionSwapping, "swapping decks")

	e.mixer.StopDeck(e.outgoing, mixer.OriginAutomation)
	e.outgoing = e.idleDeck()
	e.queue.SetCurrent(p.TrackB)
	e.advisor.SetPlan(nil, e.outgoing)

	e.mu.Lock()
	e.activePlan = nil
	e.trackIndex++
	e.fadeStart = 0
	e.fadeFrom = 0
	e.mu.Unlock()

	if e.queue.Len() == 0 {
		e.setAction(ActionMonitoring, fmt.Sprintf("playing final track %s", p.TrackB.Name()))
		return
	}
	e.setAction(ActionMonitoring, fmt.Sprintf("playing %s", p.TrackB.Name()))
}

func (e *Engine) complete(reason string) {
	e.mu.Lock()
	e.action = ActionCompleted
	e.details = reason
	e.completedReason = reason
	e.enabled = false
	e.running = false
	e.activePlan = nil
	e.mu.Unlock()
	e.advisor.SetPlan(nil, "")
	log.Printf("AutoDJ: completed: %s", reason)
}

func (e *Engine) idleDeck() string {
	if e.outgoing == "A" {
		return "B"
	}
	return "A"
}

// side maps a logical crossfader value (-1 = outgoing, +1 = incoming) to
// the physical one, which is fixed at -1 = deck A.
func (e *Engine) side(logical float64) float64 {
	if e.outgoing == "B" {
		return -logical
	}
	return logical
}

// sideOf returns the physical crossfader position fully on the given deck.
func (e *Engine) sideOf(deckID string) float64 {
	if deckID == "B" {
		return 1
	}
	return -1
}
