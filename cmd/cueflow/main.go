package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/cueflow/cueflow/internal/advisor"
	"github.com/cueflow/cueflow/internal/audio"
	"github.com/cueflow/cueflow/internal/autodj"
	"github.com/cueflow/cueflow/internal/config"
	"github.com/cueflow/cueflow/internal/mixer"
	"github.com/cueflow/cueflow/internal/plan"
	"github.com/cueflow/cueflow/internal/queue"
	"github.com/cueflow/cueflow/internal/stream"
	"github.com/cueflow/cueflow/internal/track"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Println("cueflow starting up...")

	library, err := track.LoadLibrary(cfg.LibraryDir)
	if err != nil {
		log.Fatalf("library load failed: %v", err)
	}
	log.Printf("library: %d analyzed tracks in %s", len(library), cfg.LibraryDir)

	m := mixer.New()
	m.SetMasterVolume(cfg.MasterVolume, mixer.OriginAutomation)

	// The tap must exist before any render happens so the broadcast path
	// sees the mix from the first block.
	tap := m.EnableTap()

	if cfg.NoDevice {
		go m.RunClocked(ctx)
		log.Println("audio device disabled, running clocked")
	} else if err := m.Start(); err != nil {
		log.Fatalf("audio device: %v", err)
	}

	// Broadcast path: tap -> 48kHz 20ms frames -> fan-out
	repack := stream.NewRepacketizer()
	go repack.Run(ctx, tap)
	broadcaster := stream.NewBroadcaster()
	go broadcaster.Run(ctx, repack.Frames())
	webrtcHandler := stream.NewWebRTCHandler(broadcaster)

	policy := plan.DefaultPolicy()
	policy.QuickBars = cfg.QuickBars
	policy.StandardBars = cfg.StandardBars
	policy.LongBars = cfg.LongBars
	planner := plan.New(policy)

	adv := advisor.New(advisor.Config{
		PrepareWindow: cfg.PrepareWindow,
		ReadyWindow:   cfg.ReadyWindow,
	})

	q := queue.NewManager()
	engine := autodj.New(m, q, planner, adv, autodj.Config{
		LoadThreshold: cfg.LoadThreshold,
		ArmThreshold:  cfg.ArmThreshold,
		PollInterval:  cfg.PollInterval,
	}, nil)

	byID := make(map[string]*track.Analysis, len(library))
	for _, t := range library {
		byID[t.ID] = t
	}

	mux := http.NewServeMux()

	mux.Handle("/stream", stream.NewHTTPHandler(broadcaster))
	mux.Handle("/offer", webrtcHandler)

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		st := m.Snapshot()
		writeJSON(w, map[string]any{
			"mixer":            st,
			"suggestion":       adv.Suggest(st),
			"autodj":           engine.GetStatus(),
			"overruns":         m.Overruns(),
			"broadcast":        broadcaster.Snapshot(),
			"webrtc_listeners": webrtcHandler.PeerCount(),
		})
	})

	mux.HandleFunc("GET /api/library", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, library)
	})

	mux.HandleFunc("POST /api/deck/{deck}/load", func(w http.ResponseWriter, r *http.Request) {
		if m.Deck(r.PathValue("deck")) == nil {
			http.Error(w, "no such deck", http.StatusNotFound)
			return
		}
		var req struct {
			TrackID string `json:"track_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
			http.Error(w, "track_id required", http.StatusBadRequest)
			return
		}
		t, ok := byID[req.TrackID]
		if !ok {
			http.Error(w, "unknown track", http.StatusNotFound)
			return
		}
		samples, err := audio.DecodeFile(t.FilePath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := m.LoadDeck(r.PathValue("deck"), samples, audio.SampleRate, t, mixer.OriginHuman); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "track": t.Name(), "duration": t.Duration})
	})

	mux.HandleFunc("POST /api/deck/{deck}/play", func(w http.ResponseWriter, r *http.Request) {
		if err := m.PlayDeck(r.PathValue("deck"), mixer.OriginHuman); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("POST /api/deck/{deck}/pause", func(w http.ResponseWriter, r *http.Request) {
		m.PauseDeck(r.PathValue("deck"), mixer.OriginHuman)
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("POST /api/deck/{deck}/stop", func(w http.ResponseWriter, r *http.Request) {
		m.StopDeck(r.PathValue("deck"), mixer.OriginHuman)
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("POST /api/deck/{deck}/seek", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Position float64 `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		m.SeekDeck(r.PathValue("deck"), req.Position, mixer.OriginHuman)
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("POST /api/deck/{deck}/cue", func(w http.ResponseWriter, r *http.Request) {
		if !m.CueDeck(r.PathValue("deck"), mixer.OriginHuman) {
			http.Error(w, "no such deck", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("POST /api/deck/{deck}/volume", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Level float64 `json:"level"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Level < 0 {
			http.Error(w, "invalid level", http.StatusBadRequest)
			return
		}
		if !m.SetDeckVolume(r.PathValue("deck"), req.Level, mixer.OriginHuman) {
			http.Error(w, "no such deck", http.StatusNotFound)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("POST /api/deck/{deck}/eq", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Band string  `json:"band"`
			Gain float64 `json:"gain"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if !m.SetEQ(r.PathValue("deck"), req.Band, req.Gain, mixer.OriginHuman) {
			http.Error(w, "bad deck or band", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("POST /api/deck/{deck}/filter", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Enabled bool    `json:"enabled"`
			Type    string  `json:"type"`
			Cutoff  float64 `json:"cutoff"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if !m.SetFilter(r.PathValue("deck"), req.Enabled, req.Type, req.Cutoff, mixer.OriginHuman) {
			http.Error(w, "bad deck or filter type", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("POST /api/deck/{deck}/reverb", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Wet   float64 `json:"wet"`
			Decay float64 `json:"decay"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if !m.SetReverb(r.PathValue("deck"), req.Wet, req.Decay, mixer.OriginHuman) {
			http.Error(w, "bad deck or wet level", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("POST /api/deck/{deck}/echo", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Wet      float64 `json:"wet"`
			Feedback float64 `json:"feedback"`
			Delay    float64 `json:"delay"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if !m.SetEcho(r.PathValue("deck"), req.Wet, req.Feedback, req.Delay, mixer.OriginHuman) {
			http.Error(w, "bad deck or wet level", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("POST /api/crossfader", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Position float64 `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		m.SetCrossfader(req.Position, mixer.OriginHuman)
		writeJSON(w, map[string]any{"ok": true, "position": m.Crossfader()})
	})

	mux.HandleFunc("POST /api/volume", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Level float64 `json:"level"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Level < 0 {
			http.Error(w, "invalid level", http.StatusBadRequest)
			return
		}
		m.SetMasterVolume(req.Level, mixer.OriginHuman)
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("GET /api/queue", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"current":    q.Current(),
			"queued":     q.Tracks(),
			"candidates": q.NextCandidates(0),
		})
	})

	mux.HandleFunc("POST /api/queue", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TrackID string `json:"track_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
			http.Error(w, "track_id required", http.StatusBadRequest)
			return
		}
		t, ok := byID[req.TrackID]
		if !ok {
			http.Error(w, "unknown track", http.StatusNotFound)
			return
		}
		q.Add(t)
		writeJSON(w, map[string]any{"ok": true, "queued": q.Len()})
	})

	mux.HandleFunc("POST /api/queue/remove", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TrackID string `json:"track_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TrackID == "" {
			http.Error(w, "track_id required", http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]any{"ok": q.Remove(req.TrackID), "queued": q.Len()})
	})

	mux.HandleFunc("GET /api/matrix", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, q.Matrix())
	})

	mux.HandleFunc("POST /api/plan", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			From string `json:"from"`
			To   string `json:"to"`
			Bars int    `json:"bars"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		a, okA := byID[req.From]
		b, okB := byID[req.To]
		if !okA || !okB {
			http.Error(w, "unknown track", http.StatusNotFound)
			return
		}
		var (
			p    *plan.Plan
			perr error
		)
		if req.Bars > 0 {
			p, perr = planner.PlanBars(a, b, req.Bars)
		} else {
			p, perr = planner.Plan(a, b)
		}
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, p)
	})

	mux.HandleFunc("GET /api/plan", func(w http.ResponseWriter, r *http.Request) {
		p := engine.ActivePlan()
		if p == nil {
			http.Error(w, "no active plan", http.StatusNotFound)
			return
		}
		writeJSON(w, p)
	})

	mux.HandleFunc("POST /api/setplan", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string   `json:"name"`
			Tracks []string `json:"tracks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Tracks) == 0 {
			http.Error(w, "tracks required", http.StatusBadRequest)
			return
		}
		sf := &autodj.SetFile{Name: req.Name, Tracks: req.Tracks}
		tracks, err := sf.Resolve(library)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		sp, err := autodj.BuildSetPlan(planner, req.Name, tracks)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, sp)
	})

	mux.HandleFunc("POST /api/autodj/start", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tracks []string `json:"tracks"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Tracks) == 0 {
			http.Error(w, "tracks required", http.StatusBadRequest)
			return
		}
		sf := &autodj.SetFile{Tracks: req.Tracks}
		tracks, err := sf.Resolve(library)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err := engine.Start(ctx, tracks); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, engine.GetStatus())
	})

	mux.HandleFunc("POST /api/autodj/stop", func(w http.ResponseWriter, r *http.Request) {
		engine.Stop()
		writeJSON(w, engine.GetStatus())
	})

	mux.HandleFunc("POST /api/autodj/pause", func(w http.ResponseWriter, r *http.Request) {
		engine.Pause()
		writeJSON(w, engine.GetStatus())
	})

	mux.HandleFunc("POST /api/autodj/resume", func(w http.ResponseWriter, r *http.Request) {
		engine.Resume()
		writeJSON(w, engine.GetStatus())
	})

	mux.HandleFunc("GET /api/autodj", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, engine.GetStatus())
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		engine.Stop()
		m.Stop()
		server.Close()
	}()

	log.Printf("cueflow live on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(v)
}
