package stream

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/cueflow/cueflow/internal/audio"
)

const opusBitrate = 128000

// WebRTCHandler negotiates SDP offers and streams the master mix to each
// peer as Opus.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	mu          sync.Mutex
	peers       map[*webrtc.PeerConnection]struct{}
}

func NewWebRTCHandler(b *Broadcaster) *WebRTCHandler {
	return &WebRTCHandler{
		broadcaster: b,
		peers:       make(map[*webrtc.PeerConnection]struct{}),
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, answer, err := h.negotiate(offer)
	if err != nil {
		log.Printf("WebRTC: negotiation failed: %v", err)
		http.Error(w, "negotiation failed", http.StatusInternalServerError)
		return
	}

	h.mu.Lock()
	h.peers[pc] = struct{}{}
	h.mu.Unlock()
	log.Printf("WebRTC: peer connected, %d active", h.PeerCount())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(answer)
}

// negotiate builds a peer connection with one outgoing Opus track, applies
// the remote offer, and returns the fully gathered local answer. The encode
// goroutine is already running when this returns.
func (h *WebRTCHandler) negotiate(offer webrtc.SessionDescription) (*webrtc.PeerConnection, *webrtc.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (*webrtc.PeerConnection, *webrtc.SessionDescription, error) {
		pc.Close()
		return nil, nil, err
	}

	mixTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"cueflow-mix",
	)
	if err != nil {
		return fail(err)
	}
	if _, err := pc.AddTrack(mixTrack); err != nil {
		return fail(err)
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fail(err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fail(err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fail(err)
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			h.dropPeer(pc)
		}
	})

	go h.encodeLoop(mixTrack)

	// Wait for ICE gathering so the answer carries all candidates
	<-webrtc.GatheringCompletePromise(pc)
	return pc, pc.LocalDescription(), nil
}

// encodeLoop pulls broadcast frames, Opus-encodes them, and writes samples
// to the track until the listener is torn down or the peer goes away.
func (h *WebRTCHandler) encodeLoop(track *webrtc.TrackLocalStaticSample) {
	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(BroadcastRate, audio.Channels, opus.AppAudio)
	if err != nil {
		log.Printf("WebRTC: opus encoder: %v", err)
		return
	}
	enc.SetBitrate(opusBitrate)

	packet := make([]byte, 4000)
	badFrames := 0
	for {
		select {
		case <-listener.done:
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			n, err := enc.Encode(frame, packet)
			if err != nil {
				badFrames++
				if badFrames >= 50 {
					log.Printf("WebRTC: giving up after %d encode failures: %v", badFrames, err)
					return
				}
				continue
			}
			badFrames = 0
			sample := media.Sample{Data: packet[:n], Duration: FrameDuration}
			if err := track.WriteSample(sample); err != nil {
				return
			}
		}
	}
}

func (h *WebRTCHandler) dropPeer(pc *webrtc.PeerConnection) {
	h.mu.Lock()
	_, present := h.peers[pc]
	delete(h.peers, pc)
	h.mu.Unlock()
	if present {
		pc.Close()
		log.Printf("WebRTC: peer disconnected, %d remaining", h.PeerCount())
	}
}
