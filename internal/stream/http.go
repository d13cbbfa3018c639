package stream

import (
	"context"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/cueflow/cueflow/internal/audio"
)

const mp3Bitrate = "192k"

// HTTPHandler serves the mix as a chunked MP3 stream. Each connection
// gets its own FFmpeg process encoding PCM to MP3 in real time.
type HTTPHandler struct {
	broadcaster *Broadcaster
}

func NewHTTPHandler(b *Broadcaster) *HTTPHandler {
	return &HTTPHandler{broadcaster: b}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("ICY-Name", "cueflow")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := encoderCmd(ctx)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("HTTP stream: stdin pipe: %v", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("HTTP stream: stdout pipe: %v", err)
		return
	}
	if err := cmd.Start(); err != nil {
		log.Printf("HTTP stream: ffmpeg start: %v", err)
		return
	}
	defer cmd.Wait()

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	log.Printf("HTTP stream: %s connected, %d listeners", r.RemoteAddr, h.broadcaster.ListenerCount())
	defer log.Printf("HTTP stream: %s disconnected", r.RemoteAddr)

	go feedPCM(ctx, listener, stdin)

	// Relay MP3 to the client, flushing every chunk so playback starts
	// without waiting for the response buffer to fill.
	if _, err := io.Copy(flushWriter{w, flusher}, stdout); err != nil && err != io.EOF {
		log.Printf("HTTP stream: relay ended: %v", err)
	}
}

// encoderCmd builds the per-connection FFmpeg invocation: raw broadcast
// PCM on stdin, low-latency MP3 on stdout.
func encoderCmd(ctx context.Context) *exec.Cmd {
	return exec.CommandContext(ctx, "ffmpeg",
		"-f", "s16le",
		"-ar", strconv.Itoa(BroadcastRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", mp3Bitrate,
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	)
}

// feedPCM writes broadcast frames into the encoder until the connection
// or the listener goes away. Closing stdin lets FFmpeg finish cleanly.
func feedPCM(ctx context.Context, listener *Listener, stdin io.WriteCloser) {
	defer stdin.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.done:
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}

type flushWriter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (fw flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err == nil {
		fw.f.Flush()
	}
	return n, err
}
