// Package stream publishes the master mix to remote listeners over
// WebRTC (Opus) and chunked HTTP (MP3), fed by the mixer's output tap.
package stream

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
)

// listenerBuffer is the per-listener frame queue depth. At 20ms per frame
// this holds roughly three seconds before frames start dropping.
const listenerBuffer = 150

// Broadcaster fans out PCM frames from the mix tap to every connected
// listener. A slow listener loses frames; it must never stall the mix
// for everyone else.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	nextID    atomic.Int64
	published atomic.Int64
	dropped   atomic.Int64
}

// Listener is one subscriber's view of the broadcast.
type Listener struct {
	C       chan []int16 // buffered channel of 20ms PCM frames
	id      int64
	done    chan struct{}
	dropped atomic.Int64
}

// Dropped reports how many frames this listener has lost to backpressure.
func (l *Listener) Dropped() int64 { return l.dropped.Load() }

// Stats is a point-in-time view of broadcast health for the status API.
type Stats struct {
	Listeners       int   `json:"listeners"`
	FramesPublished int64 `json:"frames_published"`
	FramesDropped   int64 `json:"frames_dropped"`
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[*Listener]struct{})}
}

// Subscribe registers a listener and returns its frame channel wrapper.
func (b *Broadcaster) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan []int16, listenerBuffer),
		id:   b.nextID.Add(1),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, present := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if present {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Snapshot returns cumulative broadcast counters.
func (b *Broadcaster) Snapshot() Stats {
	return Stats{
		Listeners:       b.ListenerCount(),
		FramesPublished: b.published.Load(),
		FramesDropped:   b.dropped.Load(),
	}
}

// Run fans frames out to all listeners until the source closes or the
// context is cancelled.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.publish(frame)
		}
	}
}

func (b *Broadcaster) publish(frame []int16) {
	b.published.Add(1)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- frame:
		default:
			b.dropped.Add(1)
			// One log line per lost second, not per lost frame.
			if n := l.dropped.Add(1); n%50 == 1 {
				log.Printf("Broadcast: listener %d lagging, %d frames dropped", l.id, n)
			}
		}
	}
}
