package stream

import (
	"context"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()
	if b.ListenerCount() != 0 {
		t.Fatalf("fresh broadcaster ListenerCount = %d, want 0", b.ListenerCount())
	}

	l1 := b.Subscribe()
	l2 := b.Subscribe()
	if b.ListenerCount() != 2 {
		t.Errorf("ListenerCount = %d, want 2", b.ListenerCount())
	}

	b.Unsubscribe(l1)
	if b.ListenerCount() != 1 {
		t.Errorf("ListenerCount = %d, want 1", b.ListenerCount())
	}
	select {
	case <-l1.done:
	default:
		t.Error("done channel not closed on unsubscribe")
	}
	// Unsubscribing twice must not panic on a re-closed channel.
	b.Unsubscribe(l1)
	b.Unsubscribe(l2)
}

func TestBroadcastDelivers(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16, 4)
	go b.Run(ctx, source)

	frame := []int16{100, 200, 300, 400}
	source <- frame

	select {
	case got := <-l.C:
		for i, v := range got {
			if v != frame[i] {
				t.Errorf("frame[%d] = %d, want %d", i, v, frame[i])
			}
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}
	b.Unsubscribe(l)
}

func TestBroadcastDropsForSlowListener(t *testing.T) {
	b := NewBroadcaster()
	l := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan []int16)
	go b.Run(ctx, source)

	// Fill well past the listener's buffer without draining it. The
	// broadcaster must keep accepting frames instead of blocking.
	frame := []int16{1}
	sent := cap(l.C) + 50
	for i := 0; i < sent; i++ {
		select {
		case source <- frame:
		case <-time.After(time.Second):
			t.Fatal("broadcast blocked on a slow listener")
		}
	}

	// All but the in-flight frame have been published by now; everything
	// past the buffer capacity must show up in the drop counters.
	wantDropped := int64(sent - cap(l.C) - 1)
	deadline := time.Now().Add(time.Second)
	for l.Dropped() < wantDropped && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := l.Dropped(); got < wantDropped {
		t.Errorf("listener Dropped() = %d, want at least %d", got, wantDropped)
	}
	st := b.Snapshot()
	if st.FramesDropped < wantDropped {
		t.Errorf("Snapshot().FramesDropped = %d, want at least %d", st.FramesDropped, wantDropped)
	}
	if st.FramesPublished < int64(sent-1) {
		t.Errorf("Snapshot().FramesPublished = %d, want at least %d", st.FramesPublished, sent-1)
	}
	if st.Listeners != 1 {
		t.Errorf("Snapshot().Listeners = %d, want 1", st.Listeners)
	}
	b.Unsubscribe(l)
}

func TestRunStopsWhenSourceCloses(t *testing.T) {
	b := NewBroadcaster()
	source := make(chan []int16)
	done := make(chan struct{})
	go func() {
		b.Run(context.Background(), source)
		close(done)
	}()

	close(source)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after source closed")
	}
}
