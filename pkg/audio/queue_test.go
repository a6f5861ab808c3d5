package audio_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/andrifran123/ellie-call/pkg/audio"
	"github.com/andrifran123/ellie-call/pkg/audio/mock"
)

// waitFor polls cond until it returns true or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func chunk(b byte) audio.Chunk {
	return audio.Chunk{Data: []byte{b, 0}, SampleRate: 24000}
}

func TestPlaybackQueue_BurstPlaysInOrderOneAtATime(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	out.Gate()
	q := audio.NewPlaybackQueue(out)
	defer q.Close()

	// Five chunks arrive back-to-back before any playback finishes.
	for i := range 5 {
		q.Enqueue(chunk(byte(i)))
	}

	for i := range 5 {
		out.Release()
		waitFor(t, "chunk to finish", func() bool { return len(out.Played()) == i+1 })
	}

	played := out.Played()
	if len(played) != 5 {
		t.Fatalf("played %d chunks, want 5", len(played))
	}
	for i, c := range played {
		if c.Data[0] != byte(i) {
			t.Errorf("position %d played chunk %d, want %d — order must match arrival", i, c.Data[0], i)
		}
	}
	if out.Overlapped() {
		t.Error("two chunks were playing at once")
	}
}

func TestPlaybackQueue_ResumesAfterDrainingEmpty(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	q := audio.NewPlaybackQueue(out)
	defer q.Close()

	q.Enqueue(chunk(1))
	waitFor(t, "first chunk", func() bool { return len(out.Played()) == 1 })

	// Queue is idle now; a late arrival must restart draining without any
	// explicit kick.
	q.Enqueue(chunk(2))
	waitFor(t, "second chunk", func() bool { return len(out.Played()) == 2 })

	if out.Overlapped() {
		t.Error("two chunks were playing at once")
	}
}

func TestPlaybackQueue_FailedChunkIsSkipped(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	out.PlayErr = func(c audio.Chunk) error {
		if c.Data[0] == 1 {
			return errors.New("decode failure")
		}
		return nil
	}

	var failures int
	q := audio.NewPlaybackQueue(out)
	q.OnPlayed(func(_ audio.Chunk, err error) {
		if err != nil {
			failures++
		}
	})
	defer q.Close()

	q.Enqueue(chunk(0))
	q.Enqueue(chunk(1)) // fails
	q.Enqueue(chunk(2))

	waitFor(t, "surviving chunks", func() bool { return len(out.Played()) == 2 })

	played := out.Played()
	if played[0].Data[0] != 0 || played[1].Data[0] != 2 {
		t.Errorf("played %v and %v, want chunks 0 and 2", played[0].Data[0], played[1].Data[0])
	}
	waitFor(t, "failure callback", func() bool { return failures == 1 })
}

func TestPlaybackQueue_ClearDiscardsPendingAndStopsActive(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	out.Gate()
	q := audio.NewPlaybackQueue(out)
	defer q.Close()

	q.Enqueue(chunk(0))
	q.Enqueue(chunk(1))
	q.Enqueue(chunk(2))
	waitFor(t, "queue to hold pending chunks", func() bool { return q.Len() == 2 })

	q.Clear()

	if got := q.Len(); got != 0 {
		t.Errorf("Len() after Clear = %d, want 0", got)
	}
	if out.StopCalls() == 0 {
		t.Error("Clear did not stop the active source")
	}
	if got := len(out.Played()); got != 0 {
		t.Errorf("%d chunks completed after Clear, want 0", got)
	}

	// The queue stays usable after Clear.
	q.Enqueue(chunk(3))
	out.Release()
	waitFor(t, "post-clear chunk", func() bool { return len(out.Played()) == 1 })
}

func TestPlaybackQueue_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	q := audio.NewPlaybackQueue(out)

	q.Enqueue(chunk(0))
	waitFor(t, "chunk", func() bool { return len(out.Played()) == 1 })

	q.Close()
	q.Close()

	// Enqueue after close is dropped, not a panic.
	q.Enqueue(chunk(1))
	if got := q.Len(); got != 0 {
		t.Errorf("Len() after Close = %d, want 0", got)
	}
}

func TestPlaybackQueue_DiscardedChunksReachTheCallback(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	out.Gate()

	var mu sync.Mutex
	var discarded int
	q := audio.NewPlaybackQueue(out)
	q.OnPlayed(func(_ audio.Chunk, err error) {
		if errors.Is(err, audio.ErrDiscarded) {
			mu.Lock()
			discarded++
			mu.Unlock()
		}
	})

	// One chunk gated in flight, three pending behind it.
	for i := range 4 {
		q.Enqueue(chunk(byte(i)))
	}
	waitFor(t, "pending chunks behind the gate", func() bool { return q.Len() == 3 })

	q.Close()

	mu.Lock()
	got := discarded
	mu.Unlock()
	if got != 3 {
		t.Errorf("discard callbacks after Close = %d, want 3 — every dropped chunk must settle its accounting", got)
	}

	// Rejected late arrivals settle the same way.
	q.Enqueue(chunk(9))
	mu.Lock()
	got = discarded
	mu.Unlock()
	if got != 4 {
		t.Errorf("discard callbacks after a post-close Enqueue = %d, want 4", got)
	}
}

func TestPlaybackQueue_ClearReportsDroppedChunks(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	out.Gate()

	var mu sync.Mutex
	var discarded int
	q := audio.NewPlaybackQueue(out)
	q.OnPlayed(func(_ audio.Chunk, err error) {
		if errors.Is(err, audio.ErrDiscarded) {
			mu.Lock()
			discarded++
			mu.Unlock()
		}
	})
	defer q.Close()

	q.Enqueue(chunk(0))
	q.Enqueue(chunk(1))
	q.Enqueue(chunk(2))
	waitFor(t, "pending chunks", func() bool { return q.Len() == 2 })

	q.Clear()

	mu.Lock()
	got := discarded
	mu.Unlock()
	if got != 2 {
		t.Errorf("discard callbacks after Clear = %d, want 2", got)
	}
}
