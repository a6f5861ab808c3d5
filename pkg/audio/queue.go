package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrDiscarded is passed to the OnPlayed callback for chunks that never
// played: pending when the queue closed, dropped by Clear, or rejected by
// Enqueue after Close. Accounting registered on the callback stays balanced
// even when a call is torn down mid-reply.
var ErrDiscarded = errors.New("audio: chunk discarded")

// PlaybackQueue plays arriving chunks back-to-back with no audible gap,
// decoupling network arrival jitter from playback continuity.
//
// Chunks are appended in arrival order and drained strictly FIFO by a single
// goroutine: the head chunk is handed to the [Output] handle and the next pop
// waits for the platform's playback-finished signal — never a duration timer.
// At most one chunk is playing at any time. When the queue empties the drain
// goroutine exits; the next arrival restarts it, so playback resumes
// seamlessly after a network stall without restarting the call.
//
// A chunk that fails to play is logged, released, and skipped; the drain
// continues with the next chunk rather than halting the queue.
//
// PlaybackQueue is safe for concurrent use.
type PlaybackQueue struct {
	out Output

	// onPlayed, if set, is invoked after each chunk finishes (or fails).
	// Used for metrics; must not block.
	onPlayed func(c Chunk, err error)

	mu       sync.Mutex
	chunks   []Chunk
	draining bool
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks the drain goroutine so Close can wait for the active chunk
	// to be released before returning.
	wg sync.WaitGroup
}

// NewPlaybackQueue creates an idle queue that plays through out.
func NewPlaybackQueue(out Output) *PlaybackQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &PlaybackQueue{
		out:    out,
		ctx:    ctx,
		cancel: cancel,
	}
}

// OnPlayed registers cb to be invoked after every chunk playback attempt,
// with the error from the output handle (nil on success), and once with
// [ErrDiscarded] for every chunk dropped without playing. Only one callback
// may be registered; subsequent calls replace the previous one. Register
// before the first Enqueue.
func (q *PlaybackQueue) OnPlayed(cb func(c Chunk, err error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onPlayed = cb
}

// Enqueue appends chunk to the tail of the queue and starts the drain
// goroutine if nothing is currently playing. Enqueue never blocks: the queue
// is unbounded, bounded in practice only by network delivery rate. Chunks
// enqueued after Close are dropped.
func (q *PlaybackQueue) Enqueue(chunk Chunk) {
	if len(chunk.Data) == 0 {
		return
	}

	q.mu.Lock()
	if q.closed {
		cb := q.onPlayed
		q.mu.Unlock()
		if cb != nil {
			cb(chunk, ErrDiscarded)
		}
		return
	}
	q.chunks = append(q.chunks, chunk)
	start := !q.draining
	if start {
		q.draining = true
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

// Len reports the number of chunks awaiting playback, excluding the one
// currently playing.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.chunks)
}

// Clear discards all pending chunks and interrupts the active source. The
// queue remains usable: new chunks enqueued afterwards play normally.
func (q *PlaybackQueue) Clear() {
	q.mu.Lock()
	dropped := q.chunks
	q.chunks = nil
	cb := q.onPlayed
	q.mu.Unlock()
	q.out.Stop()
	if cb != nil {
		for _, c := range dropped {
			cb(c, ErrDiscarded)
		}
	}
}

// Close discards pending chunks, interrupts the active source, and waits for
// the drain goroutine to exit. Safe to call more than once.
func (q *PlaybackQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	dropped := q.chunks
	q.chunks = nil
	cb := q.onPlayed
	q.mu.Unlock()

	q.cancel()
	q.out.Stop()
	q.wg.Wait()

	if cb != nil {
		for _, c := range dropped {
			cb(c, ErrDiscarded)
		}
	}
}

// drain pops and plays chunks until the queue empties or the queue closes.
// It runs on its own goroutine; only one drain runs at a time, guarded by
// q.draining.
func (q *PlaybackQueue) drain() {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		if q.closed || len(q.chunks) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		chunk := q.chunks[0]
		q.chunks = q.chunks[1:]
		cb := q.onPlayed
		q.mu.Unlock()

		err := q.out.Play(q.ctx, chunk)
		if err != nil && q.ctx.Err() == nil {
			slog.Warn("playback queue: chunk failed, skipping",
				"bytes", len(chunk.Data),
				"err", err,
			)
		}
		if cb != nil {
			cb(chunk, err)
		}
	}
}
