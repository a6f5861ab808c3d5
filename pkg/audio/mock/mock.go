// Package mock provides in-memory [audio.Platform], [audio.CaptureStream],
// and [audio.Output] implementations for tests. Tests push frames into the
// capture stream, gate chunk completion on the output, and assert on the
// recorded calls.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/andrifran123/ellie-call/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Platform      = (*Platform)(nil)
	_ audio.CaptureStream = (*CaptureStream)(nil)
	_ audio.Output        = (*Output)(nil)
)

// ErrStopped is returned by [Output.Play] when Stop interrupts a gated play.
var ErrStopped = errors.New("mock: playback stopped")

// Platform is a scriptable [audio.Platform]. Zero value is ready to use:
// OpenCapture and OpenOutput lazily create default mocks unless pre-set.
type Platform struct {
	mu sync.Mutex

	// CaptureErr / OutputErr, when non-nil, are returned by the respective
	// Open call instead of a device.
	CaptureErr error
	OutputErr  error

	// Capture / Out are returned by the Open calls. Created on first use
	// when nil.
	Capture *CaptureStream
	Out     *Output

	openCaptureCalls int
	openOutputCalls  int
}

// OpenCapture implements [audio.Platform].
func (p *Platform) OpenCapture(_ context.Context, cfg audio.CaptureConfig) (audio.CaptureStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openCaptureCalls++
	if p.CaptureErr != nil {
		return nil, p.CaptureErr
	}
	if p.Capture == nil {
		p.Capture = NewCaptureStream(cfg.SampleRate)
		p.Capture.gain = audio.ClampGain(cfg.Gain)
	}
	return p.Capture, nil
}

// OpenOutput implements [audio.Platform].
func (p *Platform) OpenOutput(_ context.Context, _ audio.OutputConfig) (audio.Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openOutputCalls++
	if p.OutputErr != nil {
		return nil, p.OutputErr
	}
	if p.Out == nil {
		p.Out = NewOutput()
	}
	return p.Out, nil
}

// OpenCaptureCalls reports how many times OpenCapture was invoked.
func (p *Platform) OpenCaptureCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openCaptureCalls
}

// OpenOutputCalls reports how many times OpenOutput was invoked.
func (p *Platform) OpenOutputCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openOutputCalls
}

// ─── CaptureStream ───────────────────────────────────────────────────────────

// CaptureStream is a scriptable [audio.CaptureStream]. Tests feed frames via
// [CaptureStream.Push].
type CaptureStream struct {
	frames chan audio.Frame
	rate   int

	mu         sync.Mutex
	gain       float64
	level      float64
	muted      bool
	closed     bool
	closeCalls int
}

// NewCaptureStream creates a capture stream reporting rate as its negotiated
// sample rate.
func NewCaptureStream(rate int) *CaptureStream {
	return &CaptureStream{
		frames: make(chan audio.Frame, 64),
		rate:   rate,
		gain:   audio.DefaultGain,
	}
}

// Push delivers a frame to the consumer as if the device captured it. Pushes
// to a muted or closed stream are silently dropped, matching the hard-mute
// contract.
func (c *CaptureStream) Push(f audio.Frame) {
	c.mu.Lock()
	drop := c.muted || c.closed
	c.mu.Unlock()
	if drop {
		return
	}
	c.frames <- f
}

// SetLevel sets the value returned by Level while unmuted.
func (c *CaptureStream) SetLevel(l float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = l
}

// Frames implements [audio.CaptureStream].
func (c *CaptureStream) Frames() <-chan audio.Frame { return c.frames }

// SampleRate implements [audio.CaptureStream].
func (c *CaptureStream) SampleRate() int { return c.rate }

// SetGain implements [audio.CaptureStream].
func (c *CaptureStream) SetGain(g float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gain = audio.ClampGain(g)
}

// Gain implements [audio.CaptureStream].
func (c *CaptureStream) Gain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}

// Level implements [audio.CaptureStream].
func (c *CaptureStream) Level() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted {
		return 0
	}
	return c.level
}

// SetMuted implements [audio.CaptureStream].
func (c *CaptureStream) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = muted
	return nil
}

// Muted implements [audio.CaptureStream].
func (c *CaptureStream) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Close implements [audio.CaptureStream]. Safe to call more than once; the
// call count is recorded so tests can assert teardown ran exactly once.
func (c *CaptureStream) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.frames)
	return nil
}

// CloseCalls reports how many times Close was invoked.
func (c *CaptureStream) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

// Closed reports whether the stream has been closed.
func (c *CaptureStream) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ─── Output ──────────────────────────────────────────────────────────────────

// Output is a scriptable [audio.Output]. By default Play completes
// immediately; call [Output.Gate] to make each Play wait for a matching
// [Output.Release], which lets tests control exactly when "playback
// finished" fires.
type Output struct {
	mu         sync.Mutex
	played     []audio.Chunk
	playing    bool
	overlapped bool
	gate       chan struct{}
	interrupt  chan struct{}
	stopCalls  int
	closeCalls int
	closed     bool

	// PlayErr, when non-nil, is consulted per chunk; a non-nil result makes
	// that Play fail without recording the chunk as played.
	PlayErr func(audio.Chunk) error
}

// NewOutput creates an ungated output.
func NewOutput() *Output {
	return &Output{interrupt: make(chan struct{})}
}

// Gate makes every subsequent Play block until [Output.Release] is called
// once per chunk.
func (o *Output) Gate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gate = make(chan struct{})
}

// Release lets one gated Play complete.
func (o *Output) Release() {
	o.mu.Lock()
	gate := o.gate
	o.mu.Unlock()
	if gate != nil {
		gate <- struct{}{}
	}
}

// Play implements [audio.Output].
func (o *Output) Play(ctx context.Context, chunk audio.Chunk) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return errors.New("mock: output closed")
	}
	if o.playing {
		// The gapless-playback invariant: at most one chunk plays at a time.
		o.overlapped = true
	}
	o.playing = true
	gate := o.gate
	interrupt := o.interrupt
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.playing = false
		o.mu.Unlock()
	}()

	if o.PlayErr != nil {
		if err := o.PlayErr(chunk); err != nil {
			return err
		}
	}

	if gate != nil {
		select {
		case <-gate:
		case <-interrupt:
			return ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	o.mu.Lock()
	o.played = append(o.played, chunk)
	o.mu.Unlock()
	return nil
}

// Stop implements [audio.Output]. Any gated Play in flight returns
// [ErrStopped].
func (o *Output) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopCalls++
	close(o.interrupt)
	o.interrupt = make(chan struct{})
}

// Close implements [audio.Output]. Safe to call more than once.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeCalls++
	o.closed = true
	return nil
}

// Played returns a snapshot of the chunks that completed playback, in order.
func (o *Output) Played() []audio.Chunk {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]audio.Chunk(nil), o.played...)
}

// Overlapped reports whether two Play calls ever ran concurrently.
func (o *Output) Overlapped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overlapped
}

// StopCalls reports how many times Stop was invoked.
func (o *Output) StopCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopCalls
}

// CloseCalls reports how many times Close was invoked.
func (o *Output) CloseCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closeCalls
}
