// Package call implements the lifecycle of one audio call: activation,
// microphone capture, the signaling channel, and gapless playback of the
// reply audio, tied together by a small state machine.
//
// A [Session] backs exactly one call. After it reaches closed or error it is
// discarded; the next call constructs a fresh one. Permission and activation
// failures during connect are the exception — they return the session to
// ready so the same session can retry once the user has acted.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andrifran123/ellie-call/internal/identity"
	"github.com/andrifran123/ellie-call/internal/observe"
	"github.com/andrifran123/ellie-call/internal/signaling"
	"github.com/andrifran123/ellie-call/pkg/audio"
	"github.com/andrifran123/ellie-call/pkg/audio/tone"
)

// ErrNotReady is returned by [Session.Start] when the session is not in the
// ready state.
var ErrNotReady = errors.New("call: session not ready")

// Config assembles everything a [Session] needs.
type Config struct {
	// ServerURL is the WebSocket signaling endpoint.
	ServerURL string

	// Identity populates the hello message.
	Identity identity.Identity

	// Platform provides capture and output devices.
	Platform audio.Platform

	// SampleRate is the requested capture and output rate in Hz. The rate
	// actually negotiated by the capture device is what goes into hello.
	SampleRate int

	// BlockSize is the capture block size in samples. Zero means the
	// platform default.
	BlockSize int

	// Gain is the initial capture gain, clamped to the valid range.
	Gain float64

	// InputDevice and OutputDevice select devices by substring match.
	// Empty means the system default.
	InputDevice  string
	OutputDevice string

	// Tone configures the activation tone. Zero values mean defaults.
	Tone tone.Config

	// DialTimeout and PingInterval override the signaling defaults when
	// non-zero.
	DialTimeout  time.Duration
	PingInterval time.Duration

	// Metrics receives pipeline instrumentation. Nil means
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// OnStatus receives every lifecycle transition. Invoked from session
	// goroutines; must not block. Nil is allowed.
	OnStatus func(Status)
}

// Session drives one call through its lifecycle.
//
// Session is safe for concurrent use.
type Session struct {
	cfg     Config
	log     *slog.Logger
	metrics *observe.Metrics
	act     *activator

	mu      sync.Mutex
	state   State
	capture audio.CaptureStream
	channel *signaling.Channel
	queue   *audio.PlaybackQueue
	gain    float64
	counted bool

	// pubMu serializes status deliveries so a terminal status can never be
	// followed by a stale connected one.
	pubMu sync.Mutex

	detached     atomic.Bool
	teardownOnce sync.Once
}

// New validates cfg and returns a session in the ready state.
func New(cfg Config) (*Session, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("call: server URL required")
	}
	if cfg.Platform == nil {
		return nil, errors.New("call: audio platform required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	s := &Session{
		cfg:     cfg,
		log:     cfg.Logger.With("component", "call"),
		metrics: cfg.Metrics,
		gain:    audio.ClampGain(cfg.Gain),
		state:   StateReady,
	}
	s.act = newActivator(cfg.Platform,
		audio.OutputConfig{SampleRate: cfg.SampleRate, Device: cfg.OutputDevice},
		cfg.Tone)
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start runs the connect flow: unlock audio output, acquire the microphone,
// dial the signaling channel, and send hello. It returns once the session is
// connected or the flow has failed.
//
// Failure routing: activation and microphone-permission failures return the
// session to ready with an actionable message; anything else lands in error.
// A ctx cancelled mid-flow tears down quietly without publishing state.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateReady {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: state is %s", ErrNotReady, st)
	}
	s.state = StateConnecting
	s.mu.Unlock()
	s.publish(Status{State: StateConnecting})

	start := time.Now()

	out, err := s.act.Activate(ctx)
	if err != nil {
		s.log.Warn("audio activation failed", "err", err)
		s.setState(StateReady, "audio could not be unlocked, tap start to try again")
		return err
	}

	capture, err := s.cfg.Platform.OpenCapture(ctx, audio.CaptureConfig{
		SampleRate: s.cfg.SampleRate,
		BlockSize:  s.cfg.BlockSize,
		Gain:       s.Gain(),
		Device:     s.cfg.InputDevice,
	})
	if err != nil {
		if errors.Is(err, audio.ErrPermission) {
			s.log.Warn("microphone denied", "err", err)
			s.setState(StateReady, "microphone permission required")
			return err
		}
		s.setState(StateError, "microphone unavailable: "+err.Error())
		s.teardown()
		return err
	}

	rate := capture.SampleRate()
	queue := audio.NewPlaybackQueue(out)
	queue.OnPlayed(func(c audio.Chunk, playErr error) {
		bg := context.Background()
		s.metrics.QueueDepth.Add(bg, -1)
		switch {
		case playErr == nil:
			s.metrics.ChunksPlayed.Add(bg, 1)
		case errors.Is(playErr, audio.ErrDiscarded):
			// Torn down before playing; only the depth needed settling.
		default:
			s.metrics.ChunksFailed.Add(bg, 1)
		}
	})

	channel, err := signaling.Dial(ctx, signaling.Config{
		URL:          s.cfg.ServerURL,
		DialTimeout:  s.cfg.DialTimeout,
		PingInterval: s.cfg.PingInterval,
		Hello: signaling.Hello{
			UserID:     s.cfg.Identity.UserID,
			Language:   s.cfg.Identity.Language,
			SampleRate: rate,
		},
	}, signaling.Handlers{
		OnAudio: func(pcm []byte) {
			bg := context.Background()
			chunk := audio.Chunk{Data: pcm, SampleRate: rate}
			s.metrics.QueueDepth.Add(bg, 1)
			s.metrics.ChunkDuration.Record(bg, chunk.Duration())
			queue.Enqueue(chunk)
		},
		OnServerError: func(msg string) {
			s.metrics.ServerErrors.Add(context.Background(), 1)
			s.log.Warn("server error", "msg", msg)
			s.publish(Status{State: s.State(), Message: msg})
		},
		OnPing: func() {
			s.metrics.Pings.Add(context.Background(), 1)
		},
		OnClose: func(closeErr error) {
			if closeErr != nil {
				s.terminate(StateError, "connection lost: "+closeErr.Error())
				return
			}
			s.terminate(StateClosed, "call ended")
		},
	})
	if err != nil {
		capture.Close()
		queue.Close()
		status := "error"
		if errors.Is(err, signaling.ErrDialTimeout) {
			status = "timeout"
		}
		s.metrics.RecordConnect(context.Background(), time.Since(start).Seconds(), status)
		if ctx.Err() == nil {
			s.setState(StateError, err.Error())
		}
		s.teardown()
		return err
	}

	if ctx.Err() != nil {
		// The owner went away while we were dialing. Tear down without
		// publishing anything further.
		s.detached.Store(true)
		channel.Close()
		capture.Close()
		queue.Close()
		s.teardown()
		return ctx.Err()
	}

	if !s.adopt(capture, channel, queue) {
		// The socket closed in the window between Dial returning and the
		// session taking ownership. The close handler has already run the
		// teardown with nothing bound, so release what the connect flow
		// still holds.
		channel.Close()
		capture.Close()
		queue.Close()
		s.metrics.RecordConnect(context.Background(), time.Since(start).Seconds(), "closed")
		return errors.New("call: connection closed during connect")
	}

	s.metrics.RecordConnect(context.Background(), time.Since(start).Seconds(), "ok")

	go s.pump(capture, channel)

	s.publishIfState(StateConnected)
	s.log.Info("call connected", "user", s.cfg.Identity.UserID, "sample_rate", rate)
	return nil
}

// adopt hands the connect flow's resources to the session and moves it to
// connected. It reports false when a terminal transition won the race while
// the resources were still unbound; the caller keeps ownership and must
// release them.
func (s *Session) adopt(capture audio.CaptureStream, channel *signaling.Channel, queue *audio.PlaybackQueue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return false
	}
	s.capture = capture
	s.channel = channel
	s.queue = queue
	s.counted = true
	s.state = StateConnected
	s.metrics.ActiveCalls.Add(context.Background(), 1)
	return true
}

// HangUp ends the call deliberately. Safe to call in any state, repeatedly.
func (s *Session) HangUp() {
	s.terminate(StateClosed, "call ended")
}

// Close detaches the session and tears it down without publishing further
// state. Used when the owning component shuts down.
func (s *Session) Close() error {
	s.detached.Store(true)
	s.teardown()
	return nil
}

// SetGain updates the capture gain, applying it to the live stream when one
// exists. The clamped value is returned so callers can persist it.
func (s *Session) SetGain(g float64) float64 {
	g = audio.ClampGain(g)
	s.mu.Lock()
	s.gain = g
	capture := s.capture
	s.mu.Unlock()
	if capture != nil {
		capture.SetGain(g)
	}
	return g
}

// Gain returns the current capture gain.
func (s *Session) Gain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// SetMuted stops or resumes sample production at the device. While muted no
// frames are produced at all, so nothing reaches the wire.
func (s *Session) SetMuted(muted bool) error {
	s.mu.Lock()
	capture := s.capture
	s.mu.Unlock()
	if capture == nil {
		return errors.New("call: no active capture")
	}
	return capture.SetMuted(muted)
}

// Muted reports whether capture is muted. False when no call is active.
func (s *Session) Muted() bool {
	s.mu.Lock()
	capture := s.capture
	s.mu.Unlock()
	return capture != nil && capture.Muted()
}

// Level returns the most recent capture level in [0, 1], or 0 when no call
// is active.
func (s *Session) Level() float64 {
	s.mu.Lock()
	capture := s.capture
	s.mu.Unlock()
	if capture == nil {
		return 0
	}
	return capture.Level()
}

// pump forwards capture frames to the channel until the capture stream
// closes. Frames that cannot be sent are dropped and counted — queueing
// stale live audio would only add latency.
func (s *Session) pump(capture audio.CaptureStream, channel *signaling.Channel) {
	bg := context.Background()
	for frame := range capture.Frames() {
		err := channel.SendAudio(frame.Data)
		switch {
		case err == nil:
			s.metrics.FramesSent.Add(bg, 1)
		case errors.Is(err, signaling.ErrNotOpen):
			s.metrics.RecordFrameDropped(bg, "channel_not_open")
		default:
			s.metrics.RecordFrameDropped(bg, "send_error")
			s.log.Warn("frame send failed", "err", err)
		}
	}
}

// terminate moves the session into a terminal state and tears it down. When
// the session is already terminal only the teardown (a no-op after the
// first) runs, so double hang-ups and close races are harmless.
func (s *Session) terminate(st State, msg string) {
	s.mu.Lock()
	terminal := s.state == StateClosed || s.state == StateError
	if !terminal {
		s.state = st
	}
	s.mu.Unlock()

	if !terminal {
		s.publish(Status{State: st, Message: msg})
	}
	s.teardown()
}

// teardown releases every resource the session holds. Runs at most once.
func (s *Session) teardown() {
	s.teardownOnce.Do(func() {
		s.mu.Lock()
		capture, channel, queue := s.capture, s.channel, s.queue
		counted := s.counted
		s.counted = false
		s.mu.Unlock()

		if channel != nil {
			channel.Close()
		}
		if capture != nil {
			capture.Close()
		}
		if queue != nil {
			queue.Close()
		}
		s.act.Close()

		if counted {
			s.metrics.ActiveCalls.Add(context.Background(), -1)
		}
		s.log.Info("call torn down")
	})
}

// setState records st and publishes it.
func (s *Session) setState(st State, msg string) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.publish(Status{State: st, Message: msg})
}

// publish delivers one status notification unless the session is detached.
func (s *Session) publish(st Status) {
	if s.detached.Load() || s.cfg.OnStatus == nil {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.cfg.OnStatus(st)
}

// publishIfState delivers a bare status for st only while the session is
// still in that state. The check and the delivery share pubMu with every
// other publish, so once a racing terminal status is out, a stale one for st
// can no longer follow it.
func (s *Session) publishIfState(st State) {
	if s.detached.Load() || s.cfg.OnStatus == nil {
		return
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if s.State() != st {
		return
	}
	s.cfg.OnStatus(Status{State: st})
}
