// Package audio defines the capability contracts and PCM primitives of the
// ellie-call audio pipeline.
//
// The three primary abstractions are:
//
//   - [Platform] — opens microphone capture and speaker output on the host.
//   - [CaptureStream] — a live microphone stream delivering transmit-ready
//     [Frame] values, with a user-adjustable gain stage and hard mute.
//   - [Output] — the single reusable audio-output handle that plays [Chunk]
//     values to completion.
//
// Implementations are provided by host-specific adapter packages (the
// portaudio package for real hardware, the mock package for tests). The
// interfaces are intentionally narrow so the call controller stays decoupled
// from device details.
//
// This package lives under pkg/ because alternative platform adapters are
// expected to implement [Platform] against it.
package audio

import (
	"context"
	"errors"
)

// ErrPermission is returned (possibly wrapped) by [Platform.OpenCapture] when
// microphone access is denied by the operating system. Callers use it to
// present an actionable "microphone permission required" message instead of a
// generic device error.
var ErrPermission = errors.New("microphone permission required")

// DefaultBlockSize is the capture block size in samples when the config does
// not specify one. 4096 samples trades capture latency against per-frame
// overhead.
const DefaultBlockSize = 4096

// CaptureConfig describes the microphone stream to open.
type CaptureConfig struct {
	// SampleRate is the requested capture rate in Hz. The device may not
	// honour it exactly; [CaptureStream.SampleRate] reports the rate that was
	// actually negotiated and downstream consumers must use that value.
	SampleRate int

	// BlockSize is the number of samples per emitted [Frame]. Zero means
	// [DefaultBlockSize].
	BlockSize int

	// Gain is the initial gain multiplier, applied before quantisation.
	// Zero means 1.0. See [ClampGain] for the valid range.
	Gain float64

	// Device optionally selects an input device by name substring. Empty
	// means the system default.
	Device string
}

// OutputConfig describes the speaker output handle to open.
type OutputConfig struct {
	// SampleRate is the playback rate in Hz. Chunks at a different rate are
	// resampled before playback.
	SampleRate int

	// Device optionally selects an output device by name substring. Empty
	// means the system default.
	Device string
}

// CaptureStream is a live microphone stream.
//
// Implementations must be safe for concurrent use: gain and mute are mutated
// from the UI path while the capture callback reads them.
type CaptureStream interface {
	// Frames returns the channel delivering captured frames. The channel is
	// closed when the stream is closed. While the stream is muted no frames
	// are produced at all — the underlying device track is stopped, not
	// merely suppressed, so level meters read true silence.
	Frames() <-chan Frame

	// SampleRate reports the rate the device actually negotiated, in Hz.
	SampleRate() int

	// SetGain sets the live gain multiplier. The value is clamped to
	// [MinGain, MaxGain] and takes effect on the next captured block.
	SetGain(g float64)

	// Gain reports the current effective gain multiplier.
	Gain() float64

	// Level reports the RMS level of the most recent gain-adjusted block in
	// [0, 1]. A muted stream reports 0 — the meter reflects true silence
	// because the device track is stopped, not merely suppressed.
	Level() float64

	// SetMuted starts or stops the underlying device track.
	SetMuted(muted bool) error

	// Muted reports whether the stream is muted.
	Muted() bool

	// Close stops the device track and releases the microphone. It is safe
	// to call more than once; subsequent calls are no-ops and return nil.
	// Failing to close leaks the OS microphone-active indicator.
	Close() error
}

// Output is the single reusable audio-output handle for one call. It is
// created once (lazily, by the session activator) and reused for every
// queued chunk, so the platform's playback-unlock cost is paid only once.
//
// Implementations must be safe for concurrent use of Play and Stop.
type Output interface {
	// Play plays one chunk to completion and returns when the platform
	// signals that playback finished. It returns early with ctx.Err() when
	// ctx is cancelled or with the playback error when the chunk cannot be
	// played. At most one Play call runs at a time per handle; the playback
	// queue enforces this.
	Play(ctx context.Context, chunk Chunk) error

	// Stop interrupts the active source, if any. An interrupted Play call
	// returns promptly. Stop is safe to call when nothing is playing.
	Stop()

	// Close releases the output device. It is safe to call more than once;
	// subsequent calls are no-ops and return nil.
	Close() error
}

// Platform opens audio devices on the host.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// OpenCapture acquires the microphone. The supplied ctx governs the
	// acquisition only; the returned stream lives until its Close method is
	// called. Returns an error wrapping [ErrPermission] when access is
	// denied.
	OpenCapture(ctx context.Context, cfg CaptureConfig) (CaptureStream, error)

	// OpenOutput acquires the speaker output handle. The supplied ctx
	// governs the acquisition only.
	OpenOutput(ctx context.Context, cfg OutputConfig) (Output, error)
}
