package portaudio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/andrifran123/ellie-call/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.CaptureStream = (*captureStream)(nil)

// frameChannelBuffer bounds the capture channel. Live audio has no value once
// stale, so when the consumer falls behind the oldest frames are dropped
// rather than queued without bound.
const frameChannelBuffer = 16

// captureStream implements [audio.CaptureStream] over a mono PortAudio input
// stream running in blocking-read mode.
type captureStream struct {
	stream     *portaudio.Stream
	sampleRate int
	blockSize  int

	frames chan audio.Frame

	mu      sync.Mutex
	gain    float64
	level   float64
	muted   bool
	closed  bool
	unmuted chan struct{} // closed-and-replaced to wake the read loop

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// openCapture acquires the microphone and starts the blocking read loop.
//
// PortAudio reports a denied microphone as an ordinary device failure — there
// is no dedicated permission error code — so open and start failures on the
// input device carry [audio.ErrPermission] for the caller to match on.
func openCapture(cfg audio.CaptureConfig) (audio.CaptureStream, error) {
	blockSize := cfg.BlockSize
	if blockSize <= 0 {
		blockSize = audio.DefaultBlockSize
	}

	var dev *portaudio.DeviceInfo
	if cfg.Device != "" {
		dev = findDevice(cfg.Device, true)
	}
	if dev == nil {
		var err error
		dev, err = portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("portaudio: no input device: %w (%v)", audio.ErrPermission, err)
		}
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.Output.Device = nil
	params.Output.Channels = 0
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = blockSize

	buf := make([]float32, blockSize)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		// The requested rate may be the problem; retry at the device default
		// before giving up. Downstream reads the rate back, so a mismatch is
		// fine.
		params.SampleRate = dev.DefaultSampleRate
		stream, err = portaudio.OpenStream(params, buf)
		if err != nil {
			return nil, fmt.Errorf("portaudio: open capture: %w (%v)", audio.ErrPermission, err)
		}
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start capture: %w (%v)", audio.ErrPermission, err)
	}

	c := &captureStream{
		stream:     stream,
		sampleRate: int(params.SampleRate),
		blockSize:  blockSize,
		frames:     make(chan audio.Frame, frameChannelBuffer),
		gain:       audio.ClampGain(cfg.Gain),
		unmuted:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	close(c.unmuted) // not muted initially

	c.wg.Add(1)
	go c.readLoop(buf)

	slog.Debug("capture started",
		"device", dev.Name,
		"rate", c.sampleRate,
		"block", blockSize,
	)
	return c, nil
}

// readLoop pulls one block at a time from the device, applies the gain stage,
// quantises to int16 PCM, and emits the frame. It exits when the stream is
// closed.
func (c *captureStream) readLoop(buf []float32) {
	defer c.wg.Done()
	defer close(c.frames)

	samples := make([]float32, c.blockSize)

	for {
		// Block here while muted: the device track is stopped and produces
		// nothing, so the loop parks until unmute restarts it.
		c.mu.Lock()
		wake := c.unmuted
		c.mu.Unlock()
		select {
		case <-c.done:
			return
		case <-wake:
		}

		if err := c.stream.Read(); err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			// A read error while the stream was stopped for mute is expected;
			// anything else ends the stream.
			if c.Muted() {
				continue
			}
			slog.Warn("capture read failed", "err", err)
			return
		}

		copy(samples, buf)
		audio.ApplyGain(samples, c.Gain())

		c.mu.Lock()
		c.level = rms(samples)
		c.mu.Unlock()

		frame := audio.Frame{
			Data:       audio.EncodePCM16(samples),
			SampleRate: c.sampleRate,
		}

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		default:
			// Consumer is behind; drop the oldest frame to make room.
			select {
			case <-c.frames:
			default:
			}
			select {
			case c.frames <- frame:
			default:
			}
		}
	}
}

// Frames implements [audio.CaptureStream].
func (c *captureStream) Frames() <-chan audio.Frame { return c.frames }

// SampleRate implements [audio.CaptureStream].
func (c *captureStream) SampleRate() int { return c.sampleRate }

// SetGain implements [audio.CaptureStream].
func (c *captureStream) SetGain(g float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gain = audio.ClampGain(g)
}

// Gain implements [audio.CaptureStream].
func (c *captureStream) Gain() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gain
}

// SetMuted implements [audio.CaptureStream]. Muting stops the device track so
// no samples are produced at all; the OS input indicator stays on because the
// device remains acquired.
func (c *captureStream) SetMuted(muted bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || muted == c.muted {
		return nil
	}

	if muted {
		c.muted = true
		c.unmuted = make(chan struct{})
		if err := c.stream.Stop(); err != nil {
			return fmt.Errorf("portaudio: stop capture: %w", err)
		}
		return nil
	}

	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("portaudio: restart capture: %w", err)
	}
	c.muted = false
	close(c.unmuted)
	return nil
}

// Level implements [audio.CaptureStream]. While muted the track is stopped,
// so the last level decays to the true silence the meter should show.
func (c *captureStream) Level() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.muted {
		return 0
	}
	return c.level
}

// Muted implements [audio.CaptureStream].
func (c *captureStream) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

// Close implements [audio.CaptureStream]. It stops the device track and
// releases the microphone. Safe to call more than once.
func (c *captureStream) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)

		// Abort rather than Stop so a blocked Read returns immediately.
		_ = c.stream.Abort()
		c.wg.Wait()
		err = c.stream.Close()
	})
	return err
}

// rms computes the root-mean-square level of float32 samples, feeding the
// level meter.
func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
