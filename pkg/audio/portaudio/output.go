package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/andrifran123/ellie-call/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Output = (*output)(nil)

// ErrInterrupted is returned by Play when Stop interrupts the active source.
var ErrInterrupted = errors.New("portaudio: playback interrupted")

// outputBlockSize is the number of samples handed to the device per blocking
// write. Small enough that Stop and ctx cancellation take effect quickly
// (~43 ms at 24 kHz), large enough to keep write overhead negligible.
const outputBlockSize = 1024

// output implements [audio.Output] over a mono PortAudio output stream in
// blocking-write mode. The blocking Write is the platform's playback-finished
// signal: when the final block's Write returns, the chunk has been consumed
// by the device.
type output struct {
	stream     *portaudio.Stream
	sampleRate int
	buf        []int16

	// playMu serialises Play calls; the playback queue already guarantees
	// one at a time, but the handle does not rely on that.
	playMu sync.Mutex

	mu        sync.Mutex
	interrupt bool
	closed    bool

	closeOnce sync.Once
}

// openOutput acquires the speaker and starts the stream. The stream stays
// running between chunks — an idle running stream plays silence — so there is
// no start/stop cost at chunk boundaries and playback is gapless.
func openOutput(cfg audio.OutputConfig) (audio.Output, error) {
	var dev *portaudio.DeviceInfo
	if cfg.Device != "" {
		dev = findDevice(cfg.Device, false)
	}
	if dev == nil {
		var err error
		dev, err = portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("portaudio: no output device: %w", err)
		}
	}

	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = 1
	params.Input.Device = nil
	params.Input.Channels = 0
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = outputBlockSize

	buf := make([]int16, outputBlockSize)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		params.SampleRate = dev.DefaultSampleRate
		stream, err = portaudio.OpenStream(params, buf)
		if err != nil {
			return nil, fmt.Errorf("portaudio: open output: %w", err)
		}
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start output: %w", err)
	}

	return &output{
		stream:     stream,
		sampleRate: int(params.SampleRate),
		buf:        buf,
	}, nil
}

// Play implements [audio.Output]. Chunks at a different rate than the device
// negotiated are resampled first. The final partial block is zero-padded so
// the device consumes whole blocks only.
func (o *output) Play(ctx context.Context, chunk audio.Chunk) error {
	o.playMu.Lock()
	defer o.playMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return fmt.Errorf("portaudio: output closed")
	}
	o.interrupt = false
	o.mu.Unlock()

	pcm := chunk.Data
	if chunk.SampleRate > 0 && chunk.SampleRate != o.sampleRate {
		pcm = audio.ResampleMono16(pcm, chunk.SampleRate, o.sampleRate)
	}

	samples := len(pcm) / 2
	for off := 0; off < samples; off += outputBlockSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.interrupted() {
			return ErrInterrupted
		}

		n := min(outputBlockSize, samples-off)
		for i := range n {
			o.buf[i] = int16(pcm[(off+i)*2]) | int16(pcm[(off+i)*2+1])<<8
		}
		for i := n; i < outputBlockSize; i++ {
			o.buf[i] = 0
		}

		if err := o.stream.Write(); err != nil {
			// An output underflow is recoverable noise, not a broken chunk.
			if errors.Is(err, portaudio.OutputUnderflowed) {
				continue
			}
			return fmt.Errorf("portaudio: write: %w", err)
		}
	}
	return nil
}

// Stop implements [audio.Output]. The active Play call, if any, returns
// [ErrInterrupted] at the next block boundary. The stream itself keeps
// running so later chunks play without a restart.
func (o *output) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.interrupt = true
}

// Close implements [audio.Output]. Safe to call more than once.
func (o *output) Close() error {
	var err error
	o.closeOnce.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.interrupt = true
		o.mu.Unlock()

		_ = o.stream.Abort()
		err = o.stream.Close()
	})
	return err
}

func (o *output) interrupted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.interrupt
}
