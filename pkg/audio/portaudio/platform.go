// Package portaudio provides an [audio.Platform] implementation backed by
// PortAudio, giving the call pipeline real microphone capture and speaker
// playback on desktop hosts.
//
// The package wraps the gordonklaus/portaudio bindings. PortAudio requires a
// process-wide Initialize/Terminate pair; [New] performs the initialisation
// and [Platform.Close] the teardown, so exactly one Platform should exist per
// process.
package portaudio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/andrifran123/ellie-call/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Platform = (*Platform)(nil)

// Platform implements [audio.Platform] on top of PortAudio.
//
// Platform is safe for concurrent use.
type Platform struct {
	closeOnce sync.Once
	closeErr  error
}

// New initialises PortAudio and returns a Platform. The caller must call
// [Platform.Close] to release the host audio API.
func New() (*Platform, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Platform{}, nil
}

// OpenCapture implements [audio.Platform]. The ctx governs device
// acquisition only.
func (p *Platform) OpenCapture(ctx context.Context, cfg audio.CaptureConfig) (audio.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return openCapture(cfg)
}

// OpenOutput implements [audio.Platform]. The ctx governs device acquisition
// only.
func (p *Platform) OpenOutput(ctx context.Context, cfg audio.OutputConfig) (audio.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return openOutput(cfg)
}

// Close terminates the PortAudio host API. All streams must be closed first.
// Safe to call more than once.
func (p *Platform) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = portaudio.Terminate()
	})
	return p.closeErr
}

// findDevice returns the first device whose name contains keyword
// (case-insensitive) and that has the required channel direction. Returns nil
// when no device matches; callers fall back to the system default.
func findDevice(keyword string, wantInput bool) *portaudio.DeviceInfo {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil
	}
	needle := strings.ToLower(keyword)
	for _, d := range devices {
		if !strings.Contains(strings.ToLower(d.Name), needle) {
			continue
		}
		if wantInput && d.MaxInputChannels > 0 {
			return d
		}
		if !wantInput && d.MaxOutputChannels > 0 {
			return d
		}
	}
	return nil
}
