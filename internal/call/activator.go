package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/andrifran123/ellie-call/pkg/audio"
	"github.com/andrifran123/ellie-call/pkg/audio/tone"
)

// ErrActivation marks a failure to unlock audio output. The remedy differs
// from a microphone permission failure — the user retries the explicit
// start gesture rather than granting an OS permission — so the two are kept
// distinguishable.
var ErrActivation = errors.New("call: audio activation failed")

// activator unlocks audio output by playing a short audible tone before any
// call audio is requested, and hands the opened output device to the rest of
// the session for reuse. Platforms that gate audio output behind an explicit
// user action accept the device open plus an audible sound as that action.
type activator struct {
	platform audio.Platform
	outCfg   audio.OutputConfig
	toneCfg  tone.Config

	mu  sync.Mutex
	out audio.Output
}

func newActivator(platform audio.Platform, outCfg audio.OutputConfig, toneCfg tone.Config) *activator {
	return &activator{platform: platform, outCfg: outCfg, toneCfg: toneCfg}
}

// Activate opens the output device if needed and plays the unlock tone
// through it. The same open handle is returned on every call — activation is
// one-shot per session, a second call just reuses the unlocked device.
func (a *activator) Activate(ctx context.Context) (audio.Output, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.out == nil {
		out, err := a.platform.OpenOutput(ctx, a.outCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: open output: %v", ErrActivation, err)
		}
		a.out = out

		chunk := tone.Synthesize(a.toneCfg, a.outCfg.SampleRate)
		if err := a.out.Play(ctx, chunk); err != nil {
			a.out.Close()
			a.out = nil
			return nil, fmt.Errorf("%w: play tone: %v", ErrActivation, err)
		}
	}
	return a.out, nil
}

// Close releases the output device. Safe to call without a prior Activate
// and safe to call twice.
func (a *activator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.out == nil {
		return nil
	}
	err := a.out.Close()
	a.out = nil
	return err
}
