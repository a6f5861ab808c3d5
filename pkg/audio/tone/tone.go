// Package tone synthesises the audible unlock tone played by the session
// activator before a call starts.
//
// Some platforms gate audio-output hardware routing (notably Bluetooth on
// mobile devices) behind an audible, user-gesture-initiated playback. A
// silent or near-silent waveform is not reliably accepted, so the tone is a
// clearly audible sine with a fade-in/fade-out envelope to avoid click
// artifacts at the edges. The waveform is produced entirely in memory — no
// network or file dependency.
package tone

import (
	"math"

	"github.com/andrifran123/ellie-call/pkg/audio"
)

// Defaults for [Config] fields left at zero.
const (
	DefaultFrequency = 440.0 // Hz
	DefaultDuration  = 1.0   // seconds
	DefaultAmplitude = 0.30  // linear, clearly audible but not startling

	// fadeFraction is the portion of the tone spent in each of the fade-in
	// and fade-out ramps.
	fadeFraction = 0.10
)

// Config describes the tone to synthesise. The zero value produces a one
// second 440 Hz tone at the default amplitude.
type Config struct {
	// Frequency in Hz.
	Frequency float64

	// Duration in seconds.
	Duration float64

	// Amplitude in (0, 1]. Values outside the range fall back to the
	// default; the tone must stay audible for the unlock to be effective.
	Amplitude float64
}

// Synthesize renders the tone as a playable mono 16-bit PCM chunk at
// sampleRate Hz.
func Synthesize(cfg Config, sampleRate int) audio.Chunk {
	freq := cfg.Frequency
	if freq <= 0 {
		freq = DefaultFrequency
	}
	dur := cfg.Duration
	if dur <= 0 {
		dur = DefaultDuration
	}
	amp := cfg.Amplitude
	if amp <= 0 || amp > 1 {
		amp = DefaultAmplitude
	}

	n := int(float64(sampleRate) * dur)
	fade := int(float64(n) * fadeFraction)
	samples := make([]float32, n)

	step := 2 * math.Pi * freq / float64(sampleRate)
	for i := range samples {
		s := math.Sin(step*float64(i)) * amp

		// Linear fade envelope at both edges.
		if i < fade {
			s *= float64(i) / float64(fade)
		} else if n-1-i < fade {
			s *= float64(n-1-i) / float64(fade)
		}

		samples[i] = float32(s)
	}

	return audio.Chunk{
		Data:       audio.EncodePCM16(samples),
		SampleRate: sampleRate,
	}
}
