package tone_test

import (
	"testing"

	"github.com/andrifran123/ellie-call/pkg/audio"
	"github.com/andrifran123/ellie-call/pkg/audio/tone"
)

const testRate = 24000

func samples(c audio.Chunk) []float32 {
	return audio.DecodePCM16(c.Data)
}

func TestSynthesize_DefaultsToOneSecond(t *testing.T) {
	t.Parallel()

	c := tone.Synthesize(tone.Config{}, testRate)

	if c.SampleRate != testRate {
		t.Errorf("SampleRate = %d, want %d", c.SampleRate, testRate)
	}
	if got := c.Duration(); got != 1.0 {
		t.Errorf("Duration() = %v, want 1.0", got)
	}
}

func TestSynthesize_IsClearlyAudible(t *testing.T) {
	t.Parallel()

	s := samples(tone.Synthesize(tone.Config{}, testRate))

	// Silent or near-silent unlock tones are unreliable; the mid-section
	// must reach the configured amplitude.
	var peak float32
	for _, v := range s[len(s)/4 : len(s)/2] {
		if v > peak {
			peak = v
		}
	}
	if peak < 0.25 {
		t.Errorf("peak amplitude %v, want >= 0.25 — the unlock tone must be audible", peak)
	}
}

func TestSynthesize_FadesInAndOut(t *testing.T) {
	t.Parallel()

	s := samples(tone.Synthesize(tone.Config{}, testRate))

	// The envelope must start and end at silence to avoid click artifacts.
	if first := s[0]; first != 0 {
		t.Errorf("first sample = %v, want 0", first)
	}
	if last := s[len(s)-1]; last > 0.001 || last < -0.001 {
		t.Errorf("last sample = %v, want ~0", last)
	}

	// Early fade-in samples stay well below the steady-state amplitude.
	var earlyPeak float32
	for _, v := range s[:len(s)/100] {
		if v > earlyPeak {
			earlyPeak = v
		}
	}
	if earlyPeak > 0.1 {
		t.Errorf("peak during first 1%% = %v, want < 0.1 — fade-in missing", earlyPeak)
	}
}

func TestSynthesize_CustomConfig(t *testing.T) {
	t.Parallel()

	c := tone.Synthesize(tone.Config{Frequency: 880, Duration: 0.5, Amplitude: 0.5}, testRate)
	if got, want := len(c.Data), testRate; got != want {
		t.Errorf("0.5s tone has %d bytes, want %d", got, want)
	}
}

func TestSynthesize_RejectsInaudibleAmplitude(t *testing.T) {
	t.Parallel()

	// Amplitude outside (0, 1] falls back to the audible default.
	s := samples(tone.Synthesize(tone.Config{Amplitude: -1}, testRate))
	var peak float32
	for _, v := range s {
		if v > peak {
			peak = v
		}
	}
	if peak < 0.25 {
		t.Errorf("peak %v after invalid amplitude, want the audible default", peak)
	}
}
