package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills unset fields with
// defaults, and validates the result. Unknown keys are rejected so a typo in
// the file surfaces immediately instead of silently using a default.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults restores defaults for fields the file set to zero values.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Client.LogLevel == "" {
		cfg.Client.LogLevel = def.Client.LogLevel
	}
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = def.Audio.SampleRate
	}
	if cfg.Audio.BlockSize == 0 {
		cfg.Audio.BlockSize = def.Audio.BlockSize
	}
	if cfg.Call.DialTimeout == 0 {
		cfg.Call.DialTimeout = def.Call.DialTimeout
	}
	if cfg.Call.PingInterval == 0 {
		cfg.Call.PingInterval = def.Call.PingInterval
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Backend.WSURL == "" {
		errs = append(errs, errors.New("backend.ws_url is required"))
	} else if u, err := url.Parse(cfg.Backend.WSURL); err != nil {
		errs = append(errs, fmt.Errorf("backend.ws_url %q is not a valid URL: %v", cfg.Backend.WSURL, err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("backend.ws_url scheme %q is invalid; use ws or wss", u.Scheme))
	}

	if cfg.Backend.APIURL != "" {
		if u, err := url.Parse(cfg.Backend.APIURL); err != nil {
			errs = append(errs, fmt.Errorf("backend.api_url %q is not a valid URL: %v", cfg.Backend.APIURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("backend.api_url scheme %q is invalid; use http or https", u.Scheme))
		}
	}

	if cfg.Client.LogLevel != "" && !cfg.Client.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("client.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Client.LogLevel))
	}

	if cfg.Audio.SampleRate < 8000 || cfg.Audio.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is out of range [8000, 192000]", cfg.Audio.SampleRate))
	}
	if cfg.Audio.BlockSize < 64 || cfg.Audio.BlockSize > 65536 {
		errs = append(errs, fmt.Errorf("audio.block_size %d is out of range [64, 65536]", cfg.Audio.BlockSize))
	}
	if a := cfg.Audio.Tone.Amplitude; a < 0 || a > 1 {
		errs = append(errs, fmt.Errorf("audio.tone.amplitude %.2f is out of range [0, 1]", a))
	}
	if f := cfg.Audio.Tone.FrequencyHz; f < 0 {
		errs = append(errs, fmt.Errorf("audio.tone.frequency_hz %.1f must not be negative", f))
	}
	if d := cfg.Audio.Tone.DurationS; d < 0 || d > 10 {
		errs = append(errs, fmt.Errorf("audio.tone.duration_s %.1f is out of range [0, 10]", d))
	}

	if cfg.Call.DialTimeout < 0 {
		errs = append(errs, errors.New("call.dial_timeout must not be negative"))
	}
	if cfg.Call.PingInterval < 0 {
		errs = append(errs, errors.New("call.ping_interval must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %w", errors.Join(errs...))
	}
	return nil
}
