// Package config provides the configuration schema, loader, and file watcher
// for the ellie-call client.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Client  ClientConfig  `yaml:"client"`
	Audio   AudioConfig   `yaml:"audio"`
	Call    CallConfig    `yaml:"call"`
}

// BackendConfig locates the two backend surfaces the client talks to.
type BackendConfig struct {
	// WSURL is the signaling WebSocket endpoint, e.g. "wss://host/ws/phone".
	WSURL string `yaml:"ws_url"`

	// APIURL is the base URL of the backend HTTP API used for identity and
	// language lookups. Empty disables the lookups; the client falls back
	// to an anonymous identity.
	APIURL string `yaml:"api_url"`
}

// ClientConfig holds logging and debug-server settings.
type ClientConfig struct {
	// LogLevel controls verbosity. Default: info.
	LogLevel LogLevel `yaml:"log_level"`

	// DebugListenAddr is the TCP address of the local debug server serving
	// /metrics, /healthz and /readyz. Empty disables the server.
	DebugListenAddr string `yaml:"debug_listen_addr"`
}

// AudioConfig holds device and format settings.
type AudioConfig struct {
	// SampleRate is the requested capture and playback rate in Hz.
	// Default: 24000. The device may negotiate a different capture rate;
	// the negotiated rate is what the client announces to the server.
	SampleRate int `yaml:"sample_rate"`

	// BlockSize is the capture block size in samples. Default: 4096.
	BlockSize int `yaml:"block_size"`

	// InputDevice and OutputDevice select devices by name substring.
	// Empty means the system default device.
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`

	// Tone configures the audio-unlock tone played when a call starts.
	Tone ToneConfig `yaml:"tone"`
}

// ToneConfig shapes the activation tone. Zero values mean the built-in
// defaults (440 Hz, 1 s, amplitude 0.3).
type ToneConfig struct {
	FrequencyHz float64 `yaml:"frequency_hz"`
	DurationS   float64 `yaml:"duration_s"`
	Amplitude   float64 `yaml:"amplitude"`
}

// CallConfig holds signaling timing knobs.
type CallConfig struct {
	// DialTimeout bounds the connection attempt. Default: 15s.
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// PingInterval is the keepalive cadence. Default: 25s.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// Default returns a config with every optional field at its default value.
// Backend.WSURL has no default and must come from the file or flags.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			LogLevel: LogInfo,
		},
		Audio: AudioConfig{
			SampleRate: 24000,
			BlockSize:  4096,
		},
		Call: CallConfig{
			DialTimeout:  15 * time.Second,
			PingInterval: 25 * time.Second,
		},
	}
}
