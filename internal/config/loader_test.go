package config

import (
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
backend:
  ws_url: wss://ellie.example.com/ws/phone
`

func TestLoadFromReader_MinimalConfigGetsDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Backend.WSURL != "wss://ellie.example.com/ws/phone" {
		t.Errorf("ws_url = %q", cfg.Backend.WSURL)
	}
	if cfg.Client.LogLevel != LogInfo {
		t.Errorf("log_level = %q, want default info", cfg.Client.LogLevel)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Errorf("sample_rate = %d, want default 24000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.BlockSize != 4096 {
		t.Errorf("block_size = %d, want default 4096", cfg.Audio.BlockSize)
	}
	if cfg.Call.DialTimeout != 15*time.Second {
		t.Errorf("dial_timeout = %v, want default 15s", cfg.Call.DialTimeout)
	}
	if cfg.Call.PingInterval != 25*time.Second {
		t.Errorf("ping_interval = %v, want default 25s", cfg.Call.PingInterval)
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
backend:
  ws_url: ws://localhost:8080/ws/phone
  api_url: http://localhost:8080
client:
  log_level: debug
  debug_listen_addr: 127.0.0.1:9090
audio:
  sample_rate: 48000
  block_size: 2048
  input_device: "USB Microphone"
  output_device: "Headphones"
  tone:
    frequency_hz: 880
    duration_s: 0.5
    amplitude: 0.2
call:
  dial_timeout: 10s
  ping_interval: 20s
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Audio.SampleRate != 48000 || cfg.Audio.BlockSize != 2048 {
		t.Errorf("audio = %+v", cfg.Audio)
	}
	if cfg.Audio.Tone.FrequencyHz != 880 {
		t.Errorf("tone frequency = %v", cfg.Audio.Tone.FrequencyHz)
	}
	if cfg.Call.DialTimeout != 10*time.Second {
		t.Errorf("dial_timeout = %v", cfg.Call.DialTimeout)
	}
	if cfg.Client.DebugListenAddr != "127.0.0.1:9090" {
		t.Errorf("debug_listen_addr = %q", cfg.Client.DebugListenAddr)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
backend:
  ws_url: wss://host/ws/phone
  websocket_url: wss://typo
`))
	if err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	cfg := Default()
	cfg.Backend.WSURL = "https://wrong-scheme"
	cfg.Client.LogLevel = "loud"
	cfg.Audio.SampleRate = 100
	cfg.Audio.Tone.Amplitude = 2.0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate accepted a broken config")
	}
	for _, want := range []string{"ws_url", "log_level", "sample_rate", "amplitude"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestValidate_MissingWSURL(t *testing.T) {
	err := Validate(Default())
	if err == nil || !strings.Contains(err.Error(), "ws_url is required") {
		t.Errorf("err = %v, want ws_url requirement", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/ellie.yaml"); err == nil {
		t.Fatal("Load of missing file returned nil error")
	}
}

func TestLoad_ShippedExample(t *testing.T) {
	cfg, err := Load("../../configs/example.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Audio.Tone.DurationS != 1.0 {
		t.Errorf("example tone duration = %v s, want the full 1 s unlock tone", cfg.Audio.Tone.DurationS)
	}
	if cfg.Call.DialTimeout != 15*time.Second {
		t.Errorf("example dial_timeout = %v, want 15s", cfg.Call.DialTimeout)
	}
	if cfg.Call.PingInterval != 25*time.Second {
		t.Errorf("example ping_interval = %v, want 25s", cfg.Call.PingInterval)
	}
}
