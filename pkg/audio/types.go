package audio

// Frame is a single block of outbound microphone audio: mono 16-bit PCM,
// little-endian, gain-adjusted and ready for transmission. Frames are
// ephemeral — they exist only between the capture callback and the network
// send and are never buffered beyond the capture channel.
type Frame struct {
	// Data is little-endian int16 PCM (2 bytes per sample, mono).
	Data []byte

	// SampleRate is the actual capture rate in Hz. This is the rate the
	// device negotiated, which may differ from the rate that was requested.
	SampleRate int
}

// Chunk is a single block of inbound synthesised audio received from the
// server: mono 16-bit PCM, little-endian, variably sized. Chunks live in the
// playback queue until their playback completes.
type Chunk struct {
	// Data is little-endian int16 PCM (2 bytes per sample, mono).
	Data []byte

	// SampleRate is the rate the chunk was synthesised at, in Hz.
	SampleRate int
}

// Duration returns the playback duration of the chunk in seconds, or 0 when
// the sample rate is unknown.
func (c Chunk) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Data)/2) / float64(c.SampleRate)
}
