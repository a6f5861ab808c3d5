package signaling

// Message type tags exchanged on the call WebSocket. Outbound messages are
// hello, audio.append, and ping; the server sends audio.delta and error.
const (
	typeHello       = "hello"
	typeAudioAppend = "audio.append"
	typePing        = "ping"
	typeAudioDelta  = "audio.delta"
	typeError       = "error"
)

// helloMessage announces session parameters. It must be the first message on
// the wire after the connection opens.
//
// SampleRate carries the rate the capture device actually negotiated, not the
// rate that was requested — the server interprets every subsequent
// audio.append at this rate.
type helloMessage struct {
	Type       string `json:"type"`
	UserID     string `json:"user_id"`
	Language   string `json:"language"`
	SampleRate int    `json:"sample_rate"`
}

// audioAppendMessage carries one outbound audio frame.
type audioAppendMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

// pingMessage is the periodic keepalive.
type pingMessage struct {
	Type string `json:"type"`
}

// serverEvent is the envelope for every inbound message. Fields beyond Type
// are populated depending on the event kind.
type serverEvent struct {
	Type string `json:"type"`

	// audio.delta
	Delta string `json:"delta,omitempty"` // base64-encoded PCM16

	// error
	Message string `json:"message,omitempty"`
}
