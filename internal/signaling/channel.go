// Package signaling implements the single bidirectional WebSocket conduit of
// a call: JSON control messages and base64-encoded PCM16 audio frames
// upstream, audio deltas and error notices downstream.
//
// A [Channel] is created by [Dial], which enforces the connection timeout and
// sends the hello message before anything else can reach the wire. The
// channel owns two goroutines — a receive loop and a keepalive pinger — and
// both terminate when the channel closes, whichever side initiated it.
package signaling

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// Defaults for [Config] fields left at zero.
const (
	// DefaultDialTimeout bounds how long a connection attempt may stay
	// pending before it is cancelled and surfaced as a timeout.
	DefaultDialTimeout = 15 * time.Second

	// DefaultPingInterval is the keepalive cadence. Audio frames stop when
	// the user is silent or muted, so idle-timeout protection cannot ride on
	// the audio cadence.
	DefaultPingInterval = 25 * time.Second
)

// ErrNotOpen is returned by [Channel.SendAudio] when the channel is not in an
// open state. Callers drop the frame — live audio has no value once stale —
// rather than queueing it.
var ErrNotOpen = errors.New("signaling: channel not open")

// ErrDialTimeout is returned by [Dial] when the connection attempt did not
// reach an open state within the dial timeout.
var ErrDialTimeout = errors.New("signaling: connection timeout")

// Hello holds the session parameters announced in the first message.
type Hello struct {
	UserID     string
	Language   string
	SampleRate int
}

// Config describes the connection to establish.
type Config struct {
	// URL is the WebSocket endpoint, e.g. "wss://host/ws/phone".
	URL string

	// DialTimeout bounds the connection attempt. Zero means
	// [DefaultDialTimeout].
	DialTimeout time.Duration

	// PingInterval is the keepalive cadence. Zero means
	// [DefaultPingInterval].
	PingInterval time.Duration

	// Hello is sent as the first message after the connection opens.
	Hello Hello
}

// Handlers receives inbound traffic and lifecycle notifications. All
// callbacks are invoked from the channel's internal goroutines and must not
// block. Nil callbacks are skipped.
type Handlers struct {
	// OnAudio receives one decoded PCM16 audio delta. Deltas may arrive in
	// rapid bursts; the consumer is expected to absorb them without dropping.
	OnAudio func(pcm []byte)

	// OnServerError receives the human-readable message of a server error
	// event. A server error does not terminate the channel by itself — only
	// a closing socket does.
	OnServerError func(msg string)

	// OnPing fires after each keepalive is written. Used for metrics.
	OnPing func()

	// OnClose fires exactly once when the channel terminates for any reason
	// other than a local Close call. err is nil for a clean closure by the
	// server and non-nil for network failures.
	OnClose func(err error)
}

// Channel is an established call connection.
//
// Channel is safe for concurrent use.
type Channel struct {
	conn     *websocket.Conn
	handlers Handlers

	open atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Dial connects to cfg.URL, sends the hello message, and starts the receive
// and keepalive loops. The connection attempt is bounded by cfg.DialTimeout;
// an attempt still pending when the window expires is cancelled and reported
// as a connection timeout, never left hanging.
//
// The supplied ctx governs the connection attempt only. Once Dial returns the
// Channel lives until [Channel.Close] is called or the socket closes.
func Dial(ctx context.Context, cfg Config, h Handlers) (*Channel, error) {
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, cfg.URL, nil)
	if err != nil {
		if dialCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: %v", ErrDialTimeout, timeout, err)
		}
		return nil, fmt.Errorf("signaling: dial: %w", err)
	}

	chCtx, chCancel := context.WithCancel(context.Background())
	c := &Channel{
		conn:     conn,
		handlers: h,
		ctx:      chCtx,
		cancel:   chCancel,
	}

	// hello must be the first message on the wire; the loops that could
	// write (pinger) start only after it is sent.
	if err := c.writeJSON(helloMessage{
		Type:       typeHello,
		UserID:     cfg.Hello.UserID,
		Language:   cfg.Hello.Language,
		SampleRate: cfg.Hello.SampleRate,
	}); err != nil {
		chCancel()
		conn.Close(websocket.StatusInternalError, "hello failed")
		return nil, fmt.Errorf("signaling: send hello: %w", err)
	}

	c.open.Store(true)

	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}

	go c.receiveLoop()
	go c.pingLoop(pingInterval)

	return c, nil
}

// SendAudio transmits one PCM16 frame as a base64 audio.append message.
// Returns [ErrNotOpen] when the channel is closed or closing; the caller
// drops the frame.
func (c *Channel) SendAudio(pcm []byte) error {
	if !c.open.Load() {
		return ErrNotOpen
	}
	return c.writeJSON(audioAppendMessage{
		Type:  typeAudioAppend,
		Audio: base64.StdEncoding.EncodeToString(pcm),
	})
}

// Close terminates the channel and stops both loops. The keepalive pinger is
// cancelled before the socket closes so no timer leaks across call attempts.
// Safe to call more than once; subsequent calls are no-ops and return nil.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "call ended")
	})
	return nil
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (c *Channel) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("signaling: marshal: %w", err)
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the socket until it closes. A malformed
// message is logged and skipped — one bad message must not take down an
// otherwise healthy call.
func (c *Channel) receiveLoop() {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			// If the context was already cancelled the closure is local —
			// the owner initiated it and needs no notification.
			local := c.ctx.Err() != nil
			c.open.Store(false)
			c.cancel()

			if local || c.handlers.OnClose == nil {
				return
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				c.handlers.OnClose(nil)
			} else {
				c.handlers.OnClose(err)
			}
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Warn("signaling: malformed message, skipping", "err", err, "bytes", len(data))
			continue
		}
		c.dispatch(&evt)
	}
}

// dispatch routes one inbound event.
func (c *Channel) dispatch(evt *serverEvent) {
	switch evt.Type {
	case typeAudioDelta:
		if evt.Delta == "" {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(pcm) == 0 {
			slog.Warn("signaling: undecodable audio delta, skipping", "err", err)
			return
		}
		if c.handlers.OnAudio != nil {
			c.handlers.OnAudio(pcm)
		}

	case typeError:
		msg := evt.Message
		if msg == "" {
			msg = "unknown server error"
		}
		if c.handlers.OnServerError != nil {
			c.handlers.OnServerError(msg)
		}

	default:
		slog.Debug("signaling: unhandled event", "type", evt.Type)
	}
}

// pingLoop writes a keepalive every interval while the channel is open. It
// exits as soon as the channel context is cancelled, from either Close or a
// receive failure.
func (c *Channel) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.writeJSON(pingMessage{Type: typePing}); err != nil {
				// The receive loop surfaces the failure; the pinger just
				// stops sending into a dead socket.
				return
			}
			if c.handlers.OnPing != nil {
				c.handlers.OnPing()
			}
		}
	}
}
