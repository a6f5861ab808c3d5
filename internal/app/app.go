// Package app wires the ellie-call subsystems into a running client.
//
// The App struct owns the full lifecycle: New connects preferences, identity
// lookup, the audio platform, and the debug server; Run serves until the
// context ends; Shutdown tears everything down in order. Calls are started
// and controlled through the App's call methods, which the command-line
// front-end drives.
//
// For testing, inject doubles via functional options (WithPlatform,
// WithPrefsStore, WithIdentityClient). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/andrifran123/ellie-call/internal/call"
	"github.com/andrifran123/ellie-call/internal/config"
	"github.com/andrifran123/ellie-call/internal/health"
	"github.com/andrifran123/ellie-call/internal/identity"
	"github.com/andrifran123/ellie-call/internal/observe"
	"github.com/andrifran123/ellie-call/internal/prefs"
	"github.com/andrifran123/ellie-call/pkg/audio"
	"github.com/andrifran123/ellie-call/pkg/audio/portaudio"
	"github.com/andrifran123/ellie-call/pkg/audio/tone"
)

// ErrCallActive is returned by [App.StartCall] while another call is live.
var ErrCallActive = errors.New("app: a call is already active")

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	metrics  *observe.Metrics
	platform audio.Platform
	store    *prefs.Store
	ident    *identity.Client

	prefsMu sync.Mutex
	current prefs.Prefs

	callMu  sync.Mutex
	session *call.Session
	lastSt  call.Status

	srv *http.Server

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithPlatform injects an audio platform instead of initialising PortAudio.
func WithPlatform(p audio.Platform) Option {
	return func(a *App) { a.platform = p }
}

// WithPrefsStore injects a preferences store instead of the one under the
// user config directory.
func WithPrefsStore(s *prefs.Store) Option {
	return func(a *App) { a.store = s }
}

// WithIdentityClient injects an identity client.
func WithIdentityClient(c *identity.Client) Option {
	return func(a *App) { a.ident = c }
}

// WithMetrics injects a metrics instance instead of the package default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Preferences ───────────────────────────────────────────────────
	if a.store == nil {
		store, err := prefs.DefaultStore("ellie-call")
		if err != nil {
			return nil, fmt.Errorf("app: init prefs: %w", err)
		}
		a.store = store
	}
	p, err := a.store.Load()
	if err != nil {
		slog.Warn("preferences unreadable, using defaults", "err", err)
	}
	a.current = p

	// ── 2. Identity lookup ───────────────────────────────────────────────
	if a.ident == nil && cfg.Backend.APIURL != "" {
		a.ident = identity.NewClient(cfg.Backend.APIURL)
	}

	// ── 3. Audio platform ────────────────────────────────────────────────
	if a.platform == nil {
		platform, err := portaudio.New()
		if err != nil {
			return nil, fmt.Errorf("app: init audio platform: %w", err)
		}
		a.platform = platform
		a.closers = append(a.closers, platform.Close)
	}

	// ── 4. Debug server ──────────────────────────────────────────────────
	if cfg.Client.DebugListenAddr != "" {
		a.srv = &http.Server{
			Addr:              cfg.Client.DebugListenAddr,
			Handler:           a.DebugHandler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return a, nil
}

// DebugHandler returns the debug server's handler: Prometheus metrics plus
// the health endpoints, wrapped in the observability middleware.
func (a *App) DebugHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	checkers := []health.Checker{
		{Name: "audio", Check: func(context.Context) error {
			if a.platform == nil {
				return errors.New("audio platform not initialised")
			}
			return nil
		}},
	}
	if a.cfg.Backend.APIURL != "" {
		checkers = append(checkers, health.Checker{Name: "backend", Check: a.checkBackend})
	}
	health.New(checkers...).Register(mux)

	return observe.Middleware(a.metrics)(mux)
}

// checkBackend probes the backend API base URL.
func (a *App) checkBackend(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, a.cfg.Backend.APIURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	return nil
}

// Run serves the debug endpoints until ctx ends, then shuts them down. When
// no debug address is configured Run just blocks on ctx.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.srv != nil {
		g.Go(func() error {
			slog.Info("debug server listening", "addr", a.srv.Addr)
			if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("app: debug server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.srv.Shutdown(shutCtx)
		})
	} else {
		g.Go(func() error {
			<-ctx.Done()
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// StartCall resolves the caller's identity and drives a fresh session
// through the connect flow. The identity lookup falls back to an anonymous
// identity, so a dead backend API never blocks the call.
func (a *App) StartCall(ctx context.Context) error {
	a.callMu.Lock()
	if a.session != nil {
		st := a.session.State()
		if st == call.StateConnecting || st == call.StateConnected {
			a.callMu.Unlock()
			return ErrCallActive
		}
		a.session.Close()
		a.session = nil
	}
	a.callMu.Unlock()

	id := identity.Identity{UserID: "anon", Language: identity.DefaultLanguage}
	if a.ident != nil {
		id = a.ident.Resolve(ctx)
	}
	if lang := a.prefsSnapshot().Language; lang != "" {
		id.Language = lang
	}

	session, err := call.New(call.Config{
		ServerURL:    a.cfg.Backend.WSURL,
		Identity:     id,
		Platform:     a.platform,
		SampleRate:   a.cfg.Audio.SampleRate,
		BlockSize:    a.cfg.Audio.BlockSize,
		Gain:         a.prefsSnapshot().Gain,
		InputDevice:  a.cfg.Audio.InputDevice,
		OutputDevice: a.cfg.Audio.OutputDevice,
		Tone: tone.Config{
			Frequency: a.cfg.Audio.Tone.FrequencyHz,
			Duration:  a.cfg.Audio.Tone.DurationS,
			Amplitude: a.cfg.Audio.Tone.Amplitude,
		},
		DialTimeout:  a.cfg.Call.DialTimeout,
		PingInterval: a.cfg.Call.PingInterval,
		Metrics:      a.metrics,
		OnStatus:     a.onStatus,
	})
	if err != nil {
		return err
	}

	a.callMu.Lock()
	a.session = session
	a.callMu.Unlock()

	return session.Start(ctx)
}

// onStatus records and logs every lifecycle transition.
func (a *App) onStatus(st call.Status) {
	a.callMu.Lock()
	a.lastSt = st
	a.callMu.Unlock()
	if st.Message != "" {
		slog.Info("call status", "state", st.State.String(), "msg", st.Message)
		return
	}
	slog.Info("call status", "state", st.State.String())
}

// Status returns the last published call status.
func (a *App) Status() call.Status {
	a.callMu.Lock()
	defer a.callMu.Unlock()
	if a.session == nil {
		return call.Status{State: call.StateReady}
	}
	return a.lastSt
}

// HangUp ends the active call, if any.
func (a *App) HangUp() {
	a.callMu.Lock()
	session := a.session
	a.callMu.Unlock()
	if session != nil {
		session.HangUp()
	}
}

// SetGain applies a new capture gain to the live call (when one exists) and
// persists the clamped value.
func (a *App) SetGain(g float64) float64 {
	a.callMu.Lock()
	session := a.session
	a.callMu.Unlock()

	clamped := audio.ClampGain(g)
	if session != nil {
		clamped = session.SetGain(g)
	}

	a.prefsMu.Lock()
	a.current.Gain = clamped
	p := a.current
	a.prefsMu.Unlock()
	if err := a.store.Save(p); err != nil {
		slog.Warn("failed to persist gain", "err", err)
	}
	return clamped
}

// Gain returns the persisted capture gain.
func (a *App) Gain() float64 {
	return a.prefsSnapshot().Gain
}

// SetLanguage persists the language preference locally and, when a backend
// API is configured, pushes it there as well.
func (a *App) SetLanguage(ctx context.Context, lang string) error {
	a.prefsMu.Lock()
	a.current.Language = lang
	p := a.current
	a.prefsMu.Unlock()
	if err := a.store.Save(p); err != nil {
		return err
	}
	if a.ident != nil {
		id := a.ident.Resolve(ctx)
		if err := a.ident.StoreLanguage(ctx, id.UserID, lang); err != nil {
			slog.Warn("failed to store language on backend", "err", err)
		}
	}
	return nil
}

// SetMuted toggles the microphone of the active call.
func (a *App) SetMuted(muted bool) error {
	a.callMu.Lock()
	session := a.session
	a.callMu.Unlock()
	if session == nil {
		return errors.New("app: no active call")
	}
	return session.SetMuted(muted)
}

// Level returns the live capture level, or 0 outside a call.
func (a *App) Level() float64 {
	a.callMu.Lock()
	session := a.session
	a.callMu.Unlock()
	if session == nil {
		return 0
	}
	return session.Level()
}

// Shutdown tears everything down in order: the active call, then each
// registered closer. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.callMu.Lock()
		session := a.session
		a.session = nil
		a.callMu.Unlock()
		if session != nil {
			session.Close()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

func (a *App) prefsSnapshot() prefs.Prefs {
	a.prefsMu.Lock()
	defer a.prefsMu.Unlock()
	return a.current
}
