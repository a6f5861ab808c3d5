// Package identity resolves who is calling. It asks the backend for the
// session's user identity and stored language preference, and falls back to
// a locally generated identity when the backend is unreachable — a dead
// lookup endpoint must never block a call from starting.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/andrifran123/ellie-call/internal/resilience"
)

// DefaultLanguage is used when neither the backend nor local preferences
// provide one.
const DefaultLanguage = "en"

// defaultTimeout bounds each lookup. Identity resolution sits on the call
// start path, so it must fail fast rather than hang.
const defaultTimeout = 5 * time.Second

// Identity is what goes into the hello message.
type Identity struct {
	UserID   string
	Language string
}

// Client looks up identities against the backend API. A circuit breaker
// guards the lookups: when the backend keeps failing, subsequent call starts
// skip straight to the anonymous fallback instead of waiting out the HTTP
// timeout each time.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
	breaker *resilience.Breaker
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient returns a client for the backend API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = resilience.New(resilience.Config{
		Name:     "identity-backend",
		Cooldown: 15 * time.Second,
		Logger:   c.log,
	})
	return c
}

// sessionResponse is the backend's session lookup payload. Unknown fields
// are ignored so backend additions do not break the client.
type sessionResponse struct {
	UserID string `json:"user_id"`
}

type languageResponse struct {
	Language string `json:"language"`
}

// Resolve returns the caller's identity. On any failure — network error,
// non-200 status, unparseable body — it logs the cause and returns a
// generated anonymous identity with the default language, never an error.
func (c *Client) Resolve(ctx context.Context) Identity {
	id := Identity{
		UserID:   "anon-" + uuid.NewString(),
		Language: DefaultLanguage,
	}

	var session sessionResponse
	if err := c.getJSON(ctx, "/api/session", &session); err != nil {
		c.log.Warn("identity: session lookup failed, using anonymous identity", "err", err)
		return id
	}
	if session.UserID != "" {
		id.UserID = session.UserID
	}

	var lang languageResponse
	if err := c.getJSON(ctx, "/api/users/"+url.PathEscape(id.UserID)+"/language", &lang); err != nil {
		c.log.Warn("identity: language lookup failed, using default", "err", err, "user", id.UserID)
		return id
	}
	if lang.Language != "" {
		id.Language = lang.Language
	}
	return id
}

// StoreLanguage persists the user's language preference on the backend.
// Unlike Resolve this reports failure, since the caller may want to retry or
// at least tell the user; the local preference file is still updated first.
func (c *Client) StoreLanguage(ctx context.Context, userID, language string) error {
	body := fmt.Sprintf(`{"language":%q}`, language)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.baseURL+"/api/users/"+url.PathEscape(userID)+"/language",
		strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.breaker.Do(func() error {
		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("identity: store language: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("identity: store language: unexpected status %s", resp.Status)
		}
		return nil
	})
}

// getJSON performs one GET through the breaker and decodes the JSON body
// into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.breaker.Do(func() error {
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %s", resp.Status)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
		return nil
	})
}
