package identity_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/andrifran123/ellie-call/internal/identity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolve_HappyPath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/session":
			json.NewEncoder(w).Encode(map[string]string{"user_id": "u-42"})
		case "/api/users/u-42/language":
			json.NewEncoder(w).Encode(map[string]string{"language": "is"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	c := identity.NewClient(srv.URL, identity.WithLogger(discardLogger()))
	id := c.Resolve(context.Background())

	if id.UserID != "u-42" {
		t.Errorf("UserID = %q, want u-42", id.UserID)
	}
	if id.Language != "is" {
		t.Errorf("Language = %q, want is", id.Language)
	}
}

func TestResolve_BackendDownFallsBackToAnonymous(t *testing.T) {
	t.Parallel()

	// A server that was already shut down: every request fails at dial time.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := identity.NewClient(srv.URL, identity.WithLogger(discardLogger()))
	id := c.Resolve(context.Background())

	if !strings.HasPrefix(id.UserID, "anon-") {
		t.Errorf("UserID = %q, want generated anonymous identity", id.UserID)
	}
	if id.Language != identity.DefaultLanguage {
		t.Errorf("Language = %q, want %q", id.Language, identity.DefaultLanguage)
	}
}

func TestResolve_LanguageLookupFailureKeepsIdentity(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/session" {
			json.NewEncoder(w).Encode(map[string]string{"user_id": "u-7"})
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := identity.NewClient(srv.URL, identity.WithLogger(discardLogger()))
	id := c.Resolve(context.Background())

	if id.UserID != "u-7" {
		t.Errorf("UserID = %q, want u-7", id.UserID)
	}
	if id.Language != identity.DefaultLanguage {
		t.Errorf("Language = %q, want fallback %q", id.Language, identity.DefaultLanguage)
	}
}

func TestResolve_MalformedBodyFallsBack(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	t.Cleanup(srv.Close)

	c := identity.NewClient(srv.URL, identity.WithLogger(discardLogger()))
	id := c.Resolve(context.Background())

	if !strings.HasPrefix(id.UserID, "anon-") {
		t.Errorf("UserID = %q, want anonymous fallback", id.UserID)
	}
}

func TestStoreLanguage(t *testing.T) {
	t.Parallel()

	var gotBody string
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c := identity.NewClient(srv.URL, identity.WithLogger(discardLogger()))
	if err := c.StoreLanguage(context.Background(), "u-9", "de"); err != nil {
		t.Fatalf("StoreLanguage: %v", err)
	}
	if gotPath != "/api/users/u-9/language" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody != `{"language":"de"}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestStoreLanguage_ErrorStatusIsReported(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	c := identity.NewClient(srv.URL, identity.WithLogger(discardLogger()))
	if err := c.StoreLanguage(context.Background(), "u-9", "de"); err == nil {
		t.Fatal("StoreLanguage returned nil for a 403 response")
	}
}

func TestResolve_BreakerSkipsDeadBackend(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := identity.NewClient(srv.URL, identity.WithLogger(discardLogger()))
	for i := 0; i < 3; i++ {
		id := c.Resolve(context.Background())
		if !strings.HasPrefix(id.UserID, "anon-") {
			t.Fatalf("resolve %d: expected anonymous identity, got %q", i, id.UserID)
		}
	}
	tripped := hits.Load()
	if tripped != 3 {
		t.Fatalf("server hit %d times before tripping, want 3", tripped)
	}

	id := c.Resolve(context.Background())
	if !strings.HasPrefix(id.UserID, "anon-") {
		t.Fatalf("expected anonymous identity, got %q", id.UserID)
	}
	if hits.Load() != tripped {
		t.Errorf("tripped breaker still reached the backend (%d hits)", hits.Load())
	}
	if id.Language != identity.DefaultLanguage {
		t.Errorf("language = %q, want %q", id.Language, identity.DefaultLanguage)
	}
}
