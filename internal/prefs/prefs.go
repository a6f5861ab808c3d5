// Package prefs persists the two pieces of state that outlive a call: the
// microphone gain level and the preferred conversation language. Everything
// else about a call is ephemeral.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/andrifran123/ellie-call/pkg/audio"
)

// fileName is the store file inside the application config directory.
const fileName = "prefs.json"

// Prefs is the persisted user state.
type Prefs struct {
	// Gain is the capture gain multiplier, clamped to the valid range on
	// load so a hand-edited file cannot produce silence or clipping.
	Gain float64 `json:"gain"`

	// Language is the preferred conversation language code, e.g. "en".
	// Empty means no preference has been recorded yet.
	Language string `json:"language,omitempty"`
}

// Default returns the state used before anything has been persisted.
func Default() Prefs {
	return Prefs{Gain: audio.DefaultGain, Language: ""}
}

// Store reads and writes a [Prefs] file at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultStore places the file under the OS user-config directory, e.g.
// ~/.config/ellie-call/prefs.json on Linux.
func DefaultStore(appName string) (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("prefs: locate config dir: %w", err)
	}
	return NewStore(filepath.Join(dir, appName, fileName)), nil
}

// Load reads the persisted state. A missing file is not an error — it means
// the user has never changed anything, so defaults apply. A corrupt file is
// reported so the caller can decide to log and continue with defaults.
func (s *Store) Load() (Prefs, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("prefs: read %s: %w", s.path, err)
	}

	var p Prefs
	if err := json.Unmarshal(data, &p); err != nil {
		return Default(), fmt.Errorf("prefs: parse %s: %w", s.path, err)
	}
	p.Gain = audio.ClampGain(p.Gain)
	return p, nil
}

// Save writes the state atomically: the file is complete or untouched, never
// half-written, even if the process dies mid-save.
func (s *Store) Save(p Prefs) error {
	p.Gain = audio.ClampGain(p.Gain)

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("prefs: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prefs: create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, fileName+".*")
	if err != nil {
		return fmt.Errorf("prefs: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("prefs: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("prefs: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("prefs: replace %s: %w", s.path, err)
	}
	return nil
}
