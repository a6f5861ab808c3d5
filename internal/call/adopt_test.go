package call

import (
	"context"
	"testing"

	"github.com/andrifran123/ellie-call/pkg/audio"
	"github.com/andrifran123/ellie-call/pkg/audio/mock"
)

// The socket can close in the window between Dial returning and Start
// binding the resources: the close handler then runs the teardown with
// nothing bound. Ownership must be refused afterwards so the connect flow
// releases the resources itself instead of reporting connected forever.
func TestAdoptRefusedAfterEarlyClose(t *testing.T) {
	t.Parallel()

	platform := &mock.Platform{}
	s, err := New(Config{
		ServerURL:  "ws://127.0.0.1:1",
		Platform:   platform,
		SampleRate: 24000,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.mu.Lock()
	s.state = StateConnecting
	s.mu.Unlock()

	// The server-side close lands while the connect flow still owns
	// everything.
	s.terminate(StateClosed, "call ended")

	capture, err := platform.OpenCapture(context.Background(), audio.CaptureConfig{SampleRate: 24000})
	if err != nil {
		t.Fatalf("OpenCapture: %v", err)
	}
	out, err := platform.OpenOutput(context.Background(), audio.OutputConfig{SampleRate: 24000})
	if err != nil {
		t.Fatalf("OpenOutput: %v", err)
	}
	queue := audio.NewPlaybackQueue(out)
	defer queue.Close()

	if s.adopt(capture, nil, queue) {
		t.Fatal("session took ownership after a terminal transition")
	}
	if got := s.State(); got != StateClosed {
		t.Errorf("state = %s, want closed", got)
	}

	s.mu.Lock()
	counted, bound := s.counted, s.capture != nil
	s.mu.Unlock()
	if counted {
		t.Error("refused adopt still counted the call")
	}
	if bound {
		t.Error("refused adopt still bound the capture stream")
	}
}
