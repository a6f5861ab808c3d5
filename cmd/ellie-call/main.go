// Command ellie-call is a terminal client for the Ellie voice-call backend:
// it captures the microphone, streams it over the signaling WebSocket, and
// plays the synthesized replies gaplessly.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/andrifran123/ellie-call/internal/app"
	"github.com/andrifran123/ellie-call/internal/config"
	"github.com/andrifran123/ellie-call/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "ellie.yaml", "path to the YAML configuration file")
	serverURL := flag.String("server", "", "signaling WebSocket URL (overrides backend.ws_url)")
	debugAddr := flag.String("debug-addr", "", "debug server address (overrides client.debug_listen_addr)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath, *serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ellie-call: %v\n", err)
		return 1
	}
	if *serverURL != "" {
		cfg.Backend.WSURL = *serverURL
	}
	if *debugAddr != "" {
		cfg.Client.DebugListenAddr = *debugAddr
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Client.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("ellie-call starting",
		"config", *configPath,
		"server", cfg.Backend.WSURL,
		"log_level", cfg.Client.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observe.Setup()
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Config watcher: live log-level changes ────────────────────────────────
	if _, err := os.Stat(*configPath); err == nil {
		watcher, werr := config.NewWatcher(*configPath, func(_, next *config.Config) {
			level.Set(slogLevel(next.Client.LogLevel))
		})
		if werr != nil {
			slog.Warn("config watcher disabled", "err", werr)
		} else {
			defer watcher.Stop()
		}
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	go func() {
		if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("run error", "err", err)
		}
	}()

	fmt.Println("ellie-call ready — type 'help' for commands")
	repl(ctx, application)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadConfig reads the config file, or falls back to defaults when the file
// is missing but a server URL was given on the command line.
func loadConfig(path, serverURL string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) && serverURL != "" {
		cfg = config.Default()
		cfg.Backend.WSURL = serverURL
		return cfg, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found — pass -server or copy configs/example.yaml", path)
	}
	return nil, err
}

// repl reads commands from stdin until EOF, "quit", or ctx cancellation.
func repl(ctx context.Context, a *app.App) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !dispatch(ctx, a, strings.Fields(line)) {
				return
			}
		}
	}
}

// dispatch runs one command; returns false to exit the loop.
func dispatch(ctx context.Context, a *app.App, args []string) bool {
	if len(args) == 0 {
		return true
	}
	switch args[0] {
	case "call":
		if err := a.StartCall(ctx); err != nil {
			fmt.Println("call failed:", err)
			break
		}
		fmt.Println("connected")
	case "hangup":
		a.HangUp()
		fmt.Println("hung up")
	case "mute":
		report(a.SetMuted(true))
	case "unmute":
		report(a.SetMuted(false))
	case "gain":
		if len(args) < 2 {
			fmt.Printf("gain %.2f\n", a.Gain())
			break
		}
		g, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			fmt.Println("gain: not a number:", args[1])
			break
		}
		fmt.Printf("gain set to %.2f\n", a.SetGain(g))
	case "lang":
		if len(args) < 2 {
			fmt.Println("usage: lang <code>")
			break
		}
		report(a.SetLanguage(ctx, args[1]))
	case "level":
		fmt.Printf("mic level %.3f\n", a.Level())
	case "status":
		st := a.Status()
		if st.Message != "" {
			fmt.Printf("%s — %s\n", st.State, st.Message)
			break
		}
		fmt.Println(st.State)
	case "help":
		fmt.Println("commands: call, hangup, mute, unmute, gain [value], lang <code>, level, status, quit")
	case "quit", "exit":
		return false
	default:
		fmt.Println("unknown command:", args[0])
	}
	return true
}

func report(err error) {
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("ok")
}

// slogLevel maps the config level to slog.
func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
