package reload

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_HandleReload_MissingFileUsesDefaults(t *testing.T) {
	var level slog.LevelVar
	level.Set(slog.LevelDebug)

	h := NewHandler(&level, testLogger(), filepath.Join(t.TempDir(), "config.yaml"))
	if _, err := h.HandleReload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level.Level() != slog.LevelInfo {
		t.Errorf("level = %v, want info", level.Level())
	}
}

func TestHandler_HandleReload_AppliesLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	var level slog.LevelVar
	h := NewHandler(&level, testLogger(), path)
	cfg, err := h.HandleReload(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if level.Level() != slog.LevelWarn {
		t.Errorf("level = %v, want warn", level.Level())
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("cfg.LogLevel = %q", cfg.LogLevel)
	}
}

func TestHandler_HandleReload_InvalidConfigKeepsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: shouty\n"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	var level slog.LevelVar
	level.Set(slog.LevelError)
	h := NewHandler(&level, testLogger(), path)
	if _, err := h.HandleReload(context.Background()); err == nil {
		t.Fatal("expected validation error")
	}
	if level.Level() != slog.LevelError {
		t.Errorf("level changed to %v", level.Level())
	}
}

func TestHandler_HandleReload_CancelledContext(t *testing.T) {
	var level slog.LevelVar
	h := NewHandler(&level, testLogger(), "/nonexistent/config.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.HandleReload(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
