package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/p-arndt/werkbank/internal/config"
	"github.com/p-arndt/werkbank/internal/store"
)

// TestConfig returns a Config with sensible test defaults.
func TestConfig() *config.Config {
	return &config.Config{
		Listen:                 "127.0.0.1:0",
		APIKey:                 "test-api-key",
		DBPath:                 ":memory:",
		Driver:                 "fake",
		SandboxTTLSeconds:      3600,
		MinRemainingTTLSeconds: 60,
		WorkspaceBase:          "/home/user/workspace",
		ReaperIntervalSeconds:  30,
		Context: config.ContextConfig{
			MaxFiles:          20,
			SnippetChars:      280,
			TotalSnippetChars: 2400,
		},
		Ingest: config.IngestConfig{
			FetchTimeoutMs: 5000,
			MaxBytes:       1 << 20,
		},
	}
}

// NewTestStore creates a SQLite store in a per-test temp directory.
func NewTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "werkbank.db"), 0)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// Logger returns a logger that discards everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
