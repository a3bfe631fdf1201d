package cli

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"quiz-engine/internal/config"
	"quiz-engine/internal/infra/memory"
	"quiz-engine/internal/infra/sqlite"
)

func TestOpenStoreSelectsDriver(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	var cfg config.Config
	cfg.Storage.Driver = config.DriverMemory
	store, release, err := openStore(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	release()
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	cfg.Storage.Driver = config.DriverSQLite
	cfg.Storage.SQLitePath = filepath.Join(t.TempDir(), "nested", "quiz.db")
	store, release, err = openStore(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	defer release()
	if _, ok := store.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
}

func TestNewIssuerGeneratesSecret(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	issuer, err := newIssuer(config.Auth{}, log)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	token, err := issuer.IssueHost("g1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Verify(token); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	log := newLogger(config.Log{Level: "warn", Format: "text"})
	if log.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info must be disabled at warn level")
	}
	if !newLogger(config.Log{Level: "bogus"}).Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("unknown level must fall back to info")
	}
}
