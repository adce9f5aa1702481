package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/classync/classync/internal/models"
)

func TestLoadMissingConfigDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxTasks != DefaultMaxTasks {
		t.Errorf("max tasks: got %d, want %d", cfg.MaxTasks, DefaultMaxTasks)
	}
	if cfg.ClassroomBaseURL != "" {
		t.Errorf("base url: got %q, want empty", cfg.ClassroomBaseURL)
	}
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()

	want := &models.Config{
		ClassroomBaseURL: "https://classroom.example.com",
		ClassroomToken:   "tok-123",
		MaxTasks:         25,
		LogLevel:         "debug",
	}
	if err := Save(dir, want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ClassroomBaseURL != want.ClassroomBaseURL || got.ClassroomToken != want.ClassroomToken {
		t.Errorf("classroom settings: got %+v", got)
	}
	if got.MaxTasks != 25 {
		t.Errorf("max tasks: got %d, want 25", got.MaxTasks)
	}

	// No temp files left behind by the atomic write
	entries, err := os.ReadDir(filepath.Join(dir, ".classync"))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "config.json" {
			t.Errorf("unexpected file: %s", e.Name())
		}
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".classync"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".classync", "config.json"), []byte("{nope"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}
