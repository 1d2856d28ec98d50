package rizztempo

import (
	"context"
	"io"
	"path/filepath"
	"testing"
)

func TestOpenFromEnvironment(t *testing.T) {
	root := t.TempDir()
	t.Setenv("RIZZTEMPO_BACKEND_URL", "https://project.example.co")
	t.Setenv("RIZZTEMPO_ANON_KEY", "anon")
	t.Setenv("RIZZTEMPO_STATE_PATH", filepath.Join(root, "state.db"))
	t.Setenv("RIZZTEMPO_JOURNAL_PATH", filepath.Join(root, "journal.db"))

	cfg, err := LoadConfig(root)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	core, err := Open(cfg, io.Discard, "embed")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer core.Close()

	if fp := core.Fingerprint.Fingerprint(context.Background()); fp == "" {
		t.Fatalf("expected a device fingerprint")
	}
	if core.Auth.UserID() != "" {
		t.Fatalf("fresh core must be signed out")
	}
	if len(core.Plans) != 4 {
		t.Fatalf("expected default plans, got %d", len(core.Plans))
	}
}

func TestTranscriptGreeting(t *testing.T) {
	tr := NewTranscript("Sarah")
	if lines := tr.Lines(); len(lines) != 1 || lines[0].Speaker != "Sarah" {
		t.Fatalf("unexpected transcript %+v", lines)
	}
}
