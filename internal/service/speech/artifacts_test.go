package speech

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPruneArtifacts(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	old := now.Add(-48 * time.Hour)

	files := map[string]time.Time{
		"echo_a.mp3":              old,
		"llm_response_1.mp3":      old,
		"agent_response_s1_1.mp3": now,
		"agent_response_s1_0.mp3": old,
		"user_upload.mp3":         old,
		"llm_response_notes.txt":  old,
	}
	for name, mod := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatalf("chtimes %s: %v", name, err)
		}
	}

	removed, err := PruneArtifacts(dir, 24*time.Hour, now)
	if err != nil {
		t.Fatalf("PruneArtifacts err: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}

	for _, keep := range []string{"agent_response_s1_1.mp3", "user_upload.mp3", "llm_response_notes.txt"} {
		if _, err := os.Stat(filepath.Join(dir, keep)); err != nil {
			t.Fatalf("%s should be kept: %v", keep, err)
		}
	}
}

func TestPruneArtifactsDisabledAndMissingDir(t *testing.T) {
	if n, err := PruneArtifacts(t.TempDir(), 0, time.Now()); err != nil || n != 0 {
		t.Fatalf("disabled retention: n=%d err=%v", n, err)
	}
	if n, err := PruneArtifacts(filepath.Join(t.TempDir(), "nope"), time.Hour, time.Now()); err != nil || n != 0 {
		t.Fatalf("missing dir: n=%d err=%v", n, err)
	}
}
