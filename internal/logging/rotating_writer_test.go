package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingWriterRollsOverBySize(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	rw := &RotatingWriter{BasePath: filepath.Join(dir, "app.log"), MaxBytes: 8, now: func() time.Time { return fixed }}
	t.Cleanup(func() { _ = rw.Close() })

	if _, err := rw.Write([]byte("12345")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := rw.Write([]byte("67890")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasSuffix(rw.CurrentPath(), "app-2026-03-04-2.log") {
		t.Fatalf("expected second file, got %s", rw.CurrentPath())
	}
	first, err := os.ReadFile(filepath.Join(dir, "app-2026-03-04.log"))
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if string(first) != "12345" {
		t.Fatalf("unexpected first file content %q", first)
	}
}

func TestRotatingWriterNewDay(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC)
	rw := &RotatingWriter{BasePath: filepath.Join(dir, "app.log"), MaxBytes: 1024, now: func() time.Time { return day }}
	t.Cleanup(func() { _ = rw.Close() })

	if _, err := rw.Write([]byte("a")); err != nil {
		t.Fatalf("write: %v", err)
	}
	day = day.Add(2 * time.Minute)
	if _, err := rw.Write([]byte("b")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.HasSuffix(rw.CurrentPath(), "app-2026-03-05.log") {
		t.Fatalf("expected next day file, got %s", rw.CurrentPath())
	}
}

func TestDashDisablesFileOutput(t *testing.T) {
	w, err := NewRotatingWriter("-", 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter: %v", err)
	}
	if _, ok := w.(*RotatingWriter); ok {
		t.Fatalf("expected discard writer")
	}
}

func TestPrefix(t *testing.T) {
	if got := Prefix("remote", "", "debug"); got != "[rizztempo/remote][dev][DEBUG] " {
		t.Fatalf("unexpected prefix %q", got)
	}
}
