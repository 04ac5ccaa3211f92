package yaml

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestQuarantine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("{{{{"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if err := Quarantine(dir, path); err != nil {
		t.Fatalf("Quarantine returned error: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("original file should have been moved")
	}

	entries, err := os.ReadDir(filepath.Join(dir, "quarantine"))
	if err != nil {
		t.Fatalf("read quarantine dir: %v", err)
	}
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), ".corrupt") {
		t.Errorf("quarantine dir contents = %v, want one .corrupt file", entries)
	}
}

func TestRestoreFromBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.yaml")

	if err := AtomicWrite(path, map[string]any{"version": 1}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := AtomicWrite(path, map[string]any{"version": 2}); err != nil {
		t.Fatalf("second write: %v", err)
	}
	// Corrupt the live file, then restore.
	if err := os.WriteFile(path, []byte("{{{{"), 0644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}

	if err := RestoreFromBackup(path); err != nil {
		t.Fatalf("RestoreFromBackup returned error: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(content) != "version: 1\n" {
		t.Errorf("restored content = %q, want backup content", string(content))
	}
}

func TestRestoreFromBackup_NoBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.yaml")
	if err := RestoreFromBackup(path); err == nil {
		t.Errorf("RestoreFromBackup should fail without a .bak file")
	}
}
