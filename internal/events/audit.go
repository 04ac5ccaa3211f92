package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loopline/loopline/internal/model"
)

const (
	// DefaultMaxAuditSize caps one audit file at 16MB before rotation.
	DefaultMaxAuditSize = 16 * 1024 * 1024
	auditExtension      = ".jsonl"
	archiveDir          = "archive"
)

// AuditEntry is one exported line: the run event plus wall-clock time of the
// export. The logical Seq inside the event remains the ordering authority.
type AuditEntry struct {
	ExportedAt time.Time      `json:"exported_at"`
	RunID      string         `json:"run_id"`
	Event      model.LogEvent `json:"event"`
}

// AuditWriter appends run events to a JSONL file with size-based rotation.
type AuditWriter struct {
	mu          sync.Mutex
	file        *os.File
	currentSize int64
	maxSize     int64
	path        string
}

func NewAuditWriter(path string, maxSize int64) (*AuditWriter, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxAuditSize
	}

	w := &AuditWriter{path: path, maxSize: maxSize}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *AuditWriter) open() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit file: %w", err)
	}
	w.file = file
	w.currentSize = stat.Size()
	return nil
}

// Write appends one event for the given run.
func (w *AuditWriter) Write(runID string, ev model.LogEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(AuditEntry{
		ExportedAt: time.Now().UTC(),
		RunID:      runID,
		Event:      ev,
	})
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	if w.currentSize+int64(len(data)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return fmt.Errorf("rotate audit file: %w", err)
		}
	}

	n, err := w.file.Write(data)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync audit file: %w", err)
	}
	w.currentSize += int64(n)
	return nil
}

func (w *AuditWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close current audit file: %w", err)
	}

	dir := filepath.Join(filepath.Dir(w.path), archiveDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	base := filepath.Base(w.path)
	stamp := time.Now().Format("20060102_150405")
	name := fmt.Sprintf("%s.%s%s", base[:len(base)-len(auditExtension)], stamp, auditExtension)
	if err := os.Rename(w.path, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("archive audit file: %w", err)
	}

	return w.open()
}

// ReadAudit decodes every entry in an audit file, in order.
func ReadAudit(path string) ([]AuditEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer file.Close()

	var entries []AuditEntry
	decoder := json.NewDecoder(file)
	for decoder.More() {
		var entry AuditEntry
		if err := decoder.Decode(&entry); err != nil {
			return entries, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (w *AuditWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}
