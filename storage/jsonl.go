package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLWriter appends JSON documents to a file, one per line.
// Appends are serialized; each line is written with a single write call so a
// concurrent reader never observes half a record from this process.
type JSONLWriter struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	closed bool
}

// OpenJSONL opens path for appending, creating the file and its parent
// directory when missing.
func OpenJSONL(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &JSONLWriter{path: path, file: f}, nil
}

// Path returns the file path
func (w *JSONLWriter) Path() string {
	return w.path
}

// Write encodes v as compact JSON and appends it followed by a newline
func (w *JSONLWriter) Write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrLogClosed
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("failed to append to %s: %w", w.path, err)
	}
	return nil
}

// Close flushes and closes the file. Closing twice is a no-op.
func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("failed to sync %s: %w", w.path, err)
	}
	return w.file.Close()
}
