package correlate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrCorruptCursor is returned when the stored cursor cannot be decoded
var ErrCorruptCursor = errors.New("corrupt correlation cursor")

// Cursor is the correlation watermark: the number of detection log lines
// already correlated.
type Cursor struct {
	Lines     int       `json:"lines"`
	UpdatedAt time.Time `json:"updated_at"`
	RunID     string    `json:"run_id,omitempty"`
}

// FileCursor stores the watermark as a small JSON document
type FileCursor struct {
	path string
}

// NewFileCursor creates a cursor store at path
func NewFileCursor(path string) *FileCursor {
	return &FileCursor{path: path}
}

// Load reads the stored cursor. A missing file yields the zero cursor.
func (f *FileCursor) Load() (Cursor, error) {
	var c Cursor
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return c, fmt.Errorf("failed to read cursor: %w", err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrCorruptCursor, err)
	}
	if c.Lines < 0 {
		return Cursor{}, fmt.Errorf("%w: negative line count %d", ErrCorruptCursor, c.Lines)
	}
	return c, nil
}

// Save writes the cursor atomically through a temporary file and rename
func (f *FileCursor) Save(c Cursor) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cursor: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cursor directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cursor-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cursor: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp cursor: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp cursor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp cursor: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace cursor: %w", err)
	}
	return nil
}
