package correlate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCursorMissingIsZero(t *testing.T) {
	c, err := NewFileCursor(filepath.Join(t.TempDir(), "absent.json")).Load()
	require.NoError(t, err)
	assert.Equal(t, Cursor{}, c)
}

func TestFileCursorSaveLoad(t *testing.T) {
	dir := t.TempDir()
	store := NewFileCursor(filepath.Join(dir, "nested", "correlation_cursor.json"))

	want := Cursor{Lines: 42, UpdatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), RunID: "run-1"}
	require.NoError(t, store.Save(want))
	require.NoError(t, store.Save(want))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestFileCursorCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursor.json")

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	_, err := NewFileCursor(path).Load()
	assert.ErrorIs(t, err, ErrCorruptCursor)

	require.NoError(t, os.WriteFile(path, []byte(`{"lines":-3}`), 0o644))
	_, err = NewFileCursor(path).Load()
	assert.ErrorIs(t, err, ErrCorruptCursor)
}
