package eventfiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("[]\n"), 0o644))
}

func TestCleanupRemovesUnexpectedFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Algebra.json")
	touch(t, dir, "Old.json")
	touch(t, dir, "Older.JSON")
	touch(t, dir, "all.txt")
	touch(t, dir, "notes.md")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Dir.json"), 0o755))

	removed, err := Cleanup(dir, ".json", map[string]struct{}{"Algebra": {}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Old", "Older"}, removed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"Algebra.json", "Dir.json", "all.txt", "notes.md"}, names)
}

func TestCleanupDeletesNonUTF8Names(t *testing.T) {
	dir := t.TempDir()
	bad := string([]byte{'R', 0xFF, 'u', 'm'}) + ".json"
	if err := os.WriteFile(filepath.Join(dir, bad), []byte("[]"), 0o644); err != nil {
		t.Skipf("filesystem rejects non UTF-8 names: %v", err)
	}

	removed, err := Cleanup(dir, ".json", map[string]struct{}{})
	require.NoError(t, err)
	assert.Empty(t, removed, "non UTF-8 stems are deleted but not reported")

	_, err = os.Stat(filepath.Join(dir, bad))
	assert.True(t, os.IsNotExist(err))
}

func TestCleanupMissingDir(t *testing.T) {
	_, err := Cleanup(filepath.Join(t.TempDir(), "missing"), ".json", nil)
	assert.Error(t, err)
}
