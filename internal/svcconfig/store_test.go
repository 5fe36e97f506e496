package svcconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamhostd/pkg/types"
)

func newTestStore(t *testing.T, retain int) (*Store, string) {
	t.Helper()
	d := t.TempDir()
	path := filepath.Join(d, "service.json")
	return NewStore(path, filepath.Join(d, "backups"), retain, zerolog.Nop()), path
}

func TestReadDocumentMissingFile(t *testing.T) {
	s, _ := newTestStore(t, 5)
	doc, err := s.ReadDocument()
	require.NoError(t, err)
	assert.Empty(t, doc.Apps)
	assert.Nil(t, doc.Hostname)
}

func TestReadDocumentCorrupt(t *testing.T) {
	s, path := newTestStore(t, 5)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := s.ReadDocument()
	require.Error(t, err)
	assert.True(t, IsCorrupt(err))

	// original left untouched
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw))
}

func TestWriteDocumentRoundTrip(t *testing.T) {
	s, _ := newTestStore(t, 5)
	host := "gamer-pc"
	require.NoError(t, s.WriteDocument(&Document{Hostname: &host}))

	doc, err := s.ReadDocument()
	require.NoError(t, err)
	require.NotNil(t, doc.Hostname)
	assert.Equal(t, "gamer-pc", *doc.Hostname)
}

func TestWriteDocumentCreatesDistinctBackups(t *testing.T) {
	s, _ := newTestStore(t, 5)

	// first write: no file yet, so nothing to back up
	require.NoError(t, s.WriteDocument(&Document{}))
	backups, err := s.Backups()
	require.NoError(t, err)
	assert.Empty(t, backups)

	require.NoError(t, s.WriteDocument(&Document{}))
	require.NoError(t, s.WriteDocument(&Document{}))
	backups, err = s.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.NotEqual(t, backups[0].Path, backups[1].Path)
	assert.True(t, backups[0].CreatedAt.Before(backups[1].CreatedAt) || backups[0].CreatedAt.Equal(backups[1].CreatedAt))
}

func TestBackupRetentionPrunesOldest(t *testing.T) {
	s, _ := newTestStore(t, 5)

	// 7 writes: first has no backup, the remaining 6 each create one,
	// retention keeps the newest 5.
	for i := 0; i < 7; i++ {
		require.NoError(t, s.WriteDocument(&Document{}))
	}
	backups, err := s.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 5)
}

func TestUpsertManagedAppIdempotent(t *testing.T) {
	s, _ := newTestStore(t, 5)
	entry := types.AppEntry{
		Name:   ManagedAppName,
		Output: "VirtualDisplay1",
		PrepCmds: []types.PrepCmd{
			{Do: "enable-display", Undo: "disable-display"},
		},
	}

	require.NoError(t, s.UpsertManagedApp(entry))
	require.NoError(t, s.UpsertManagedApp(entry))

	doc, err := s.ReadDocument()
	require.NoError(t, err)
	count := 0
	for _, a := range doc.Apps {
		if a.Name == ManagedAppName {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestUpsertManagedAppKeepsForeignEntries(t *testing.T) {
	s, _ := newTestStore(t, 5)
	require.NoError(t, s.WriteDocument(&Document{Apps: []types.AppEntry{{Name: "Steam", Cmd: "steam"}}}))

	require.NoError(t, s.UpsertManagedApp(types.AppEntry{Name: ManagedAppName}))

	doc, err := s.ReadDocument()
	require.NoError(t, err)
	require.Len(t, doc.Apps, 2)
	assert.Equal(t, "Steam", doc.Apps[0].Name)
}

func TestRemoveKeysMatchingPattern(t *testing.T) {
	s, path := newTestStore(t, 5)
	require.NoError(t, os.WriteFile(path, []byte(`{
		"apps": [],
		"legacy_dd_mode": 1,
		"legacy_dd_output": "x",
		"keep_me": true
	}`), 0o644))

	require.NoError(t, s.RemoveKeysMatchingPattern([]string{"legacy_dd_*"}))

	doc, err := s.ReadDocument()
	require.NoError(t, err)
	assert.NotContains(t, doc.Extra, "legacy_dd_mode")
	assert.NotContains(t, doc.Extra, "legacy_dd_output")
	assert.Contains(t, doc.Extra, "keep_me")
}

func TestRemoveFilesAndDirectories(t *testing.T) {
	s, path := newTestStore(t, 5)
	dir := filepath.Dir(path)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale.state"), []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "covers"), 0o755))

	require.NoError(t, s.RemoveFiles([]string{"stale.state", "never-existed"}))
	require.NoError(t, s.RemoveDirectories([]string{"covers", "never-existed"}))

	_, err := os.Stat(filepath.Join(dir, "stale.state"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "covers"))
	assert.True(t, os.IsNotExist(err))

	// path traversal rejected
	assert.Error(t, s.RemoveFiles([]string{"../evil"}))
	assert.Error(t, s.RemoveDirectories([]string{"a/b"}))
}

func TestSetOutputMode(t *testing.T) {
	s, _ := newTestStore(t, 5)
	require.NoError(t, s.SetOutputMode("Virtual Display", types.DisplayMode{Width: 2560, Height: 1440, FPS: 120}))

	doc, err := s.ReadDocument()
	require.NoError(t, err)
	require.NotNil(t, doc.OutputName)
	assert.Equal(t, "Virtual Display", *doc.OutputName)
	assert.JSONEq(t, "2560", string(doc.Extra["output_width"]))
	assert.JSONEq(t, "1440", string(doc.Extra["output_height"]))
	assert.JSONEq(t, "120", string(doc.Extra["output_fps"]))
}
