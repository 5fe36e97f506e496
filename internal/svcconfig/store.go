package svcconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"

	"streamhostd/internal/common/fsutil"
	"streamhostd/pkg/types"
)

// backupTimeLayout yields lexically sortable, collision-free backup names.
const backupTimeLayout = "20060102-150405.000000000"

// BackupRecord is one timestamped copy of the configuration document.
type BackupRecord struct {
	Path      string
	CreatedAt time.Time
}

// Store accesses the service's on-disk configuration document. Mutations
// are serialized within this process; contention with the external service
// process is mitigated by operation sequencing, not locking.
type Store struct {
	path      string
	backupDir string
	retain    int
	log       zerolog.Logger
	mu        sync.Mutex
}

// NewStore creates a store for the document at path. Backups are written to
// backupDir, keeping at most retain copies.
func NewStore(path, backupDir string, retain int, log zerolog.Logger) *Store {
	if backupDir == "" {
		backupDir = filepath.Dir(path)
	}
	if retain <= 0 {
		retain = 5
	}
	return &Store{
		path:      path,
		backupDir: backupDir,
		retain:    retain,
		log:       log.With().Str("component", "svcconfig").Logger(),
	}
}

// ReadDocument reads and parses the whole document. A missing file yields
// an empty document (first run); a file that fails to parse is surfaced as
// corrupt and left untouched.
func (s *Store) ReadDocument() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() (*Document, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Document{}, nil
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, ErrCorrupt(s.path, err)
	}
	return &doc, nil
}

// WriteDocument backs up the current file, then writes doc in full. A
// failed backup is logged and the write proceeds; blocking the user on a
// backup is worse than missing one copy.
func (s *Store) WriteDocument(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(doc)
}

func (s *Store) writeLocked(doc *Document) error {
	if err := s.backupLocked(); err != nil {
		s.log.Warn().Err(err).Msg("config backup failed, writing without backup")
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir(filepath.Dir(s.path)); err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(b))
}

// UpsertManagedApp ensures entry exists exactly once in the application
// list, then re-reads the document to verify the entry survived a possible
// concurrent rewrite by the service.
func (s *Store) UpsertManagedApp(entry types.AppEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	doc.UpsertApp(entry)
	if err := s.writeLocked(doc); err != nil {
		return err
	}

	// Verify: the service may have rewritten the file underneath us. The
	// upsert is idempotent, so losing the race is resolved by reapplying.
	check, err := s.readLocked()
	if err != nil {
		return err
	}
	if check.FindApp(entry.Name) < 0 {
		s.log.Warn().Str("app", entry.Name).Msg("managed app entry lost to concurrent rewrite, reapplying")
		check.UpsertApp(entry)
		return s.writeLocked(check)
	}
	return nil
}

// SetOutputMode records the virtual display's output name and active mode
// in the service's per-output configuration.
func (s *Store) SetOutputMode(output string, mode types.DisplayMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	doc.OutputName = &output
	if doc.Extra == nil {
		doc.Extra = map[string]json.RawMessage{}
	}
	doc.Extra["output_width"] = json.RawMessage(strconv.Itoa(mode.Width))
	doc.Extra["output_height"] = json.RawMessage(strconv.Itoa(mode.Height))
	doc.Extra["output_fps"] = json.RawMessage(strconv.Itoa(mode.FPS))
	return s.writeLocked(doc)
}

// RemoveKeysMatchingPattern deletes passthrough keys whose names match any
// of the shell-style patterns.
func (s *Store) RemoveKeysMatchingPattern(patterns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	removed := 0
	for key := range doc.Extra {
		for _, pat := range patterns {
			if ok, _ := filepath.Match(pat, key); ok {
				delete(doc.Extra, key)
				removed++
				break
			}
		}
	}
	if removed == 0 {
		return nil
	}
	s.log.Info().Int("removed", removed).Strs("patterns", patterns).Msg("removed config keys")
	return s.writeLocked(doc)
}

// RemoveFiles deletes the named files from the service's config directory.
// Missing files are skipped.
func (s *Store) RemoveFiles(names []string) error {
	dir := filepath.Dir(s.path)
	for _, name := range names {
		if name == "" || strings.ContainsAny(name, "/\\") {
			return fmt.Errorf("invalid file name %q", name)
		}
		p := filepath.Join(dir, name)
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// RemoveDirectories deletes the named directories (recursively) from the
// service's config directory. Missing directories are skipped.
func (s *Store) RemoveDirectories(names []string) error {
	dir := filepath.Dir(s.path)
	for _, name := range names {
		if name == "" || strings.ContainsAny(name, "/\\") {
			return fmt.Errorf("invalid directory name %q", name)
		}
		if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

// Backups lists existing backup records, oldest first.
func (s *Store) Backups() ([]BackupRecord, error) {
	entries, err := os.ReadDir(s.backupDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	prefix := filepath.Base(s.path) + "."
	var records []BackupRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".bak") {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".bak")
		ts, err := time.Parse(backupTimeLayout, stamp)
		if err != nil {
			continue
		}
		records = append(records, BackupRecord{Path: filepath.Join(s.backupDir, name), CreatedAt: ts})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	return records, nil
}

// backupLocked copies the current document to a timestamped backup and
// prunes the oldest copies beyond the retention count. No document on disk
// means nothing to back up.
func (s *Store) backupLocked() error {
	src, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir(s.backupDir); err != nil {
		return err
	}
	name := fmt.Sprintf("%s.%s.bak", filepath.Base(s.path), time.Now().UTC().Format(backupTimeLayout))
	if err := atomic.WriteFile(filepath.Join(s.backupDir, name), bytes.NewReader(src)); err != nil {
		return err
	}
	return s.pruneLocked()
}

func (s *Store) pruneLocked() error {
	records, err := s.Backups()
	if err != nil {
		return err
	}
	for len(records) > s.retain {
		oldest := records[0]
		if err := os.Remove(oldest.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		s.log.Debug().Str("backup", oldest.Path).Msg("pruned old config backup")
		records = records[1:]
	}
	return nil
}
