// Package configstore is the site's configuration database: an ordered,
// case-preserving set of sections persisted to a single INI-style file.
package configstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"eventsite/internal/fileutil"
	"eventsite/internal/logger"
)

// SaveError is returned when the document could not be persisted. The
// previous file content is left in place.
type SaveError struct {
	Path string
	Err  error
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("save config %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// SaveHook is called after a save that changed the file content.
type SaveHook func(action string, content []byte)

// Default is a value seeded by EnsureSections when the key is missing.
type Default struct {
	Section string
	Key     string
	Value   string
}

// Store owns the configuration document. A single mutex serializes
// load, mutation and save within the process; a lock file next to the
// config serializes them across processes (the server and CLI commands).
// Every transaction reloads the file first when another writer changed it.
//
// Hooks run in commit order while hookMu is held and must not call back
// into the store.
type Store struct {
	path     string
	mu       sync.Mutex
	hookMu   sync.Mutex
	fileLock *flock.Flock
	doc      *Document
	last     []byte
	hooks    []SaveHook
}

// New returns a store for path holding an empty document.
func New(path string) *Store {
	return &Store{path: path, doc: NewDocument(), fileLock: flock.New(path + ".lock")}
}

// Open creates a store and loads path.
func Open(path string) (*Store, error) {
	s := New(path)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) Path() string { return s.path }

// OnSave registers a hook run after every content-changing save.
func (s *Store) OnSave(h SaveHook) {
	s.mu.Lock()
	s.hooks = append(s.hooks, h)
	s.mu.Unlock()
}

// Load replaces the in-memory document with the file content. A missing
// file yields an empty document.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lockShared(); err != nil {
		return err
	}
	defer s.unlockFile()

	if err := s.reload(true); err != nil {
		return err
	}
	logger.LogInfo("Loaded config %s (%d sections)", s.path, len(s.doc.sections))
	return nil
}

// reload reads the file and replaces the document when the bytes differ
// from the last version this store read or wrote. The caller holds s.mu
// and the file lock.
func (s *Store) reload(force bool) error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if force || s.last != nil {
			logger.LogInfo("Config file %s not found, starting empty", s.path)
			s.doc, s.last = NewDocument(), nil
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", s.path, err)
	}
	if !force && s.last != nil && bytes.Equal(data, s.last) {
		return nil
	}

	doc, err := Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse config %s: %w", s.path, err)
	}
	if !force {
		logger.LogInfo("Config %s changed on disk, reloaded", s.path)
	}
	s.doc, s.last = doc, data
	return nil
}

// lockFile takes the exclusive cross-process lock. Failing to take it
// fails the save.
func (s *Store) lockFile() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return &SaveError{Path: s.path, Err: err}
	}
	if err := s.fileLock.Lock(); err != nil {
		logger.LogError("Failed to lock config %s: %v", s.path, err)
		return &SaveError{Path: s.path, Err: err}
	}
	return nil
}

func (s *Store) lockShared() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := s.fileLock.RLock(); err != nil {
		return fmt.Errorf("lock config %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) unlockFile() {
	if err := s.fileLock.Unlock(); err != nil {
		logger.LogError("Failed to unlock config %s: %v", s.path, err)
	}
}

// Snapshot returns a copy of the document that callers may read freely.
// Changes written by another process are picked up first; if the file
// cannot be read the last good document is returned.
func (s *Store) Snapshot() *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.lockShared(); err != nil {
		logger.LogError("Snapshot of %s uses the cached document: %v", s.path, err)
		return s.doc.Clone()
	}
	defer s.unlockFile()
	if err := s.reload(false); err != nil {
		logger.LogError("Snapshot of %s uses the cached document: %v", s.path, err)
	}
	return s.doc.Clone()
}

func (s *Store) Get(section, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Get(section, key)
}

func (s *Store) GetOr(section, key, fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.GetOr(section, key, fallback)
}

func (s *Store) HasSection(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.HasSection(name)
}

func (s *Store) HasKey(section, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.doc.Section(section)
	return ok && sec.Has(key)
}

func (s *Store) ListSections() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Sections()
}

// Set changes the in-memory document; call Save to persist it.
func (s *Store) Set(section, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Set(section, key, value)
}

// RemoveKey deletes key from section in memory.
func (s *Store) RemoveKey(section, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.RemoveKey(section, key)
}

// Clear wipes every section in memory.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Clear()
}

// Save rewrites the whole file from the in-memory document, replacing
// whatever another process wrote since the last load.
func (s *Store) Save() error {
	s.mu.Lock()
	if err := s.lockFile(); err != nil {
		s.mu.Unlock()
		return err
	}
	content, changed, err := s.persist(s.doc)
	s.unlockFile()
	s.commit("save", content, changed && err == nil)
	return err
}

// EnsureSections adds every missing required section and every missing
// default, then persists. Calling it again is a no-op on content.
func (s *Store) EnsureSections(required []string, defaults []Default) error {
	return s.Update("ensure-sections", func(doc *Document) error {
		return ApplyDefaults(doc, required, defaults)
	})
}

// ApplyDefaults adds missing sections and missing default keys to doc
// without touching existing values.
func ApplyDefaults(doc *Document, required []string, defaults []Default) error {
	for _, name := range required {
		if _, err := doc.AddSection(name); err != nil {
			return err
		}
	}
	for _, d := range defaults {
		sec, err := doc.AddSection(d.Section)
		if err != nil {
			return err
		}
		if !sec.Has(d.Key) {
			if err := sec.Set(d.Key, d.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

// Update runs fn on a copy of the document and saves the result. The copy
// replaces the live document only after the file was written, so a failed
// fn or save leaves both memory and disk at the prior version. The file is
// reloaded first when another process changed it.
func (s *Store) Update(action string, fn func(doc *Document) error) error {
	s.mu.Lock()
	if err := s.lockFile(); err != nil {
		s.mu.Unlock()
		return err
	}
	content, changed, err := s.apply(fn)
	s.unlockFile()
	s.commit(action, content, changed && err == nil)
	return err
}

// apply runs one transaction. The caller holds s.mu and the file lock.
func (s *Store) apply(fn func(doc *Document) error) ([]byte, bool, error) {
	if err := s.reload(false); err != nil {
		return nil, false, err
	}
	next := s.doc.Clone()
	if err := fn(next); err != nil {
		return nil, false, err
	}
	content, changed, err := s.persist(next)
	if err != nil {
		return nil, false, err
	}
	s.doc = next
	return content, changed, nil
}

// commit releases s.mu and runs the hooks for content. hookMu is taken
// before s.mu is released so hooks see saves in commit order.
func (s *Store) commit(action string, content []byte, changed bool) {
	if !changed {
		s.mu.Unlock()
		return
	}
	hooks := s.hooks
	s.hookMu.Lock()
	s.mu.Unlock()
	defer s.hookMu.Unlock()
	runHooks(hooks, action, content)
}

// Replace swaps in doc as a whole, e.g. when restoring a revision.
func (s *Store) Replace(action string, doc *Document) error {
	return s.Update(action, func(cur *Document) error {
		*cur = *doc.Clone()
		return nil
	})
}

// persist writes doc to disk unless the file already holds exactly that
// content. The caller holds s.mu and the file lock.
func (s *Store) persist(doc *Document) ([]byte, bool, error) {
	content := doc.Bytes()
	if s.last != nil && bytes.Equal(content, s.last) {
		return content, false, nil
	}
	if err := fileutil.WriteFileAtomic(s.path, content, 0o644); err != nil {
		logger.LogError("Failed to save config %s: %v", s.path, err)
		return nil, false, &SaveError{Path: s.path, Err: err}
	}
	changed := !bytes.Equal(content, s.last)
	s.last = content
	return content, changed, nil
}

func runHooks(hooks []SaveHook, action string, content []byte) {
	for _, h := range hooks {
		h(action, content)
	}
}
