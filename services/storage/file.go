package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/leader001a/ro-market-crawler-sub000/internal/crawl"
	"github.com/leader001a/ro-market-crawler-sub000/internal/watch"
	"github.com/leader001a/ro-market-crawler-sub000/logger"
	perrors "github.com/leader001a/ro-market-crawler-sub000/pkg/errors"
)

const (
	sessionsDir     = "sessions"
	watchConfigFile = "watchlist.json"
)

// FileStore persists crawl sessions and the watch-list configuration as
// JSON files. Writes go to a temp file in the same directory followed by
// a rename, so a crash mid-write never corrupts the prior state. Both
// callers save frequently (every page, every mutation); that is fine.
type FileStore struct {
	dir string
	mu  sync.Mutex
	log *logger.Logger
}

// NewFileStore creates the data directory tree if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, sessionsDir), 0o755); err != nil {
		return nil, perrors.NewStorage("storage", "failed to create data directory", err)
	}
	return &FileStore{
		dir: dir,
		log: logger.ForStorage(),
	}, nil
}

// SaveSession writes the session for its (term, server) key, replacing
// any previous one
func (s *FileStore) SaveSession(session *crawl.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(s.sessionPath(session.SearchTerm, session.ServerName), session)
}

// LoadLatestSession returns the stored session for the key, or nil when
// none exists
func (s *FileStore) LoadLatestSession(term, serverName string) (*crawl.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var session crawl.Session
	found, err := s.readJSON(s.sessionPath(term, serverName), &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

// SaveWatchConfig writes the whole watch-list configuration
func (s *FileStore) SaveWatchConfig(cfg *watch.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(filepath.Join(s.dir, watchConfigFile), cfg)
}

// LoadWatchConfig returns the stored configuration, or nil when none
// exists yet
func (s *FileStore) LoadWatchConfig() (*watch.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cfg watch.Config
	found, err := s.readJSON(filepath.Join(s.dir, watchConfigFile), &cfg)
	if err != nil || !found {
		return nil, err
	}
	return &cfg, nil
}

func (s *FileStore) sessionPath(term, serverName string) string {
	name := sanitize(term) + "_" + sanitize(serverName) + ".json"
	return filepath.Join(s.dir, sessionsDir, name)
}

// writeJSON writes atomically via temp file and rename
func (s *FileStore) writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return perrors.NewStorage("storage", "failed to encode", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return perrors.NewStorage("storage", "failed to create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return perrors.NewStorage("storage", "failed to write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return perrors.NewStorage("storage", "failed to close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return perrors.NewStorage("storage", "failed to replace file", err)
	}
	return nil
}

// readJSON returns found=false when the file does not exist
func (s *FileStore) readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, perrors.NewStorage("storage", "failed to read", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, perrors.NewStorage("storage", "failed to decode", err)
	}
	return true, nil
}

// sanitize keeps letters, digits and dashes so arbitrary search terms
// become safe file names
func sanitize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return r
		}
		return '_'
	}, s)
	if mapped == "" {
		return "_"
	}
	return mapped
}
