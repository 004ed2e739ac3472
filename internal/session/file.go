package session

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ytget/checkin/internal/logger"
)

// FileStore keeps one JSON file per key under a directory. Expired or
// unreadable entries are removed on read.
type FileStore struct {
	rootDir string
	mu      sync.Mutex
}

// NewFileStore creates a store under rootDir, creating the directory.
func NewFileStore(rootDir string) (*FileStore, error) {
	if rootDir == "" {
		return nil, errors.New("rootDir is required")
	}
	if err := os.MkdirAll(rootDir, 0o700); err != nil {
		return nil, err
	}
	return &FileStore{rootDir: rootDir}, nil
}

func (s *FileStore) filenameForKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.rootDir, fmt.Sprintf("%x.json", sum[:]))
}

func (s *FileStore) Get(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn := s.filenameForKey(key)
	b, err := os.ReadFile(fn)
	if err != nil {
		return Entry{}, false
	}
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil || e.Expired(time.Now()) {
		_ = os.Remove(fn)
		return Entry{}, false
	}
	return e, true
}

// Set writes the entry atomically. Write failures are logged and the entry
// is dropped; a missing entry only costs one more challenge solve.
func (s *FileStore) Set(key string, value Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn := s.filenameForKey(key)
	tmp := fn + ".tmp"
	b, err := json.Marshal(value)
	if err == nil {
		err = os.WriteFile(tmp, b, 0o600)
	}
	if err == nil {
		err = os.Rename(tmp, fn)
	}
	if err != nil {
		logger.WithComponent(logger.ComponentSite).Warn("Session not saved", map[string]interface{}{
			"file":  fn,
			"error": err,
		})
	}
}
