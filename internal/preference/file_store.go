package preference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 20 * time.Millisecond

// FileStore keeps the preference in a small JSON document on disk. Access is
// serialised across processes with a sibling lock file.
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFileStore returns a store writing to path. The document is created on
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the location of the JSON document.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (string, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return "", storageError("load", err)
	}
	locked, err := s.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", storageError("load", err)
	}
	if !locked {
		return "", storageError("load", errors.New("lock not acquired"))
	}
	defer s.lock.Unlock() //nolint:errcheck

	doc, err := s.read()
	if err != nil {
		return "", storageError("load", err)
	}
	return doc[Key], nil
}

func (s *FileStore) Save(ctx context.Context, value string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return storageError("save", err)
	}
	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return storageError("save", err)
	}
	if !locked {
		return storageError("save", errors.New("lock not acquired"))
	}
	defer s.lock.Unlock() //nolint:errcheck

	doc, err := s.read()
	if err != nil {
		// A corrupt document is replaced rather than blocking writes.
		doc = map[string]string{}
	}
	doc[Key] = value

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return storageError("save", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return storageError("save", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return storageError("save", err)
	}
	return nil
}

func (s *FileStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	doc := map[string]string{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return doc, nil
}
