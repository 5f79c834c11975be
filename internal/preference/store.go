package preference

import (
	"context"
	"fmt"
	"sync"
)

// Store persists the raw preference value.
type Store interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, value string) error
}

// StorageError wraps a failing store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("preference %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// MemoryStore keeps the value in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	value string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, nil
}

func (s *MemoryStore) Save(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = value
	return nil
}
