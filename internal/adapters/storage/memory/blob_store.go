package memory

import (
	"context"
	"sync"

	"github.com/PabloGalante/engigen-agent/internal/domain"
)

// BlobStore is a simple in-memory implementation of domain.BlobStore.
// It is NOT persistent and is only suitable for tests and ephemeral runs.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	puts  int

	// FailPut, when set, is returned by every Put.
	FailPut error
}

func NewBlobStore() *BlobStore {
	return &BlobStore{
		blobs: make(map[string][]byte),
	}
}

func (s *BlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[key]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *BlobStore) Put(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailPut != nil {
		return s.FailPut
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.blobs[key] = buf
	s.puts++
	return nil
}

// Puts counts successful writes.
func (s *BlobStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
