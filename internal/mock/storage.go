package mock

import (
	"context"
	"sync"
	"time"

	"github.com/repairdesk/repairdesk/internal/storage"
)

// Storage is a fake storage.Gateway keeping blobs in a map.
type Storage struct {
	mu sync.Mutex
	// PutErr decides per key whether Put fails.
	PutErr  func(key string) error
	objects map[string][]byte
	deleted []string
}

// NewStorage returns an empty fake.
func NewStorage() *Storage {
	return &Storage{objects: map[string][]byte{}}
}

// Put implements storage.Gateway.
func (s *Storage) Put(_ context.Context, key string, data []byte, _ string) (storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PutErr != nil {
		if err := s.PutErr(key); err != nil {
			return storage.Object{}, err
		}
	}
	s.objects[key] = append([]byte(nil), data...)
	return storage.Object{Key: key, URL: "/uploads/" + key}, nil
}

// Delete implements storage.Gateway.
func (s *Storage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

// SignedURL implements storage.Gateway.
func (s *Storage) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return "", storage.ErrObjectNotFound
	}
	return "/uploads/" + key, nil
}

// Cleanup implements storage.Gateway; the fake keeps no timestamps.
func (s *Storage) Cleanup(context.Context, time.Duration) (int, error) {
	return 0, nil
}

// Keys returns the stored object keys.
func (s *Storage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}

// Deleted returns the keys removed so far.
func (s *Storage) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}
