package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

type object struct {
	data        []byte
	contentType string
}

// InMemory is a BlobStore for tests and local runs.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string]object
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string]object), now: time.Now}
}

func (s *InMemory) Put(_ context.Context, path string, data []byte, contentType string) (string, error) {
	p, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[p] = object{data: append([]byte(nil), data...), contentType: contentType}
	return p, nil
}

func (s *InMemory) SignedURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	p, err := CleanPath(path)
	if err != nil {
		return "", err
	}
	s.mu.RLock()
	_, ok := s.objects[p]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	expires := s.now().Add(ttl).Unix()
	return fmt.Sprintf("memory://%s?expires=%d", url.PathEscape(p), expires), nil
}

// Get returns the stored bytes and content type.
func (s *InMemory) Get(path string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[path]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), obj.data...), obj.contentType, true
}
