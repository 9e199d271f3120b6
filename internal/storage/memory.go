package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

var errInjected = errors.New("injected failure")

// MemoryStorage is an in-process ObjectStorage for local runs and tests.
// Buckets are created implicitly on first Put.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string]map[string][]byte

	// failPut, when set, makes Put fail for keys with this prefix.
	failPut string
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string]map[string][]byte)}
}

// FailPutsWithPrefix makes every Put to a key with the prefix fail. Empty clears it.
func (s *MemoryStorage) FailPutsWithPrefix(prefix string) {
	s.mu.Lock()
	s.failPut = prefix
	s.mu.Unlock()
}

func (s *MemoryStorage) EnsureBucket(_ context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[bucket]; !ok {
		s.objects[bucket] = make(map[string][]byte)
	}
	return nil
}

func (s *MemoryStorage) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != "" && strings.HasPrefix(key, s.failPut) {
		return &Error{Op: "Put", Bucket: bucket, Key: key, Err: errInjected}
	}
	b, ok := s.objects[bucket]
	if !ok {
		b = make(map[string][]byte)
		s.objects[bucket] = b
	}
	b[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStorage) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[bucket]
	if !ok {
		return nil, &Error{Op: "Get", Bucket: bucket, Key: key, Err: ErrBucketNotFound}
	}
	data, ok := b[key]
	if !ok {
		return nil, &Error{Op: "Get", Bucket: bucket, Key: key, Err: ErrNotFound}
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStorage) Exists(_ context.Context, bucket, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[bucket][key]
	return ok, nil
}

func (s *MemoryStorage) Delete(_ context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects[bucket], key)
	return nil
}

func (s *MemoryStorage) URL(bucket, key string) string {
	return "memory://" + bucket + "/" + key
}

// Keys lists the keys of a bucket in sorted order.
func (s *MemoryStorage) Keys(bucket string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects[bucket]))
	for k := range s.objects[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
