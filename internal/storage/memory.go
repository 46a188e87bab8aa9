package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

type memStore struct {
	mu     sync.Mutex
	flags  map[string]time.Time
	closed bool
}

// NewMemory returns an in-process Store. Tests and the reference host use it
// when no persistence path is configured.
func NewMemory() Store {
	return &memStore{flags: map[string]time.Time{}}
}

func (s *memStore) Flag(ctx context.Context, key string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.flags[normalizeKey(key)]
	return ok, nil
}

func (s *memStore) SetFlag(ctx context.Context, key string) error {
	_ = ctx
	key = normalizeKey(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.flags[key]; !ok {
		s.flags[key] = time.Now()
	}
	return nil
}

func (s *memStore) Flags(ctx context.Context, prefix string) ([]FlagRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return collectFlags(s.flags, prefix), nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func collectFlags(m map[string]time.Time, prefix string) []FlagRecord {
	out := make([]FlagRecord, 0, len(m))
	for k, at := range m {
		if prefix != "" && !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, FlagRecord{Key: k, SetAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
