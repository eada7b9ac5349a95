package store

import (
	"context"
	"sync"
)

// MemoryStore is the degraded in-memory backend used when no durable storage
// can be opened, and by tests. Contents do not survive a restart.
type MemoryStore struct {
	mu           sync.Mutex
	kv           map[string]string
	fingerprints []string
	fpSet        map[string]struct{}
	joins        []JoinRecord
}

// NewMemory returns an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		kv:    make(map[string]string),
		fpSet: make(map[string]struct{}),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

func (s *MemoryStore) GetKV(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *MemoryStore) SetKV(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *MemoryStore) LoadFingerprints(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fps := s.fingerprints
	if len(fps) > limit {
		fps = fps[len(fps)-limit:]
	}
	out := make([]string, len(fps))
	copy(out, fps)
	return out, nil
}

func (s *MemoryStore) AppendFingerprint(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fpSet[hash]; ok {
		return nil
	}
	s.fpSet[hash] = struct{}{}
	s.fingerprints = append(s.fingerprints, hash)
	return nil
}

func (s *MemoryStore) TrimFingerprints(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fingerprints) <= keep {
		return nil
	}
	dropped := s.fingerprints[:len(s.fingerprints)-keep]
	for _, h := range dropped {
		delete(s.fpSet, h)
	}
	s.fingerprints = append([]string(nil), s.fingerprints[len(s.fingerprints)-keep:]...)
	return nil
}

func (s *MemoryStore) AppendJoin(_ context.Context, rec JoinRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.joins = append(s.joins, rec)
	return nil
}

func (s *MemoryStore) RecentJoins(_ context.Context, limit int) ([]JoinRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.joins)
	if limit > n {
		limit = n
	}
	out := make([]JoinRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.joins[i])
	}
	return out, nil
}

func (s *MemoryStore) TrimJoins(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.joins) > keep {
		s.joins = append([]JoinRecord(nil), s.joins[len(s.joins)-keep:]...)
	}
	return nil
}
