package build

import (
	"context"
	"sync"
)

// RecordStore keeps the most recent build outcome per (user, project).
type RecordStore interface {
	Save(ctx context.Context, res Result) error
	Load(ctx context.Context, user, project string) (Result, bool, error)
}

// MemoryRecordStore is the default in-process store. Records die with the
// server, which matches the ephemeral workspaces they describe.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	results map[string]Result
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{results: make(map[string]Result)}
}

func (s *MemoryRecordStore) Save(_ context.Context, res Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[jobKey(res.User, res.Project)] = res
	return nil
}

func (s *MemoryRecordStore) Load(_ context.Context, user, project string) (Result, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[jobKey(user, project)]
	return res, ok, nil
}
