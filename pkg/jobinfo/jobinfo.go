// Package jobinfo tracks how many transcoding jobs are still pending per
// video. A job with siblings decrements the counter on completion and only
// advances the video state when it reaches zero.
package jobinfo

import (
	"context"
	"sync"
)

// Store is the pending-job counter. Increase happens when child jobs are
// built, before they are enqueued, so a state advance can never race a
// not-yet-enqueued sibling.
type Store interface {
	Increase(ctx context.Context, videoUUID string, amount int64) (int64, error)
	Decrease(ctx context.Context, videoUUID string) (int64, error)
	Get(ctx context.Context, videoUUID string) (int64, error)
	Reset(ctx context.Context, videoUUID string) error
}

// MemoryStore is the in-process implementation, used by tests and single
// node deployments
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int64)}
}

func (s *MemoryStore) Increase(ctx context.Context, videoUUID string, amount int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[videoUUID] += amount
	return s.counters[videoUUID], nil
}

func (s *MemoryStore) Decrease(ctx context.Context, videoUUID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[videoUUID]--
	return s.counters[videoUUID], nil
}

func (s *MemoryStore) Get(ctx context.Context, videoUUID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.counters[videoUUID], nil
}

func (s *MemoryStore) Reset(ctx context.Context, videoUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counters, videoUUID)
	return nil
}
