package genstore

import (
	"context"
	"sync"
	"time"
)

type localGenEntry struct {
	Gen       uint64
	UpdatedAt time.Time
}

// LocalGenStore keeps generations in-process.
//
// Pruning an entry resets it to 0. For tags that only causes a recompute; for
// session epochs it would re-admit revoked tokens, so run the epoch store with
// retention >= session TTL or without cleanup.
type LocalGenStore struct {
	mu     sync.RWMutex
	gens   map[string]localGenEntry
	ticker *time.Ticker
	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	now func() time.Time
}

var _ GenStore = (*LocalGenStore)(nil)

// NewLocalGenStore starts a cleanup loop when both cleanupInterval and
// retention are positive.
func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{
		gens: make(map[string]localGenEntry),
		now:  time.Now,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = time.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.C:
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	e, ok := s.gens[k]
	s.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	return e.Gen, nil
}

// SnapshotMany reads all keys under one read lock, so the result is a
// consistent cut even while other goroutines bump.
func (s *LocalGenStore) SnapshotMany(_ context.Context, ks []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(ks))
	s.mu.RLock()
	for _, k := range ks {
		out[k] = s.gens[k].Gen
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	now := s.now()
	s.mu.Lock()
	e := s.gens[k]
	e.Gen++
	e.UpdatedAt = now
	s.gens[k] = e
	s.mu.Unlock()
	return e.Gen, nil
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	for k, e := range s.gens {
		if !e.UpdatedAt.IsZero() && e.UpdatedAt.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

func (s *LocalGenStore) Close(_ context.Context) error {
	s.once.Do(func() {
		if s.stopCh != nil {
			s.ticker.Stop()
			close(s.stopCh)
			s.wg.Wait()
		}
	})
	return nil
}
