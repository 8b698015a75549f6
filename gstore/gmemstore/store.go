// Package gmemstore is an in-memory implementation of the gstore interfaces.
package gmemstore

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/gordian-engine/gstall/gstore"
)

type Store struct {
	mu sync.RWMutex

	quota    gstore.Quota
	hasQuota bool

	launches map[string]gstore.PendingLaunch
}

func NewStore() *Store {
	return &Store{
		launches: make(map[string]gstore.PendingLaunch),
	}
}

func (s *Store) LoadQuota(_ context.Context) (gstore.Quota, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasQuota {
		return gstore.Quota{}, gstore.ErrNoQuota
	}
	return s.quota, nil
}

func (s *Store) SaveQuota(_ context.Context, q gstore.Quota) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quota = q
	s.hasQuota = true
	return nil
}

func (s *Store) AddPendingLaunch(_ context.Context, p gstore.PendingLaunch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.launches[p.ID]; ok {
		return gstore.DuplicateLaunchError{ID: p.ID}
	}
	s.launches[p.ID] = p
	return nil
}

func (s *Store) RemovePendingLaunch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.launches, id)
	return nil
}

func (s *Store) PendingLaunches(_ context.Context) ([]gstore.PendingLaunch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]gstore.PendingLaunch, 0, len(s.launches))
	for _, p := range s.launches {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b gstore.PendingLaunch) int {
		if c := a.Added.Compare(b.Added); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
