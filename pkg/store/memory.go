// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/models"
)

type MemoryStore struct {
	// Now stamps UpdatedAt on writes.
	Now func() time.Time

	mu      sync.RWMutex
	matches map[string]*models.Match
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Now: time.Now, matches: map[string]*models.Match{}}
}

func (s *MemoryStore) Find(scope *envelope.Scope, id string) (*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match, ok := s.matches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return match.Copy(), nil
}

func (s *MemoryStore) Save(scope *envelope.Scope, match *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	match.UpdatedAt = s.Now().UTC()
	s.matches[match.ID] = match.Copy()
	return nil
}

func (s *MemoryStore) Delete(scope *envelope.Scope, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.matches, id)
	return nil
}

// List returns matches oldest first.
func (s *MemoryStore) List(scope *envelope.Scope, filter Filter) ([]*models.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]*models.Match, 0, len(s.matches))
	for _, match := range s.matches {
		if filter.matches(match) {
			matches = append(matches, match.Copy())
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})

	return matches, nil
}

func (s *MemoryStore) AppendSlice(scope *envelope.Scope, id string, slice models.MatchSlice, viewed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	match, ok := s.matches[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	updated := match.Copy()
	updated.AppendSlice(slice)
	updated.UpdatedAt = s.Now().UTC()
	if viewed {
		updated.LastSliceViewed = len(updated.Slices) - 1
	}
	s.matches[id] = updated

	return nil
}

func (s *MemoryStore) Update(scope *envelope.Scope, id string, mutate func(*models.Match) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	match, ok := s.matches[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	updated := match.Copy()
	if err := mutate(updated); err != nil {
		return err
	}
	updated.ID = id
	updated.UpdatedAt = s.Now().UTC()
	s.matches[id] = updated

	return nil
}

func (s *MemoryStore) DeleteOlderThan(scope *envelope.Scope, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, match := range s.matches {
		if match.UpdatedAt.Before(cutoff) {
			delete(s.matches, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
