package repository

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-mediacache/mediacache/domain"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

// MemoryStore is an in-memory implementation of domain.Store.
// Used in tests and when CACHE_STORE=memory; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]domain.Entry
	byOwner map[string]map[string]struct{}
	byGroup map[string]map[string]struct{}
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]domain.Entry),
		byOwner: make(map[string]map[string]struct{}),
		byGroup: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Put(ctx context.Context, entry domain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[entry.ID]; ok {
		s.unindex(prev)
	}
	s.entries[entry.ID] = entry
	addIndex(s.byOwner, entry.OwnerID, entry.ID)
	addIndex(s.byGroup, entry.GroupID, entry.ID)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return domain.Entry{}, pkgError.NotFoundError("cache entry not found")
	}
	return entry, nil
}

func (s *MemoryStore) GetAllByOwner(ctx context.Context, ownerID string) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byOwner[ownerID]), nil
}

func (s *MemoryStore) GetAllByGroup(ctx context.Context, groupID string) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byGroup[groupID]), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.entries[id]; ok {
		s.unindex(prev)
		delete(s.entries, id)
	}
	return nil
}

func (s *MemoryStore) ScanAll(ctx context.Context) ([]domain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		result = append(result, entry)
	}
	return result, nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]domain.Entry)
	s.byOwner = make(map[string]map[string]struct{})
	s.byGroup = make(map[string]map[string]struct{})
	return nil
}

func (s *MemoryStore) Touch(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil
	}
	if at.After(entry.LastAccessedAt) {
		entry.LastAccessedAt = at
		s.entries[id] = entry
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) collect(ids map[string]struct{}) []domain.Entry {
	result := make([]domain.Entry, 0, len(ids))
	for id := range ids {
		if entry, ok := s.entries[id]; ok {
			result = append(result, entry)
		}
	}
	return result
}

func (s *MemoryStore) unindex(entry domain.Entry) {
	removeIndex(s.byOwner, entry.OwnerID, entry.ID)
	removeIndex(s.byGroup, entry.GroupID, entry.ID)
}

func addIndex(index map[string]map[string]struct{}, key, id string) {
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

func removeIndex(index map[string]map[string]struct{}, key, id string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, id)
	if len(set) == 0 {
		delete(index, key)
	}
}
