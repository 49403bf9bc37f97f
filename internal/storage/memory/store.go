// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"pageanalyzer/internal/storage"
)

// Store implements storage.Store with mutex-guarded maps.
type Store struct {
	mu          sync.RWMutex
	nextEntryID int64
	nextCheckID int64
	entries     map[int64]storage.URLEntry
	byName      map[string]int64
	checks      map[int64][]storage.Check
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[int64]storage.URLEntry),
		byName:  make(map[string]int64),
		checks:  make(map[int64][]storage.Check),
	}
}

// FindByName looks up an entry by canonical URL.
func (s *Store) FindByName(_ context.Context, name string) (storage.URLEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[name]
	if !ok {
		return storage.URLEntry{}, storage.ErrNotFound
	}
	return s.entries[id], nil
}

// FindByID looks up an entry by identifier.
func (s *Store) FindByID(_ context.Context, id int64) (storage.URLEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	if !ok {
		return storage.URLEntry{}, storage.ErrNotFound
	}
	return entry, nil
}

// CreateEntry inserts an entry, or returns the existing one with
// storage.ErrDuplicate. Insert and uniqueness check happen under one lock, so
// concurrent submissions of the same URL yield a single entry.
func (s *Store) CreateEntry(_ context.Context, name string) (storage.URLEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byName[name]; ok {
		return s.entries[id], storage.ErrDuplicate
	}
	s.nextEntryID++
	entry := storage.URLEntry{
		ID:        s.nextEntryID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	s.entries[entry.ID] = entry
	s.byName[name] = entry.ID
	return entry, nil
}

// ListEntries returns all entries ordered by identifier.
func (s *Store) ListEntries(_ context.Context) ([]storage.URLEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.URLEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListChecks returns an entry's checks in insertion order.
func (s *Store) ListChecks(_ context.Context, urlID int64) ([]storage.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checks := s.checks[urlID]
	out := make([]storage.Check, len(checks))
	copy(out, checks)
	return out, nil
}

// CreateCheck appends a check row for an entry.
func (s *Store) CreateCheck(_ context.Context, urlID int64, input storage.CheckInput) (storage.Check, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[urlID]; !ok {
		return storage.Check{}, storage.ErrNotFound
	}
	s.nextCheckID++
	status := input.StatusCode
	check := storage.Check{
		ID:          s.nextCheckID,
		URLID:       urlID,
		CreatedAt:   time.Now().UTC(),
		StatusCode:  &status,
		Title:       input.Title,
		H1:          input.H1,
		Description: input.Description,
	}
	s.checks[urlID] = append(s.checks[urlID], check)
	return check, nil
}

// MergedListing joins each entry with its most recent check, newest entry
// first.
func (s *Store) MergedListing(_ context.Context) ([]storage.MergedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.MergedEntry, 0, len(s.entries))
	for id, entry := range s.entries {
		merged := storage.MergedEntry{URLEntry: entry}
		if latest, ok := latestCheck(s.checks[id]); ok {
			merged.LastCheckStatus = latest.StatusCode
			at := latest.CreatedAt
			merged.LastCheckAt = &at
		}
		out = append(out, merged)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// latestCheck picks the most recent check by creation time, identifier as
// tie-break.
func latestCheck(checks []storage.Check) (storage.Check, bool) {
	if len(checks) == 0 {
		return storage.Check{}, false
	}
	latest := checks[0]
	for _, c := range checks[1:] {
		if c.CreatedAt.After(latest.CreatedAt) ||
			(c.CreatedAt.Equal(latest.CreatedAt) && c.ID > latest.ID) {
			latest = c
		}
	}
	return latest, true
}
