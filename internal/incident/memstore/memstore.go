// Package memstore provides an in-memory implementation of incident.Store.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/linnemanlabs/warden/internal/incident"
)

// Store holds incidents in memory. One lock guards the whole map, so an update
// and its timeline entries always land together.
type Store struct {
	mu        sync.RWMutex
	incidents map[string]*incident.Incident // incident ID -> record
	order     []string                      // incident IDs in creation order
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{
		incidents: make(map[string]*incident.Incident),
	}
}

// Create stores a copy of a new incident. IDs must be unique.
func (s *Store) Create(_ context.Context, inc *incident.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.incidents[inc.ID]; exists {
		return fmt.Errorf("incident %s already exists", inc.ID)
	}
	s.incidents[inc.ID] = inc.Clone()
	s.order = append(s.order, inc.ID)
	return nil
}

// Get retrieves an incident by its ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*incident.Incident, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incidents[id]
	if !ok {
		return nil, false, nil
	}
	return inc.Clone(), true, nil
}

// List returns copies of all incidents in creation order.
func (s *Store) List(_ context.Context) ([]*incident.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*incident.Incident, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.incidents[id].Clone())
	}
	return out, nil
}

// Update runs fn against a private copy under the write lock and commits the
// copy only if fn succeeds. Returns a copy of the committed record.
func (s *Store) Update(_ context.Context, id string, fn incident.MutateFunc) (*incident.Incident, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.incidents[id]
	if !ok {
		return nil, false, nil
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, true, err
	}
	s.incidents[id] = next
	return next.Clone(), true, nil
}

// Len reports how many incidents are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.incidents)
}
