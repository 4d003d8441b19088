// Package capacity implements the ConceptCapacityStore described in
// spec §4.9: a tiny, atomically-replaced JSON file mapping a
// case-insensitive concept name to a neuron-count ceiling.
//
// Grounded on the teacher's config.Load pattern of "read whole file,
// unmarshal into a plain map, tolerate a missing file as defaults" —
// here generalized to return an empty map instead of built-in defaults,
// since capacities are an operator-maintained allowlist.
package capacity

import (
	"strings"
	"sync"

	"neuronstore/pkg/storage/atomicfile"
)

// Store is the process-wide concept capacity table.
type Store struct {
	path string
	mu   sync.Mutex
}

// New constructs a Store backed by path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load returns the capacity table, keyed by lowercased concept name. Any
// read failure (missing file, corrupt JSON) yields an empty map rather
// than an error, per spec §4.9.
func (s *Store) Load() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() map[string]int {
	if !atomicfile.Exists(s.path) {
		return make(map[string]int)
	}
	var raw map[string]int
	if err := atomicfile.ReadJSON(s.path, &raw); err != nil {
		return make(map[string]int)
	}
	normalized := make(map[string]int, len(raw))
	for concept, capacity := range raw {
		normalized[strings.ToLower(concept)] = capacity
	}
	return normalized
}

// Save replaces the entire capacity table atomically.
func (s *Store) Save(capacities map[string]int) error {
	normalized := make(map[string]int, len(capacities))
	for concept, capacity := range capacities {
		normalized[strings.ToLower(concept)] = capacity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return atomicfile.WriteJSON(s.path, normalized)
}

// SetCapacity upserts a single concept's capacity.
func (s *Store) SetCapacity(concept string, capacity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.loadLocked()
	current[strings.ToLower(concept)] = capacity
	return atomicfile.WriteJSON(s.path, current)
}
