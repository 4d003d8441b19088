// Package metadata implements the PartitionMetadataStore described in
// spec §4.4: the single authoritative JSON file mapping clusterId to
// ClusterMetadata, plus the derived, dirty-tracked ConceptIndex used by
// findSimilar.
//
// The ordered clusterId index is adapted from the teacher's
// core/memory/memtable.go, which keeps a google/btree-backed ordered
// key set over an in-memory map for deterministic iteration; here the
// same shape orders clusterIds instead of storage keys.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"

	"neuronstore/pkg/common"
	"neuronstore/pkg/storage/atomicfile"
)

const btreeDegree = 32

// clusterIDItem orders the btree by canonical cluster id.
type clusterIDItem string

func (a clusterIDItem) Less(than btree.Item) bool {
	return a < than.(clusterIDItem)
}

// Store is the in-memory, disk-backed map of cluster metadata.
type Store struct {
	path string

	mu   sync.RWMutex
	ids  *btree.BTree
	byID map[string]common.ClusterMetadata

	indexDirty   bool
	conceptIndex map[string][]string // lowercased concept -> sorted cluster ids

	batchMode bool
}

// New constructs a Store backed by the JSON file at path. Load must be
// called before first use.
func New(path string) *Store {
	return &Store{
		path: path,
		ids:  btree.New(btreeDegree),
		byID: make(map[string]common.ClusterMetadata),
	}
}

// Load reads the metadata file, tolerating a missing file as "empty".
// A file that cannot be parsed as JSON is logged and also treated as
// empty; other read errors are returned.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]common.ClusterMetadata)
	s.ids = btree.New(btreeDegree)

	if atomicfile.Exists(s.path) {
		var onDisk map[string]common.ClusterMetadata
		if err := atomicfile.ReadJSON(s.path, &onDisk); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			switch {
			case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
				log.Printf("[NeuronStore] metadata: unparsable %s, starting empty: %v", s.path, err)
				onDisk = nil
			case !os.IsNotExist(err):
				return fmt.Errorf("metadata: load %s: %w", s.path, err)
			}
		}
		for id, meta := range onDisk {
			canonical, err := common.CanonicalID(id)
			if err != nil {
				continue
			}
			meta.ID = canonical
			s.byID[canonical] = meta
			s.ids.ReplaceOrInsert(clusterIDItem(canonical))
		}
	}

	s.indexDirty = true
	return nil
}

func (s *Store) persistLocked() error {
	snapshot := make(map[string]common.ClusterMetadata, len(s.byID))
	for id, meta := range s.byID {
		snapshot[id] = meta
	}
	return atomicfile.WriteJSON(s.path, snapshot)
}

// SetBatchMode toggles whether Upsert/Delete/Touch defer their persist
// to a later PersistBatch call instead of writing on every invocation.
// Spec §4.4/§4.6 requires saveClustersEfficient to suppress per-save
// metadata persistence and write partition_metadata.json exactly once
// per batch, against the backing store's "slow, high-latency" cost
// model.
func (s *Store) SetBatchMode(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchMode = enabled
}

// PersistBatch flushes the current in-memory state to disk once,
// regardless of how many Upsert/Delete/Touch calls happened since the
// last flush. Safe to call whether or not batch mode is enabled.
func (s *Store) PersistBatch() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// Upsert writes a cluster's metadata record, persisting immediately
// unless batch mode is enabled (see SetBatchMode).
func (s *Store) Upsert(meta common.ClusterMetadata) error {
	id, err := common.CanonicalID(meta.ID)
	if err != nil {
		return fmt.Errorf("metadata upsert: %w", err)
	}
	meta.ID = id
	meta.AssociatedConcepts = common.DedupeConcepts(meta.AssociatedConcepts)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[id] = meta
	s.ids.ReplaceOrInsert(clusterIDItem(id))
	s.indexDirty = true

	if s.batchMode {
		return nil
	}
	return s.persistLocked()
}

// Delete removes a cluster's metadata record, if present, persisting
// immediately unless batch mode is enabled.
func (s *Store) Delete(clusterID string) error {
	id, err := common.CanonicalID(clusterID)
	if err != nil {
		return fmt.Errorf("metadata delete: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return nil
	}
	delete(s.byID, id)
	s.ids.Delete(clusterIDItem(id))
	s.indexDirty = true

	if s.batchMode {
		return nil
	}
	return s.persistLocked()
}

// Lookup returns the metadata record for a cluster, if any.
func (s *Store) Lookup(clusterID string) (common.ClusterMetadata, bool) {
	id, err := common.CanonicalID(clusterID)
	if err != nil {
		return common.ClusterMetadata{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	meta, ok := s.byID[id]
	return meta, ok
}

// ListAll returns every tracked cluster's metadata, ordered by the
// deterministic btree cluster-id order.
func (s *Store) ListAll() []common.ClusterMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.ClusterMetadata, 0, len(s.byID))
	s.ids.Ascend(func(item btree.Item) bool {
		out = append(out, s.byID[string(item.(clusterIDItem))])
		return true
	})
	return out
}

// Count returns the number of tracked clusters.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// GroupByPrimary groups all clusters by their full partition directory,
// iterating cluster ids in deterministic btree order within each group.
func (s *Store) GroupByPrimary() map[string][]common.ClusterMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	groups := make(map[string][]common.ClusterMetadata)
	s.ids.Ascend(func(item btree.Item) bool {
		id := string(item.(clusterIDItem))
		meta := s.byID[id]
		key := meta.Partition.Dir()
		groups[key] = append(groups[key], meta)
		return true
	})
	return groups
}

// ensureIndexLocked rebuilds the concept index iff it has been marked
// dirty since the last rebuild (spec §4.4's lazy-rebuild requirement).
// Caller must hold s.mu for writing.
func (s *Store) ensureIndexLocked() {
	if !s.indexDirty {
		return
	}
	idx := make(map[string][]string)
	s.ids.Ascend(func(item btree.Item) bool {
		id := string(item.(clusterIDItem))
		meta := s.byID[id]
		for _, concept := range meta.AssociatedConcepts {
			key := strings.ToLower(concept)
			idx[key] = append(idx[key], id)
		}
		return true
	})
	for key := range idx {
		sort.Strings(idx[key])
	}
	s.conceptIndex = idx
	s.indexDirty = false
}

// FindSimilar returns clusters related to the given concepts. It first
// tries the concept index for an exact (case-insensitive) match on any
// of the query concepts; if that yields nothing it falls back to
// Jaccard similarity between the query concept set and each cluster's
// AssociatedConcepts, keeping matches at or above threshold (spec §4.4).
func (s *Store) FindSimilar(concepts []string, threshold float64, limit int) []common.ClusterMetadata {
	query := common.DedupeConcepts(concepts)
	if len(query) == 0 {
		return nil
	}

	s.mu.Lock()
	s.ensureIndexLocked()
	querySet := make(map[string]struct{}, len(query))
	var fastMatches []string
	seen := make(map[string]struct{})
	for _, c := range query {
		key := strings.ToLower(c)
		querySet[key] = struct{}{}
		for _, id := range s.conceptIndex[key] {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				fastMatches = append(fastMatches, id)
			}
		}
	}

	if len(fastMatches) > 0 {
		sort.Strings(fastMatches)
		results := make([]common.ClusterMetadata, 0, len(fastMatches))
		for _, id := range fastMatches {
			results = append(results, s.byID[id])
		}
		s.mu.Unlock()
		return capResults(results, limit)
	}

	type scored struct {
		meta  common.ClusterMetadata
		score float64
	}
	var candidates []scored
	for _, meta := range s.byID {
		score := jaccard(querySet, meta.AssociatedConcepts)
		if score >= threshold {
			candidates = append(candidates, scored{meta: meta, score: score})
		}
	}
	s.mu.Unlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].meta.ID < candidates[j].meta.ID
	})

	results := make([]common.ClusterMetadata, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, c.meta)
	}
	return capResults(results, limit)
}

func capResults(results []common.ClusterMetadata, limit int) []common.ClusterMetadata {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

func jaccard(querySet map[string]struct{}, concepts []string) float64 {
	if len(querySet) == 0 || len(concepts) == 0 {
		return 0
	}
	other := make(map[string]struct{}, len(concepts))
	for _, c := range concepts {
		other[strings.ToLower(c)] = struct{}{}
	}

	intersection := 0
	for c := range querySet {
		if _, ok := other[c]; ok {
			intersection++
		}
	}
	union := len(querySet) + len(other) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Touch is used by callers that only need to bump LastAccessed without
// altering any other field (spec §4.6's "access without save" path).
func (s *Store) Touch(clusterID string, when time.Time) error {
	id, err := common.CanonicalID(clusterID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta, ok := s.byID[id]
	if !ok {
		return nil
	}
	meta.LastAccessed = when
	s.byID[id] = meta
	if s.batchMode {
		return nil
	}
	return s.persistLocked()
}
