// Package bank implements the per-partition NeuronBank described in
// spec §4.2: a compressed map<neuronId, NeuronSnapshot>, diffed on
// upsert so unchanged partitions perform zero I/O beyond the initial
// read, and replaced atomically.
//
// Grounded on the teacher's hybrid_store.go adaptiveFlush/restoreSSTables
// pattern (read-existing-state, compare, conditionally rewrite,
// reopen-on-restart), re-targeted from binary SSTables to a single
// gzip'd JSON map per spec §6.
package bank

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"neuronstore/pkg/common"
	"neuronstore/pkg/storage/atomicfile"
	"neuronstore/pkg/storage/filelock"
)

const fileName = "neurons.bank.json.gz"

// NeuronBank is the per-partition keyed store of neuron snapshots.
type NeuronBank struct {
	basePath        string
	locks           *filelock.Registry
	maxInputWeights int
}

// New constructs a NeuronBank rooted at basePath, sharing locks with the
// rest of the engine's file-backed structures.
func New(basePath string, locks *filelock.Registry, maxInputWeights int) *NeuronBank {
	return &NeuronBank{basePath: basePath, locks: locks, maxInputWeights: maxInputWeights}
}

// Path returns the absolute bank file path for a partition.
func (b *NeuronBank) Path(partition common.PartitionPath) string {
	return filepath.Join(b.basePath, partition.Dir(), fileName)
}

// Upsert canonicalizes and merges neurons into the partition's bank,
// rewriting the file iff at least one entry changed or was added. It
// returns the number of neurons actually written (0 on an unchanged
// no-op). A serialization failure aborts this partition's write and
// names the offending neuron id and field (spec §4.2, §7).
func (b *NeuronBank) Upsert(partition common.PartitionPath, neurons []common.NeuronSnapshot) (int, error) {
	if len(neurons) == 0 {
		return 0, nil
	}

	canonical := make([]common.NeuronSnapshot, 0, len(neurons))
	for _, n := range neurons {
		if err := n.Canonicalize(b.maxInputWeights); err != nil {
			return 0, fmt.Errorf("bank upsert partition %s: %w", partition.Dir(), err)
		}
		canonical = append(canonical, n)
	}

	path := b.Path(partition)
	unlock := b.locks.Lock(path)
	defer unlock()

	existing, err := b.loadRaw(path)
	if err != nil {
		return 0, err
	}

	changedCount := 0
	for _, n := range canonical {
		prev, ok := existing[n.ID]
		if !ok || !sameSerialization(prev, n) {
			existing[n.ID] = n
			changedCount++
		}
	}

	if changedCount == 0 {
		return 0, nil
	}

	if err := atomicfile.WriteGzipJSON(path, existing); err != nil {
		return 0, fmt.Errorf("bank upsert partition %s: %w", partition.Dir(), err)
	}
	return changedCount, nil
}

// Load returns the requested ids that exist in the partition's bank.
// Missing ids are silently omitted; a wholly-missing bank file yields
// an empty result rather than an error (spec §4.2 "no bank yet").
func (b *NeuronBank) Load(partition common.PartitionPath, ids []string) (map[string]common.NeuronSnapshot, error) {
	path := b.Path(partition)
	all, err := b.loadRaw(path)
	if err != nil {
		return nil, err
	}

	result := make(map[string]common.NeuronSnapshot, len(ids))
	for _, raw := range ids {
		id, err := common.CanonicalID(raw)
		if err != nil {
			continue
		}
		if v, ok := all[id]; ok {
			result[id] = v
		}
	}
	return result, nil
}

func (b *NeuronBank) loadRaw(path string) (map[string]common.NeuronSnapshot, error) {
	if !atomicfile.Exists(path) {
		return make(map[string]common.NeuronSnapshot), nil
	}

	var raw map[string]common.NeuronSnapshot
	if err := atomicfile.ReadGzipJSON(path, &raw); err != nil {
		if os.IsNotExist(err) {
			return make(map[string]common.NeuronSnapshot), nil
		}
		return nil, fmt.Errorf("bank: corrupt state at %s: %w", path, err)
	}

	// Canonicalize keys so any historically hyphenated ids collapse to
	// hex-32, last-writer-wins on collision (spec §4.2, §9).
	normalized := make(map[string]common.NeuronSnapshot, len(raw))
	for key, n := range raw {
		id, err := common.CanonicalID(key)
		if err != nil {
			continue
		}
		n.ID = id
		normalized[id] = n
	}
	return normalized, nil
}

func sameSerialization(a, b common.NeuronSnapshot) bool {
	aj, errA := json.Marshal(a)
	bj, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}
