// Package pack implements the per-partition MembershipPack described in
// spec §4.3: a compressed map<clusterId, []neuronId> recording which
// neurons belong to which cluster within one partition, diffed on write
// the same way the neuron bank is, and sharing its atomic-replace and
// per-file-lock machinery.
//
// Grounded on the teacher's hybrid_store.go Shard.flush path (load,
// mutate the in-memory index, conditionally persist) and on
// storage/sstable's "never write when nothing changed" discipline.
package pack

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"neuronstore/pkg/common"
	"neuronstore/pkg/storage/atomicfile"
	"neuronstore/pkg/storage/filelock"
)

const fileName = "membership.pack.json.gz"

// MembershipPack is the per-partition keyed store of cluster membership.
type MembershipPack struct {
	basePath string
	locks    *filelock.Registry
}

// New constructs a MembershipPack accessor rooted at basePath.
func New(basePath string, locks *filelock.Registry) *MembershipPack {
	return &MembershipPack{basePath: basePath, locks: locks}
}

// Path returns the absolute membership-pack file path for a partition.
func (m *MembershipPack) Path(partition common.PartitionPath) string {
	return filepath.Join(m.basePath, partition.Dir(), fileName)
}

// Upsert merges clusterId -> neuronIds into the partition's pack. An
// empty id slice for a cluster removes that cluster's entry entirely
// (spec §4.3 "dropping empty lists on write"). The file is rewritten
// only if the merged membership differs from what's on disk.
func (m *MembershipPack) Upsert(partition common.PartitionPath, membership map[string][]string) (bool, error) {
	if len(membership) == 0 {
		return false, nil
	}

	path := m.Path(partition)
	unlock := m.locks.Lock(path)
	defer unlock()

	existing, err := m.loadRaw(path)
	if err != nil {
		return false, err
	}

	changed := false
	for clusterID, ids := range membership {
		canonicalCluster, cerr := common.CanonicalID(clusterID)
		if cerr != nil {
			continue
		}
		deduped := common.DedupeIDs(ids)

		if len(deduped) == 0 {
			if _, ok := existing.Membership[canonicalCluster]; ok {
				delete(existing.Membership, canonicalCluster)
				changed = true
			}
			continue
		}

		prev, ok := existing.Membership[canonicalCluster]
		if !ok || !reflect.DeepEqual(prev, deduped) {
			existing.Membership[canonicalCluster] = deduped
			changed = true
		}
	}

	if !changed {
		return false, nil
	}

	existing.SavedAt = time.Now().UTC()
	if err := atomicfile.WriteGzipJSON(path, existing); err != nil {
		return false, err
	}
	return true, nil
}

// Load returns the neuron ids belonging to clusterID within partition,
// or an empty slice if the cluster has no recorded membership there.
func (m *MembershipPack) Load(partition common.PartitionPath, clusterID string) ([]string, error) {
	canonicalCluster, err := common.CanonicalID(clusterID)
	if err != nil {
		return nil, err
	}

	path := m.Path(partition)
	pk, err := m.loadRaw(path)
	if err != nil {
		return nil, err
	}
	return pk.Membership[canonicalCluster], nil
}

// LoadAll returns the full membership map for a partition.
func (m *MembershipPack) LoadAll(partition common.PartitionPath) (map[string][]string, error) {
	pk, err := m.loadRaw(m.Path(partition))
	if err != nil {
		return nil, err
	}
	return pk.Membership, nil
}

func (m *MembershipPack) loadRaw(path string) (common.MembershipPack, error) {
	if !atomicfile.Exists(path) {
		return common.MembershipPack{Membership: make(map[string][]string)}, nil
	}

	var pk common.MembershipPack
	if err := atomicfile.ReadGzipJSON(path, &pk); err != nil {
		if os.IsNotExist(err) {
			return common.MembershipPack{Membership: make(map[string][]string)}, nil
		}
		return common.MembershipPack{}, err
	}
	if pk.Membership == nil {
		pk.Membership = make(map[string][]string)
	}
	if pk.SavedAt.IsZero() {
		pk.SavedAt = time.Now().UTC()
	}
	return pk, nil
}
