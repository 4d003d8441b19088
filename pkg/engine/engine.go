// Package engine wires together the partition classifier and the
// per-partition storage structures into the BatchedSaveCoordinator
// described in spec §4.6: the component callers actually talk to, and
// the one responsible for bounding fan-out concurrency across the
// hierarchical tree.
//
// Grounded on the teacher's hybrid_store.go HybridStore, which is the
// same kind of "own every subordinate structure, expose a handful of
// coarse operations, bound worker fan-out with a concurrency primitive"
// orchestrator — there a fixed shard count and a channel-based worker
// pool, here golang.org/x/sync/semaphore.Weighted bounding save
// concurrency to MaxParallelSaves, matching the sync package's own
// documented WeightedSemaphore example and its use across the wider
// example pack's manifests.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"neuronstore/pkg/common"
	"neuronstore/pkg/compaction"
	"neuronstore/pkg/config"
	"neuronstore/pkg/monitor"
	"neuronstore/pkg/partition"
	"neuronstore/pkg/storage/atomicfile"
	"neuronstore/pkg/storage/bank"
	"neuronstore/pkg/storage/capacity"
	"neuronstore/pkg/storage/filelock"
	"neuronstore/pkg/storage/metadata"
	"neuronstore/pkg/storage/pack"
	"neuronstore/pkg/storage/statscache"
)

const (
	metadataFileName = "partition_metadata.json"
	statsFileName    = "storage_stats.json"
	capacityFileName = "concept_capacity.json"
	hierarchicalDir  = "hierarchical"
)

// ClusterInput is what a caller hands the engine to persist one
// cluster: its neurons, plasticity-relevant runtime signals, and a
// concept domain label. The neural runtime that produces this data is
// out of scope; the engine only consumes snapshots (spec §1).
type ClusterInput struct {
	ID            string
	ConceptDomain string
	Neurons       []common.NeuronSnapshot
	LearningRate  float64
	Fatigue       float64
}

// ClusterView is what LoadClusterWithPartitioning returns: a cluster's
// metadata plus its resident neurons.
type ClusterView struct {
	Metadata common.ClusterMetadata
	Neurons  []common.NeuronSnapshot
}

// MembershipInspection is the diagnostic view returned by
// InspectClusterMembership.
type MembershipInspection struct {
	ClusterID   string
	Partition   common.PartitionPath
	NeuronCount int
	NeuronIDs   []string
}

// Engine is the BatchedSaveCoordinator: the single entry point through
// which every on-disk structure is read and written.
type Engine struct {
	basePath         string
	hierarchicalRoot string
	cfg              config.StorageConfig

	locks      *filelock.Registry
	bank       *bank.NeuronBank
	packs      *pack.MembershipPack
	metadata   *metadata.Store
	stats      *statscache.StatsCache
	capacities *capacity.Store
	planner    *compaction.Planner
	counters   *monitor.SaveCounters

	sem *semaphore.Weighted
}

// New constructs an Engine rooted at cfg.Storage.BasePath and loads its
// metadata from disk.
func New(cfg *config.Config) (*Engine, error) {
	base := cfg.Storage.BasePath
	hierarchicalRoot := filepath.Join(base, hierarchicalDir)
	locks := filelock.New()

	e := &Engine{
		basePath:         base,
		hierarchicalRoot: hierarchicalRoot,
		cfg:              cfg.Storage,
		locks:            locks,
		bank:             bank.New(hierarchicalRoot, locks, cfg.Storage.MaxInputWeights),
		packs:            pack.New(hierarchicalRoot, locks),
		metadata:         metadata.New(filepath.Join(hierarchicalRoot, metadataFileName)),
		capacities:       capacity.New(filepath.Join(hierarchicalRoot, capacityFileName)),
		planner:          compaction.New(cfg.Storage.DormantAfterDays, cfg.Storage.RecentAfterDays),
		counters:         monitor.NewSaveCounters(),
		sem:              semaphore.NewWeighted(int64(maxInt(cfg.Storage.MaxParallelSaves, 1))),
	}
	e.stats = statscache.New(filepath.Join(hierarchicalRoot, statsFileName), e.walkHierarchical)

	if err := e.metadata.Load(); err != nil {
		return nil, fmt.Errorf("engine: load metadata: %w", err)
	}
	return e, nil
}

// BasePath returns the engine's configured base directory. Spec §9
// flags reflection-based access to a private base-path field as an
// anti-pattern; this accessor is the deliberate replacement.
func (e *Engine) BasePath() string {
	return e.basePath
}

// batchClusterEntry is one cluster's already-canonicalized save request,
// grouped by resolved partition inside SaveClustersEfficient.
type batchClusterEntry struct {
	id        string
	input     ClusterInput
	neuronIDs []string
}

// resolveTargetPartition implements spec §4.1's Stability rule and
// Testable Invariant 3: a cluster that already has a metadata record
// keeps that record's partition verbatim on every subsequent save.
// Only a cluster with no prior record is classified at all. This is
// shared by SaveClustersEfficient's membership-only path and by
// SaveClusterWithPartitioning, so neither path can let a classifier
// drift (e.g. an importance or activation-count change) relocate a
// cluster that was never asked to move.
func (e *Engine) resolveTargetPartition(id string, cl ClusterInput) (target common.PartitionPath, previous common.ClusterMetadata, hadPrevious bool) {
	previous, hadPrevious = e.metadata.Lookup(id)
	if hadPrevious {
		return previous.Partition, previous, true
	}
	representative := representativeNeuron(cl.Neurons)
	target = partition.Classify(representative, partition.Context{
		Now:          time.Now().UTC(),
		LearningRate: cl.LearningRate,
		Fatigue:      cl.Fatigue,
	})
	return target, previous, false
}

// SaveClustersEfficient is the coordinator's membership-only batch save
// path (spec §4.6): clusters are grouped by their stable partition (spec
// §4.1), and each partition group's membership pack is loaded, diffed,
// and written (or skipped) exactly once, regardless of how many clusters
// share that partition. It never touches the neuron bank — bank writes
// belong to SaveNeuronBanksInBatches and SaveClusterWithPartitioning —
// and it suppresses per-cluster metadata persistence for the duration of
// the batch, flushing partition_metadata.json exactly once at the end
// (spec §4.4/§4.6's write-amplification guard against a slow backing
// store). It returns the metrics for this batch and the first error
// encountered, if any; clusters that succeed are not rolled back because
// a sibling cluster failed.
func (e *Engine) SaveClustersEfficient(ctx context.Context, clusters []ClusterInput) (common.SaveMetrics, error) {
	groups := make(map[string][]batchClusterEntry)
	order := make([]string, 0)
	partitions := make(map[string]common.PartitionPath)

	for _, cl := range clusters {
		e.counters.RecordClusterExamined()

		id, err := common.CanonicalID(cl.ID)
		if err != nil {
			return e.counters.SnapshotAndReset(), fmt.Errorf("engine: save cluster: %w", err)
		}

		target, _, _ := e.resolveTargetPartition(id, cl)

		neuronIDs := make([]string, 0, len(cl.Neurons))
		for _, n := range cl.Neurons {
			neuronIDs = append(neuronIDs, n.ID)
		}
		neuronIDs = common.DedupeIDs(neuronIDs)

		key := target.Dir()
		if _, ok := partitions[key]; !ok {
			partitions[key] = target
			order = append(order, key)
		}
		groups[key] = append(groups[key], batchClusterEntry{id: id, input: cl, neuronIDs: neuronIDs})
	}

	e.metadata.SetBatchMode(true)

	var wg sync.WaitGroup
	errs := make(chan error, len(order))

	for _, key := range order {
		target := partitions[key]
		group := groups[key]
		if err := e.sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			e.metadata.SetBatchMode(false)
			return e.counters.SnapshotAndReset(), err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.sem.Release(1)
			if err := e.saveMembershipGroup(target, group); err != nil {
				errs <- err
			}
		}()
	}

	wg.Wait()
	close(errs)

	var firstErr error
	for err := range errs {
		if firstErr == nil {
			firstErr = err
		}
	}

	e.metadata.SetBatchMode(false)
	if persistErr := e.metadata.PersistBatch(); persistErr != nil && firstErr == nil {
		firstErr = persistErr
	}

	e.stats.RefreshAsync(e.metadata.Count())
	return e.counters.SnapshotAndReset(), firstErr
}

// saveMembershipGroup writes one partition group's membership in a
// single pack.Upsert call, then updates each member cluster's metadata
// record in memory (metadata persistence is deferred to the caller's
// batch-mode PersistBatch). It never calls e.bank.Upsert: bank content
// is untouched by the membership-only batch path.
func (e *Engine) saveMembershipGroup(target common.PartitionPath, group []batchClusterEntry) error {
	membership := make(map[string][]string, len(group))
	for _, entry := range group {
		membership[entry.id] = entry.neuronIDs
	}

	changed, err := e.packs.Upsert(target, membership)
	if err != nil {
		return err
	}
	if changed {
		e.counters.RecordMembershipPackWritten()
		e.counters.RecordMembershipChanged()
	} else {
		e.counters.RecordMembershipPackSkipped()
	}

	for _, entry := range group {
		if err := e.updateMembershipMetadata(entry, target); err != nil {
			return err
		}
	}
	return nil
}

// updateMembershipMetadata upserts a cluster's metadata record from its
// already-in-memory neuron snapshots, without any bank I/O.
func (e *Engine) updateMembershipMetadata(entry batchClusterEntry, target common.PartitionPath) error {
	previous, hadPrevious := e.metadata.Lookup(entry.id)

	createdAt := previous.CreatedAt
	if !hadPrevious || createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	meta := common.ClusterMetadata{
		ID:                 entry.id,
		ConceptDomain:      entry.input.ConceptDomain,
		Partition:          target,
		AssociatedConcepts: associatedConcepts(entry.input.Neurons),
		NeuronCount:        len(entry.neuronIDs),
		AverageImportance:  averageImportance(entry.input.Neurons),
		CreatedAt:          createdAt,
		LastAccessed:       time.Now().UTC(),
	}
	return e.metadata.Upsert(meta)
}

// SaveClusterWithPartitioning is the full per-cluster save path: it
// writes the neuron bank, the membership pack, the cluster's standalone
// `.cluster` file, and its metadata record. Like the batch path, it
// applies the Stability rule via resolveTargetPartition, so a cluster
// that already has a metadata record never gets reclassified here
// either — only a brand-new cluster is classified.
func (e *Engine) SaveClusterWithPartitioning(cl ClusterInput) error {
	e.counters.RecordClusterExamined()

	id, err := common.CanonicalID(cl.ID)
	if err != nil {
		return fmt.Errorf("engine: save cluster: %w", err)
	}

	target, previous, hadPrevious := e.resolveTargetPartition(id, cl)

	neuronIDs := make([]string, 0, len(cl.Neurons))
	for _, n := range cl.Neurons {
		neuronIDs = append(neuronIDs, n.ID)
	}
	neuronIDs = common.DedupeIDs(neuronIDs)

	written, err := e.bank.Upsert(target, cl.Neurons)
	if err != nil {
		return err
	}
	if written > 0 {
		e.counters.RecordNeuronBankPartition()
		e.counters.RecordNeuronsUpserted(uint64(written))
	}

	membershipChanged, err := e.packs.Upsert(target, map[string][]string{id: neuronIDs})
	if err != nil {
		return err
	}
	if membershipChanged {
		e.counters.RecordMembershipPackWritten()
		e.counters.RecordMembershipChanged()
	} else {
		e.counters.RecordMembershipPackSkipped()
	}

	// Dead under the Stability rule above (target always equals
	// previous.Partition whenever hadPrevious), but kept for a future
	// explicit-relocation caller that deliberately passes a different
	// target for an already-tracked cluster.
	if hadPrevious && !previous.Partition.Equal(target) {
		if _, err := e.packs.Upsert(previous.Partition, map[string][]string{id: {}}); err != nil {
			return err
		}
		e.removeClusterFile(previous.Partition, previous.ConceptDomain, id)
	}

	if err := e.writeClusterFile(target, cl.ConceptDomain, id, neuronIDs); err != nil {
		return err
	}

	createdAt := previous.CreatedAt
	if !hadPrevious || createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	meta := common.ClusterMetadata{
		ID:                 id,
		ConceptDomain:      cl.ConceptDomain,
		Partition:          target,
		AssociatedConcepts: associatedConcepts(cl.Neurons),
		NeuronCount:        len(neuronIDs),
		AverageImportance:  averageImportance(cl.Neurons),
		CreatedAt:          createdAt,
		LastAccessed:       time.Now().UTC(),
	}
	return e.metadata.Upsert(meta)
}

// SaveClusterMembershipOnly updates a cluster's neuron-id list in its
// currently recorded partition without touching the neuron bank (spec
// §4.6's narrower save path for membership-only changes).
func (e *Engine) SaveClusterMembershipOnly(clusterID string, neuronIDs []string) error {
	id, err := common.CanonicalID(clusterID)
	if err != nil {
		return err
	}
	meta, ok := e.metadata.Lookup(id)
	if !ok {
		return fmt.Errorf("engine: SaveClusterMembershipOnly: unknown cluster %s", id)
	}

	changed, err := e.packs.Upsert(meta.Partition, map[string][]string{id: common.DedupeIDs(neuronIDs)})
	if err != nil {
		return err
	}
	if changed {
		e.counters.RecordMembershipPackWritten()
		e.counters.RecordMembershipChanged()
	} else {
		e.counters.RecordMembershipPackSkipped()
	}

	meta.NeuronCount = len(common.DedupeIDs(neuronIDs))
	meta.LastAccessed = time.Now().UTC()
	return e.metadata.Upsert(meta)
}

// SaveClusterBankOnly rewrites a cluster's neuron snapshots in its
// currently recorded partition without touching membership (spec
// §4.6's narrower save path for content-only changes).
func (e *Engine) SaveClusterBankOnly(clusterID string, neurons []common.NeuronSnapshot) error {
	id, err := common.CanonicalID(clusterID)
	if err != nil {
		return err
	}
	meta, ok := e.metadata.Lookup(id)
	if !ok {
		return fmt.Errorf("engine: SaveClusterBankOnly: unknown cluster %s", id)
	}

	written, err := e.bank.Upsert(meta.Partition, neurons)
	if err != nil {
		return err
	}
	if written > 0 {
		e.counters.RecordNeuronBankPartition()
		e.counters.RecordNeuronsUpserted(uint64(written))
	}

	meta.AverageImportance = averageImportance(neurons)
	meta.LastAccessed = time.Now().UTC()
	return e.metadata.Upsert(meta)
}

// SaveNeuronBanksInBatches upserts several partitions' neuron sets
// concurrently, bounded by the same semaphore as SaveClustersEfficient.
// It's the batch-oriented sibling used when the caller already has
// neurons grouped by partition (e.g. a bulk re-import).
func (e *Engine) SaveNeuronBanksInBatches(ctx context.Context, byPartition map[string][]common.NeuronSnapshot, partitions map[string]common.PartitionPath) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(byPartition))

	for key, neurons := range byPartition {
		p, ok := partitions[key]
		if !ok {
			continue
		}
		neurons := neurons
		if err := e.sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.sem.Release(1)
			written, err := e.bank.Upsert(p, neurons)
			if err != nil {
				errs <- err
				return
			}
			if written > 0 {
				e.counters.RecordNeuronBankPartition()
				e.counters.RecordNeuronsUpserted(uint64(written))
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		return err
	}
	return nil
}

// LoadClusterWithPartitioning reconstructs a cluster's full view:
// its metadata, its membership list, and its resident neuron snapshots.
func (e *Engine) LoadClusterWithPartitioning(clusterID string) (ClusterView, error) {
	id, err := common.CanonicalID(clusterID)
	if err != nil {
		return ClusterView{}, err
	}
	meta, ok := e.metadata.Lookup(id)
	if !ok {
		return ClusterView{}, fmt.Errorf("engine: unknown cluster %s", id)
	}

	ids, err := e.packs.Load(meta.Partition, id)
	if err != nil {
		return ClusterView{}, err
	}

	neuronMap, err := e.bank.Load(meta.Partition, ids)
	if err != nil {
		return ClusterView{}, err
	}

	neurons := make([]common.NeuronSnapshot, 0, len(ids))
	for _, nid := range ids {
		if n, ok := neuronMap[nid]; ok {
			neurons = append(neurons, n)
		}
	}

	return ClusterView{Metadata: meta, Neurons: neurons}, nil
}

// GetClusterNeuronIds returns just the membership list for a cluster.
func (e *Engine) GetClusterNeuronIds(clusterID string) ([]string, error) {
	id, err := common.CanonicalID(clusterID)
	if err != nil {
		return nil, err
	}
	meta, ok := e.metadata.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("engine: unknown cluster %s", id)
	}
	return e.packs.Load(meta.Partition, id)
}

// InspectClusterMembership returns a diagnostic summary of a cluster's
// recorded membership, without loading its neuron content.
func (e *Engine) InspectClusterMembership(clusterID string) (MembershipInspection, error) {
	id, err := common.CanonicalID(clusterID)
	if err != nil {
		return MembershipInspection{}, err
	}
	meta, ok := e.metadata.Lookup(id)
	if !ok {
		return MembershipInspection{}, fmt.Errorf("engine: unknown cluster %s", id)
	}
	ids, err := e.packs.Load(meta.Partition, id)
	if err != nil {
		return MembershipInspection{}, err
	}
	return MembershipInspection{
		ClusterID:   id,
		Partition:   meta.Partition,
		NeuronCount: len(ids),
		NeuronIDs:   ids,
	}, nil
}

// FindSimilarClusters surfaces clusters related to the given concepts,
// delegating to the metadata store's index-backed/Jaccard-fallback
// search (spec §4.4).
func (e *Engine) FindSimilarClusters(concepts []string, threshold float64, limit int) []common.ClusterMetadata {
	return e.metadata.FindSimilar(concepts, threshold, limit)
}

// ConsolidateMemoryPartitions runs the compaction planner over every
// tracked cluster and returns its proposed relocations. It never moves
// data itself (see DESIGN.md's Open Question decision).
func (e *Engine) ConsolidateMemoryPartitions() []common.RelocationPlan {
	clusters := e.metadata.ListAll()
	return e.planner.Plan(clusters, time.Now().UTC())
}

// GetEnhancedStorageStats returns the cached storage stats, backfilled
// with the live cluster count, and kicks off a background refresh of
// the byte totals.
func (e *Engine) GetEnhancedStorageStats() common.StorageStats {
	count := e.metadata.Count()
	e.stats.RefreshAsync(count)
	return e.stats.GetStats(count)
}

// LoadConceptCapacities returns the operator-maintained concept
// capacity table.
func (e *Engine) LoadConceptCapacities() map[string]int {
	return e.capacities.Load()
}

// SaveConceptCapacities replaces the concept capacity table.
func (e *Engine) SaveConceptCapacities(capacities map[string]int) error {
	return e.capacities.Save(capacities)
}

// GetAndResetLastSaveMetrics returns the counters accumulated since the
// last call (or since startup), resetting them.
func (e *Engine) GetAndResetLastSaveMetrics() common.SaveMetrics {
	return e.counters.SnapshotAndReset()
}

func (e *Engine) walkHierarchical() (hierarchicalBytes int64, baseBytes int64, err error) {
	hierarchicalBytes, err = dirSize(e.hierarchicalRoot)
	if err != nil {
		return 0, 0, err
	}
	baseBytes, err = dirSize(e.basePath)
	if err != nil {
		return 0, 0, err
	}
	return hierarchicalBytes, baseBytes, nil
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	return total, nil
}

func (e *Engine) clusterFileBase(p common.PartitionPath, domain, clusterID string) string {
	name := fmt.Sprintf("%s_%s.cluster", sanitizeDomain(domain), clusterID)
	return filepath.Join(e.hierarchicalRoot, p.Dir(), name)
}

func (e *Engine) removeClusterFile(p common.PartitionPath, domain, clusterID string) {
	base := e.clusterFileBase(p, domain, clusterID)
	_ = os.Remove(base)
	_ = os.Remove(base + ".gz")
}

func (e *Engine) writeClusterFile(p common.PartitionPath, domain, clusterID string, neuronIDs []string) error {
	record := clusterRecord{
		ID:            clusterID,
		ConceptDomain: domain,
		NeuronIDs:     neuronIDs,
		SavedAt:       time.Now().UTC(),
	}
	base := e.clusterFileBase(p, domain, clusterID)
	if e.cfg.CompressClusters {
		return atomicfile.WriteGzipJSON(base+".gz", record)
	}
	return atomicfile.WriteJSON(base, record)
}

type clusterRecord struct {
	ID            string    `json:"id"`
	ConceptDomain string    `json:"conceptDomain"`
	NeuronIDs     []string  `json:"neuronIds"`
	SavedAt       time.Time `json:"savedAt"`
}

func sanitizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.ReplaceAll(d, " ", "_")
	if d == "" {
		return "unknown"
	}
	return d
}

func representativeNeuron(neurons []common.NeuronSnapshot) common.NeuronSnapshot {
	var best common.NeuronSnapshot
	bestImportance := -1.0
	for _, n := range neurons {
		if n.Importance > bestImportance {
			best = n
			bestImportance = n.Importance
		}
	}
	return best
}

func averageImportance(neurons []common.NeuronSnapshot) float64 {
	if len(neurons) == 0 {
		return 0
	}
	var sum float64
	for _, n := range neurons {
		sum += n.Importance
	}
	return sum / float64(len(neurons))
}

func associatedConcepts(neurons []common.NeuronSnapshot) []string {
	var all []string
	for _, n := range neurons {
		if n.ConceptTag != "" {
			all = append(all, n.ConceptTag)
		}
		all = append(all, n.AssociatedConcepts...)
	}
	return common.DedupeConcepts(all)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
