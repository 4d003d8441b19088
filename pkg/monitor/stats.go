// Package monitor tracks the running counters the engine accumulates
// across batched save operations (spec §4.6), mirroring the teacher's
// atomic-counter WorkloadStats: one uint64 per metric, incremented
// lock-free, snapshotted and reset on read.
package monitor

import (
	"sync/atomic"

	"neuronstore/pkg/common"
)

// SaveCounters accumulates the per-operation counts that make up a
// common.SaveMetrics snapshot.
type SaveCounters struct {
	clustersExamined          uint64
	clustersChangedMembership uint64
	membershipPacksWritten    uint64
	membershipPacksSkipped    uint64
	neuronBankPartitions      uint64
	neuronsUpserted           uint64
}

// NewSaveCounters constructs a zeroed counter set.
func NewSaveCounters() *SaveCounters {
	return &SaveCounters{}
}

func (c *SaveCounters) RecordClusterExamined() {
	atomic.AddUint64(&c.clustersExamined, 1)
}

func (c *SaveCounters) RecordMembershipChanged() {
	atomic.AddUint64(&c.clustersChangedMembership, 1)
}

func (c *SaveCounters) RecordMembershipPackWritten() {
	atomic.AddUint64(&c.membershipPacksWritten, 1)
}

func (c *SaveCounters) RecordMembershipPackSkipped() {
	atomic.AddUint64(&c.membershipPacksSkipped, 1)
}

func (c *SaveCounters) RecordNeuronBankPartition() {
	atomic.AddUint64(&c.neuronBankPartitions, 1)
}

func (c *SaveCounters) RecordNeuronsUpserted(n uint64) {
	atomic.AddUint64(&c.neuronsUpserted, n)
}

// Snapshot returns the current counts without resetting them.
func (c *SaveCounters) Snapshot() common.SaveMetrics {
	return common.SaveMetrics{
		ClustersExamined:          atomic.LoadUint64(&c.clustersExamined),
		ClustersChangedMembership: atomic.LoadUint64(&c.clustersChangedMembership),
		MembershipPacksWritten:    atomic.LoadUint64(&c.membershipPacksWritten),
		MembershipPacksSkipped:    atomic.LoadUint64(&c.membershipPacksSkipped),
		NeuronBankPartitions:      atomic.LoadUint64(&c.neuronBankPartitions),
		NeuronsUpserted:           atomic.LoadUint64(&c.neuronsUpserted),
	}
}

// SnapshotAndReset returns the current counts and zeroes them, per spec
// §4.6's getAndResetLastSaveMetrics. Each field is swapped to zero
// atomically on its own; the fields are not read as one atomic set.
func (c *SaveCounters) SnapshotAndReset() common.SaveMetrics {
	return common.SaveMetrics{
		ClustersExamined:          atomic.SwapUint64(&c.clustersExamined, 0),
		ClustersChangedMembership: atomic.SwapUint64(&c.clustersChangedMembership, 0),
		MembershipPacksWritten:    atomic.SwapUint64(&c.membershipPacksWritten, 0),
		MembershipPacksSkipped:    atomic.SwapUint64(&c.membershipPacksSkipped, 0),
		NeuronBankPartitions:      atomic.SwapUint64(&c.neuronBankPartitions, 0),
		NeuronsUpserted:           atomic.SwapUint64(&c.neuronsUpserted, 0),
	}
}
