package common

import (
	"fmt"
	"math"
	"path/filepath"
	"time"
)

// Partition vocabularies — closed sets, see spec §6.
const (
	FunctionalSensory     = "sensory"
	FunctionalMotor       = "motor"
	FunctionalMemory      = "memory"
	FunctionalAssociation = "association"
	FunctionalGeneral     = "general"

	PlasticityHighAdaptive   = "high_adaptive"
	PlasticityModeratePlastic = "moderate_plastic"
	PlasticityLowFatigued    = "low_fatigued"
	PlasticityStableMature   = "stable_mature"
	PlasticityBaseline       = "baseline"

	TopologyHub         = "hub"
	TopologyBridge      = "bridge"
	TopologySpecialized = "specialized"
	TopologyModular     = "modular"
	TopologyPeripheral  = "peripheral"

	TemporalActiveFrequent        = "active_frequent"
	TemporalRecentModerate        = "recent_moderate"
	TemporalArchivedRecent        = "archived_recent"
	TemporalConsolidatedImportant = "consolidated_important"
	TemporalDormant               = "dormant"
)

// PartitionPath is the four-segment hierarchical classification that
// identifies a partition. The concatenation of its segments is the
// partition's identity; Dir renders it as the on-disk relative path.
type PartitionPath struct {
	Functional string `json:"functional"`
	Plasticity string `json:"plasticity"`
	Topology   string `json:"topology"`
	Temporal   string `json:"temporal"`
}

// SentinelPartition is the path assigned to an empty cluster.
func SentinelPartition() PartitionPath {
	return PartitionPath{
		Functional: FunctionalGeneral,
		Plasticity: PlasticityBaseline,
		Topology:   TopologyPeripheral,
		Temporal:   TemporalDormant,
	}
}

// Dir renders the partition as the on-disk relative directory path
// described in spec §6: functional/<f>/plasticity/<p>/topology/<t>/temporal/<q>
func (p PartitionPath) Dir() string {
	return filepath.Join(
		"functional", p.Functional,
		"plasticity", p.Plasticity,
		"topology", p.Topology,
		"temporal", p.Temporal,
	)
}

// Key is a stable, comparable identity for use as a map key.
func (p PartitionPath) Key() string {
	return p.Functional + "/" + p.Plasticity + "/" + p.Topology + "/" + p.Temporal
}

func (p PartitionPath) Equal(o PartitionPath) bool {
	return p == o
}

// NeuronSnapshot is the value-typed, on-disk form of a neuron. All floats
// must be finite; InputWeights keys and OutputConnections entries are
// canonical hex-32 neuron ids.
type NeuronSnapshot struct {
	ID                string             `json:"id"`
	ConceptTag        string             `json:"conceptTag"`
	InputWeights      map[string]float64 `json:"inputWeights"`
	OutputConnections []string           `json:"outputConnections"`
	ActivationCount   uint64             `json:"activationCount"`
	CreatedAt         time.Time          `json:"createdAt"`
	LastUsedAt        time.Time          `json:"lastUsedAt"`
	Importance        float64            `json:"importance"`
	AssociatedConcepts []string          `json:"associatedConcepts"`
}

// Canonicalize normalizes ids and ordering in place and validates the
// finite-float and weight-cap invariants. maxWeights <= 0 disables the cap.
func (n *NeuronSnapshot) Canonicalize(maxWeights int) error {
	id, err := CanonicalID(n.ID)
	if err != nil {
		return fmt.Errorf("neuron id: %w", err)
	}
	n.ID = id

	if !isFinite(n.Importance) {
		return &SerializationError{NeuronID: n.ID, Field: "importance", Reason: "non-finite"}
	}
	if n.Importance < 0 || n.Importance > 1 {
		return &SerializationError{NeuronID: n.ID, Field: "importance", Reason: "out of [0,1]"}
	}

	normalizedWeights := make(map[string]float64, len(n.InputWeights))
	for rawID, w := range n.InputWeights {
		wid, err := CanonicalID(rawID)
		if err != nil {
			return &SerializationError{NeuronID: n.ID, Field: "inputWeights[" + rawID + "]", Reason: err.Error()}
		}
		if !isFinite(w) {
			return &SerializationError{NeuronID: n.ID, Field: "inputWeights[" + wid + "]", Reason: "non-finite"}
		}
		normalizedWeights[wid] = w
	}
	if maxWeights > 0 && len(normalizedWeights) > maxWeights {
		return &SerializationError{NeuronID: n.ID, Field: "inputWeights", Reason: fmt.Sprintf("exceeds cap of %d", maxWeights)}
	}
	n.InputWeights = normalizedWeights
	n.OutputConnections = DedupeIDs(n.OutputConnections)
	n.AssociatedConcepts = DedupeConcepts(n.AssociatedConcepts)
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// SerializationError names the offending neuron id and field path, per
// spec §4.2/§7's diagnostic requirement for serialization failures.
type SerializationError struct {
	NeuronID string
	Field    string
	Reason   string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization failure: neuron %s field %s: %s", e.NeuronID, e.Field, e.Reason)
}

// ClusterMetadata is the authoritative, persisted record of a cluster's
// partition assignment and summary statistics.
type ClusterMetadata struct {
	ID                 string        `json:"id"`
	ConceptDomain      string        `json:"conceptDomain"`
	Partition          PartitionPath `json:"partition"`
	AssociatedConcepts []string      `json:"associatedConcepts"`
	NeuronCount        int           `json:"neuronCount"`
	AverageImportance  float64       `json:"averageImportance"`
	CreatedAt          time.Time     `json:"createdAt"`
	LastAccessed       time.Time     `json:"lastAccessed"`
}

// MembershipPack is the per-partition authoritative membership record.
type MembershipPack struct {
	Membership map[string][]string `json:"membership"`
	SavedAt    time.Time           `json:"savedAt"`
}

// SaveMetrics summarizes the outcome of one batched save operation.
type SaveMetrics struct {
	ClustersExamined          uint64 `json:"clustersExamined"`
	ClustersChangedMembership uint64 `json:"clustersChangedMembership"`
	MembershipPacksWritten    uint64 `json:"membershipPacksWritten"`
	MembershipPacksSkipped    uint64 `json:"membershipPacksSkipped"`
	NeuronBankPartitions      uint64 `json:"neuronBankPartitions"`
	NeuronsUpserted           uint64 `json:"neuronsUpserted"`
}

// StorageStats is the persisted, cached form of storage statistics.
type StorageStats struct {
	ClusterCount      int       `json:"clusterCount"`
	BaseBytes         int64     `json:"baseBytes"`
	HierarchicalBytes int64     `json:"hierarchicalBytes"`
	LastUpdatedUtc    time.Time `json:"lastUpdatedUtc"`
}

// ClusterReference is one entry in the in-memory concept index.
type ClusterReference struct {
	ClusterID     string
	Partition     PartitionPath
	LastAccessed  time.Time
	ConceptDomain string
}

// RelocationPlan is a proposed (not executed) move of a cluster between
// temporal sub-partitions, per spec §4.8.
type RelocationPlan struct {
	ClusterID string
	From      PartitionPath
	To        PartitionPath
	Reason    string
}
