package compaction

import (
	"testing"
	"time"

	"neuronstore/pkg/common"
)

func TestPlanProposesDormantRelocationForStaleCluster(t *testing.T) {
	p := New(30, 7)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	clusters := []common.ClusterMetadata{
		{
			ID:           common.NewID(),
			LastAccessed: now.Add(-40 * 24 * time.Hour),
			Partition: common.PartitionPath{
				Functional: common.FunctionalMemory,
				Plasticity: common.PlasticityStableMature,
				Topology:   common.TopologyModular,
				Temporal:   common.TemporalActiveFrequent,
			},
		},
	}

	plans := p.Plan(clusters, now)
	if len(plans) != 1 {
		t.Fatalf("expected 1 relocation plan, got %d", len(plans))
	}
	if plans[0].To.Temporal != common.TemporalDormant {
		t.Fatalf("expected dormant target, got %s", plans[0].To.Temporal)
	}
}

func TestPlanProposesCooldownForModeratelyIdleCluster(t *testing.T) {
	p := New(30, 7)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	clusters := []common.ClusterMetadata{
		{
			ID:           common.NewID(),
			LastAccessed: now.Add(-10 * 24 * time.Hour),
			Partition: common.PartitionPath{
				Functional: common.FunctionalMemory,
				Plasticity: common.PlasticityStableMature,
				Topology:   common.TopologyModular,
				Temporal:   common.TemporalActiveFrequent,
			},
		},
	}

	plans := p.Plan(clusters, now)
	if len(plans) != 1 || plans[0].To.Temporal != common.TemporalRecentModerate {
		t.Fatalf("expected recent_moderate cooldown, got %+v", plans)
	}
}

func TestPlanSkipsAlreadyCorrectlyPlacedClusters(t *testing.T) {
	p := New(30, 7)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	clusters := []common.ClusterMetadata{
		{
			ID:           common.NewID(),
			LastAccessed: now.Add(-1 * time.Hour),
			Partition: common.PartitionPath{
				Functional: common.FunctionalMemory,
				Plasticity: common.PlasticityStableMature,
				Topology:   common.TopologyModular,
				Temporal:   common.TemporalActiveFrequent,
			},
		},
	}

	plans := p.Plan(clusters, now)
	if len(plans) != 0 {
		t.Fatalf("expected no relocation for a recently accessed cluster, got %+v", plans)
	}
}

func TestPlanNeverRelocatesConsolidatedImportant(t *testing.T) {
	p := New(30, 7)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	clusters := []common.ClusterMetadata{
		{
			ID:           common.NewID(),
			LastAccessed: now.Add(-400 * 24 * time.Hour),
			Partition: common.PartitionPath{
				Functional: common.FunctionalMemory,
				Plasticity: common.PlasticityStableMature,
				Topology:   common.TopologyModular,
				Temporal:   common.TemporalConsolidatedImportant,
			},
		},
	}

	plans := p.Plan(clusters, now)
	if len(plans) != 0 {
		t.Fatalf("expected consolidated_important clusters to stay put, got %+v", plans)
	}
}
