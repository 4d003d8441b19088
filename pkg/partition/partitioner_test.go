package partition

import (
	"testing"
	"time"

	"neuronstore/pkg/common"
)

func TestClassifyEmptyYieldsSentinel(t *testing.T) {
	got := Classify(common.NeuronSnapshot{}, Context{Now: time.Now()})
	want := common.SentinelPartition()
	if got != want {
		t.Fatalf("expected sentinel partition, got %+v", got)
	}
}

func TestClassifyFunctionalSensory(t *testing.T) {
	n := common.NeuronSnapshot{
		ID:                 "11111111111111111111111111111111",
		AssociatedConcepts: []string{"visual", "cat"},
	}
	got := Classify(n, Context{Now: time.Now()})
	if got.Functional != common.FunctionalSensory {
		t.Fatalf("expected sensory, got %s", got.Functional)
	}
}

func TestClassifyFunctionalDefaultsGeneral(t *testing.T) {
	n := common.NeuronSnapshot{
		ID:                 "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		AssociatedConcepts: []string{"nonsense", "zzz"},
	}
	got := Classify(n, Context{Now: time.Now()})
	if got.Functional != common.FunctionalGeneral {
		t.Fatalf("expected general, got %s", got.Functional)
	}
}

func TestClassifyTopologyHub(t *testing.T) {
	weights := make(map[string]float64, 60)
	for i := 0; i < 60; i++ {
		weights[common.NewID()] = 0.1
	}
	n := common.NeuronSnapshot{
		ID:           "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		InputWeights: weights,
	}
	got := Classify(n, Context{Now: time.Now()})
	if got.Topology != common.TopologyHub {
		t.Fatalf("expected hub, got %s", got.Topology)
	}
}

func TestClassifyTemporalDormant(t *testing.T) {
	now := time.Now()
	n := common.NeuronSnapshot{
		ID:         "cccccccccccccccccccccccccccccccc",
		CreatedAt:  now.Add(-100 * 24 * time.Hour),
		LastUsedAt: now.Add(-60 * 24 * time.Hour),
		Importance: 0.1,
	}
	got := Classify(n, Context{Now: now})
	if got.Temporal != common.TemporalDormant {
		t.Fatalf("expected dormant, got %s", got.Temporal)
	}
}

func TestClassifyTemporalActiveFrequent(t *testing.T) {
	now := time.Now()
	n := common.NeuronSnapshot{
		ID:              "dddddddddddddddddddddddddddddddd",
		CreatedAt:       now.Add(-2 * 24 * time.Hour),
		LastUsedAt:      now,
		ActivationCount: 50,
	}
	got := Classify(n, Context{Now: now})
	if got.Temporal != common.TemporalActiveFrequent {
		t.Fatalf("expected active_frequent, got %s", got.Temporal)
	}
}

func TestPartitionPathDirLayout(t *testing.T) {
	p := common.SentinelPartition()
	want := "functional/general/plasticity/baseline/topology/peripheral/temporal/dormant"
	if p.Dir() != want {
		t.Fatalf("expected %s, got %s", want, p.Dir())
	}
}
