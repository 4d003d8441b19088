package bank

import (
	"path/filepath"
	"testing"

	"neuronstore/pkg/common"
	"neuronstore/pkg/storage/filelock"
)

func samplePartition() common.PartitionPath {
	return common.PartitionPath{
		Functional:  common.FunctionalMemory,
		Plasticity:  common.PlasticityStableMature,
		Topology:    common.TopologyModular,
		Temporal:    common.TemporalRecentModerate,
	}
}

func sampleNeuron(id string) common.NeuronSnapshot {
	return common.NeuronSnapshot{
		ID:                 id,
		ConceptTag:         "vision",
		InputWeights:       map[string]float64{common.NewID(): 0.1, common.NewID(): 0.2},
		OutputConnections:  []string{},
		ActivationCount:    10,
		Importance:         0.5,
		AssociatedConcepts: []string{"sight"},
	}
}

func TestBankUpsertThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, filelock.New(), 2048)
	p := samplePartition()

	id := common.NewID()
	n, err := b.Upsert(p, []common.NeuronSnapshot{sampleNeuron(id)})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 write, got %d", n)
	}

	loaded, err := b.Load(p, []string{id})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got, ok := loaded[id]
	if !ok {
		t.Fatalf("expected id %s present", id)
	}
	if got.ConceptTag != "vision" {
		t.Fatalf("unexpected concept tag %q", got.ConceptTag)
	}
}

func TestBankUpsertNoopWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, filelock.New(), 2048)
	p := samplePartition()

	id := common.NewID()
	neuron := sampleNeuron(id)

	if _, err := b.Upsert(p, []common.NeuronSnapshot{neuron}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	n, err := b.Upsert(p, []common.NeuronSnapshot{neuron})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no-op resave, got %d changed", n)
	}
}

func TestBankUpsertDetectsFieldLevelDiff(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, filelock.New(), 2048)
	p := samplePartition()

	id := common.NewID()
	n1 := sampleNeuron(id)
	if _, err := b.Upsert(p, []common.NeuronSnapshot{n1}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	n2 := sampleNeuron(id)
	n2.Importance = 0.9
	changed, err := b.Upsert(p, []common.NeuronSnapshot{n2})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if changed != 1 {
		t.Fatalf("expected changed write on importance diff, got %d", changed)
	}

	loaded, err := b.Load(p, []string{id})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded[id].Importance != 0.9 {
		t.Fatalf("expected updated importance, got %v", loaded[id].Importance)
	}
}

func TestBankLoadMissingBankYieldsEmpty(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, filelock.New(), 2048)
	p := samplePartition()

	loaded, err := b.Load(p, []string{common.NewID()})
	if err != nil {
		t.Fatalf("load on missing bank should not error: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty result, got %d entries", len(loaded))
	}
}

func TestBankLoadOmitsUnknownIds(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, filelock.New(), 2048)
	p := samplePartition()

	known := common.NewID()
	if _, err := b.Upsert(p, []common.NeuronSnapshot{sampleNeuron(known)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	unknown := common.NewID()
	loaded, err := b.Load(p, []string{known, unknown})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected only the known id, got %d entries", len(loaded))
	}
	if _, ok := loaded[unknown]; ok {
		t.Fatal("unknown id should be silently omitted, not present")
	}
}

func TestBankUpsertRejectsNonFiniteWeights(t *testing.T) {
	dir := t.TempDir()
	b := New(dir, filelock.New(), 2048)
	p := samplePartition()

	bad := sampleNeuron(common.NewID())
	bad.InputWeights = map[string]float64{common.NewID(): posInf()}

	if _, err := b.Upsert(p, []common.NeuronSnapshot{bad}); err == nil {
		t.Fatal("expected error for non-finite weight")
	}
}

func TestBankPathLayout(t *testing.T) {
	b := New("/base", filelock.New(), 2048)
	p := samplePartition()
	got := b.Path(p)
	want := filepath.Join("/base", p.Dir(), "neurons.bank.json.gz")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func posInf() float64 {
	var zero float64
	return 1 / zero
}
