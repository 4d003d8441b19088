package capacity

import (
	"os"
	"path/filepath"
	"testing"
)

func overwriteRaw(path, contents string) error {
	return os.WriteFile(path, []byte(contents), 0o644)
}

func TestLoadMissingFileYieldsEmptyMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concept_capacity.json")
	s := New(path)
	got := s.Load()
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestSaveThenLoadRoundTripIsCaseInsensitive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concept_capacity.json")
	s := New(path)

	if err := s.Save(map[string]int{"Vision": 500, "audio": 250}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := s.Load()
	if got["vision"] != 500 || got["audio"] != 250 {
		t.Fatalf("unexpected capacities: %v", got)
	}
}

func TestSetCapacityUpsertsSingleEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concept_capacity.json")
	s := New(path)

	if err := s.Save(map[string]int{"vision": 500}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SetCapacity("Motor", 100); err != nil {
		t.Fatalf("set: %v", err)
	}

	got := s.Load()
	if got["vision"] != 500 || got["motor"] != 100 {
		t.Fatalf("unexpected capacities after set: %v", got)
	}
}

func TestLoadCorruptFileYieldsEmptyMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concept_capacity.json")
	s := New(path)
	if err := s.Save(map[string]int{"vision": 1}); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Overwrite with invalid JSON directly to simulate corruption.
	if err := overwriteRaw(path, "{not valid json"); err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	got := s.Load()
	if len(got) != 0 {
		t.Fatalf("expected empty map for corrupt file, got %v", got)
	}
}
