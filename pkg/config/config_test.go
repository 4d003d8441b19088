package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	_, err := Load("/nonexistent/path/neuronstore.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
	cfg, _ := Load("")
	if cfg.Storage.BasePath != "neuron_store" {
		t.Errorf("default base_path: got %s", cfg.Storage.BasePath)
	}
	if cfg.Storage.MaxParallelSaves != 2 {
		t.Errorf("default max_parallel_saves: got %d", cfg.Storage.MaxParallelSaves)
	}
	if !cfg.Storage.CompressClusters {
		t.Errorf("default compress_clusters: got false")
	}
	if cfg.Storage.DormantAfterDays != 30 {
		t.Errorf("default dormant_after_days: got %d", cfg.Storage.DormantAfterDays)
	}
	if cfg.Storage.RecentAfterDays != 7 {
		t.Errorf("default recent_after_days: got %d", cfg.Storage.RecentAfterDays)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	content := `
storage:
  base_path: "test_data"
  max_parallel_saves: 4
  compress_clusters: false
  max_input_weights: 500
  dormant_after_days: 10
  recent_after_days: 2
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.BasePath != "test_data" {
		t.Errorf("base_path: got %s", cfg.Storage.BasePath)
	}
	if cfg.Storage.MaxParallelSaves != 4 {
		t.Errorf("max_parallel_saves: got %d", cfg.Storage.MaxParallelSaves)
	}
	if cfg.Storage.CompressClusters {
		t.Errorf("compress_clusters: expected false")
	}
	if cfg.Storage.MaxInputWeights != 500 {
		t.Errorf("max_input_weights: got %d", cfg.Storage.MaxInputWeights)
	}
	if cfg.Storage.DormantAfterDays != 10 {
		t.Errorf("dormant_after_days: got %d", cfg.Storage.DormantAfterDays)
	}
	if cfg.Storage.RecentAfterDays != 2 {
		t.Errorf("recent_after_days: got %d", cfg.Storage.RecentAfterDays)
	}
}
