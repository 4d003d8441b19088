package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine's top-level configuration.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
}

// StorageConfig governs the on-disk layout and write-amplification
// tuning described in spec §4 and §6.
type StorageConfig struct {
	BasePath         string `yaml:"base_path"`
	MaxParallelSaves int    `yaml:"max_parallel_saves"`
	CompressClusters bool   `yaml:"compress_clusters"`
	MaxInputWeights  int    `yaml:"max_input_weights"`
	DormantAfterDays int    `yaml:"dormant_after_days"`
	RecentAfterDays  int    `yaml:"recent_after_days"`
}

// Load reads YAML configuration from configPath, falling back to a
// default search path when configPath is empty, and to built-in
// defaults when no file is found. A non-empty configPath that cannot be
// read is an error.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		Storage: StorageConfig{
			BasePath:         "neuron_store",
			MaxParallelSaves: 2,
			CompressClusters: true,
			MaxInputWeights:  2048,
			DormantAfterDays: 30,
			RecentAfterDays:  7,
		},
	}

	if configPath == "" {
		for _, p := range []string{"configs/neuronstore.yaml", "neuronstore.yaml"} {
			data, err := os.ReadFile(p)
			if err == nil {
				if err := yaml.Unmarshal(data, cfg); err != nil {
					return cfg, err
				}
				applyDefaults(cfg)
				return cfg, nil
			}
		}
		applyDefaults(cfg)
		return cfg, nil // no file found: use defaults
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.BasePath == "" {
		cfg.Storage.BasePath = "neuron_store"
	}
	if cfg.Storage.MaxParallelSaves <= 0 {
		cfg.Storage.MaxParallelSaves = 2
	}
	if cfg.Storage.MaxInputWeights <= 0 {
		cfg.Storage.MaxInputWeights = 2048
	}
	if cfg.Storage.DormantAfterDays <= 0 {
		cfg.Storage.DormantAfterDays = 30
	}
	if cfg.Storage.RecentAfterDays <= 0 {
		cfg.Storage.RecentAfterDays = 7
	}
}
