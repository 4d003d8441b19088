package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"

	"neuronstore/pkg/config"
	"neuronstore/pkg/engine"
)

func main() {
	configPath := flag.String("config", "", "path to a neuronstore.yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("neuronstore: load config: %v", err)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("neuronstore: init engine: %v", err)
	}

	stats := eng.GetEnhancedStorageStats()
	fmt.Fprintf(os.Stdout,
		"neuronstore ready: base=%s clusters=%s hierarchical=%s max_parallel_saves=%d\n",
		eng.BasePath(),
		humanize.Comma(int64(stats.ClusterCount)),
		humanize.Bytes(uint64(stats.HierarchicalBytes)),
		cfg.Storage.MaxParallelSaves,
	)
}
