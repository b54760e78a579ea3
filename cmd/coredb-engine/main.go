// Command coredb-engine runs the WAL manager and full-text index reader
// cache as a single long-lived process.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/coredb/coredb/internal/config"
	"github.com/coredb/coredb/internal/engine"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			log.Fatalf("coredb-engine: load config: %v", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatalf("coredb-engine: %v", err)
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("coredb-engine: start: %v", err)
	}

	if err := eng.WaitForShutdown(ctx); err != nil {
		log.Fatalf("coredb-engine: shutdown: %v", err)
	}
}
