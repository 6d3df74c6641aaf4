package main

import (
	"context"
	"flag"
	"log"

	"async-import-export/internal/config"
	"async-import-export/internal/infra/db/postgres"
)

// This script creates or updates the job tables. It is idempotent and safe to
// run against a database that already has them.
func main() {
	ctx := context.Background()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("applying schema...")
	if _, err := pool.Exec(ctx, postgres.Schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("done")
}
