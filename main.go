// vuln2rev-mapper maps known-vulnerable package versions onto analyzed
// source revisions: it loads OSV advisories into an ArangoDB graph, solves
// the minimal version set per package, and builds linguist-analyzed revision
// snapshots for those versions.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/ortelius/vuln2rev-mapper/config"
	"github.com/ortelius/vuln2rev-mapper/database"
	"github.com/ortelius/vuln2rev-mapper/internal/api"
	"github.com/ortelius/vuln2rev-mapper/internal/kafka"
	"github.com/ortelius/vuln2rev-mapper/osv"
	"github.com/ortelius/vuln2rev-mapper/store"
)

func main() {
	// Load .env if present; environment wins over file values
	_ = godotenv.Load()

	logger := database.InitLogger()

	cfg, err := config.Load("")
	if err != nil {
		logger.Sugar().Fatalf("Failed to load settings: %v", err)
	}

	db := database.InitializeDatabase()

	ctx := context.Background()

	s := store.New(db, logger)
	if err := s.Ping(ctx); err != nil {
		logger.Sugar().Fatalf("Database not answering queries: %v", err)
	}

	// Background event consumer for on-demand analysis requests
	if err := kafka.RunEventProcessor(ctx, db, cfg); err != nil {
		logger.Sugar().Warnf("Kafka unavailable, event processing disabled: %v", err)
	}

	// Weekly feed refresh
	go func() {
		ticker := time.NewTicker(7 * 24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := osv.Update(ctx, db, cfg.OSVDataDir, cfg.Ecosystems, logger); err != nil {
				logger.Sugar().Errorf("Scheduled feed update failed: %v", err)
			}
		}
	}()

	app := api.NewFiberApp(db, cfg)

	port := os.Getenv("MS_PORT")
	if port == "" {
		port = "3000"
	}

	log.Printf("Starting server on port %s", port)
	log.Printf("GraphQL endpoint available at /api/v1/graphql")
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
