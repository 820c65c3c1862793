package main

import (
	"log"
	"os"
	"strconv"

	"github.com/rawblock/aml-engine/internal/api"
	"github.com/rawblock/aml-engine/internal/db"
	"github.com/rawblock/aml-engine/internal/engine"
)

func main() {
	log.Println("Starting RawBlock AML Analytical Core (Microservice: aml-engine)...")
	log.Println("Loading sanctions list store, rule catalog and country risk table...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	dbUrl := requireEnv("DATABASE_URL")

	dbConn, err := db.Connect(dbUrl)
	if err != nil {
		log.Printf("Warning: Failed to connect to PostgreSQL, continuing in-memory without retention. Error: %v", err)
		dbConn = nil
	} else {
		defer dbConn.Close()
		if err := dbConn.InitSchema(); err != nil {
			log.Printf("Warning: DB schema init failed: %v", err)
		}
	}

	workers, err := strconv.Atoi(getEnvOrDefault("BATCH_WORKERS", "4"))
	if err != nil || workers < 1 {
		workers = 4
	}

	core, err := engine.New(engine.Config{BatchWorkers: workers})
	if err != nil {
		log.Fatalf("Failed to initialize engine core: %v", err)
	}

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	// Setup the Gin Router
	r := api.SetupRouter(core, dbConn, wsHub)

	port := getEnvOrDefault("PORT", "5340")

	// Start the server
	log.Printf("Engine running on :%s (API Node: aml-engine)\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the binary from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
