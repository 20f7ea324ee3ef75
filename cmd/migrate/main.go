package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/memberbill/memberbill/internal/config"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	postgresRepo "github.com/memberbill/memberbill/internal/repository/postgres"
)

func main() {
	// Parse command line flags
	dryRun := flag.Bool("dry-run", false, "Print migration SQL without executing it")
	flag.Parse()

	// Pick up a local .env before the config is read
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	logger.Infow("Connecting to database", "host", cfg.Postgres.Host)

	db, err := postgres.NewDB(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Running database migrations...")

	// Check if we're in dry-run mode
	if *dryRun {
		logger.Info("Dry run mode - printing migration SQL without executing")
		for _, migration := range postgresRepo.GetMigrations() {
			fmt.Printf("-- %d: %s\n%s\n", migration.Version, migration.Description, migration.SQL)
		}
		return
	}

	if err := postgresRepo.RunMigrations(ctx, db.DB.DB, logger); err != nil {
		logger.Fatalw("Failed to run migrations", "error", err)
	}
	logger.Info("Migration completed successfully")

	fmt.Println("Migration process completed")
}
