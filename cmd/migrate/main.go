package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Rrens/kb-chat/internal/config"
	"github.com/Rrens/kb-chat/internal/logger"
	"github.com/Rrens/kb-chat/internal/repository/postgres"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	down := flag.Bool("down", false, "roll back the most recent migration")
	source := flag.String("source", "", "migration source URL (defaults to database.migrations_url)")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	closer, err := logger.Setup(cfg.Logging, os.Getenv("APP_ENV"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	sourceURL := cfg.Database.MigrationsURL
	if *source != "" {
		sourceURL = *source
	}

	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("source", sourceURL).
		Bool("down", *down).
		Msg("running migrations")

	if *down {
		err = postgres.RollbackMigrations(cfg.Database.DSN(), sourceURL)
	} else {
		err = postgres.RunMigrations(cfg.Database.DSN(), sourceURL)
	}
	if err != nil {
		log.Error().Err(err).Msg("migration failed")
		closer.Close()
		os.Exit(1)
	}
}
