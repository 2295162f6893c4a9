// migrate applies the embedded SQL migrations: go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"os"

	"go.uber.org/zap"

	"storefront/backend/internal/config"
	"storefront/backend/internal/db/migrate"
	"storefront/backend/internal/platform/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	steps := flag.Int("steps", 0, "Number of migrations to apply; 0 applies all")
	flag.Parse()

	logger, err := logging.New(os.Getenv("APP_ENV"))
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		logger.Fatal("migrate: invalid direction", zap.Error(err))
	}
	if err := migrate.Run(cfg.DatabaseURL, dir, *steps); err != nil {
		logger.Fatal("migrate failed", zap.String("direction", *direction), zap.Error(err))
	}
	version, dirty, err := migrate.Version(cfg.DatabaseURL)
	if err != nil {
		logger.Warn("migrate: could not read schema version", zap.Error(err))
		return
	}
	logger.Info("migrations applied", zap.String("direction", *direction), zap.Uint("version", version), zap.Bool("dirty", dirty))
}
