package main

import (
	"context"
	"fmt"
	"os"

	"github.com/safar/go-fulfillment/internal/config"
	"github.com/safar/go-fulfillment/internal/database"
	"github.com/safar/go-fulfillment/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: go run scripts/run_migrations.go [up|down]")
		os.Exit(2)
	}
	direction := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Level:       cfg.Service.LogLevel,
		ServiceName: "migrations",
		Environment: cfg.Service.Environment,
	})

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		logger.Error("connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	applied, err := database.Migrate(ctx, db, "migrations", direction)
	if err != nil {
		logger.Error("run migrations", "direction", direction, "error", err)
		os.Exit(1)
	}

	for _, name := range applied {
		logger.Info("migration applied", "file", name, "direction", direction)
	}
	logger.Info("migrations complete", "count", len(applied), "direction", direction)
}
