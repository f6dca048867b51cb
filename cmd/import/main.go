package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/config"
	"github.com/ArowuTest/telegram-marketing-backend/internal/importer"
	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	mongorepo "github.com/ArowuTest/telegram-marketing-backend/internal/repositories/mongodb"
	"github.com/ArowuTest/telegram-marketing-backend/internal/services"
	"github.com/ArowuTest/telegram-marketing-backend/pkg/mongodb"
)

// Imports subscribers from a CSV export: import <file.csv>
func main() {
	cfg, err := config.Load(".")
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	logger := observability.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		logger.Fatal(ctx, "CSV file path is required as a command line argument", errors.New("usage: import <file.csv>"))
	}

	file, err := os.Open(os.Args[1])
	if err != nil {
		logger.Fatal(ctx, "Failed to open CSV file", err)
	}
	defer file.Close()

	client, err := mongodb.NewClient(ctx, cfg.MongoDB.URI, cfg.MongoDB.Database, 10*time.Second)
	if err != nil {
		logger.Fatal(ctx, "Failed to connect to MongoDB", err)
	}
	defer func() { _ = client.Disconnect(context.Background()) }()

	db := client.Database()
	if err := mongorepo.EnsureIndexes(ctx, db); err != nil {
		logger.Fatal(ctx, "Failed to create indexes", err)
	}

	// Imported users get no welcome campaign, so no campaign service is needed
	subscribers := services.NewSubscriberService(
		mongorepo.NewUserRepository(db),
		mongorepo.NewReferralRepository(db),
		mongorepo.NewEventRepository(db),
		nil,
		logger,
	)

	result, err := importer.NewCSVImporter(subscribers, logger).ImportSubscribers(ctx, file)
	if err != nil {
		logger.Fatal(ctx, "Failed to import subscribers", err)
	}
	for _, msg := range result.Errors {
		logger.Warn(ctx, msg)
	}
	fmt.Printf("rows=%d created=%d updated=%d errors=%d\n",
		result.TotalRows, result.Created, result.Updated, len(result.Errors))
}
