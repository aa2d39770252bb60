package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"arbitrium/internal/config"
	"arbitrium/internal/database"
	"arbitrium/internal/services/csmoney"
	"arbitrium/internal/store"

	"go.uber.org/zap"
)

var (
	limit    = flag.Int("limit", 0, "page size (defaults to csmoney.limit)")
	maxPages = flag.Int("max-pages", 0, "number of offsets to crawl (defaults to csmoney.max_pages)")
	noCreate = flag.Bool("no-create", false, "do not create items that are not in the database yet")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *limit > 0 {
		cfg.CSMoney.Limit = *limit
	}
	if *maxPages > 0 {
		cfg.CSMoney.MaxPages = *maxPages
	}
	if *noCreate {
		cfg.CSMoney.CreateMissingItems = false
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Initialize(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	agg := csmoney.NewAggregator(csmoney.NewClient(cfg.CSMoney, logger), store.New(db), cfg.CSMoney, csmoney.WithLogger(logger))
	res, err := agg.Run(ctx)
	if err != nil {
		logger.Fatal("csmoney pull failed", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(res)
}
