package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"arbitrium/internal/config"
	"arbitrium/internal/database"
	"arbitrium/internal/export"
	"arbitrium/internal/store"

	"go.uber.org/zap"
)

var (
	account = flag.Uint("account", 0, "account (inventory) id to export")
	out     = flag.String("out", "", "output file (default holdings-<id>.xlsx)")
)

func main() {
	flag.Parse()
	if *account == 0 {
		log.Fatal("-account is required")
	}
	path := *out
	if path == "" {
		path = fmt.Sprintf("holdings-%d.xlsx", *account)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Initialize(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	st := store.New(db)
	ctx := context.Background()
	id := uint(*account)

	d, err := st.Dashboard(ctx, id)
	if err != nil {
		logger.Fatal("load dashboard", zap.Uint("inventory_id", id), zap.Error(err))
	}
	rows, _, err := st.HoldingRows(ctx, id, 1, d.Holdings+1)
	if err != nil {
		logger.Fatal("load holdings", zap.Uint("inventory_id", id), zap.Error(err))
	}

	f, err := os.Create(path)
	if err != nil {
		logger.Fatal("create output file", zap.Error(err))
	}
	if err := export.WriteHoldings(f, d, rows); err != nil {
		f.Close()
		logger.Fatal("write workbook", zap.Error(err))
	}
	if err := f.Close(); err != nil {
		logger.Fatal("close output file", zap.Error(err))
	}
	logger.Info("holdings exported", zap.String("path", path), zap.Int("rows", len(rows)))
}
