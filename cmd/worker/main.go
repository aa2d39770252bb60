package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"arbitrium/internal/config"
	"arbitrium/internal/database"
	"arbitrium/internal/dispatch"
	"arbitrium/internal/inventory"
	"arbitrium/internal/refresh"
	"arbitrium/internal/services/csmoney"
	"arbitrium/internal/services/steam"
	"arbitrium/internal/store"

	"go.uber.org/zap"
)

var (
	refreshEvery = flag.Duration("refresh-every", 0, "schedule refresh_all at this interval (0 disables)")
	csmoneyEvery = flag.Duration("csmoney-every", 0, "schedule csmoney_pull at this interval (0 disables)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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
	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	st := store.New(db)
	queue := dispatch.NewQueue(rdb, cfg.Redis.Queue)
	reconciler := inventory.NewReconciler(st, steam.NewInventoryClient(cfg.Steam, logger), cfg.Steam, logger)
	refresher := refresh.NewService(st, steam.NewPriceFetcher(cfg.Steam, steam.WithLogger(logger)), cfg.Steam, logger)
	aggregator := csmoney.NewAggregator(csmoney.NewClient(cfg.CSMoney, logger), st, cfg.CSMoney, csmoney.WithLogger(logger))

	w := dispatch.NewWorker(queue, logger)
	w.Handle(dispatch.KindReconcile, func(ctx context.Context, job dispatch.Job) error {
		_, err := reconciler.Reconcile(ctx, job.InventoryID)
		return err
	})
	w.Handle(dispatch.KindRefreshPrices, func(ctx context.Context, job dispatch.Job) error {
		_, err := refresher.RefreshAccount(ctx, job.InventoryID)
		return err
	})
	w.Handle(dispatch.KindRefreshAll, func(ctx context.Context, job dispatch.Job) error {
		_, err := refresher.RefreshAll(ctx, queue)
		return err
	})
	w.Handle(dispatch.KindCSMoneyPull, func(ctx context.Context, job dispatch.Job) error {
		_, err := aggregator.Run(ctx)
		return err
	})

	schedule(ctx, queue, dispatch.KindRefreshAll, *refreshEvery, logger)
	schedule(ctx, queue, dispatch.KindCSMoneyPull, *csmoneyEvery, logger)

	if err := w.Run(ctx); err != nil {
		logger.Error("worker exited", zap.Error(err))
	}
}

// schedule enqueues a job of kind every interval until ctx is done.
func schedule(ctx context.Context, q *dispatch.Queue, kind dispatch.Kind, every time.Duration, logger *zap.Logger) {
	if every <= 0 {
		return
	}
	logger.Info("periodic job scheduled", zap.String("kind", string(kind)), zap.Duration("every", every))
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := q.Enqueue(ctx, dispatch.NewJob(kind, 0)); err != nil {
					logger.Warn("could not schedule job", zap.String("kind", string(kind)), zap.Error(err))
				}
			}
		}
	}()
}
