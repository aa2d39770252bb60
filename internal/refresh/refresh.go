// Package refresh re-prices account holdings from Steam Market quotes.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arbitrium/internal/config"
	"arbitrium/internal/dispatch"
	"arbitrium/internal/models"
	"arbitrium/internal/pricing"
	"arbitrium/internal/services/steam"
	"arbitrium/internal/store"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// QuoteFetcher is satisfied by *steam.PriceFetcher.
type QuoteFetcher interface {
	Quote(ctx context.Context, marketHashName string, currency int) (steam.MarketQuote, bool)
}

// Enqueuer is satisfied by *dispatch.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job dispatch.Job) (dispatch.Job, error)
}

type Summary struct {
	InventoryID uint `json:"inventory_id"`
	Checked     int  `json:"checked"`
	Updated     int  `json:"updated"`
}

type Service struct {
	store       *store.Store
	fetcher     QuoteFetcher
	currency    int
	concurrency int
	limiter     *rate.Limiter
	now         func() time.Time
	log         *zap.Logger
}

func NewService(st *store.Store, fetcher QuoteFetcher, cfg config.SteamConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	currency := cfg.Currency
	if currency == 0 {
		currency = 1
	}
	return &Service{
		store:       st,
		fetcher:     fetcher,
		currency:    currency,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, 1),
		now:         time.Now,
		log:         log.Named("refresh"),
	}
}

// RefreshAccount quotes every distinct item the account holds, records the
// gross price and stores the net-of-fee price on each holding. Items with
// no usable quote are left untouched.
func (s *Service) RefreshAccount(ctx context.Context, inventoryID uint) (*Summary, error) {
	if _, err := s.store.GetAccount(ctx, inventoryID); err != nil {
		return nil, fmt.Errorf("load account %d: %w", inventoryID, err)
	}
	holdings, err := s.store.Holdings(ctx, inventoryID)
	if err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}

	quotes, err := s.quoteAll(ctx, holdings)
	if err != nil {
		return nil, err
	}

	site, err := s.store.EnsureSite(ctx, store.SiteSteamMarket)
	if err != nil {
		return nil, fmt.Errorf("ensure site: %w", err)
	}

	sum := &Summary{InventoryID: inventoryID}
	for _, h := range holdings {
		sum.Checked++
		q, ok := quotes[h.Item.MarketHashName]
		if !ok {
			continue
		}
		raw := q.Lowest
		if raw == "" {
			raw = q.Median
		}
		gross, ok := pricing.ParsePositive(raw)
		if !ok {
			continue
		}
		if err := s.store.AddPrice(ctx, h.ItemID, site.ID, gross.InexactFloat64(), s.now()); err != nil {
			return nil, fmt.Errorf("record price for item %d: %w", h.ItemID, err)
		}
		if err := s.store.SetHoldingNetPrice(ctx, h.ID, pricing.NetOfFee(gross, pricing.SteamFee)); err != nil {
			return nil, fmt.Errorf("set net price on holding %d: %w", h.ID, err)
		}
		sum.Updated++
	}

	s.log.Info("account prices refreshed",
		zap.Uint("inventory_id", inventoryID),
		zap.Int("checked", sum.Checked),
		zap.Int("updated", sum.Updated))
	return sum, nil
}

// quoteAll fetches each distinct name once, with bounded concurrency and a
// shared request rate. Names without a successful quote are absent.
func (s *Service) quoteAll(ctx context.Context, holdings []models.InventoryItem) (map[string]steam.MarketQuote, error) {
	var (
		mu     sync.Mutex
		quotes = make(map[string]steam.MarketQuote)
		seen   = make(map[string]bool)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, h := range holdings {
		name := h.Item.MarketHashName
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			q, ok := s.fetcher.Quote(gctx, name, s.currency)
			if !ok {
				s.log.Debug("no quote", zap.String("item", name))
				return nil
			}
			mu.Lock()
			quotes[name] = q
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("quote holdings: %w", err)
	}
	return quotes, nil
}

// RefreshAll schedules one refresh job per tracked account and returns how
// many were queued.
func (s *Service) RefreshAll(ctx context.Context, q Enqueuer) (int, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}
	for i, acct := range accounts {
		if _, err := q.Enqueue(ctx, dispatch.NewJob(dispatch.KindRefreshPrices, acct.ID)); err != nil {
			return i, err
		}
	}
	s.log.Info("refresh scheduled", zap.Int("accounts", len(accounts)))
	return len(accounts), nil
}
