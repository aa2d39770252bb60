// Package inventory reconciles a freshly fetched Steam inventory into the
// per-account holdings table.
package inventory

import (
	"context"
	"fmt"
	"time"

	"arbitrium/internal/config"
	"arbitrium/internal/models"
	"arbitrium/internal/services/steam"
	"arbitrium/internal/store"

	"go.uber.org/zap"
)

// Fetcher returns the full remote inventory of a Steam account.
type Fetcher interface {
	FetchInventory(ctx context.Context, steamID string) (*steam.InventorySnapshot, error)
}

// Result counts what one reconciliation did.
type Result struct {
	TotalAssets   int   `json:"total_assets"`
	DistinctItems int   `json:"distinct_items"`
	Created       int   `json:"created"`
	Updated       int   `json:"updated"`
	Removed       int64 `json:"removed"`
}

type Reconciler struct {
	store     *store.Store
	fetcher   Fetcher
	appID     int
	contextID string
	imageBase string
	now       func() time.Time
	log       *zap.Logger
}

func NewReconciler(st *store.Store, fetcher Fetcher, cfg config.SteamConfig, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		store:     st,
		fetcher:   fetcher,
		appID:     cfg.AppID,
		contextID: cfg.ContextID,
		imageBase: cfg.ImageBase,
		now:       time.Now,
		log:       log.Named("reconcile"),
	}
}

// Reconcile fetches the account's inventory and applies it to the stored
// holdings in one transaction: new items are created, changed quantities or
// tradable flags are updated, and holdings no longer present are deleted.
// A fetch failure returns an error before anything is written.
func (r *Reconciler) Reconcile(ctx context.Context, inventoryID uint) (*Result, error) {
	acct, err := r.store.GetAccount(ctx, inventoryID)
	if err != nil {
		return nil, fmt.Errorf("load account %d: %w", inventoryID, err)
	}

	snap, err := r.fetcher.FetchInventory(ctx, acct.SteamID)
	if err != nil {
		return nil, fmt.Errorf("reconcile account %d: %w", inventoryID, err)
	}

	counts, order := r.countAssets(snap.Assets)
	descs := firstDescriptions(snap.Descriptions)
	res := &Result{DistinctItems: len(counts)}
	for _, n := range counts {
		res.TotalAssets += n
	}

	err = r.store.Transaction(ctx, func(tx *store.Store) error {
		existing, err := tx.LockHoldings(ctx, inventoryID)
		if err != nil {
			return fmt.Errorf("lock holdings: %w", err)
		}

		touched := make([]uint, 0, len(order))
		for _, classID := range order {
			qty := counts[classID]
			desc := descs[classID]

			item, err := r.resolveItem(ctx, tx, classID, desc)
			if err != nil {
				return err
			}
			tradable := desc.IsTradable()

			if h, ok := existing[item.ID]; ok {
				if h.Quantity != qty || h.Tradable != tradable {
					h.Quantity, h.Tradable = qty, tradable
					if err := tx.UpdateHoldingCounts(ctx, h); err != nil {
						return fmt.Errorf("update holding %d: %w", h.ID, err)
					}
					res.Updated++
				}
			} else {
				h := &models.InventoryItem{
					InventoryID: inventoryID,
					ItemID:      item.ID,
					Tradable:    tradable,
					Quantity:    qty,
					WearName:    desc.Exterior(),
				}
				if err := tx.CreateHolding(ctx, h); err != nil {
					return fmt.Errorf("create holding for %s: %w", classID, err)
				}
				res.Created++
			}
			touched = append(touched, item.ID)
		}

		removed, err := tx.DeleteHoldingsExcept(ctx, inventoryID, touched)
		if err != nil {
			return fmt.Errorf("remove stale holdings: %w", err)
		}
		res.Removed = removed

		return tx.TouchAccount(ctx, inventoryID, r.now())
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile account %d: %w", inventoryID, err)
	}

	r.log.Info("inventory reconciled",
		zap.Uint("inventory_id", inventoryID),
		zap.Int("assets", res.TotalAssets),
		zap.Int("distinct", res.DistinctItems),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int64("removed", res.Removed))
	return res, nil
}

// resolveItem returns the item for classID, writing it only when it is new
// or its descriptive fields changed.
func (r *Reconciler) resolveItem(ctx context.Context, tx *store.Store, classID string, desc steam.InventoryDescription) (*models.Item, error) {
	fields := store.ItemFields{
		ClassID:        classID,
		MarketHashName: desc.MarketHashName,
		Category:       desc.Type,
		IconURL:        desc.Icon(r.imageBase),
	}
	if fields.MarketHashName == "" {
		fields.MarketHashName = classID
	}

	item, err := tx.ItemByClassID(ctx, classID)
	if err == nil && item.MarketHashName == fields.MarketHashName &&
		item.Category == fields.Category && item.IconURL == fields.IconURL {
		return item, nil
	}
	item, err = tx.UpsertItem(ctx, fields)
	if err != nil {
		return nil, fmt.Errorf("upsert item %s: %w", classID, err)
	}
	return item, nil
}

// countAssets counts assets per classid for the configured app/context and
// returns the classids in first-seen order.
func (r *Reconciler) countAssets(assets []steam.InventoryAsset) (map[string]int, []string) {
	counts := make(map[string]int)
	var order []string
	for _, a := range assets {
		if a.AppID != r.appID || a.ContextID != r.contextID || a.ClassID == "" {
			continue
		}
		if counts[a.ClassID] == 0 {
			order = append(order, a.ClassID)
		}
		counts[a.ClassID]++
	}
	return counts, order
}

// firstDescriptions keeps the first description seen for each classid.
func firstDescriptions(descs []steam.InventoryDescription) map[string]steam.InventoryDescription {
	out := make(map[string]steam.InventoryDescription, len(descs))
	for _, d := range descs {
		if d.ClassID == "" {
			continue
		}
		if _, ok := out[d.ClassID]; !ok {
			out[d.ClassID] = d
		}
	}
	return out
}
