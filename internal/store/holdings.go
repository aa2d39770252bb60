package store

import (
	"context"

	"arbitrium/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// LockHoldings loads every holding of the account keyed by item id and
// takes a row lock on them (SELECT ... FOR UPDATE) until the enclosing
// transaction ends. Call it only on a Store returned by Transaction.
func (s *Store) LockHoldings(ctx context.Context, inventoryID uint) (map[uint]*models.InventoryItem, error) {
	var rows []models.InventoryItem
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("inventory_id = ?", inventoryID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]*models.InventoryItem, len(rows))
	for i := range rows {
		out[rows[i].ItemID] = &rows[i]
	}
	return out, nil
}

// Holdings returns the account's holdings with their items loaded.
func (s *Store) Holdings(ctx context.Context, inventoryID uint) ([]models.InventoryItem, error) {
	var rows []models.InventoryItem
	err := s.db.WithContext(ctx).Preload("Item").
		Where("inventory_id = ?", inventoryID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) CreateHolding(ctx context.Context, h *models.InventoryItem) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(h).Error
}

// UpdateHoldingCounts writes quantity and tradable for one holding.
func (s *Store) UpdateHoldingCounts(ctx context.Context, h *models.InventoryItem) error {
	return s.db.WithContext(ctx).Model(&models.InventoryItem{}).Where("id = ?", h.ID).
		Updates(map[string]interface{}{"quantity": h.Quantity, "tradable": h.Tradable}).Error
}

// SetHoldingNetPrice stores the fee-adjusted unit price of a holding.
func (s *Store) SetHoldingNetPrice(ctx context.Context, holdingID uint, net decimal.Decimal) error {
	return s.db.WithContext(ctx).Model(&models.InventoryItem{}).Where("id = ?", holdingID).
		Update("price_usd", decimal.NullDecimal{Decimal: net, Valid: true}).Error
}

// DeleteHoldingsExcept removes every holding of the account whose item is
// not in keep and returns how many rows went away.
func (s *Store) DeleteHoldingsExcept(ctx context.Context, inventoryID uint, keep []uint) (int64, error) {
	q := s.db.WithContext(ctx).Where("inventory_id = ?", inventoryID)
	if len(keep) > 0 {
		q = q.Where("item_id NOT IN ?", keep)
	}
	res := q.Delete(&models.InventoryItem{})
	return res.RowsAffected, res.Error
}
