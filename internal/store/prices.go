package store

import (
	"context"
	"time"

	"arbitrium/internal/models"
)

// LatestPrice returns the most recent observation of item on site.
func (s *Store) LatestPrice(ctx context.Context, itemID, siteID uint) (*models.Price, error) {
	var p models.Price
	err := s.db.WithContext(ctx).
		Where("item_id = ? AND site_id = ?", itemID, siteID).
		Order("timestamp DESC").Order("id DESC").
		First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// AddPrice appends an observation. History rows are never updated.
func (s *Store) AddPrice(ctx context.Context, itemID, siteID uint, price float64, at time.Time) error {
	return s.db.WithContext(ctx).Create(&models.Price{
		ItemID:    itemID,
		SiteID:    siteID,
		Price:     price,
		Timestamp: at,
	}).Error
}

// LatestPrices returns, per item, the most recent observation across all
// sites. Items without observations are absent from the map.
func (s *Store) LatestPrices(ctx context.Context, itemIDs []uint) (map[uint]models.Price, error) {
	out := make(map[uint]models.Price, len(itemIDs))
	if len(itemIDs) == 0 {
		return out, nil
	}
	var rows []models.Price
	err := s.db.WithContext(ctx).
		Where("item_id IN ?", itemIDs).
		Order("timestamp DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, p := range rows {
		if _, seen := out[p.ItemID]; !seen {
			out[p.ItemID] = p
		}
	}
	return out, nil
}

// PriceHistory returns every observation for item, newest first.
func (s *Store) PriceHistory(ctx context.Context, itemID uint, limit int) ([]models.Price, error) {
	q := s.db.WithContext(ctx).Preload("Site").
		Where("item_id = ?", itemID).
		Order("timestamp DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.Price
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
