package store

import (
	"context"

	"arbitrium/internal/models"

	"gorm.io/gorm/clause"
)

// ItemFields are the descriptive fields of an item identity.
type ItemFields struct {
	ClassID        string
	MarketHashName string
	Category       string
	IconURL        string
}

func (s *Store) ItemByClassID(ctx context.Context, classID string) (*models.Item, error) {
	var item models.Item
	if err := s.db.WithContext(ctx).Where("class_id = ?", classID).First(&item).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *Store) ItemByID(ctx context.Context, id uint) (*models.Item, error) {
	var item models.Item
	if err := s.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// UpsertItem inserts the item or overwrites its descriptive fields when the
// classid already exists.
func (s *Store) UpsertItem(ctx context.Context, f ItemFields) (*models.Item, error) {
	db := s.db.WithContext(ctx)
	item := models.Item{
		ClassID:        f.ClassID,
		MarketHashName: f.MarketHashName,
		Category:       f.Category,
		IconURL:        f.IconURL,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "class_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"market_hash_name", "category", "icon_url", "updated_at"}),
	}).Create(&item).Error
	if err != nil {
		return nil, err
	}
	return s.ItemByClassID(ctx, f.ClassID)
}

// CreateItemIfAbsent inserts a new item and reports whether a row was
// created. When either unique key (classid or market hash name) is already
// taken nothing is written; the existing row for the classid is returned,
// or ErrNotFound if the conflict was on the name alone.
func (s *Store) CreateItemIfAbsent(ctx context.Context, f ItemFields) (*models.Item, bool, error) {
	item := models.Item{
		ClassID:        f.ClassID,
		MarketHashName: f.MarketHashName,
		Category:       f.Category,
		IconURL:        f.IconURL,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&item)
	if res.Error != nil {
		return nil, false, res.Error
	}
	got, err := s.ItemByClassID(ctx, f.ClassID)
	if err != nil {
		return nil, false, err
	}
	return got, res.RowsAffected > 0, nil
}

// BackfillItem fills empty descriptive fields of item from f without
// overwriting anything already set. It reports whether a write happened.
func (s *Store) BackfillItem(ctx context.Context, item *models.Item, f ItemFields) (bool, error) {
	updates := map[string]interface{}{}
	if item.MarketHashName == "" && f.MarketHashName != "" {
		updates["market_hash_name"] = f.MarketHashName
		item.MarketHashName = f.MarketHashName
	}
	if item.Category == "" && f.Category != "" {
		updates["category"] = f.Category
		item.Category = f.Category
	}
	if item.IconURL == "" && f.IconURL != "" {
		updates["icon_url"] = f.IconURL
		item.IconURL = f.IconURL
	}
	if len(updates) == 0 {
		return false, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.Item{}).Where("id = ?", item.ID).Updates(updates).Error; err != nil {
		return false, err
	}
	return true, nil
}
