package store

import (
	"context"
	"sort"
	"time"

	"arbitrium/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

// HoldingRow is one display row of an account's holdings.
type HoldingRow struct {
	HoldingID   uint                `json:"holding_id"`
	ItemID      uint                `json:"item_id"`
	Name        string              `json:"name"`
	IconURL     string              `json:"icon_url"`
	Quantity    int                 `json:"quantity"`
	Tradable    bool                `json:"tradable"`
	WearName    string              `json:"wear_name,omitempty"`
	NetPrice    decimal.NullDecimal `json:"net_price"`
	Price       *float64            `json:"price"`
	PriceAt     *time.Time          `json:"price_at"`
	TargetPrice decimal.NullDecimal `json:"target_price"`
}

// Dashboard summarizes one account.
type Dashboard struct {
	Account       models.Inventory `json:"account"`
	GrossTotal    decimal.Decimal  `json:"gross_total"`
	NetTotal      decimal.Decimal  `json:"net_total"`
	MostExpensive *HoldingRow      `json:"most_expensive,omitempty"`
	LastUpdate    *time.Time       `json:"last_update"`
	Holdings      int              `json:"holdings"`
}

// GrossValuation sums quantity times the latest observed price of each
// holding's item across all sites. Holdings without any observation add zero.
func (s *Store) GrossValuation(ctx context.Context, inventoryID uint) (decimal.Decimal, error) {
	rows, err := s.holdingRows(ctx, inventoryID)
	if err != nil {
		return decimal.Zero, err
	}
	return grossOf(rows), nil
}

// NetValuation sums quantity times the stored fee-adjusted price. Holdings
// without a net price add zero.
func (s *Store) NetValuation(ctx context.Context, inventoryID uint) (decimal.Decimal, error) {
	holdings, err := s.Holdings(ctx, inventoryID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, h := range holdings {
		if h.PriceUSD.Valid {
			total = total.Add(h.PriceUSD.Decimal.Mul(decimal.NewFromInt(int64(h.Quantity))))
		}
	}
	return total, nil
}

// Dashboard builds the account summary shown on the main page.
func (s *Store) Dashboard(ctx context.Context, inventoryID uint) (*Dashboard, error) {
	acct, err := s.GetAccount(ctx, inventoryID)
	if err != nil {
		return nil, err
	}
	rows, err := s.holdingRows(ctx, inventoryID)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{Account: *acct, GrossTotal: grossOf(rows), NetTotal: decimal.Zero, Holdings: len(rows)}
	for i := range rows {
		r := &rows[i]
		if r.NetPrice.Valid {
			d.NetTotal = d.NetTotal.Add(r.NetPrice.Decimal.Mul(decimal.NewFromInt(int64(r.Quantity))))
		}
		if r.Price != nil && (d.MostExpensive == nil || *r.Price > *d.MostExpensive.Price) {
			d.MostExpensive = r
		}
		if r.PriceAt != nil && (d.LastUpdate == nil || r.PriceAt.After(*d.LastUpdate)) {
			d.LastUpdate = r.PriceAt
		}
	}
	return d, nil
}

// HoldingRows returns one page of rows ordered by item name, plus the total
// row count. page is 1-based.
func (s *Store) HoldingRows(ctx context.Context, inventoryID uint, page, pageSize int) ([]HoldingRow, int, error) {
	if _, err := s.GetAccount(ctx, inventoryID); err != nil {
		return nil, 0, err
	}
	rows, err := s.holdingRows(ctx, inventoryID)
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

	if pageSize <= 0 {
		pageSize = 24
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return []HoldingRow{}, len(rows), nil
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end], len(rows), nil
}

// SetTargetPrice records the desired sale price of item on the account,
// replacing any previous target.
func (s *Store) SetTargetPrice(ctx context.Context, inventoryID, itemID uint, price decimal.Decimal) (*models.TargetPrice, error) {
	if price.IsNegative() {
		return nil, ErrInvalidTargetPrice
	}
	if _, err := s.GetAccount(ctx, inventoryID); err != nil {
		return nil, err
	}
	if _, err := s.ItemByID(ctx, itemID); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	tp := models.TargetPrice{ItemID: itemID, InventoryID: inventoryID, Price: price.Round(2)}
	err := db.Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}, {Name: "inventory_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"target_price", "updated_at"}),
	}).Create(&tp).Error
	if err != nil {
		return nil, err
	}
	var out models.TargetPrice
	if err := db.Where("item_id = ? AND inventory_id = ?", itemID, inventoryID).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) holdingRows(ctx context.Context, inventoryID uint) ([]HoldingRow, error) {
	holdings, err := s.Holdings(ctx, inventoryID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(holdings))
	for _, h := range holdings {
		ids = append(ids, h.ItemID)
	}
	latest, err := s.LatestPrices(ctx, ids)
	if err != nil {
		return nil, err
	}

	var targets []models.TargetPrice
	if err := s.db.WithContext(ctx).Where("inventory_id = ?", inventoryID).Find(&targets).Error; err != nil {
		return nil, err
	}
	targetByItem := make(map[uint]decimal.Decimal, len(targets))
	for _, t := range targets {
		targetByItem[t.ItemID] = t.Price
	}

	rows := make([]HoldingRow, 0, len(holdings))
	for _, h := range holdings {
		r := HoldingRow{
			HoldingID: h.ID,
			ItemID:    h.ItemID,
			Name:      h.Item.MarketHashName,
			IconURL:   h.Item.IconURL,
			Quantity:  h.Quantity,
			Tradable:  h.Tradable,
			WearName:  h.WearName,
			NetPrice:  h.PriceUSD,
		}
		if p, ok := latest[h.ItemID]; ok {
			price, at := p.Price, p.Timestamp
			r.Price, r.PriceAt = &price, &at
		}
		if t, ok := targetByItem[h.ItemID]; ok {
			r.TargetPrice = decimal.NullDecimal{Decimal: t, Valid: true}
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func grossOf(rows []HoldingRow) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		if r.Price != nil {
			total = total.Add(decimal.NewFromFloat(*r.Price).Mul(decimal.NewFromInt(int64(r.Quantity))))
		}
	}
	return total
}
