package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a canonical CS item keyed by its Steam classid.
type Item struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	ClassID        string    `json:"classid" gorm:"type:varchar(50);uniqueIndex;not null"`
	MarketHashName string    `json:"market_hash_name" gorm:"type:varchar(255);uniqueIndex;not null"`
	Category       string    `json:"category" gorm:"type:varchar(100)"`
	IconURL        string    `json:"icon_url" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Site is an external marketplace that prices are observed on.
type Site struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	URL  string `json:"url"`
}

// Price is an append-only price observation. Rows are never updated.
type Price struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	ItemID    uint      `json:"item_id" gorm:"not null;index:idx_price_item_site_ts,priority:1"`
	Item      Item      `json:"-" gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE"`
	SiteID    uint      `json:"site_id" gorm:"not null;index:idx_price_item_site_ts,priority:2"`
	Site      Site      `json:"-" gorm:"foreignKey:SiteID;constraint:OnDelete:CASCADE"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp" gorm:"not null;index:idx_price_item_site_ts,priority:3"`
}

// Inventory is a tracked Steam account.
type Inventory struct {
	ID        uint            `json:"id" gorm:"primaryKey"`
	Name      string          `json:"name" gorm:"type:varchar(100);not null"`
	SteamID   string          `json:"steam_id" gorm:"type:varchar(50);not null;index"`
	Items     []InventoryItem `json:"items,omitempty" gorm:"foreignKey:InventoryID"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// InventoryItem is the stacked quantity of one item held by one account.
type InventoryItem struct {
	ID          uint                `json:"id" gorm:"primaryKey"`
	InventoryID uint                `json:"inventory_id" gorm:"not null;uniqueIndex:idx_inventory_item,priority:1"`
	Inventory   Inventory           `json:"-" gorm:"foreignKey:InventoryID;constraint:OnDelete:CASCADE"`
	ItemID      uint                `json:"item_id" gorm:"not null;uniqueIndex:idx_inventory_item,priority:2"`
	Item        Item                `json:"item" gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE"`
	AssetID     string              `json:"asset_id" gorm:"type:varchar(50)"`
	Tradable    bool                `json:"tradable" gorm:"not null;default:false"`
	PriceUSD    decimal.NullDecimal `json:"price_usd" gorm:"type:decimal(12,2)"`
	FloatValue  *float64            `json:"float_value"`
	WearName    string              `json:"wear_name" gorm:"type:varchar(50)"`
	Quantity    int                 `json:"quantity" gorm:"not null;default:1"`
}

// TargetPrice is the resale price a user wants for an item on one account.
type TargetPrice struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	ItemID      uint            `json:"item_id" gorm:"not null;uniqueIndex:idx_target_item_inventory,priority:1"`
	Item        Item            `json:"-" gorm:"foreignKey:ItemID;constraint:OnDelete:CASCADE"`
	InventoryID uint            `json:"inventory_id" gorm:"not null;uniqueIndex:idx_target_item_inventory,priority:2"`
	Inventory   Inventory       `json:"-" gorm:"foreignKey:InventoryID;constraint:OnDelete:CASCADE"`
	Price       decimal.Decimal `json:"target_price" gorm:"column:target_price;type:decimal(12,2);not null"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{
		&Item{},
		&Site{},
		&Price{},
		&Inventory{},
		&InventoryItem{},
		&TargetPrice{},
	}
}
