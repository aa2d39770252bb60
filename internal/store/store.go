// Package store is the persistence layer: item identities, append-only
// price history, account holdings, target prices and the valuation
// queries built on top of them.
package store

import (
	"context"
	"errors"

	"arbitrium/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidTargetPrice  = errors.New("target price must be a non-negative number")
	ErrInvalidProfileLink  = errors.New("could not extract a steam id from the profile link")
	ErrInvalidAccountInput = errors.New("account name cannot be empty")
)

// Marketplaces prices are recorded for.
const (
	SiteSteamMarket = "Steam Market"
	SiteCSMoney     = "CS.MONEY"
)

var siteURLs = map[string]string{
	SiteSteamMarket: "https://steamcommunity.com/market/",
	SiteCSMoney:     "https://cs.money/market/",
}

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that need raw access.
func (s *Store) DB() *gorm.DB { return s.db }

// Transaction runs fn against a Store bound to a single transaction.
// Returning an error from fn rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// EnsureSite returns the site named name, creating it on first use. The
// unique index on sites.name makes concurrent first uses converge.
func (s *Store) EnsureSite(ctx context.Context, name string) (*models.Site, error) {
	db := s.db.WithContext(ctx)
	site := models.Site{Name: name, URL: siteURLs[name]}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&site).Error; err != nil {
		return nil, err
	}
	var out models.Site
	if err := db.Where("name = ?", name).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
