package store

import (
	"context"
	"regexp"
	"strings"
	"time"

	"arbitrium/internal/models"
)

var (
	profileLinkRe = regexp.MustCompile(`/profiles/(\d+)/`)
	bareSteamIDRe = regexp.MustCompile(`^\d{17}$`)
)

// ExtractSteamID pulls the numeric steam id out of a profile or inventory
// link such as https://steamcommunity.com/profiles/7656.../inventory/.
// A bare 17-digit id is accepted as is.
func ExtractSteamID(link string) (string, error) {
	link = strings.TrimSpace(link)
	if bareSteamIDRe.MatchString(link) {
		return link, nil
	}
	if !strings.HasSuffix(link, "/") {
		link += "/"
	}
	m := profileLinkRe.FindStringSubmatch(link)
	if m == nil {
		return "", ErrInvalidProfileLink
	}
	return m[1], nil
}

// CreateAccount registers a tracked account from a display name and a
// profile link.
func (s *Store) CreateAccount(ctx context.Context, name, profileLink string) (*models.Inventory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidAccountInput
	}
	steamID, err := ExtractSteamID(profileLink)
	if err != nil {
		return nil, err
	}
	inv := models.Inventory{Name: name, SteamID: steamID}
	if err := s.db.WithContext(ctx).Create(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Store) GetAccount(ctx context.Context, id uint) (*models.Inventory, error) {
	var inv models.Inventory
	if err := s.db.WithContext(ctx).First(&inv, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &inv, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]models.Inventory, error) {
	var out []models.Inventory
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// TouchAccount stamps the account's updated_at.
func (s *Store) TouchAccount(ctx context.Context, id uint, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Inventory{}).Where("id = ?", id).
		UpdateColumn("updated_at", at).Error
}
