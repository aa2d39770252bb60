package steam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"arbitrium/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrInventoryUnavailable is returned when Steam refuses or fails to serve
// an inventory page (private profile, rate limit, malformed body).
var ErrInventoryUnavailable = errors.New("steam inventory unavailable")

type InventoryAsset struct {
	AppID      int    `json:"appid"`
	ContextID  string `json:"contextid"`
	AssetID    string `json:"assetid"`
	ClassID    string `json:"classid"`
	InstanceID string `json:"instanceid"`
	Amount     string `json:"amount"`
}

type InventoryDescription struct {
	AppID          int       `json:"appid"`
	ClassID        string    `json:"classid"`
	InstanceID     string    `json:"instanceid"`
	MarketHashName string    `json:"market_hash_name"`
	MarketName     string    `json:"market_name"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	IconURL        string    `json:"icon_url"`
	IconURLLarge   string    `json:"icon_url_large"`
	Tradable       flexBool  `json:"tradable"`
	Marketable     flexBool  `json:"marketable"`
	Tags           []ItemTag `json:"tags"`
}

type ItemTag struct {
	Category              string `json:"category"`
	InternalName          string `json:"internal_name"`
	LocalizedCategoryName string `json:"localized_category_name"`
	LocalizedTagName      string `json:"localized_tag_name"`
}

// IsTradable reports the description's tradable flag.
func (d InventoryDescription) IsTradable() bool { return bool(d.Tradable) }

// Icon returns the full CDN URL of the item icon, or "" when the
// description carries no icon token.
func (d InventoryDescription) Icon(imageBase string) string {
	token := d.IconURL
	if token == "" {
		token = d.IconURLLarge
	}
	if token == "" {
		return ""
	}
	return imageBase + token
}

// Exterior returns the wear tag (e.g. "Field-Tested") if present.
func (d InventoryDescription) Exterior() string {
	for _, t := range d.Tags {
		if t.Category == "Exterior" {
			return t.LocalizedTagName
		}
	}
	return ""
}

// InventorySnapshot is every asset and description of one inventory,
// concatenated across pages.
type InventorySnapshot struct {
	Assets       []InventoryAsset
	Descriptions []InventoryDescription
}

type inventoryPage struct {
	Assets       []InventoryAsset       `json:"assets"`
	Descriptions []InventoryDescription `json:"descriptions"`
	MoreItems    flexBool               `json:"more_items"`
	LastAssetID  string                 `json:"last_assetid"`
	Success      *flexBool              `json:"success"`
}

// InventoryClient pages through /inventory/{steamid}/{appid}/{contextid}.
type InventoryClient struct {
	client    *resty.Client
	baseURL   string
	appID     int
	contextID string
	pageSize  int
	log       *zap.Logger
}

func NewInventoryClient(cfg config.SteamConfig, log *zap.Logger) *InventoryClient {
	if log == nil {
		log = zap.NewNop()
	}
	pageSize := cfg.InventoryPageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &InventoryClient{
		client:    newRestyClient(20 * time.Second).SetHeader("User-Agent", "Mozilla/5.0"),
		baseURL:   cfg.InventoryURL,
		appID:     cfg.AppID,
		contextID: cfg.ContextID,
		pageSize:  pageSize,
		log:       log.Named("steam-inventory"),
	}
}

// FetchInventory follows the more_items/last_assetid cursor until Steam
// reports no more pages. Any failed page fails the whole fetch.
func (c *InventoryClient) FetchInventory(ctx context.Context, steamID string) (*InventorySnapshot, error) {
	endpoint := fmt.Sprintf("%s/%s/%d/%s", c.baseURL, url.PathEscape(steamID), c.appID, url.PathEscape(c.contextID))
	snap := &InventorySnapshot{}
	cursor := ""

	for page := 1; ; page++ {
		req := c.client.R().
			SetContext(ctx).
			SetQueryParam("l", "english").
			SetQueryParam("count", strconv.Itoa(c.pageSize))
		if cursor != "" {
			req.SetQueryParam("start_assetid", cursor)
		}

		resp, err := req.Get(endpoint)
		if err != nil {
			return nil, fmt.Errorf("fetch inventory %s page %d: %w", steamID, page, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("fetch inventory %s page %d: status %d: %w", steamID, page, resp.StatusCode(), ErrInventoryUnavailable)
		}
		body := bytes.TrimSpace(resp.Body())
		if len(body) == 0 || bytes.Equal(body, []byte("null")) {
			return nil, fmt.Errorf("fetch inventory %s page %d: empty body: %w", steamID, page, ErrInventoryUnavailable)
		}

		var data inventoryPage
		if err := json.Unmarshal(body, &data); err != nil {
			return nil, fmt.Errorf("decode inventory %s page %d: %v: %w", steamID, page, err, ErrInventoryUnavailable)
		}
		if data.Success != nil && !bool(*data.Success) {
			return nil, fmt.Errorf("fetch inventory %s page %d: success=0: %w", steamID, page, ErrInventoryUnavailable)
		}

		snap.Assets = append(snap.Assets, data.Assets...)
		snap.Descriptions = append(snap.Descriptions, data.Descriptions...)
		c.log.Debug("inventory page",
			zap.String("steam_id", steamID),
			zap.Int("page", page),
			zap.Int("assets", len(data.Assets)))

		if !bool(data.MoreItems) || data.LastAssetID == "" || data.LastAssetID == cursor {
			break
		}
		cursor = data.LastAssetID
	}
	return snap, nil
}
