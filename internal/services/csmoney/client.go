// Package csmoney crawls the CS.MONEY sell-order feed and records the
// cheapest listing seen per item.
package csmoney

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"arbitrium/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// StatusTransportError is reported by FetchPage when no HTTP status was
// obtained or a 200 body could not be decoded.
const StatusTransportError = -1

// Client reads one page of sell orders at a time.
type Client struct {
	client  *resty.Client
	baseURL string
	log     *zap.Logger
}

func NewClient(cfg config.CSMoneyConfig, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	client := resty.New()
	client.SetTimeout(60 * time.Second)
	client.SetHeaders(map[string]string{
		"User-Agent": "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
		"Accept":     "application/json",
	})
	return &Client{
		client:  client,
		baseURL: cfg.BaseURL,
		log:     log.Named("csmoney-client"),
	}
}

// FetchPage returns the HTTP status and the raw listing objects at offset.
// It never returns an error: transport and decode failures are reported as
// StatusTransportError with no items.
func (c *Client) FetchPage(ctx context.Context, offset, limit int) (int, []map[string]interface{}) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"limit":  strconv.Itoa(limit),
			"offset": strconv.Itoa(offset),
		}).
		Get(c.baseURL)
	if err != nil {
		c.log.Warn("page request failed", zap.Int("offset", offset), zap.Error(err))
		return StatusTransportError, nil
	}
	if resp.StatusCode() != http.StatusOK {
		return resp.StatusCode(), nil
	}

	items, err := decodeItems(resp.Body())
	if err != nil {
		c.log.Warn("page body is not json", zap.Int("offset", offset), zap.Error(err))
		return StatusTransportError, nil
	}
	return http.StatusOK, items
}

// decodeItems accepts {"items": [...]} or a bare array. Anything else
// decodes to no items.
func decodeItems(body []byte) ([]map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}

	var list []interface{}
	switch v := doc.(type) {
	case map[string]interface{}:
		list, _ = v["items"].([]interface{})
	case []interface{}:
		list = v
	}

	items := make([]map[string]interface{}, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]interface{}); ok {
			items = append(items, m)
		}
	}
	return items, nil
}

// Listing is the subset of a sell order the aggregation needs.
type Listing struct {
	ClassID  string
	Name     string
	Category string
	IconURL  string
	Price    float64
}

// ExtractListing pulls a Listing out of a raw sell order, walking each
// field's fallback chain. ok is false when the classid or a positive price
// is missing.
func ExtractListing(raw map[string]interface{}) (l Listing, ok bool) {
	classID, found := lookup(raw, "asset.names.identifier")
	if !found || classID == nil {
		return Listing{}, false
	}
	l.ClassID = stringify(classID)
	if l.ClassID == "" {
		return Listing{}, false
	}

	l.Name = stringify(firstTruthy(raw, "asset.names.full", "marketHashName", "name"))
	l.Category = stringify(firstTruthy(raw, "asset.rarity", "asset.quality", "rarity", "quality"))
	l.IconURL = stringify(firstTruthy(raw, "asset.images.steam", "asset.images.screenshot", "iconUrl"))

	price, ok := toFloat(firstTruthy(raw, "pricing.computed", "pricing.default", "pricing.basePrice"))
	if !ok || price <= 0 {
		return Listing{}, false
	}
	l.Price = price
	return l, true
}

func lookup(m map[string]interface{}, path string) (interface{}, bool) {
	var cur interface{} = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// firstTruthy returns the first value along paths that is present and not
// null, false, zero or empty.
func firstTruthy(m map[string]interface{}, paths ...string) interface{} {
	for _, p := range paths {
		v, ok := lookup(m, p)
		if ok && truthy(v) {
			return v
		}
	}
	return nil
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case []interface{}:
		return len(x) > 0
	case map[string]interface{}:
		return len(x) > 0
	}
	return true
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func toFloat(v interface{}) (float64, bool) {
	var f float64
	var err error
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
