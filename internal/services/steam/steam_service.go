// Package steam talks to the Steam Community market and inventory endpoints.
package steam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Base headers sent with every market request; User-Agent and
// Accept-Language are drawn from HeaderPools per attempt.
var marketHeaders = map[string]string{
	"Accept":           "application/json,text/*;q=0.9,*/*;q=0.8",
	"Referer":          "https://steamcommunity.com/market/",
	"X-Requested-With": "XMLHttpRequest",
	"Cache-Control":    "no-cache",
}

func newRestyClient(timeout time.Duration) *resty.Client {
	client := resty.New()
	client.SetTimeout(timeout)
	return client
}

// flexBool decodes both JSON booleans and the 0/1 integers Steam uses.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true", "1", `"1"`, `"true"`:
		*b = true
	case "false", "0", `"0"`, `"false"`, "null", `""`:
		*b = false
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("steam: cannot decode %s as bool", data)
		}
		*b = n != 0
	}
	return nil
}
