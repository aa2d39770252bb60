package steam

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"arbitrium/internal/config"
)

func inventoryConfig(url string) config.SteamConfig {
	return config.SteamConfig{InventoryURL: url, AppID: 730, ContextID: "2", InventoryPageSize: 2}
}

func TestInventoryClient_Paginates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/76561198000000001/730/2" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("l") != "english" || r.URL.Query().Get("count") != "2" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		switch r.URL.Query().Get("start_assetid") {
		case "":
			w.Write([]byte(`{"assets":[{"appid":730,"contextid":"2","assetid":"a1","classid":"c1","amount":"1"},
				{"appid":730,"contextid":"2","assetid":"a2","classid":"c1","amount":"1"}],
				"descriptions":[{"classid":"c1","market_hash_name":"Case","tradable":1,"icon_url":"tok"}],
				"more_items":1,"last_assetid":"a2","success":1}`))
		case "a2":
			w.Write([]byte(`{"assets":[{"appid":730,"contextid":"2","assetid":"a3","classid":"c2","amount":"1"}],
				"descriptions":[{"classid":"c2","market_hash_name":"Sticker","tradable":0,
				"tags":[{"category":"Exterior","localized_tag_name":"Field-Tested"}]}],
				"success":true}`))
		default:
			t.Errorf("unexpected cursor %q", r.URL.Query().Get("start_assetid"))
		}
	}))
	defer server.Close()

	snap, err := NewInventoryClient(inventoryConfig(server.URL), nil).FetchInventory(context.Background(), "76561198000000001")
	if err != nil {
		t.Fatalf("FetchInventory() error = %v", err)
	}
	if len(snap.Assets) != 3 || len(snap.Descriptions) != 2 {
		t.Fatalf("assets=%d descriptions=%d, want 3/2", len(snap.Assets), len(snap.Descriptions))
	}
	d := snap.Descriptions[0]
	if !d.IsTradable() || d.Icon("https://cdn/") != "https://cdn/tok" {
		t.Errorf("first description = %+v", d)
	}
	if snap.Descriptions[1].IsTradable() || snap.Descriptions[1].Exterior() != "Field-Tested" {
		t.Errorf("second description = %+v", snap.Descriptions[1])
	}
	if snap.Descriptions[1].Icon("https://cdn/") != "" {
		t.Error("Icon() without token should be empty")
	}
}

func TestInventoryClient_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"private", http.StatusForbidden, `null`},
		{"null body", http.StatusOK, `null`},
		{"success zero", http.StatusOK, `{"success":0}`},
		{"garbage", http.StatusOK, `<html>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := NewInventoryClient(inventoryConfig(server.URL), nil).FetchInventory(context.Background(), "1")
			if !errors.Is(err, ErrInventoryUnavailable) {
				t.Errorf("error = %v, want ErrInventoryUnavailable", err)
			}
		})
	}
}
