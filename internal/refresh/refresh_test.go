package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"arbitrium/internal/config"
	"arbitrium/internal/dispatch"
	"arbitrium/internal/models"
	"arbitrium/internal/services/steam"
	"arbitrium/internal/store"
	"arbitrium/internal/testutils"

	"github.com/shopspring/decimal"
)

type fakeFetcher struct {
	mu       sync.Mutex
	quotes   map[string]steam.MarketQuote
	calls    map[string]int
	inflight int
	peak     int
}

func (f *fakeFetcher) Quote(ctx context.Context, name string, currency int) (steam.MarketQuote, bool) {
	f.mu.Lock()
	f.calls[name]++
	f.inflight++
	if f.inflight > f.peak {
		f.peak = f.inflight
	}
	q, ok := f.quotes[name]
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()
	return q, ok
}

type fakeQueue struct{ jobs []dispatch.Job }

func (q *fakeQueue) Enqueue(ctx context.Context, job dispatch.Job) (dispatch.Job, error) {
	q.jobs = append(q.jobs, job)
	return job, nil
}

func seedHolding(t *testing.T, st *store.Store, invID uint, classID, name string) *models.InventoryItem {
	t.Helper()
	ctx := context.Background()
	item, err := st.UpsertItem(ctx, store.ItemFields{ClassID: classID, MarketHashName: name})
	if err != nil {
		t.Fatal(err)
	}
	h := &models.InventoryItem{InventoryID: invID, ItemID: item.ID, Quantity: 1}
	if err := st.CreateHolding(ctx, h); err != nil {
		t.Fatal(err)
	}
	return h
}

func TestRefreshAccount(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutils.OpenDB(t))
	acct, err := st.CreateAccount(ctx, "main", "https://steamcommunity.com/profiles/76561198000000001/")
	if err != nil {
		t.Fatal(err)
	}
	seedHolding(t, st, acct.ID, "1", "Danger Zone Case")
	seedHolding(t, st, acct.ID, "2", "AWP | Dragon Lore (Factory New)")
	seedHolding(t, st, acct.ID, "3", "Unlisted Item")
	seedHolding(t, st, acct.ID, "4", "Free Item")

	f := &fakeFetcher{
		calls: map[string]int{},
		quotes: map[string]steam.MarketQuote{
			"Danger Zone Case":                {Lowest: "$10.00", Median: "$11.00"},
			"AWP | Dragon Lore (Factory New)": {Median: "$1,234.57"},
			"Free Item":                       {Lowest: "$0.00"},
		},
	}
	svc := NewService(st, f, config.SteamConfig{Concurrency: 2}, nil)

	sum, err := svc.RefreshAccount(ctx, acct.ID)
	if err != nil {
		t.Fatalf("RefreshAccount() error = %v", err)
	}
	if sum.Checked != 4 || sum.Updated != 2 {
		t.Errorf("Summary = %+v, want checked 4 updated 2", sum)
	}
	for name, n := range f.calls {
		if n != 1 {
			t.Errorf("%s quoted %d times", name, n)
		}
	}
	if f.peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", f.peak)
	}

	want := map[string]string{
		"Danger Zone Case":                "8.5",
		"AWP | Dragon Lore (Factory New)": "1049.38",
	}
	holdings, _ := st.Holdings(ctx, acct.ID)
	for _, h := range holdings {
		w, priced := want[h.Item.MarketHashName]
		if !priced {
			if h.PriceUSD.Valid {
				t.Errorf("%s unexpectedly priced at %s", h.Item.MarketHashName, h.PriceUSD.Decimal)
			}
			continue
		}
		if !h.PriceUSD.Valid || !h.PriceUSD.Decimal.Equal(decimal.RequireFromString(w)) {
			t.Errorf("%s net = %v, want %s", h.Item.MarketHashName, h.PriceUSD, w)
		}
	}

	site, _ := st.EnsureSite(ctx, store.SiteSteamMarket)
	item, _ := st.ItemByClassID(ctx, "1")
	p, err := st.LatestPrice(ctx, item.ID, site.ID)
	if err != nil || p.Price != 10 {
		t.Errorf("gross observation = %+v, %v; want 10", p, err)
	}
}

func TestRefreshAccount_UnknownAccount(t *testing.T) {
	st := store.New(testutils.OpenDB(t))
	svc := NewService(st, &fakeFetcher{calls: map[string]int{}}, config.SteamConfig{}, nil)
	if _, err := svc.RefreshAccount(context.Background(), 42); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRefreshAll_EnqueuesEveryAccount(t *testing.T) {
	ctx := context.Background()
	st := store.New(testutils.OpenDB(t))
	a, _ := st.CreateAccount(ctx, "a", "76561198000000001")
	b, _ := st.CreateAccount(ctx, "b", "76561198000000002")
	svc := NewService(st, &fakeFetcher{calls: map[string]int{}}, config.SteamConfig{}, nil)

	q := &fakeQueue{}
	n, err := svc.RefreshAll(ctx, q)
	if err != nil || n != 2 {
		t.Fatalf("RefreshAll() = %d, %v", n, err)
	}
	if q.jobs[0].InventoryID != a.ID || q.jobs[1].InventoryID != b.ID {
		t.Errorf("jobs = %+v", q.jobs)
	}
	for _, j := range q.jobs {
		if j.Kind != dispatch.KindRefreshPrices || j.ID == "" {
			t.Errorf("job = %+v", j)
		}
	}
}
