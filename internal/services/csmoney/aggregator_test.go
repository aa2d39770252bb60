package csmoney

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"arbitrium/internal/config"
	"arbitrium/internal/pacing"
	"arbitrium/internal/store"
	"arbitrium/internal/testutils"
)

type page struct {
	code  int
	items []map[string]interface{}
}

// scriptedPager answers each offset from a queue of pages; an exhausted
// queue answers 200 with no items.
type scriptedPager struct {
	mu     sync.Mutex
	script map[int][]page
	calls  map[int]int
	order  []int
	hook   func(offset int)
}

func newPager(script map[int][]page) *scriptedPager {
	return &scriptedPager{script: script, calls: map[int]int{}}
}

func (p *scriptedPager) FetchPage(ctx context.Context, offset, limit int) (int, []map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[offset]++
	p.order = append(p.order, offset)
	if p.hook != nil {
		p.hook(offset)
	}
	q := p.script[offset]
	if len(q) == 0 {
		return 200, nil
	}
	p.script[offset] = q[1:]
	return q[0].code, q[0].items
}

func repeat(code, n int) []page {
	out := make([]page, n)
	for i := range out {
		out[i] = page{code: code}
	}
	return out
}

func okPage(items ...map[string]interface{}) page { return page{code: 200, items: items} }

func listing(classID, name, price string) map[string]interface{} {
	return map[string]interface{}{
		"asset": map[string]interface{}{
			"names":  map[string]interface{}{"identifier": json.Number(classID), "full": name},
			"rarity": "Covert",
			"images": map[string]interface{}{"steam": "https://img/" + classID},
		},
		"pricing": map[string]interface{}{"computed": json.Number(price)},
	}
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func testConfig(maxPages int) config.CSMoneyConfig {
	return config.CSMoneyConfig{
		Limit:              60,
		MaxPages:           maxPages,
		Pause:              time.Second,
		Retries:            3,
		CooldownRetries:    3,
		CooldownWait:       120 * time.Second,
		CreateMissingItems: true,
	}
}

func newTestAggregator(t *testing.T, pager Pager, cfg config.CSMoneyConfig) (*Aggregator, *store.Store, *fakeClock) {
	t.Helper()
	st := store.New(testutils.OpenDB(t))
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	agg := NewAggregator(pager, st, cfg,
		WithSleep(clock.Sleep),
		WithClock(clock.Now),
		WithRand(pacing.NewRand(7)))
	return agg, st, clock
}

func latestCSMoneyPrice(t *testing.T, st *store.Store, classID string) float64 {
	t.Helper()
	ctx := context.Background()
	item, err := st.ItemByClassID(ctx, classID)
	if err != nil {
		t.Fatalf("item %s: %v", classID, err)
	}
	site, err := st.EnsureSite(ctx, store.SiteCSMoney)
	if err != nil {
		t.Fatal(err)
	}
	p, err := st.LatestPrice(ctx, item.ID, site.ID)
	if err != nil {
		t.Fatalf("latest price %s: %v", classID, err)
	}
	return p.Price
}

func TestRun_MinimumAcrossPages(t *testing.T) {
	noClassID := map[string]interface{}{"pricing": map[string]interface{}{"computed": json.Number("1")}}
	pager := newPager(map[int][]page{
		0: {okPage(listing("1", "AK-47 | Redline (Field-Tested)", "10.00"), listing("2", "AWP | Asiimov (Field-Tested)", "5"))},
		60: {okPage(
			listing("1", "AK-47 | Redline (Field-Tested)", "8.5"),
			listing("1", "AK-47 | Redline (Field-Tested)", "8.5000000000001"),
			listing("3", "Zero", "0"),
			listing("4", "Garbage", "abc"),
			noClassID,
		)},
	})
	agg, st, _ := newTestAggregator(t, pager, testConfig(2))

	res, err := agg.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ItemsRead != 4 || res.Distinct != 2 || res.PagesOK != 2 || res.Saved != 2 || res.Created != 2 {
		t.Errorf("Result = %+v", res)
	}
	if res.RunID == "" {
		t.Error("RunID is empty")
	}
	if got := latestCSMoneyPrice(t, st, "1"); got != 8.5 {
		t.Errorf("classid 1 price = %v, want 8.5", got)
	}
	if got := latestCSMoneyPrice(t, st, "2"); got != 5 {
		t.Errorf("classid 2 price = %v, want 5", got)
	}
	item, _ := st.ItemByClassID(context.Background(), "1")
	if item.Category != "Covert" || item.IconURL != "https://img/1" {
		t.Errorf("item metadata = %+v", item)
	}
}

func TestRun_RatchetRecordsOnlyDecreases(t *testing.T) {
	ctx := context.Background()
	var agg *Aggregator
	var st *store.Store
	pager := newPager(nil)

	wantSaved := []int{1, 0, 1}
	for i, price := range []string{"10.00", "12.00", "9.50"} {
		pager.script = map[int][]page{0: {okPage(listing("1", "Danger Zone Case", price))}}
		if agg == nil {
			agg, st, _ = newTestAggregator(t, pager, testConfig(1))
		}
		res, err := agg.Run(ctx)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if res.Saved != wantSaved[i] {
			t.Errorf("run %d saved = %d, want %d", i, res.Saved, wantSaved[i])
		}
	}

	item, _ := st.ItemByClassID(ctx, "1")
	history, err := st.PriceHistory(ctx, item.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("observations = %d, want 2", len(history))
	}
	if history[0].Price != 9.5 || history[1].Price != 10 {
		t.Errorf("history = [%v %v], want [9.5 10]", history[0].Price, history[1].Price)
	}
}

func TestRun_TransientRetryBound(t *testing.T) {
	for _, code := range []int{429, 503, StatusTransportError} {
		t.Run("recovers", func(t *testing.T) {
			pager := newPager(map[int][]page{0: append(repeat(code, 3), okPage(listing("1", "Case", "1.25")))})
			agg, _, clock := newTestAggregator(t, pager, testConfig(1))
			res, err := agg.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if pager.calls[0] != 4 || res.PagesOK != 1 || res.ItemsRead != 1 || res.Dropped != 0 {
				t.Errorf("status %d: calls=%d result=%+v", code, pager.calls[0], res)
			}
			want := []time.Duration{1500 * time.Millisecond, 3 * time.Second, 4500 * time.Millisecond}
			for i, d := range want {
				if clock.sleeps[i] != d {
					t.Errorf("status %d: backoff %d = %v, want %v", code, i, clock.sleeps[i], d)
				}
			}
		})
		t.Run("drops", func(t *testing.T) {
			pager := newPager(map[int][]page{0: append(repeat(code, 4), okPage(listing("1", "Case", "1.25")))})
			agg, _, _ := newTestAggregator(t, pager, testConfig(1))
			res, err := agg.Run(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if pager.calls[0] != 4 || res.Dropped != 1 || res.Distinct != 0 || res.PagesOK != 0 {
				t.Errorf("status %d: calls=%d result=%+v", code, pager.calls[0], res)
			}
		})
	}
}

func TestRun_CooldownBound(t *testing.T) {
	pager := newPager(map[int][]page{0: repeat(400, 4)})
	agg, _, clock := newTestAggregator(t, pager, testConfig(1))
	start := clock.Now()

	res, err := agg.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pager.calls[0] != 4 {
		t.Errorf("calls = %d, want 4", pager.calls[0])
	}
	if res.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", res.Dropped)
	}
	if elapsed := clock.Now().Sub(start); elapsed < 3*120*time.Second {
		t.Errorf("elapsed = %v, want at least three cooldown waits", elapsed)
	}
}

func TestRun_CooldownInterleavesWithPendingWork(t *testing.T) {
	pager := newPager(map[int][]page{
		0:  {{code: 400}, okPage(listing("1", "Case", "2.00"))},
		60: {okPage(listing("2", "Sticker", "0.10"))},
	})
	agg, _, _ := newTestAggregator(t, pager, testConfig(2))

	res, err := agg.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []int{0, 60, 0}
	if len(pager.order) != len(want) {
		t.Fatalf("fetch order = %v, want %v", pager.order, want)
	}
	for i := range want {
		if pager.order[i] != want[i] {
			t.Fatalf("fetch order = %v, want %v", pager.order, want)
		}
	}
	if res.Distinct != 2 || res.Dropped != 0 {
		t.Errorf("Result = %+v", res)
	}
}

func TestRun_OtherStatusDropped(t *testing.T) {
	pager := newPager(map[int][]page{0: {{code: 404}}})
	agg, _, _ := newTestAggregator(t, pager, testConfig(1))

	res, err := agg.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pager.calls[0] != 1 || res.Dropped != 1 {
		t.Errorf("calls=%d result=%+v", pager.calls[0], res)
	}
}

func TestRun_CancelledSkipsPersistence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pager := newPager(map[int][]page{0: {okPage(listing("1", "Case", "1.00"))}})
	pager.hook = func(int) { cancel() }
	agg, st, _ := newTestAggregator(t, pager, testConfig(3))

	if _, err := agg.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if pager.calls[60] != 0 {
		t.Error("crawl continued after cancellation")
	}
	if _, err := st.ItemByClassID(context.Background(), "1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("item persisted after cancellation: %v", err)
	}
}

func TestRun_ExistingItemsAreBackfilledNotOverwritten(t *testing.T) {
	ctx := context.Background()
	pager := newPager(map[int][]page{0: {okPage(
		listing("1", "Listing Name", "3.00"),
		listing("2", "Unknown Item", "4.00"),
		listing("3", "Taken Name", "5.00"),
	)}})
	cfg := testConfig(1)
	cfg.CreateMissingItems = false
	agg, st, _ := newTestAggregator(t, pager, cfg)
	if _, err := st.UpsertItem(ctx, store.ItemFields{ClassID: "1", MarketHashName: "Stored Name"}); err != nil {
		t.Fatal(err)
	}

	res, err := agg.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.MetaUpdated != 1 || res.Created != 0 || res.Skipped != 2 || res.Saved != 1 {
		t.Errorf("Result = %+v", res)
	}
	item, _ := st.ItemByClassID(ctx, "1")
	if item.MarketHashName != "Stored Name" || item.Category != "Covert" || item.IconURL != "https://img/1" {
		t.Errorf("item = %+v", item)
	}
	if _, err := st.ItemByClassID(ctx, "2"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("item 2 created with create_missing_items off: %v", err)
	}
}

func TestRun_NameCollisionIsSkipped(t *testing.T) {
	ctx := context.Background()
	pager := newPager(map[int][]page{0: {okPage(listing("9", "Shared Name", "3.00"))}})
	agg, st, _ := newTestAggregator(t, pager, testConfig(1))
	if _, err := st.UpsertItem(ctx, store.ItemFields{ClassID: "1", MarketHashName: "Shared Name"}); err != nil {
		t.Fatal(err)
	}

	res, err := agg.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Skipped != 1 || res.Saved != 0 {
		t.Errorf("Result = %+v", res)
	}
}
