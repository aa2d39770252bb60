package csmoney

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"arbitrium/internal/config"
	"arbitrium/internal/pacing"
	"arbitrium/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Epsilon is the smallest price difference treated as a real change.
const Epsilon = 1e-9

const (
	badRequestPause = 500 * time.Millisecond
	droppedPause    = 200 * time.Millisecond
	cooldownSlack   = 100 * time.Millisecond
	pauseJitter     = 400 * time.Millisecond
	retryStep       = 1500 * time.Millisecond
)

// Pager fetches one page of raw sell orders; see Client.FetchPage.
type Pager interface {
	FetchPage(ctx context.Context, offset, limit int) (int, []map[string]interface{})
}

// Result counts what one aggregation run did.
type Result struct {
	RunID       string `json:"run_id"`
	ItemsRead   int    `json:"items_read"`
	Distinct    int    `json:"distinct"`
	Saved       int    `json:"saved"`
	Created     int    `json:"created"`
	MetaUpdated int    `json:"meta_updated"`
	Unchanged   int    `json:"unchanged"`
	Skipped     int    `json:"skipped"`
	PagesOK     int    `json:"pages_ok"`
	Dropped     int    `json:"dropped"`
}

// Aggregator crawls every offset of the feed one page at a time, keeps the
// minimum price per classid and records price decreases in the store.
type Aggregator struct {
	pager           Pager
	store           *store.Store
	limit           int
	maxPages        int
	pause           time.Duration
	retries         int
	cooldownRetries int
	cooldownWait    time.Duration
	createMissing   bool

	sleep pacing.SleepFunc
	now   func() time.Time
	rnd   *pacing.Rand
	log   *zap.Logger
}

type Option func(*Aggregator)

func WithSleep(fn pacing.SleepFunc) Option {
	return func(a *Aggregator) { a.sleep = fn }
}

// WithClock replaces time.Now. Cooldown deadlines are computed from it.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func WithRand(r *pacing.Rand) Option {
	return func(a *Aggregator) { a.rnd = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.log = l }
}

func NewAggregator(pager Pager, st *store.Store, cfg config.CSMoneyConfig, opts ...Option) *Aggregator {
	a := &Aggregator{
		pager:           pager,
		store:           st,
		limit:           cfg.Limit,
		maxPages:        cfg.MaxPages,
		pause:           cfg.Pause,
		retries:         cfg.Retries,
		cooldownRetries: cfg.CooldownRetries,
		cooldownWait:    cfg.CooldownWait,
		createMissing:   cfg.CreateMissingItems,
		sleep:           pacing.Sleep,
		now:             time.Now,
		log:             zap.NewNop(),
	}
	if a.limit <= 0 {
		a.limit = 60
	}
	if a.maxPages <= 0 {
		a.maxPages = 200
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rnd == nil {
		a.rnd = pacing.NewRand(0)
	}
	a.log = a.log.Named("csmoney")
	return a
}

type cooldownEntry struct {
	due    time.Time
	offset int
}

// crawlState is everything one run accumulates. It is owned by a single
// Run call and never shared.
type crawlState struct {
	pending       []int
	cooldown      []cooldownEntry // ordered by due
	shortAttempts map[int]int
	coolAttempts  map[int]int
	best          map[string]Listing
	order         []string
	itemsRead     int
	pagesOK       int
	dropped       int
}

func newCrawlState(limit, maxPages int) *crawlState {
	s := &crawlState{
		pending:       make([]int, 0, maxPages),
		shortAttempts: make(map[int]int),
		coolAttempts:  make(map[int]int),
		best:          make(map[string]Listing),
	}
	for i := 0; i < maxPages; i++ {
		s.pending = append(s.pending, i*limit)
	}
	return s
}

func (s *crawlState) popFront() int {
	off := s.pending[0]
	s.pending = s.pending[1:]
	return off
}

func (s *crawlState) pushFront(off int) {
	s.pending = append([]int{off}, s.pending...)
}

func (s *crawlState) schedule(off int, due time.Time) {
	i := sort.Search(len(s.cooldown), func(i int) bool { return s.cooldown[i].due.After(due) })
	s.cooldown = append(s.cooldown, cooldownEntry{})
	copy(s.cooldown[i+1:], s.cooldown[i:])
	s.cooldown[i] = cooldownEntry{due: due, offset: off}
}

// releaseDue moves cooldown entries whose deadline has passed to the back
// of the work queue.
func (s *crawlState) releaseDue(now time.Time) {
	n := 0
	for n < len(s.cooldown) && !s.cooldown[n].due.After(now) {
		s.pending = append(s.pending, s.cooldown[n].offset)
		n++
	}
	s.cooldown = s.cooldown[n:]
}

// observe folds one listing into the running minimum.
func (s *crawlState) observe(l Listing) {
	cur, seen := s.best[l.ClassID]
	if !seen {
		s.order = append(s.order, l.ClassID)
	}
	if !seen || l.Price < cur.Price-Epsilon {
		s.best[l.ClassID] = l
	}
	s.itemsRead++
}

func isTransient(code int) bool {
	return code == StatusTransportError || code == http.StatusTooManyRequests || code >= 500
}

// Run crawls the feed and persists the results. A cancelled context stops
// the crawl between pages and nothing is persisted. Page failures never
// fail the run; they only show up in the counters.
func (a *Aggregator) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	log := a.log.With(zap.String("run_id", res.RunID))

	state, err := a.crawl(ctx, log)
	if err != nil {
		log.Warn("crawl aborted", zap.Error(err))
		return nil, err
	}
	res.ItemsRead = state.itemsRead
	res.Distinct = len(state.best)
	res.PagesOK = state.pagesOK
	res.Dropped = state.dropped

	if err := a.persist(ctx, state, res, log); err != nil {
		return nil, fmt.Errorf("persist csmoney prices: %w", err)
	}

	log.Info("csmoney aggregation finished",
		zap.Int("items_read", res.ItemsRead),
		zap.Int("distinct", res.Distinct),
		zap.Int("saved", res.Saved),
		zap.Int("created", res.Created),
		zap.Int("meta_updated", res.MetaUpdated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("pages_ok", res.PagesOK),
		zap.Int("dropped", res.Dropped))
	return res, nil
}

func (a *Aggregator) crawl(ctx context.Context, log *zap.Logger) (*crawlState, error) {
	s := newCrawlState(a.limit, a.maxPages)

	for len(s.pending) > 0 || len(s.cooldown) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.releaseDue(a.now())

		if len(s.pending) == 0 {
			wait := s.cooldown[0].due.Sub(a.now())
			if wait < 0 {
				wait = 0
			}
			if err := a.sleep(ctx, wait+cooldownSlack); err != nil {
				return nil, err
			}
			continue
		}

		offset := s.popFront()
		code, items := a.pager.FetchPage(ctx, offset, a.limit)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var pause time.Duration
		switch {
		case code == http.StatusOK:
			s.pagesOK++
			for _, raw := range items {
				if l, ok := ExtractListing(raw); ok {
					s.observe(l)
				}
			}
			log.Debug("page read", zap.Int("offset", offset), zap.Int("items", len(items)), zap.Int("distinct", len(s.best)))
			pause = a.pause + a.rnd.Between(0, pauseJitter)

		case isTransient(code):
			n := s.shortAttempts[offset] + 1
			s.shortAttempts[offset] = n
			if n <= a.retries {
				pause = time.Duration(n) * retryStep
				log.Warn("transient page failure, retrying",
					zap.Int("offset", offset), zap.Int("status", code),
					zap.Int("attempt", n), zap.Duration("wait", pause))
				s.pushFront(offset)
			} else {
				s.dropped++
				log.Warn("offset dropped after retries", zap.Int("offset", offset), zap.Int("status", code))
			}

		case code == http.StatusBadRequest:
			c := s.coolAttempts[offset] + 1
			s.coolAttempts[offset] = c
			if c <= a.cooldownRetries {
				s.schedule(offset, a.now().Add(a.cooldownWait))
				log.Warn("bad request, cooling down offset",
					zap.Int("offset", offset), zap.Int("attempt", c), zap.Duration("wait", a.cooldownWait))
			} else {
				s.dropped++
				log.Warn("offset dropped after cooldowns", zap.Int("offset", offset))
			}
			pause = badRequestPause

		default:
			s.dropped++
			log.Warn("unexpected status, offset dropped", zap.Int("offset", offset), zap.Int("status", code))
			pause = droppedPause
		}

		if err := a.sleep(ctx, pause); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// persist writes the aggregated minimums in one transaction. A price is
// recorded only when it beats the latest stored CS.MONEY observation.
func (a *Aggregator) persist(ctx context.Context, s *crawlState, res *Result, log *zap.Logger) error {
	now := a.now()
	return a.store.Transaction(ctx, func(tx *store.Store) error {
		site, err := tx.EnsureSite(ctx, store.SiteCSMoney)
		if err != nil {
			return fmt.Errorf("ensure site: %w", err)
		}

		for _, classID := range s.order {
			best := s.best[classID]
			fields := store.ItemFields{
				ClassID:        classID,
				MarketHashName: best.Name,
				Category:       best.Category,
				IconURL:        best.IconURL,
			}

			item, err := tx.ItemByClassID(ctx, classID)
			switch {
			case err == nil:
				changed, err := tx.BackfillItem(ctx, item, fields)
				if err != nil {
					return fmt.Errorf("backfill %s: %w", classID, err)
				}
				if changed {
					res.MetaUpdated++
				}
			case errors.Is(err, store.ErrNotFound):
				if !a.createMissing || best.Name == "" {
					res.Skipped++
					continue
				}
				var created bool
				item, created, err = tx.CreateItemIfAbsent(ctx, fields)
				if errors.Is(err, store.ErrNotFound) {
					log.Warn("name already used by another classid", zap.String("classid", classID), zap.String("name", best.Name))
					res.Skipped++
					continue
				}
				if err != nil {
					return fmt.Errorf("create item %s: %w", classID, err)
				}
				if created {
					res.Created++
				}
			default:
				return fmt.Errorf("load item %s: %w", classID, err)
			}

			last, err := tx.LatestPrice(ctx, item.ID, site.ID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("latest price for %s: %w", classID, err)
			}
			if last != nil && best.Price >= last.Price-Epsilon {
				res.Unchanged++
				continue
			}
			if err := tx.AddPrice(ctx, item.ID, site.ID, best.Price, now); err != nil {
				return fmt.Errorf("record price for %s: %w", classID, err)
			}
			res.Saved++
		}
		return nil
	})
}
