package steam

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"arbitrium/internal/config"
	"arbitrium/internal/pacing"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	rateLimitCap = 60 * time.Second
	transportCap = 45 * time.Second
)

// HeaderPools are the User-Agent and Accept-Language values a request
// draws from.
type HeaderPools struct {
	UserAgents []string
	Languages  []string
}

// MarketQuote is the raw priceoverview answer. Prices stay as the
// currency-formatted strings Steam returns; see pricing.Parse.
type MarketQuote struct {
	Lowest string `json:"lowest_price"`
	Median string `json:"median_price"`
	Volume string `json:"volume"`
}

type priceOverview struct {
	Success bool `json:"success"`
	MarketQuote
}

// PriceFetcher looks up single-item Steam Market quotes with jitter,
// exponential backoff and rate-limit handling. It is safe for concurrent use.
type PriceFetcher struct {
	client  *resty.Client
	url     string
	appID   int
	pools   HeaderPools
	retries int
	delay   time.Duration
	sleep   pacing.SleepFunc
	rnd     *pacing.Rand
	log     *zap.Logger
}

// FetcherOption customizes a PriceFetcher.
type FetcherOption func(*PriceFetcher)

// WithSleep replaces the blocking sleep, mostly for tests.
func WithSleep(fn pacing.SleepFunc) FetcherOption {
	return func(f *PriceFetcher) { f.sleep = fn }
}

// WithRand sets the random source used for jitter and header selection.
func WithRand(r *pacing.Rand) FetcherOption {
	return func(f *PriceFetcher) { f.rnd = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) FetcherOption {
	return func(f *PriceFetcher) { f.log = l }
}

// NewPriceFetcher builds a fetcher from the Steam configuration.
func NewPriceFetcher(cfg config.SteamConfig, opts ...FetcherOption) *PriceFetcher {
	f := &PriceFetcher{
		client: newRestyClient(12 * time.Second),
		url:    cfg.MarketURL,
		appID:  cfg.AppID,
		pools: HeaderPools{
			UserAgents: cfg.UserAgents,
			Languages:  cfg.Languages,
		},
		retries: cfg.Retries,
		delay:   cfg.BaseDelay,
		sleep:   pacing.Sleep,
		log:     zap.NewNop(),
	}
	if f.retries <= 0 {
		f.retries = 3
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.rnd == nil {
		f.rnd = pacing.NewRand(0)
	}
	f.log = f.log.Named("steam-market")
	return f
}

func (f *PriceFetcher) headers() map[string]string {
	h := make(map[string]string, len(marketHeaders)+2)
	for k, v := range marketHeaders {
		h[k] = v
	}
	h["User-Agent"] = f.rnd.Pick(f.pools.UserAgents)
	h["Accept-Language"] = f.rnd.Pick(f.pools.Languages)
	return h
}

// Quote returns the quote for marketHashName in the given Steam currency
// code. ok is false when Steam answered success=false, when every attempt
// failed, or when ctx was cancelled. Quote never returns an error.
func (f *PriceFetcher) Quote(ctx context.Context, marketHashName string, currency int) (quote MarketQuote, ok bool) {
	// Initial jitter keeps the request cadence unpredictable.
	if err := f.sleep(ctx, f.rnd.Between(800*time.Millisecond, 2400*time.Millisecond)); err != nil {
		return MarketQuote{}, false
	}

	for attempt := 0; attempt < f.retries; attempt++ {
		last := attempt == f.retries-1
		log := f.log.With(zap.String("item", marketHashName), zap.Int("attempt", attempt+1), zap.Int("retries", f.retries))

		resp, err := f.client.R().
			SetContext(ctx).
			SetHeaders(f.headers()).
			SetQueryParams(map[string]string{
				"currency":         strconv.Itoa(currency),
				"appid":            strconv.Itoa(f.appID),
				"market_hash_name": marketHashName,
				"_":                strconv.Itoa(1 + f.rnd.Intn(10_000_000)),
			}).
			Get(f.url)

		if err == nil && resp.StatusCode() == http.StatusTooManyRequests {
			wait := f.rateLimitWait(resp, attempt)
			log.Warn("rate limited", zap.Duration("wait", wait))
			if last {
				break
			}
			if f.sleep(ctx, wait) != nil {
				return MarketQuote{}, false
			}
			continue
		}

		var body priceOverview
		if err == nil && resp.IsError() {
			err = &statusError{code: resp.StatusCode()}
		}
		if err == nil {
			err = json.Unmarshal(resp.Body(), &body)
		}
		if err != nil {
			if ctx.Err() != nil {
				return MarketQuote{}, false
			}
			wait := pacing.Backoff(f.delay, attempt, transportCap) + f.rnd.Between(500*time.Millisecond, 2*time.Second)
			if wait > transportCap {
				wait = transportCap
			}
			log.Warn("quote request failed", zap.Error(err), zap.Duration("wait", wait))
			if last {
				break
			}
			if f.sleep(ctx, wait) != nil {
				return MarketQuote{}, false
			}
			continue
		}

		if !body.Success {
			log.Warn("quote unsuccessful")
			_ = f.sleep(ctx, f.rnd.Between(300*time.Millisecond, time.Second))
			return MarketQuote{}, false
		}
		return body.MarketQuote, true
	}
	return MarketQuote{}, false
}

// rateLimitWait honors Retry-After (seconds) or falls back to exponential
// backoff, adds jitter and caps the result.
func (f *PriceFetcher) rateLimitWait(resp *resty.Response, attempt int) time.Duration {
	wait := pacing.Backoff(f.delay, attempt, rateLimitCap)
	if ra := resp.Header().Get("Retry-After"); ra != "" {
		if secs, err := strconv.ParseFloat(ra, 64); err == nil && secs >= 0 {
			wait = time.Duration(secs * float64(time.Second))
		}
	}
	wait += f.rnd.Between(500*time.Millisecond, 2*time.Second)
	if wait > rateLimitCap {
		wait = rateLimitCap
	}
	return wait
}

type statusError struct{ code int }

func (e *statusError) Error() string { return "unexpected status " + strconv.Itoa(e.code) }
