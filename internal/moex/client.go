package moex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/mosfin/analyst/internal/config"
	"github.com/mosfin/analyst/internal/domain"
)

const (
	maxAttempts    = 3
	backoffBase    = 200 * time.Millisecond
	issDateFormat  = "2006-01-02"
	issCandleDay   = 24 // ISS interval code for daily candles
	issCandleHour  = 60 // ISS interval code for hourly candles
	maxResponseLog = 300
)

// Client is the MOEX ISS HTTP client. It implements Provider with a
// token-bucket rate limiter, bounded retries with jittered exponential
// backoff and an optional TTL cache.
type Client struct {
	cfg        *config.ProviderConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *Cache
	log        zerolog.Logger
}

// NewClient creates a new ISS client from cfg. The cache is created only
// when cfg.EnableCache is set.
func NewClient(cfg *config.ProviderConfig, log zerolog.Logger) *Client {
	var cache *Cache
	if cfg.EnableCache {
		cache = NewCache(cfg.CacheTTL, cfg.CacheMaxSize)
	}
	// Burst 1: a fresh bucket admits one immediate call, and refills add at
	// most RPS more in any sliding second, so no 1s window ever carries
	// more than RPS+1 upstream calls.
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1),
		cache:      cache,
		log:        log.With().Str("component", "moex-iss").Logger(),
	}
}

// Cache exposes the client cache for the janitor. Nil when caching is
// disabled.
func (c *Client) Cache() *Cache {
	return c.cache
}

// Snapshot returns the current quote for ticker on board.
func (c *Client) Snapshot(ctx context.Context, ticker, board string) (*domain.SecuritySnapshot, error) {
	if board == "" {
		board = domain.DefaultBoard
	}
	ticker = normalizeTicker(ticker)
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}

	key := CacheKey("snapshot", ticker, board)
	if c.cache != nil {
		var cached domain.SecuritySnapshot
		if c.cache.Get(key, &cached) {
			return &cached, nil
		}
	}

	path := fmt.Sprintf("/engines/stock/markets/shares/boards/%s/securities/%s.json", board, ticker)
	resp, err := c.getJSON(ctx, path, url.Values{"iss.meta": {"off"}}, ticker)
	if err != nil {
		return nil, err
	}

	securities := resp.table("securities")
	marketdata := resp.table("marketdata")
	if securities.empty() && marketdata.empty() {
		return nil, domain.NewError(domain.CategoryInvalidTicker, "no data for ticker %s on board %s", ticker, board)
	}

	snap := &domain.SecuritySnapshot{
		Ticker: ticker,
		Board:  board,
		AsOf:   time.Now().UTC(),
	}
	if row, ok := securities.row(0); ok {
		snap.ShortName = row.str("SHORTNAME")
		snap.PrevClose = row.num("PREVPRICE")
		snap.Currency = row.str("CURRENCYID")
	}
	if row, ok := marketdata.row(0); ok {
		snap.Last = row.num("LAST")
		snap.Open = row.num("OPEN")
		snap.High = row.num("HIGH")
		snap.Low = row.num("LOW")
		snap.Volume = row.num("VOLTODAY")
	}

	if c.cache != nil {
		c.cache.Set(key, snap)
	}
	return snap, nil
}

// OHLCV returns daily or hourly bars for ticker on board within [from, to].
func (c *Client) OHLCV(ctx context.Context, ticker, board string, from, to time.Time, interval domain.Interval) ([]domain.OHLCVBar, error) {
	if board == "" {
		board = domain.DefaultBoard
	}
	ticker = normalizeTicker(ticker)
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}
	if err := c.validateWindow(from, to); err != nil {
		return nil, err
	}

	issInterval := issCandleDay
	if interval == domain.IntervalHour {
		issInterval = issCandleHour
	}

	cacheable := c.cache != nil && to.Sub(from) <= ohlcvCacheWindow
	key := CacheKey("ohlcv", ticker, board, from.Format(issDateFormat), to.Format(issDateFormat), string(interval))
	if cacheable {
		var cached []domain.OHLCVBar
		if c.cache.Get(key, &cached) {
			return cached, nil
		}
	}

	path := fmt.Sprintf("/engines/stock/markets/shares/boards/%s/securities/%s/candles.json", board, ticker)
	query := url.Values{
		"iss.meta": {"off"},
		"from":     {from.Format(issDateFormat)},
		"till":     {to.Format(issDateFormat)},
		"interval": {fmt.Sprint(issInterval)},
	}
	resp, err := c.getJSON(ctx, path, query, ticker)
	if err != nil {
		return nil, err
	}

	candles := resp.table("candles")
	bars := make([]domain.OHLCVBar, 0, candles.len())
	for i := 0; i < candles.len(); i++ {
		row, _ := candles.row(i)
		begin, err := time.Parse("2006-01-02 15:04:05", row.str("begin"))
		if err != nil {
			continue
		}
		bars = append(bars, domain.OHLCVBar{
			Date:   begin,
			Open:   row.num("open"),
			High:   row.num("high"),
			Low:    row.num("low"),
			Close:  row.num("close"),
			Volume: row.num("volume"),
		})
	}

	if cacheable {
		c.cache.Set(key, bars)
	}
	return bars, nil
}

// Constituents returns the index composition as of the given date.
func (c *Client) Constituents(ctx context.Context, indexTicker string, asOf time.Time) ([]domain.IndexConstituent, error) {
	indexTicker = normalizeTicker(indexTicker)
	if err := validateTicker(indexTicker); err != nil {
		return nil, err
	}

	key := CacheKey("constituents", indexTicker, asOf.Format(issDateFormat))
	if c.cache != nil {
		var cached []domain.IndexConstituent
		if c.cache.Get(key, &cached) {
			return cached, nil
		}
	}

	path := fmt.Sprintf("/statistics/engines/stock/markets/index/analytics/%s.json", indexTicker)
	query := url.Values{"iss.meta": {"off"}, "limit": {"100"}}
	if !asOf.IsZero() {
		query.Set("date", asOf.Format(issDateFormat))
	}
	resp, err := c.getJSON(ctx, path, query, indexTicker)
	if err != nil {
		return nil, err
	}

	analytics := resp.table("analytics")
	constituents := make([]domain.IndexConstituent, 0, analytics.len())
	for i := 0; i < analytics.len(); i++ {
		row, _ := analytics.row(i)
		constituents = append(constituents, domain.IndexConstituent{
			Ticker:    row.str("ticker"),
			ShortName: row.str("shortnames"),
			Weight:    row.num("weight") / 100, // ISS reports percent
		})
	}

	if c.cache != nil {
		c.cache.Set(key, constituents)
	}
	return constituents, nil
}

// Dividends returns declared dividends for ticker within [from, to].
func (c *Client) Dividends(ctx context.Context, ticker string, from, to time.Time) ([]domain.DividendRecord, error) {
	ticker = normalizeTicker(ticker)
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}
	if err := c.validateWindow(from, to); err != nil {
		return nil, err
	}

	key := CacheKey("dividends", ticker, from.Format(issDateFormat), to.Format(issDateFormat))
	if c.cache != nil {
		var cached []domain.DividendRecord
		if c.cache.Get(key, &cached) {
			return cached, nil
		}
	}

	path := fmt.Sprintf("/securities/%s/dividends.json", ticker)
	resp, err := c.getJSON(ctx, path, url.Values{"iss.meta": {"off"}}, ticker)
	if err != nil {
		return nil, err
	}

	table := resp.table("dividends")
	records := make([]domain.DividendRecord, 0, table.len())
	for i := 0; i < table.len(); i++ {
		row, _ := table.row(i)
		date, err := time.Parse(issDateFormat, row.str("registryclosedate"))
		if err != nil {
			continue
		}
		if date.Before(from) || date.After(to) {
			continue
		}
		records = append(records, domain.DividendRecord{
			Ticker:       ticker,
			RegistryDate: date,
			Value:        row.num("value"),
			Currency:     row.str("currencyid"),
		})
	}

	if c.cache != nil {
		c.cache.Set(key, records)
	}
	return records, nil
}

// validateWindow enforces the maximum lookback before any request is made.
func (c *Client) validateWindow(from, to time.Time) error {
	if to.Before(from) {
		return domain.NewValidationError("to_date", "to_date %s precedes from_date %s", to.Format(issDateFormat), from.Format(issDateFormat))
	}
	days := int(to.Sub(from).Hours() / 24)
	if days > c.cfg.MaxLookbackDays {
		return domain.NewError(domain.CategoryDateRangeTooLarge,
			"window of %d days exceeds maximum lookback of %d days", days, c.cfg.MaxLookbackDays)
	}
	return nil
}

// getJSON performs a rate-limited GET with bounded retries. Network errors
// and 5xx responses are retried with exponential backoff; 4xx responses
// are returned immediately with a normalised category.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, ticker string) (issResponse, error) {
	requestURL := c.cfg.BaseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, domain.WrapError(domain.CategoryISSTimeout, err, "cancelled during retry backoff")
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, domain.WrapError(domain.CategoryISSTimeout, err, "cancelled waiting for rate limiter")
		}

		resp, err := c.doOnce(ctx, requestURL, ticker)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		cat := domain.Categorize(err)
		if cat != domain.CategoryISSTimeout && cat != domain.CategoryISS5xx {
			return nil, err
		}
		c.log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Str("url", requestURL).
			Msg("ISS request failed, retrying")
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, requestURL, ticker string) (issResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, domain.WrapError(domain.CategoryUnknown, err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.WrapError(domain.CategoryISSTimeout, err, "ISS request timed out")
		}
		return nil, domain.WrapError(domain.CategoryISSTimeout, err, "network error")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.WrapError(domain.CategoryISSTimeout, err, "failed to read response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewError(domain.CategoryRateLimit, "ISS rate limit hit for %s", ticker)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, domain.NewError(domain.CategoryInvalidTicker, "ISS rejected request for %s: status %d", ticker, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, domain.NewError(domain.CategoryISS5xx, "ISS server error: status %d", resp.StatusCode)
	default:
		return nil, domain.NewError(domain.CategoryUnknown, "unexpected ISS status %d: %s", resp.StatusCode, truncate(string(body), maxResponseLog))
	}

	var decoded issResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, domain.WrapError(domain.CategoryUnknown, err, "failed to decode ISS response")
	}
	return decoded, nil
}

func sleepBackoff(ctx context.Context, attempt int) error {
	delay := backoffBase << (attempt - 1)
	// ±50% jitter
	jitter := time.Duration(rand.Int63n(int64(delay))) - delay/2
	select {
	case <-time.After(delay + jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

func validateTicker(ticker string) error {
	if ticker == "" {
		return domain.NewError(domain.CategoryInvalidTicker, "empty ticker")
	}
	for _, r := range ticker {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return domain.NewError(domain.CategoryInvalidTicker, "malformed ticker %q", ticker)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
