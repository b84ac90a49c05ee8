// Package moex provides typed access to the MOEX ISS market-data API:
// security snapshots, OHLCV series, index constituents and dividends.
// The client rate-limits upstream access, retries transient failures and
// caches short-lived responses.
package moex

import (
	"context"
	"time"

	"github.com/mosfin/analyst/internal/domain"
)

// Provider is the market-data seam consumed by the risk tools. Tests
// substitute an in-memory fixture.
type Provider interface {
	Snapshot(ctx context.Context, ticker, board string) (*domain.SecuritySnapshot, error)
	OHLCV(ctx context.Context, ticker, board string, from, to time.Time, interval domain.Interval) ([]domain.OHLCVBar, error)
	Constituents(ctx context.Context, indexTicker string, asOf time.Time) ([]domain.IndexConstituent, error)
	Dividends(ctx context.Context, ticker string, from, to time.Time) ([]domain.DividendRecord, error)
}

// ohlcvCacheWindow is the longest OHLCV request window that is cached.
// Longer windows are served straight from upstream.
const ohlcvCacheWindow = 7 * 24 * time.Hour
