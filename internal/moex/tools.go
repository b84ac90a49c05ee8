package moex

import (
	"context"
	"sort"
	"time"

	"github.com/mosfin/analyst/internal/domain"
	"github.com/mosfin/analyst/internal/mcp"
)

// Tools exposes the market-data provider as MCP tools.
type Tools struct {
	provider Provider
}

// NewTools creates the provider tool set.
func NewTools(provider Provider) *Tools {
	return &Tools{provider: provider}
}

// RegisterAll registers every market-data tool on the given registry.
func (t *Tools) RegisterAll(registry *mcp.Registry) error {
	specs := []mcp.ToolSpec{
		{
			Name:        "get_security_snapshot",
			Description: "Current quote for one security on a MOEX board.",
			InputSchema: snapshotSchema,
			CostRank:    1,
			Handler:     t.handleSnapshot,
		},
		{
			Name:        "get_ohlcv_timeseries",
			Description: "Daily or hourly OHLCV bars for one security over a date range.",
			InputSchema: ohlcvSchema,
			CostRank:    2,
			Handler:     t.handleOHLCV,
		},
		{
			Name:        "get_index_constituents_metrics",
			Description: "Index constituents with weights plus index concentration metrics.",
			InputSchema: constituentsSchema,
			CostRank:    2,
			Handler:     t.handleConstituents,
		},
		{
			Name:        "get_dividends",
			Description: "Declared dividend payments for one security over a date range.",
			InputSchema: dividendsSchema,
			CostRank:    1,
			Handler:     t.handleDividends,
		},
	}
	for _, spec := range specs {
		if err := registry.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

func argString(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func argDate(args map[string]any, key string) (time.Time, error) {
	raw, ok := args[key].(string)
	if !ok || raw == "" {
		return time.Time{}, domain.NewValidationError(key, "%s is required", key)
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, domain.NewValidationError(key, "invalid date %q, expected YYYY-MM-DD", raw)
	}
	return parsed, nil
}

func argDateRange(args map[string]any) (time.Time, time.Time, error) {
	from, err := argDate(args, "from_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := argDate(args, "to_date")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, domain.NewValidationError("to_date", "to_date must be after from_date")
	}
	return from, to, nil
}

func (t *Tools) handleSnapshot(ctx context.Context, args map[string]any) (any, map[string]any, error) {
	ticker := argString(args, "ticker", "")
	board := argString(args, "board", domain.DefaultBoard)

	snapshot, err := t.provider.Snapshot(ctx, ticker, board)
	if err != nil {
		return nil, nil, err
	}
	return snapshot, nil, nil
}

func (t *Tools) handleOHLCV(ctx context.Context, args map[string]any) (any, map[string]any, error) {
	ticker := argString(args, "ticker", "")
	board := argString(args, "board", domain.DefaultBoard)
	interval := domain.Interval(argString(args, "interval", string(domain.IntervalDay)))
	from, to, err := argDateRange(args)
	if err != nil {
		return nil, nil, err
	}

	bars, err := t.provider.OHLCV(ctx, ticker, board, from, to, interval)
	if err != nil {
		return nil, nil, err
	}

	data := map[string]any{
		"ticker":   ticker,
		"board":    board,
		"interval": interval,
		"bars":     bars,
	}
	return data, map[string]any{"bars": len(bars)}, nil
}

// constituentMetrics summarises how concentrated an index is.
type constituentMetrics struct {
	Count       int     `json:"count"`
	TotalWeight float64 `json:"total_weight"`
	Top1Pct     float64 `json:"top1_pct"`
	Top10Pct    float64 `json:"top10_pct"`
	HHI         float64 `json:"hhi"`
}

func (t *Tools) handleConstituents(ctx context.Context, args map[string]any) (any, map[string]any, error) {
	indexTicker := argString(args, "index_ticker", "")
	asOf := time.Now()
	if _, present := args["as_of"]; present {
		parsed, err := argDate(args, "as_of")
		if err != nil {
			return nil, nil, err
		}
		asOf = parsed
	}

	constituents, err := t.provider.Constituents(ctx, indexTicker, asOf)
	if err != nil {
		return nil, nil, err
	}

	sorted := make([]domain.IndexConstituent, len(constituents))
	copy(sorted, constituents)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Weight != sorted[j].Weight {
			return sorted[i].Weight > sorted[j].Weight
		}
		return sorted[i].Ticker < sorted[j].Ticker
	})

	metrics := constituentMetrics{Count: len(sorted)}
	for i, c := range sorted {
		metrics.TotalWeight += c.Weight
		metrics.HHI += c.Weight * c.Weight
		if i == 0 {
			metrics.Top1Pct = c.Weight * 100
		}
		if i < 10 {
			metrics.Top10Pct += c.Weight * 100
		}
	}

	data := map[string]any{
		"index_ticker": indexTicker,
		"as_of":        asOf.Format("2006-01-02"),
		"constituents": sorted,
		"metrics":      metrics,
	}
	return data, map[string]any{"constituents": len(sorted)}, nil
}

func (t *Tools) handleDividends(ctx context.Context, args map[string]any) (any, map[string]any, error) {
	ticker := argString(args, "ticker", "")
	from, to, err := argDateRange(args)
	if err != nil {
		return nil, nil, err
	}

	dividends, err := t.provider.Dividends(ctx, ticker, from, to)
	if err != nil {
		return nil, nil, err
	}

	data := map[string]any{
		"ticker":    ticker,
		"dividends": dividends,
	}
	return data, map[string]any{"dividends": len(dividends)}, nil
}

const snapshotSchema = `{
	"type": "object",
	"required": ["ticker"],
	"properties": {
		"ticker": {"type": "string", "minLength": 1},
		"board": {"type": "string"}
	},
	"additionalProperties": false
}`

const ohlcvSchema = `{
	"type": "object",
	"required": ["ticker", "from_date", "to_date"],
	"properties": {
		"ticker": {"type": "string", "minLength": 1},
		"board": {"type": "string"},
		"from_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"to_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"interval": {"type": "string", "enum": ["1d", "1h"]}
	},
	"additionalProperties": false
}`

const constituentsSchema = `{
	"type": "object",
	"required": ["index_ticker"],
	"properties": {
		"index_ticker": {"type": "string", "minLength": 1},
		"as_of": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
	},
	"additionalProperties": false
}`

const dividendsSchema = `{
	"type": "object",
	"required": ["ticker", "from_date", "to_date"],
	"properties": {
		"ticker": {"type": "string", "minLength": 1},
		"from_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"to_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"}
	},
	"additionalProperties": false
}`
