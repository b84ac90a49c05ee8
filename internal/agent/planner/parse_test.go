package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosfin/analyst/internal/agent/scenario"
)

var parseNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func parse(text string) scenario.Request {
	return ParseRequest(text, parseNow, 365*24*time.Hour, "IMOEX")
}

func TestParseRequest_Tickers(t *testing.T) {
	req := parse("Сравни SBER и GAZP за последний год")
	assert.Equal(t, []string{"SBER", "GAZP"}, req.Tickers)
	assert.Empty(t, req.Positions)
}

func TestParseRequest_StopWordsAndIndexes(t *testing.T) {
	req := parse("What is the VAR for SBER in RUB vs the IMOEX index?")
	assert.Equal(t, []string{"SBER"}, req.Tickers)
	assert.Equal(t, "IMOEX", req.IndexTicker)
}

func TestParseRequest_PercentPortfolio(t *testing.T) {
	req := parse("Портфель: SBER 45%, GAZP 20%, LKOH 15%, ROSN 10%, GMKN 10%")
	require.Len(t, req.Positions, 5)
	assert.Equal(t, "SBER", req.Positions[0].Ticker)
	assert.InDelta(t, 0.45, req.Positions[0].Weight, 1e-9)

	sum := 0.0
	for _, p := range req.Positions {
		sum += p.Weight
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestParseRequest_FractionPortfolio(t *testing.T) {
	req := parse("risk for SBER:0.6 GAZP:0.4 please")
	require.Len(t, req.Positions, 2)
	assert.InDelta(t, 0.6, req.Positions[0].Weight, 1e-9)
	assert.InDelta(t, 0.4, req.Positions[1].Weight, 1e-9)
}

func TestParseRequest_NotAPortfolio(t *testing.T) {
	// Values that sum to neither ~1 nor ~100 are not portfolio weights.
	req := parse("SBER 300 and GAZP 170 price targets")
	assert.Empty(t, req.Positions)
	assert.Equal(t, []string{"SBER", "GAZP"}, req.Tickers)

	// A single weighted entry is not a portfolio either.
	req = parse("SBER 100% conviction")
	assert.Empty(t, req.Positions)
}

func TestParseRequest_ExplicitDates(t *testing.T) {
	req := parse("SBER с 2024-01-01 по 2024-06-30")
	assert.Equal(t, "2024-01-01", req.FromDate)
	assert.Equal(t, "2024-06-30", req.ToDate)

	// Dates in either order normalise to min..max.
	req = parse("SBER 2024-06-30 2024-01-01")
	assert.Equal(t, "2024-01-01", req.FromDate)
	assert.Equal(t, "2024-06-30", req.ToDate)
}

func TestParseRequest_DefaultLookback(t *testing.T) {
	req := parse("обзор SBER")
	assert.Equal(t, "2025-06-02", req.ToDate)
	assert.Equal(t, "2024-06-02", req.FromDate)
	assert.Equal(t, "RUB", req.BaseCurrency)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		text string
		want scenario.Type
	}{
		{"single security", "обзор SBER", scenario.SingleSecurityOverview},
		{"compare two", "сравни SBER и GAZP", scenario.CompareSecurities},
		{"index scan", "риски индекса IMOEX", scenario.IndexRiskScan},
		{"no entities defaults to index", "что происходит на рынке", scenario.IndexRiskScan},
		{"portfolio risk", "риск портфеля SBER 60%, GAZP 40%", scenario.PortfolioRisk},
		{"drill down", "подробный разбор портфеля SBER 60%, GAZP 40% с корреляциями", scenario.PortfolioRiskDrillDown},
		{"cfo liquidity", "отчёт по ликвидности для CFO: SBER 60%, OFZ 40%", scenario.CFOLiquidityReport},
		{"issuer peers", "peers анализ LKOH по сектору", scenario.IssuerPeersCompare},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(parse(tt.text)))
		})
	}
}
