package planner

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mosfin/analyst/internal/agent/scenario"
	"github.com/mosfin/analyst/internal/domain"
)

var (
	tickerPattern    = regexp.MustCompile(`\b[A-Z]{3,6}\d?\b`)
	datePattern      = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	portfolioPattern = regexp.MustCompile(`\b([A-Z]{3,6}\d?)\s*[:=]?\s*(\d+(?:[.,]\d+)?)\s*(%)?`)
)

// knownIndexes are tokens treated as index tickers, never as securities.
var knownIndexes = map[string]bool{
	"IMOEX":  true,
	"RTSI":   true,
	"MOEXBC": true,
}

// stopWords are uppercase tokens that match the ticker pattern but are
// ordinary words in financial queries.
var stopWords = map[string]bool{
	"THE": true, "AND": true, "FOR": true, "VAR": true, "HHI": true,
	"USD": true, "EUR": true, "RUB": true, "CNY": true,
	"MOEX": true, "ISS": true, "MCP": true, "CFO": true,
}

// ParseRequest extracts the structured request from free-form message
// text: tickers, an inline portfolio (comma/percent patterns), an
// explicit date range and an index reference.
func ParseRequest(text string, now time.Time, defaultLookback time.Duration, defaultIndex string) scenario.Request {
	req := scenario.Request{Query: text, IndexTicker: defaultIndex, BaseCurrency: "RUB"}

	req.Positions = parsePortfolio(text)

	seen := make(map[string]bool)
	for _, match := range tickerPattern.FindAllString(text, -1) {
		if stopWords[match] || seen[match] {
			continue
		}
		if knownIndexes[match] {
			req.IndexTicker = match
			continue
		}
		seen[match] = true
		req.Tickers = append(req.Tickers, match)
	}
	if len(req.Tickers) == 0 && len(req.Positions) > 0 {
		for _, p := range req.Positions {
			req.Tickers = append(req.Tickers, p.Ticker)
		}
	}

	dates := datePattern.FindAllString(text, -1)
	if len(dates) >= 2 {
		sort.Strings(dates)
		req.FromDate = dates[0]
		req.ToDate = dates[len(dates)-1]
	} else {
		if defaultLookback <= 0 {
			defaultLookback = 365 * 24 * time.Hour
		}
		req.ToDate = now.Format("2006-01-02")
		req.FromDate = now.Add(-defaultLookback).Format("2006-01-02")
	}

	return req
}

// parsePortfolio reads "SBER 45%, GAZP 20%" or "SBER:0.45" style inline
// portfolios. Values summing near 100 are treated as percentages, near 1
// as fractions; anything else is not a portfolio.
func parsePortfolio(text string) []domain.Position {
	matches := portfolioPattern.FindAllStringSubmatch(text, -1)
	if len(matches) < 2 {
		return nil
	}

	type entry struct {
		ticker string
		value  float64
	}
	var entries []entry
	seen := make(map[string]bool)
	sum := 0.0
	for _, m := range matches {
		ticker := m[1]
		if stopWords[ticker] || knownIndexes[ticker] || seen[ticker] {
			continue
		}
		raw := strings.ReplaceAll(m[2], ",", ".")
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		seen[ticker] = true
		entries = append(entries, entry{ticker, value})
		sum += value
	}
	if len(entries) < 2 {
		return nil
	}

	scale := 0.0
	switch {
	case math.Abs(sum-100) < 1:
		scale = 1.0 / 100
	case math.Abs(sum-1) < 0.01:
		scale = 1
	default:
		return nil
	}

	positions := make([]domain.Position, 0, len(entries))
	for _, e := range entries {
		positions = append(positions, domain.Position{
			Ticker:     e.ticker,
			Weight:     e.value * scale,
			AssetClass: domain.AssetClassEquity,
		})
	}
	return positions
}

// keyword groups drive the deterministic scenario classification. Both
// Russian and English stems are matched case-insensitively.
var (
	liquidityWords = []string{"ликвидн", "liquidity", "quick ratio", "cfo", "казначе"}
	indexWords     = []string{"индекс", "index"}
	peersWords     = []string{"аналог", "peers", "конкурент", "сектор"}
	compareWords   = []string{"сравн", "compare", " vs ", "против"}
	drillWords     = []string{"подробн", "drill", "ребаланс", "rebalance", "корреляц", "correlation", "детал"}
)

func containsAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Classify maps a parsed request to a scenario type using keyword and
// entity rules only. It never consults an LLM.
func Classify(req scenario.Request) scenario.Type {
	switch {
	case containsAny(req.Query, liquidityWords) && len(req.Positions) > 0:
		return scenario.CFOLiquidityReport
	case len(req.Positions) > 0 && containsAny(req.Query, drillWords):
		return scenario.PortfolioRiskDrillDown
	case len(req.Positions) > 0:
		return scenario.PortfolioRisk
	case containsAny(req.Query, indexWords) || (len(req.Tickers) == 0 && req.IndexTicker != ""):
		return scenario.IndexRiskScan
	case containsAny(req.Query, peersWords) && len(req.Tickers) >= 1:
		return scenario.IssuerPeersCompare
	case len(req.Tickers) >= 2:
		return scenario.CompareSecurities
	default:
		return scenario.SingleSecurityOverview
	}
}
