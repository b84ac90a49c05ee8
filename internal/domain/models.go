// Package domain holds the shared data model: market data records,
// portfolio positions and the error taxonomy used by every service.
package domain

import "time"

// AssetClass buckets a position for concentration and stress analysis.
type AssetClass string

const (
	AssetClassEquity      AssetClass = "equity"
	AssetClassFixedIncome AssetClass = "fixed_income"
	AssetClassCredit      AssetClass = "credit"
	AssetClassCash        AssetClass = "cash"
	AssetClassFX          AssetClass = "fx"
)

// LiquidityBucket classifies how quickly a position can be unwound.
type LiquidityBucket string

const (
	Liquidity0to7d   LiquidityBucket = "0-7d"
	Liquidity8to30d  LiquidityBucket = "8-30d"
	Liquidity31to90d LiquidityBucket = "31-90d"
	LiquidityOver90d LiquidityBucket = "90d+"
)

// Position is a single portfolio line. Weight is a fraction of total
// portfolio value in [0,1].
type Position struct {
	Ticker          string          `json:"ticker"`
	Weight          float64         `json:"weight"`
	AssetClass      AssetClass      `json:"asset_class"`
	Issuer          string          `json:"issuer,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	LiquidityBucket LiquidityBucket `json:"liquidity_bucket,omitempty"`
}

// WeightSumTolerance is the allowed deviation of Σ weight from 1 in a
// valid portfolio input.
const WeightSumTolerance = 1e-4

// OHLCVBar is one daily (or hourly) market bar. Bars in a series are
// strictly ordered by date with missing trading days dropped.
type OHLCVBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// SecuritySnapshot is the current quote for one security on one board.
type SecuritySnapshot struct {
	Ticker    string    `json:"ticker"`
	Board     string    `json:"board"`
	ShortName string    `json:"short_name,omitempty"`
	Last      float64   `json:"last"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	PrevClose float64   `json:"prev_close"`
	Volume    float64   `json:"volume"`
	Currency  string    `json:"currency,omitempty"`
	AsOf      time.Time `json:"as_of"`
}

// IndexConstituent is one member of an index with its weight.
type IndexConstituent struct {
	Ticker    string  `json:"ticker"`
	ShortName string  `json:"short_name,omitempty"`
	Weight    float64 `json:"weight"`
}

// DividendRecord is one declared dividend payment.
type DividendRecord struct {
	Ticker       string    `json:"ticker"`
	RegistryDate time.Time `json:"registry_date"`
	Value        float64   `json:"value"`
	Currency     string    `json:"currency"`
}

// Interval is the bar interval for OHLCV requests.
type Interval string

const (
	IntervalDay  Interval = "1d"
	IntervalHour Interval = "1h"
)

// DefaultBoard is the MOEX trading board used when a request omits one.
const DefaultBoard = "TQBR"

// IssuerFor resolves the issuer for a ticker. Paired preferred/ordinary
// share classes map to the same issuer; everything else defaults to the
// ticker itself.
func IssuerFor(ticker string) string {
	if issuer, ok := shareClassIssuers[ticker]; ok {
		return issuer
	}
	return ticker
}

// shareClassIssuers pairs preferred share tickers with their ordinary
// counterparts. TODO: replace with the reference table from the corporate
// actions feed once it is exposed through ISS.
var shareClassIssuers = map[string]string{
	"SBERP": "SBER",
	"TATNP": "TATN",
	"SNGSP": "SNGS",
	"RTKMP": "RTKM",
	"MTLRP": "MTLR",
	"BANEP": "BANE",
}
