package risk

import (
	"sort"

	"github.com/mosfin/analyst/internal/domain"
)

// Concentrations summarises how concentrated the portfolio is: top-N
// weight percentages, the Herfindahl–Hirschman index and weight
// groupings by asset class, issuer and currency.
type Concentrations struct {
	Top1Pct      float64            `json:"top1_pct"`
	Top3Pct      float64            `json:"top3_pct"`
	Top5Pct      float64            `json:"top5_pct"`
	HHI          float64            `json:"hhi"`
	ByAssetClass map[string]float64 `json:"by_asset_class,omitempty"`
	ByIssuer     map[string]float64 `json:"by_issuer,omitempty"`
	ByCurrency   map[string]float64 `json:"by_currency,omitempty"`
}

// ComputeConcentrations derives the concentration block from positions.
// Issuer falls back to the share-class table when not provided on the
// position.
func ComputeConcentrations(positions []domain.Position) Concentrations {
	weights := make([]float64, 0, len(positions))
	c := Concentrations{
		ByAssetClass: make(map[string]float64),
		ByIssuer:     make(map[string]float64),
		ByCurrency:   make(map[string]float64),
	}

	for _, p := range positions {
		weights = append(weights, p.Weight)
		c.HHI += p.Weight * p.Weight
		c.ByAssetClass[string(p.AssetClass)] += p.Weight

		issuer := p.Issuer
		if issuer == "" {
			issuer = domain.IssuerFor(p.Ticker)
		}
		c.ByIssuer[issuer] += p.Weight

		if p.Currency != "" {
			c.ByCurrency[p.Currency] += p.Weight
		}
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(weights)))
	c.Top1Pct = topSum(weights, 1) * 100
	c.Top3Pct = topSum(weights, 3) * 100
	c.Top5Pct = topSum(weights, 5) * 100
	return c
}

func topSum(sortedDesc []float64, n int) float64 {
	if n > len(sortedDesc) {
		n = len(sortedDesc)
	}
	sum := 0.0
	for _, w := range sortedDesc[:n] {
		sum += w
	}
	return sum
}
