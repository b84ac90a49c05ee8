package risk

import (
	"fmt"
	"sort"

	"github.com/mosfin/analyst/internal/domain"
)

// LiquidityBucketRow is the weight and value held in one liquidity bucket.
type LiquidityBucketRow struct {
	Bucket string  `json:"bucket"`
	Weight float64 `json:"weight"`
	Value  float64 `json:"value,omitempty"`
}

// LiquidityReport is the CFO liquidity view: bucketed positions, coverage
// ratios, stress outcomes with covenant checks and a recommendation list.
type LiquidityReport struct {
	Buckets         []LiquidityBucketRow `json:"buckets"`
	QuickRatio      float64              `json:"quick_ratio"`
	ShortTermRatio  float64              `json:"short_term_ratio"`
	StressScenarios []StressResult       `json:"stress_scenarios"`
	Recommendations []string             `json:"recommendations,omitempty"`
}

// bucketOrder lists liquidity buckets from most to least liquid.
var bucketOrder = []domain.LiquidityBucket{
	domain.Liquidity0to7d,
	domain.Liquidity8to30d,
	domain.Liquidity31to90d,
	domain.LiquidityOver90d,
}

// BuildLiquidityReport buckets positions by liquidity, computes the quick
// ratio (0-7d assets over short-term liabilities) and the short-term
// ratio (0-30d assets over short-term liabilities), reruns the stress
// engine and derives recommendations. When no liabilities are given the
// ratios degrade to portfolio fractions.
func BuildLiquidityReport(positions []domain.Position, aggregates Aggregates, totalValue, shortTermLiabilities float64, limits *CovenantLimits, baseCurrency string) (*LiquidityReport, error) {
	if err := ValidatePortfolio(positions); err != nil {
		return nil, err
	}

	byBucket := make(map[domain.LiquidityBucket]float64)
	for _, p := range positions {
		bucket := p.LiquidityBucket
		if bucket == "" {
			bucket = domain.LiquidityOver90d // unclassified is assumed illiquid
		}
		byBucket[bucket] += p.Weight
	}

	report := &LiquidityReport{}
	for _, bucket := range bucketOrder {
		row := LiquidityBucketRow{Bucket: string(bucket), Weight: byBucket[bucket]}
		if totalValue > 0 {
			row.Value = row.Weight * totalValue
		}
		report.Buckets = append(report.Buckets, row)
	}

	quick := byBucket[domain.Liquidity0to7d]
	shortTerm := quick + byBucket[domain.Liquidity8to30d]
	if shortTermLiabilities > 0 && totalValue > 0 {
		report.QuickRatio = quick * totalValue / shortTermLiabilities
		report.ShortTermRatio = shortTerm * totalValue / shortTermLiabilities
	} else {
		report.QuickRatio = quick
		report.ShortTermRatio = shortTerm
	}

	exposures := ComputeExposures(positions, baseCurrency)
	report.StressScenarios = RunStressScenarios(nil, exposures, aggregates, totalValue, limits)

	report.Recommendations = liquidityRecommendations(report, byBucket)
	return report, nil
}

func liquidityRecommendations(report *LiquidityReport, byBucket map[domain.LiquidityBucket]float64) []string {
	var recs []string
	if report.QuickRatio < 1 {
		recs = append(recs, fmt.Sprintf("quick ratio %.2f is below 1.0: increase 0-7d liquid holdings", report.QuickRatio))
	}
	if illiquid := byBucket[domain.LiquidityOver90d]; illiquid > 0.5 {
		recs = append(recs, fmt.Sprintf("%.0f%% of the portfolio is locked beyond 90 days", illiquid*100))
	}
	for _, s := range report.StressScenarios {
		if len(s.CovenantBreaches) > 0 {
			recs = append(recs, fmt.Sprintf("scenario %s breaches covenants: reduce exposure or renegotiate limits", s.Name))
		}
	}
	sort.Strings(recs)
	return recs
}
