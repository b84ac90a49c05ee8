package risk

import (
	"fmt"
	"math"
	"sort"

	"github.com/mosfin/analyst/internal/domain"
)

// RebalancePosition is one input line for the rebalance heuristic.
type RebalancePosition struct {
	Ticker        string            `json:"ticker"`
	CurrentWeight float64           `json:"current_weight"`
	AssetClass    domain.AssetClass `json:"asset_class"`
	Issuer        string            `json:"issuer,omitempty"`
}

// RiskProfile carries the constraints the rebalance targets must honour.
// Zero values disable a constraint.
type RiskProfile struct {
	MaxSinglePositionWeight float64            `json:"max_single_position_weight,omitempty"`
	MaxIssuerWeight         float64            `json:"max_issuer_weight,omitempty"`
	MaxTurnover             float64            `json:"max_turnover,omitempty"`
	MaxAssetClassWeights    map[string]float64 `json:"max_asset_class_weights,omitempty"`
	TargetAssetClassWeights map[string]float64 `json:"target_asset_class_weights,omitempty"`
}

// Trade is one suggested adjustment.
type Trade struct {
	Ticker         string  `json:"ticker"`
	Side           string  `json:"side"` // buy | sell
	WeightDelta    float64 `json:"weight_delta"`
	EstimatedValue float64 `json:"estimated_value,omitempty"`
}

// RebalanceSummary reports the outcome of the heuristic.
type RebalanceSummary struct {
	TotalTurnover               float64  `json:"total_turnover"`
	ConcentrationIssuesResolved int      `json:"concentration_issues_resolved"`
	Warnings                    []string `json:"warnings,omitempty"`
}

// RebalanceResult is the full output of SuggestRebalance.
type RebalanceResult struct {
	Targets map[string]float64 `json:"targets"`
	Trades  []Trade            `json:"trades"`
	Summary RebalanceSummary   `json:"summary"`
}

// SuggestRebalance computes constraint-driven target weights:
//
//  1. cap single-position, issuer-group and asset-class violations,
//     collecting the displaced mass into an excess pool,
//  2. distribute the pool to undercap positions (within the same asset
//     class when class targets exist, otherwise across all receivers),
//  3. scale all deltas down when turnover exceeds max_turnover, recording
//     still-unresolved violations as warnings instead of failing.
//
// The heuristic is deterministic: positions with identical excess sort by
// ticker lexicographically, and Σ target = 1 is preserved exactly up to
// the arithmetic of the distribution step.
func SuggestRebalance(positions []RebalancePosition, profile RiskProfile, totalValue float64) (*RebalanceResult, error) {
	if len(positions) == 0 {
		return nil, domain.NewValidationError("positions", "at least one position is required")
	}

	ordered := make([]RebalancePosition, len(positions))
	copy(ordered, positions)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Ticker < ordered[j].Ticker })

	current := make(map[string]float64, len(ordered))
	targets := make(map[string]float64, len(ordered))
	for _, p := range ordered {
		if _, dup := current[p.Ticker]; dup {
			return nil, domain.NewValidationError("positions", "duplicate ticker %s", p.Ticker)
		}
		current[p.Ticker] = p.CurrentWeight
		targets[p.Ticker] = p.CurrentWeight
	}

	violators := capViolations(ordered, targets, profile)
	pool := 0.0
	violatorSet := make(map[string]bool, len(violators))
	for _, v := range violators {
		targets[v.ticker] -= v.excess
		pool += v.excess
		violatorSet[v.ticker] = true
	}

	residual := distributeExcess(ordered, targets, profile, violatorSet, pool)
	if residual > 1e-12 {
		// Nowhere left to put the mass without breaching a cap: hand it
		// back to the violators proportionally so Σ target stays 1.
		giveBack(violators, targets, residual)
	}

	summary := RebalanceSummary{}
	if residual > 1e-12 {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("excess weight %.4f could not be redistributed without breaching caps", residual))
	}

	// Turnover check: scale every delta uniformly when over budget.
	turnover := halfTurnover(ordered, current, targets)
	if profile.MaxTurnover > 0 && turnover > profile.MaxTurnover {
		factor := profile.MaxTurnover / turnover
		for _, p := range ordered {
			delta := targets[p.Ticker] - current[p.Ticker]
			targets[p.Ticker] = current[p.Ticker] + delta*factor
		}
		turnover = halfTurnover(ordered, current, targets)
	}
	summary.TotalTurnover = turnover

	// Re-check violations after the distribution and turnover scaling.
	for _, v := range capViolations(ordered, targets, profile) {
		summary.Warnings = append(summary.Warnings,
			fmt.Sprintf("%s: %s still exceeds limit by %.4f after best-effort rebalance", v.ticker, v.reason, v.excess))
	}
	for _, v := range violators {
		if !stillViolating(v.ticker, summary.Warnings) {
			summary.ConcentrationIssuesResolved++
		}
	}

	trades := make([]Trade, 0, len(ordered))
	for _, p := range ordered {
		delta := targets[p.Ticker] - current[p.Ticker]
		if math.Abs(delta) < 1e-9 {
			continue
		}
		trade := Trade{Ticker: p.Ticker, WeightDelta: delta, Side: "buy"}
		if delta < 0 {
			trade.Side = "sell"
		}
		if totalValue > 0 {
			trade.EstimatedValue = delta * totalValue
		}
		trades = append(trades, trade)
	}

	return &RebalanceResult{Targets: targets, Trades: trades, Summary: summary}, nil
}

type violation struct {
	ticker string
	excess float64
	reason string
}

// capViolations finds positions over any hard cap, largest absolute
// excess first with lexicographic ticker tie-break.
func capViolations(ordered []RebalancePosition, targets map[string]float64, profile RiskProfile) []violation {
	var violations []violation

	if profile.MaxSinglePositionWeight > 0 {
		for _, p := range ordered {
			if excess := targets[p.Ticker] - profile.MaxSinglePositionWeight; excess > 1e-9 {
				violations = append(violations, violation{p.Ticker, excess, "single-position cap"})
			}
		}
	}

	if profile.MaxIssuerWeight > 0 {
		issuerTotals := make(map[string]float64)
		for _, p := range ordered {
			issuerTotals[issuerOf(p)] += targets[p.Ticker]
		}
		for _, p := range ordered {
			issuer := issuerOf(p)
			over := issuerTotals[issuer] - profile.MaxIssuerWeight
			if over <= 1e-9 || issuerTotals[issuer] == 0 {
				continue
			}
			// Trim each member proportionally to its share of the group.
			share := targets[p.Ticker] / issuerTotals[issuer]
			violations = append(violations, violation{p.Ticker, over * share, "issuer cap"})
		}
	}

	if len(profile.MaxAssetClassWeights) > 0 {
		classTotals := make(map[string]float64)
		for _, p := range ordered {
			classTotals[string(p.AssetClass)] += targets[p.Ticker]
		}
		for _, p := range ordered {
			cap, ok := profile.MaxAssetClassWeights[string(p.AssetClass)]
			if !ok || cap <= 0 {
				continue
			}
			over := classTotals[string(p.AssetClass)] - cap
			if over <= 1e-9 || classTotals[string(p.AssetClass)] == 0 {
				continue
			}
			share := targets[p.Ticker] / classTotals[string(p.AssetClass)]
			violations = append(violations, violation{p.Ticker, over * share, "asset-class cap"})
		}
	}

	// Merge duplicate tickers keeping the largest excess, then order by
	// excess descending with ticker as the tie-break.
	byTicker := make(map[string]violation)
	for _, v := range violations {
		if existing, ok := byTicker[v.ticker]; !ok || v.excess > existing.excess {
			byTicker[v.ticker] = v
		}
	}
	merged := make([]violation, 0, len(byTicker))
	for _, v := range byTicker {
		merged = append(merged, v)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].excess != merged[j].excess {
			return merged[i].excess > merged[j].excess
		}
		return merged[i].ticker < merged[j].ticker
	})
	return merged
}

// distributeExcess allocates the pool to undercap receivers proportional
// to their headroom. When class targets exist, receivers in classes below
// their target weight take priority. Returns the mass that found no home.
func distributeExcess(ordered []RebalancePosition, targets map[string]float64, profile RiskProfile, violators map[string]bool, pool float64) float64 {
	if pool <= 0 {
		return 0
	}

	headroom := func(p RebalancePosition) float64 {
		if violators[p.Ticker] {
			return 0
		}
		if profile.MaxSinglePositionWeight <= 0 {
			return pool // unconstrained receiver
		}
		h := profile.MaxSinglePositionWeight - targets[p.Ticker]
		if h < 0 {
			return 0
		}
		return h
	}

	receivers := make([]RebalancePosition, 0, len(ordered))
	if len(profile.TargetAssetClassWeights) > 0 {
		classTotals := make(map[string]float64)
		for _, p := range ordered {
			classTotals[string(p.AssetClass)] += targets[p.Ticker]
		}
		for _, p := range ordered {
			want, ok := profile.TargetAssetClassWeights[string(p.AssetClass)]
			if ok && classTotals[string(p.AssetClass)] < want && headroom(p) > 0 {
				receivers = append(receivers, p)
			}
		}
	}
	if len(receivers) == 0 {
		for _, p := range ordered {
			if headroom(p) > 0 {
				receivers = append(receivers, p)
			}
		}
	}
	if len(receivers) == 0 {
		return pool
	}

	totalHeadroom := 0.0
	for _, p := range receivers {
		totalHeadroom += headroom(p)
	}
	if totalHeadroom <= 0 {
		return pool
	}

	distributable := math.Min(pool, totalHeadroom)
	for _, p := range receivers {
		targets[p.Ticker] += distributable * headroom(p) / totalHeadroom
	}
	return pool - distributable
}

func giveBack(violators []violation, targets map[string]float64, residual float64) {
	totalExcess := 0.0
	for _, v := range violators {
		totalExcess += v.excess
	}
	if totalExcess <= 0 {
		return
	}
	for _, v := range violators {
		targets[v.ticker] += residual * v.excess / totalExcess
	}
}

func halfTurnover(ordered []RebalancePosition, current, targets map[string]float64) float64 {
	sum := 0.0
	for _, p := range ordered {
		sum += math.Abs(targets[p.Ticker] - current[p.Ticker])
	}
	return sum / 2
}

func stillViolating(ticker string, warnings []string) bool {
	for _, w := range warnings {
		if len(w) >= len(ticker) && w[:len(ticker)] == ticker {
			return true
		}
	}
	return false
}

func issuerOf(p RebalancePosition) string {
	if p.Issuer != "" {
		return p.Issuer
	}
	return domain.IssuerFor(p.Ticker)
}
